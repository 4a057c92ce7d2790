package artnetnode

// InputPortSnapshot is a point-in-time, lock-safe copy of an input port's
// externally interesting state, for status/diagnostic surfaces that must
// not reach into Node's internals directly.
type InputPortSnapshot struct {
	Index              int
	UniverseAddress    uint8
	Enabled            bool
	SequenceNumber     uint8
	SubscriberCount    int
	UIDCount           int
	DiscoveryActive    bool
	RDMRequestInFlight bool
}

// OutputPortSnapshot is a point-in-time, lock-safe copy of an output port's
// externally interesting state.
type OutputPortSnapshot struct {
	Index           int
	UniverseAddress uint8
	Enabled         bool
	MergeMode       MergeMode
	IsMerging       bool
	ActiveSources   int
}

// Snapshot is a full point-in-time copy of a Node's configuration and
// per-port state, safe to read, marshal, or hold onto after the call
// returns (it shares no memory with the Node).
type Snapshot struct {
	ShortName             string
	LongName              string
	NetAddress            uint8
	SubnetAddress         uint8
	Running               bool
	UnsolicitedReplyCount int
	Inputs                [MaxPorts]InputPortSnapshot
	Outputs               [MaxPorts]OutputPortSnapshot
}

// Snapshot returns a consistent, lock-safe copy of the node's current state.
func (n *Node) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Snapshot{
		ShortName:             n.shortName,
		LongName:              n.longName,
		NetAddress:            n.netAddress,
		SubnetAddress:         n.subnetAddress,
		Running:               n.running,
		UnsolicitedReplyCount: n.unsolicitedReplyCount,
	}

	now := n.sched.Now()
	for i, ip := range n.inputs {
		n.pruneSubscribersLocked(ip, now)
		s.Inputs[i] = InputPortSnapshot{
			Index:              i,
			UniverseAddress:    ip.UniverseAddress,
			Enabled:            ip.Enabled,
			SequenceNumber:     ip.SequenceNumber,
			SubscriberCount:    len(ip.subscribedNodes),
			UIDCount:           len(ip.uids),
			DiscoveryActive:    ip.discoveryCallback != nil,
			RDMRequestInFlight: ip.rdmRequestCallback != nil,
		}
	}

	for i, op := range n.outputs {
		active := 0
		for _, src := range op.sources {
			if src.address != nil {
				active++
			}
		}
		s.Outputs[i] = OutputPortSnapshot{
			Index:           i,
			UniverseAddress: op.UniverseAddress,
			Enabled:         op.Enabled,
			MergeMode:       op.MergeMode,
			IsMerging:       op.IsMerging,
			ActiveSources:   active,
		}
	}

	return s
}
