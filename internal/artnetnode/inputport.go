package artnetnode

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/lucsky/cuid"

	"github.com/bbernstein/artnetnode/internal/rdm"
	"github.com/bbernstein/artnetnode/internal/reactor"
	"github.com/bbernstein/artnetnode/pkg/artnet"
)

// uidEntry is the Table-of-Devices entry for one RDM UID known through a
// port's discovery sessions: the IP that most recently answered for it, and
// the number of consecutive discovery rounds it has gone unconfirmed.
type uidEntry struct {
	ip     net.IP
	missed int
}

// InputPort is a source of DMX originating locally and sent onto the
// network, and an RDM controller against the remote UIDs it has discovered
// (spec.md §3, §4.4).
type InputPort struct {
	UniverseAddress uint8
	Enabled         bool
	SequenceNumber  uint8

	subscribedNodes map[[4]byte]time.Time
	uids            map[rdm.UID]*uidEntry

	// TODCallback delivers the current UID set when an ArtTodData arrives
	// while no discovery session is active (spec.md §4.4, "Unsolicited TOD").
	TODCallback func(uids []rdm.UID)

	discoveryCallback   func(uids []rdm.UID)
	discoveryTimeout    reactor.TimeoutID
	discoveryTimeoutSet bool
	discoveryNodeSet    map[[4]byte]struct{}
	// discoveryCorrelationID tags one discovery session's log lines (entry,
	// release) so they can be told apart from the next session's.
	discoveryCorrelationID string

	rdmRequestCallback func(code rdm.ResponseCode, resp *rdm.Command)
	pendingRequest     *rdm.Command
	rdmIPDestination   net.IP
	rdmSendTimeout     reactor.TimeoutID
	rdmTimeoutSet      bool
	// rdmCorrelationID tags one in-flight RDM request's log lines (send,
	// timeout/match) the same way.
	rdmCorrelationID string
}

func newInputPort() *InputPort {
	return &InputPort{
		subscribedNodes: make(map[[4]byte]time.Time),
		uids:            make(map[rdm.UID]*uidEntry),
	}
}

// currentUIDSet returns the port's currently known UIDs as a slice.
func (ip *InputPort) currentUIDSet() []rdm.UID {
	out := make([]rdm.UID, 0, len(ip.uids))
	for uid := range ip.uids {
		out = append(out, uid)
	}
	return out
}

// SubscribedNodes returns the input port's current, pruned subscriber set:
// the remote IPs that most recently advertised an output port listening on
// this port's universe.
func (n *Node) SubscribedNodes(portID int) ([]net.IP, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ip, err := n.inputPort(portID)
	if err != nil {
		return nil, err
	}
	n.pruneSubscribersLocked(ip, n.sched.Now())

	out := make([]net.IP, 0, len(ip.subscribedNodes))
	for k := range ip.subscribedNodes {
		addr := make(net.IP, 4)
		copy(addr, k[:])
		out = append(out, addr)
	}
	return out, nil
}

// SetUnsolicitedTODHandler installs the callback invoked when an ArtTodData
// arrives for this port's universe while no discovery session is active.
func (n *Node) SetUnsolicitedTODHandler(portID int, cb func(uids []rdm.UID)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	ip, err := n.inputPort(portID)
	if err != nil {
		return err
	}
	ip.TODCallback = cb
	return nil
}

func (n *Node) pruneSubscribersLocked(ip *InputPort, now time.Time) {
	for k, t := range ip.subscribedNodes {
		if now.Sub(t) >= NodeTimeout {
			delete(ip.subscribedNodes, k)
		}
	}
}

// SendDMX emits the buffer on an input port per spec.md §4.4's
// broadcast-vs-unicast policy: broadcast once the pruned subscriber count
// reaches the broadcast threshold (or AlwaysBroadcast is set), otherwise
// unicast to each surviving subscriber. The sequence number advances iff at
// least one packet actually went out.
func (n *Node) SendDMX(portID int, data []byte) error {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if !ip.Enabled {
		n.mu.Unlock()
		return fmt.Errorf("artnetnode: input port %d is disabled", portID)
	}

	n.pruneSubscribersLocked(ip, n.sched.Now())
	universe := n.wireUniverseLocked(ip.UniverseAddress)
	trans := n.trans

	broadcast := n.alwaysBroadcast || len(ip.subscribedNodes) >= n.broadcastThreshold

	if broadcast {
		dst := n.bcastAddressLocked()
		seq := ip.SequenceNumber
		n.mu.Unlock()

		pkt := &artnet.DMX{Sequence: seq, Universe: universe, Data: data}
		encoded, _ := artnet.Encode(pkt)
		if err := trans.SendTo(encoded, dst); err != nil {
			return err
		}

		n.mu.Lock()
		ip.SequenceNumber++
		n.mu.Unlock()
		return nil
	}

	dests := make([]net.IP, 0, len(ip.subscribedNodes))
	for k := range ip.subscribedNodes {
		addr := make(net.IP, 4)
		copy(addr, k[:])
		dests = append(dests, addr)
	}
	seq := ip.SequenceNumber
	n.mu.Unlock()

	sentAny := false
	for _, dst := range dests {
		pkt := &artnet.DMX{Sequence: seq, Universe: universe, Data: data}
		encoded, _ := artnet.Encode(pkt)
		if err := trans.SendTo(encoded, dst); err != nil {
			log.Printf("artnetnode: input port %d: unicast send to %s failed: %v", portID, dst, err)
			continue
		}
		sentAny = true
	}

	if sentAny {
		n.mu.Lock()
		ip.SequenceNumber++
		n.mu.Unlock()
	}
	return nil
}

func (n *Node) wireUniverseLocked(portUniverse uint8) uint16 {
	return uint16(n.netAddress)<<8 | uint16(portUniverse)
}

// SendRDMRequest issues an RDM request on an input port. Every outcome
// except an invalid port ID is delivered to onComplete, never returned
// directly, per spec.md §4.4 / §7.
func (n *Node) SendRDMRequest(portID int, req *rdm.Command, onComplete func(code rdm.ResponseCode, resp *rdm.Command)) error {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return err
	}

	if req.CommandClass == rdm.DiscoveryCommand {
		n.mu.Unlock()
		onComplete(rdm.ResponsePluginDiscoveryNotSupported, nil)
		return nil
	}

	if !ip.Enabled || ip.rdmRequestCallback != nil {
		n.mu.Unlock()
		onComplete(rdm.ResponseFailedToSend, nil)
		return nil
	}

	correlationID := cuid.New()
	dest := n.bcastAddressLocked()
	if entry, ok := ip.uids[req.DestinationUID]; ok {
		dest = entry.ip
	}

	payload, packErr := n.codec.Pack(req)
	if packErr != nil {
		n.mu.Unlock()
		onComplete(rdm.ResponseFailedToSend, nil)
		return nil
	}

	pkt := &artnet.RDM{Net: n.netAddress, Address: ip.UniverseAddress, Data: payload}
	encoded, _ := artnet.Encode(pkt)
	trans := n.trans
	n.mu.Unlock()

	if err := trans.SendTo(encoded, dest); err != nil {
		onComplete(rdm.ResponseFailedToSend, nil)
		return nil
	}

	if req.DestinationUID.IsBroadcast() {
		onComplete(rdm.ResponseWasBroadcast, nil)
		return nil
	}

	n.mu.Lock()
	ip.pendingRequest = req
	ip.rdmRequestCallback = onComplete
	ip.rdmIPDestination = dest
	ip.rdmCorrelationID = correlationID
	ip.rdmSendTimeout = n.sched.RegisterSingleTimeout(RDMRequestTimeout, func() {
		n.handleRDMRequestTimeout(portID)
	})
	ip.rdmTimeoutSet = true
	n.mu.Unlock()
	log.Printf("artnetnode: port %d: rdm request pid=%#x sent to %s (corr=%s)", portID, uint16(req.PID), dest, correlationID)
	return nil
}

func (n *Node) handleRDMRequestTimeout(portID int) {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return
	}
	cb := ip.rdmRequestCallback
	correlationID := ip.rdmCorrelationID
	ip.rdmRequestCallback = nil
	ip.pendingRequest = nil
	ip.rdmIPDestination = nil
	ip.rdmTimeoutSet = false
	ip.rdmCorrelationID = ""
	n.mu.Unlock()

	log.Printf("artnetnode: port %d: rdm request timed out (corr=%s)", portID, correlationID)
	if cb != nil {
		cb(rdm.ResponseTimeout, nil)
	}
}

// handleRDMOnInputPort matches an inbound ArtRdm against the port's pending
// request per the checks of spec.md §4.4/§4.6. Any check failure drops the
// response silently and leaves the timeout running.
func (n *Node) handleRDMOnInputPort(portID int, p *artnet.RDM, srcIP net.IP) {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil || !ip.Enabled || ip.rdmRequestCallback == nil {
		n.mu.Unlock()
		return
	}

	resp, inflateErr := n.codec.Inflate(p.Data)
	if inflateErr != nil {
		n.mu.Unlock()
		return
	}

	pending := ip.pendingRequest
	if pending.SourceUID != resp.DestinationUID || pending.DestinationUID != resp.SourceUID {
		n.mu.Unlock()
		return
	}

	if pending.PID != rdm.PIDQueuedMessage {
		if pending.PID != resp.PID {
			n.mu.Unlock()
			return
		}
		if pending.SubDevice != resp.SubDevice && pending.SubDevice != rdm.AllSubdevices {
			n.mu.Unlock()
			return
		}

		var wantCC rdm.CommandClass
		switch pending.CommandClass {
		case rdm.GetCommand:
			wantCC = rdm.GetCommandResponse
		case rdm.SetCommand:
			wantCC = rdm.SetCommandResponse
		default:
			wantCC = resp.CommandClass // unreachable: DiscoveryCommand is rejected at request time
		}
		if resp.CommandClass != wantCC {
			n.mu.Unlock()
			return
		}
	}

	bcast := n.bcastAddressLocked()
	if !(srcIP.Equal(ip.rdmIPDestination) || ip.rdmIPDestination.Equal(bcast)) {
		n.mu.Unlock()
		return
	}

	if ip.rdmTimeoutSet {
		n.sched.RemoveTimeout(ip.rdmSendTimeout)
		ip.rdmTimeoutSet = false
	}
	cb := ip.rdmRequestCallback
	correlationID := ip.rdmCorrelationID
	ip.rdmRequestCallback = nil
	ip.pendingRequest = nil
	ip.rdmIPDestination = nil
	ip.rdmCorrelationID = ""
	n.mu.Unlock()

	log.Printf("artnetnode: port %d: rdm request matched response from %s (corr=%s)", portID, srcIP, correlationID)
	cb(rdm.ResponseCompletedOK, resp)
}

// RunFullDiscovery starts a discovery session that flushes every remote
// responder's TOD and rebuilds it from scratch (ArtTodControl/TOD_FLUSH).
func (n *Node) RunFullDiscovery(portID int, cb func(uids []rdm.UID)) error {
	return n.runDiscovery(portID, cb, true)
}

// RunIncrementalDiscovery starts a discovery session that asks remote
// responders to report only changes (ArtTodRequest).
func (n *Node) RunIncrementalDiscovery(portID int, cb func(uids []rdm.UID)) error {
	return n.runDiscovery(portID, cb, false)
}

func (n *Node) runDiscovery(portID int, cb func(uids []rdm.UID), full bool) error {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return err
	}

	if ip.discoveryCallback != nil {
		log.Printf("artnetnode: port %d: discovery already running (corr=%s), delivering current UID set to new caller", portID, ip.discoveryCorrelationID)
		uids := ip.currentUIDSet()
		n.mu.Unlock()
		cb(uids)
		return nil
	}

	correlationID := cuid.New()

	for _, entry := range ip.uids {
		entry.missed++
	}

	n.pruneSubscribersLocked(ip, n.sched.Now())
	nodeSet := make(map[[4]byte]struct{}, len(ip.subscribedNodes))
	for k := range ip.subscribedNodes {
		nodeSet[k] = struct{}{}
	}
	ip.discoveryNodeSet = nodeSet
	ip.discoveryCallback = cb
	ip.discoveryCorrelationID = correlationID
	ip.discoveryTimeout = n.sched.RegisterSingleTimeout(RDMTODTimeout, func() {
		n.releaseDiscovery(portID)
	})
	ip.discoveryTimeoutSet = true

	var pkt artnet.Packet
	if full {
		pkt = &artnet.TodControl{Net: n.netAddress, Command: artnet.TodFlush, Address: ip.UniverseAddress}
	} else {
		pkt = &artnet.TodRequest{Net: n.netAddress, Addresses: []uint8{ip.UniverseAddress}}
	}
	encoded, _ := artnet.Encode(pkt)
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	log.Printf("artnetnode: port %d: discovery session started, full=%v (corr=%s)", portID, full, correlationID)
	if sendErr := trans.SendTo(encoded, dst); sendErr != nil {
		n.releaseDiscovery(portID)
	}
	return nil
}

func (n *Node) releaseDiscovery(portID int) {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil || ip.discoveryCallback == nil {
		n.mu.Unlock()
		return
	}

	if ip.discoveryTimeoutSet {
		n.sched.RemoveTimeout(ip.discoveryTimeout)
		ip.discoveryTimeoutSet = false
	}

	for uid, entry := range ip.uids {
		if entry.missed >= RDMMissedTODDataLimit {
			delete(ip.uids, uid)
		}
	}

	uids := ip.currentUIDSet()
	cb := ip.discoveryCallback
	correlationID := ip.discoveryCorrelationID
	ip.discoveryCallback = nil
	ip.discoveryNodeSet = nil
	ip.discoveryCorrelationID = ""
	n.mu.Unlock()

	log.Printf("artnetnode: port %d: discovery session released, %d uids known (corr=%s)", portID, len(uids), correlationID)
	cb(uids)
}

// handleTodDataOnInputPort collects an ArtTodData fragment into the port's
// UID table and, for single-block fragments, prunes UIDs the source no
// longer reports (spec.md §4.4, §9 Open Question 3).
func (n *Node) handleTodDataOnInputPort(portID int, p *artnet.TodData, srcIP net.IP) {
	n.mu.Lock()
	ip, err := n.inputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return
	}

	for _, raw := range p.UIDs {
		uid, uidErr := rdm.FromBytes(raw[:])
		if uidErr != nil {
			continue
		}
		entry, ok := ip.uids[uid]
		if !ok {
			entry = &uidEntry{}
			ip.uids[uid] = entry
		} else if entry.ip != nil && !entry.ip.Equal(srcIP) {
			log.Printf("artnetnode: port %d: UID %s moved from %s to %s", portID, uid, entry.ip, srcIP)
		}
		entry.ip = srcIP
		entry.missed = 0
	}

	if ip.discoveryCallback == nil {
		cb := ip.TODCallback
		if cb == nil {
			n.mu.Unlock()
			return
		}
		uids := ip.currentUIDSet()
		n.mu.Unlock()
		cb(uids)
		return
	}

	if len(p.UIDs) >= int(p.UIDTotal) {
		seen := make(map[rdm.UID]struct{}, len(p.UIDs))
		for _, raw := range p.UIDs {
			uid, uidErr := rdm.FromBytes(raw[:])
			if uidErr != nil {
				continue
			}
			seen[uid] = struct{}{}
		}
		for uid, entry := range ip.uids {
			if entry.ip != nil && entry.ip.Equal(srcIP) {
				if _, ok := seen[uid]; !ok {
					delete(ip.uids, uid)
				}
			}
		}

		var key [4]byte
		copy(key[:], srcIP.To4())
		delete(ip.discoveryNodeSet, key)
	}

	done := len(ip.discoveryNodeSet) == 0
	n.mu.Unlock()

	if done {
		n.releaseDiscovery(portID)
	}
}
