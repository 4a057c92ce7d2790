// Package artnetnode implements the Art-Net protocol engine: the node core
// (C3), input-port and output-port logic (C4/C5), and RDM response
// correlation (C6) from spec.md. It is driven by an abstract
// internal/reactor.Scheduler and talks to the network only through the
// packetSender interface (satisfied by internal/transport.Transport),
// matching the collaborator boundaries the spec draws around the core.
package artnetnode

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/bbernstein/artnetnode/internal/rdm"
	"github.com/bbernstein/artnetnode/internal/reactor"
	"github.com/bbernstein/artnetnode/internal/services/network"
	"github.com/bbernstein/artnetnode/internal/transport"
	"github.com/bbernstein/artnetnode/pkg/artnet"
)

// MaxPorts is the number of logical input and output ports a Node exposes.
// The wire format (ArtPollReply's per-bind-index layout) fixes this at 4.
const MaxPorts = artnet.MaxPorts

// DisablePort is the universe-address sentinel that marks a port disabled.
const DisablePort uint8 = 0xF0

// Timeouts from spec.md §5.
const (
	NodeTimeout           = 30 * time.Second
	MergeTimeout          = 10 * time.Second
	RDMRequestTimeout     = 2000 * time.Millisecond
	RDMTODTimeout         = 4000 * time.Millisecond
	RDMMissedTODDataLimit = 3
)

// DefaultBroadcastThreshold is the subscriber count at or above which
// input-port DMX emission switches from per-subscriber unicast to a single
// broadcast (spec.md §4.4).
const DefaultBroadcastThreshold = 30

// MaxMergeSources is the number of concurrent DMX sources an output port
// tracks before it is considered merging (spec.md §3).
const MaxMergeSources = 2

// MergeMode is an output port's channel-merge policy.
type MergeMode int

const (
	MergeHTP MergeMode = iota
	MergeLTP
)

func (m MergeMode) String() string {
	if m == MergeLTP {
		return "LTP"
	}
	return "HTP"
}

// PortType selects between a Node's input and output port arrays.
type PortType int

const (
	PortInput PortType = iota
	PortOutput
)

// packetSender is the outbound half of the UDP transport collaborator
// (spec.md §4.2, C2). *transport.Transport satisfies it; tests substitute a
// recording fake so the core never needs a real socket.
type packetSender interface {
	SendTo(data []byte, dst net.IP) error
}

// NetworkUnavailable is returned by Start when the UDP socket cannot be
// bound (spec.md §7).
type NetworkUnavailable = transport.NetworkUnavailable

// Config holds the configuration a Node is constructed with: the bound
// network interface and the operational parameters of spec.md §3.
type Config struct {
	Interface network.BoundInterface

	ShortName string // truncated to 17 bytes on the wire
	LongName  string // truncated to 63 bytes on the wire

	NetAddress    uint8 // 0..127
	SubnetAddress uint8 // 0..15

	OEM  uint16
	ESTA uint16

	BroadcastThreshold  int // default DefaultBroadcastThreshold
	AlwaysBroadcast     bool
	UseLimitedBroadcast bool
	SendReplyOnChange   bool

	// Codec packs/inflates RDM commands tunnelled in ArtRdm. Defaults to
	// rdm.SimpleCodec{} when nil.
	Codec rdm.CommandCodec
}

// Node is a single Art-Net node bound to one network interface: the
// singleton owner of MaxPorts input and output ports (spec.md §3). All
// public methods and reactor-delivered callbacks serialize through mu,
// modeling the single-threaded cooperative actor spec.md §5 describes even
// though the underlying Reactor drives timers and socket reads from
// separate goroutines.
type Node struct {
	mu sync.Mutex

	iface network.BoundInterface
	sched reactor.Scheduler
	trans packetSender
	codec rdm.CommandCodec

	shortName     string
	longName      string
	netAddress    uint8
	subnetAddress uint8
	oem           uint16
	esta          uint16

	broadcastThreshold  int
	alwaysBroadcast     bool
	useLimitedBroadcast bool
	sendReplyOnChange   bool

	unsolicitedReplyCount int
	running               bool

	inputs  [MaxPorts]*InputPort
	outputs [MaxPorts]*OutputPort
}

// New constructs a Node from cfg, driven by sched. Start must be called
// before the node processes network traffic.
func New(cfg Config, sched reactor.Scheduler) *Node {
	codec := cfg.Codec
	if codec == nil {
		codec = rdm.SimpleCodec{}
	}
	threshold := cfg.BroadcastThreshold
	if threshold <= 0 {
		threshold = DefaultBroadcastThreshold
	}

	n := &Node{
		iface:               cfg.Interface,
		sched:               sched,
		codec:               codec,
		shortName:           cfg.ShortName,
		longName:            cfg.LongName,
		netAddress:          cfg.NetAddress & 0x7f,
		subnetAddress:       cfg.SubnetAddress & 0x0f,
		oem:                 cfg.OEM,
		esta:                cfg.ESTA,
		broadcastThreshold:  threshold,
		alwaysBroadcast:     cfg.AlwaysBroadcast,
		useLimitedBroadcast: cfg.UseLimitedBroadcast,
		sendReplyOnChange:   cfg.SendReplyOnChange,
	}
	for i := range n.inputs {
		n.inputs[i] = newInputPort()
	}
	for i := range n.outputs {
		n.outputs[i] = newOutputPort()
	}
	return n
}

// InputPort returns port index i (0..MaxPorts-1) for tests and callers that
// configure a port directly (set_dmx_handler-style wiring is done through
// OutputPort; input ports have no externally-owned state to wire besides
// their callbacks, set via SetUnsolicitedTODHandler).
func (n *Node) InputPort(i int) (*InputPort, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.inputPort(i)
}

// OutputPort returns port index i for wiring on_data/on_flush/on_discover/
// on_rdm_request and the externally-owned DMX buffer.
func (n *Node) OutputPort(i int) (*OutputPort, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outputPort(i)
}

func (n *Node) inputPort(id int) (*InputPort, error) {
	if id < 0 || id >= MaxPorts {
		return nil, fmt.Errorf("artnetnode: input port %d out of range", id)
	}
	return n.inputs[id], nil
}

func (n *Node) outputPort(id int) (*OutputPort, error) {
	if id < 0 || id >= MaxPorts {
		return nil, fmt.Errorf("artnetnode: output port %d out of range", id)
	}
	return n.outputs[id], nil
}

// Start binds the UDP transport and transitions the node to running. A
// second call while already running is a no-op (started=false, err=nil),
// matching spec.md §4.3's "idempotent-false on re-entry".
func (n *Node) Start() (started bool, err error) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return false, nil
	}

	tr, err := transport.Bind()
	if err != nil {
		n.mu.Unlock()
		return false, err
	}
	n.trans = tr
	n.running = true
	iface := n.iface
	bcast := n.bcastAddressLocked()
	n.mu.Unlock()

	n.sched.AddReadable(tr.Conn(), n.handlePacket)
	log.Printf("📡 Art-Net node bound to %s (bcast %s)", iface.Address, bcast)
	return true, nil
}

// Stop cancels every registered timeout, fails any pending RDM request with
// RDM_TIMEOUT, releases any live discovery session with the currently-known
// UID set, and closes the socket. Calling Stop twice is a no-op on the
// second call (spec.md §5, §8 property 8).
func (n *Node) Stop() bool {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return false
	}

	var pendingCallbacks []func()
	for _, ip := range n.inputs {
		if cb := n.shutdownInputPortLocked(ip); cb != nil {
			pendingCallbacks = append(pendingCallbacks, cb)
		}
	}

	tr := n.trans
	n.running = false
	n.mu.Unlock()

	if conn, ok := tr.(*transport.Transport); ok {
		n.sched.RemoveReadable(conn.Conn())
		_ = conn.Close()
	}

	for _, cb := range pendingCallbacks {
		cb()
	}
	return true
}

// shutdownInputPortLocked releases an input port's in-flight RDM request
// and discovery session. Must be called with n.mu held; returns a thunk to
// invoke the released callbacks with after unlocking (callbacks must never
// run while n.mu is held, since they may reenter the node).
func (n *Node) shutdownInputPortLocked(ip *InputPort) func() {
	var thunks []func()

	if ip.rdmTimeoutSet {
		n.sched.RemoveTimeout(ip.rdmSendTimeout)
		ip.rdmTimeoutSet = false
	}
	if ip.rdmRequestCallback != nil {
		cb := ip.rdmRequestCallback
		ip.rdmRequestCallback = nil
		ip.pendingRequest = nil
		ip.rdmIPDestination = nil
		thunks = append(thunks, func() { cb(rdm.ResponseTimeout, nil) })
	}

	if ip.discoveryTimeoutSet {
		n.sched.RemoveTimeout(ip.discoveryTimeout)
		ip.discoveryTimeoutSet = false
	}
	if ip.discoveryCallback != nil {
		cb := ip.discoveryCallback
		uids := ip.currentUIDSet()
		ip.discoveryCallback = nil
		ip.discoveryNodeSet = nil
		thunks = append(thunks, func() { cb(uids) })
	}

	if len(thunks) == 0 {
		return nil
	}
	return func() {
		for _, t := range thunks {
			t()
		}
	}
}

// bcastAddress returns the address outbound broadcasts are sent to: the
// limited broadcast address when configured, otherwise the bound
// interface's subnet broadcast address.
func (n *Node) bcastAddress() net.IP {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bcastAddressLocked()
}

func (n *Node) bcastAddressLocked() net.IP {
	if n.useLimitedBroadcast {
		return net.IPv4bcast
	}
	return n.iface.Broadcast
}

// SendPoll broadcasts an ArtPoll requesting unsolicited replies on change,
// iff at least one input port is enabled (spec.md §4.3).
func (n *Node) SendPoll() error {
	n.mu.Lock()
	anyEnabled := false
	for _, ip := range n.inputs {
		if ip.Enabled {
			anyEnabled = true
			break
		}
	}
	if !anyEnabled {
		n.mu.Unlock()
		return nil
	}
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	pkt := &artnet.Poll{TalkToMe: artnet.TalkToMeReplyOnChange, Priority: 0}
	encoded, _ := artnet.Encode(pkt)
	return trans.SendTo(encoded, dst)
}

// SendTimecode broadcasts a single ArtTimeCode frame.
func (n *Node) SendTimecode(tc artnet.TimeCode) error {
	n.mu.Lock()
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	pkt := tc
	encoded, _ := artnet.Encode(&pkt)
	return trans.SendTo(encoded, dst)
}

// SendTOD emits the output port's current table of devices as one or more
// ArtTodData fragments, at most artnet.MaxTodUIDsPerBlock UIDs per fragment
// (spec.md §4.3).
func (n *Node) SendTOD(portID int, uids []rdm.UID) error {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	addr := op.UniverseAddress
	netAddr := n.netAddress
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	total := len(uids)
	if total == 0 {
		pkt := &artnet.TodData{Net: netAddr, Address: addr}
		encoded, _ := artnet.Encode(pkt)
		return trans.SendTo(encoded, dst)
	}

	blocks := (total + artnet.MaxTodUIDsPerBlock - 1) / artnet.MaxTodUIDsPerBlock
	for b := 0; b < blocks; b++ {
		start := b * artnet.MaxTodUIDsPerBlock
		end := start + artnet.MaxTodUIDsPerBlock
		if end > total {
			end = total
		}
		chunk := uids[start:end]
		wireUIDs := make([][artnet.UIDSize]byte, len(chunk))
		for i, u := range chunk {
			copy(wireUIDs[i][:], u[:])
		}
		pkt := &artnet.TodData{
			Net:        netAddr,
			Address:    addr,
			UIDTotal:   uint16(total),
			BlockCount: uint8(b),
			UIDs:       wireUIDs,
		}
		encoded, _ := artnet.Encode(pkt)
		if err := trans.SendTo(encoded, dst); err != nil {
			return err
		}
	}
	return nil
}

// SetPortUniverse reconfigures a port's universe address. Setting it to
// DisablePort disables the port. If the node is running and
// SendReplyOnChange is set, an unsolicited ArtPollReply follows.
func (n *Node) SetPortUniverse(pt PortType, index int, address uint8) error {
	n.mu.Lock()
	switch pt {
	case PortInput:
		ip, err := n.inputPort(index)
		if err != nil {
			n.mu.Unlock()
			return err
		}
		ip.UniverseAddress = address
		ip.Enabled = address != DisablePort
	case PortOutput:
		op, err := n.outputPort(index)
		if err != nil {
			n.mu.Unlock()
			return err
		}
		op.UniverseAddress = address
		op.Enabled = address != DisablePort
	default:
		n.mu.Unlock()
		return fmt.Errorf("artnetnode: unknown port type %v", pt)
	}
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
	return nil
}

// SetMergeMode sets an output port's HTP/LTP channel-merge policy.
func (n *Node) SetMergeMode(index int, mode MergeMode) error {
	n.mu.Lock()
	op, err := n.outputPort(index)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	op.MergeMode = mode
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
	return nil
}

// SetShortName sets the node's short name (truncated to 17 bytes on the wire).
func (n *Node) SetShortName(name string) {
	n.mu.Lock()
	n.shortName = name
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
}

// SetLongName sets the node's long name (truncated to 63 bytes on the wire).
func (n *Node) SetLongName(name string) {
	n.mu.Lock()
	n.longName = name
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
}

// SetNetAddress sets the node's 7-bit net address.
func (n *Node) SetNetAddress(addr uint8) {
	n.mu.Lock()
	n.netAddress = addr & 0x7f
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
}

// SetSubnetAddress sets the node's 4-bit subnet address, the top-level
// ArtPollReply field distinct from each port's own universe-address byte.
func (n *Node) SetSubnetAddress(subnet uint8) {
	n.mu.Lock()
	n.subnetAddress = subnet & 0x0f
	n.mu.Unlock()
	n.maybeSendReplyOnChange()
}

func (n *Node) maybeSendReplyOnChange() {
	n.mu.Lock()
	should := n.running && n.sendReplyOnChange
	n.mu.Unlock()
	if should {
		n.sendUnsolicitedPollReply()
	}
}

func (n *Node) sendUnsolicitedPollReply() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	pkt := n.buildPollReplyLocked()
	n.unsolicitedReplyCount++
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	encoded, _ := artnet.Encode(pkt)
	if err := trans.SendTo(encoded, dst); err != nil {
		log.Printf("artnetnode: failed to send unsolicited ArtPollReply: %v", err)
	}
}

// UnsolicitedReplyCount returns the number of unsolicited ArtPollReply
// packets this node has emitted because of a configuration change. Replies
// to an inbound ArtPoll and the reply sent when an output port starts
// merging are not counted.
func (n *Node) UnsolicitedReplyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unsolicitedReplyCount
}

// buildPollReplyLocked constructs the node's current ArtPollReply body.
// Must be called with n.mu held.
func (n *Node) buildPollReplyLocked() *artnet.PollReply {
	r := &artnet.PollReply{
		IP:            n.iface.Address,
		Port:          artnet.DefaultPort,
		VersionInfo:   artnet.ProtocolVersion,
		NetAddress:    n.netAddress,
		SubnetAddress: n.subnetAddress,
		OEM:           n.oem,
		Status1:       0xd2, // bit-identical to the source for compatibility; see DESIGN.md
		ESTA:          n.esta,
		ShortName:     n.shortName,
		LongName:      n.longName,
		NodeReport:    fmt.Sprintf("#0001 [%04d] Art-Net node ready", n.unsolicitedReplyCount),
		Style:         0, // StNode
		MAC:           n.iface.MAC,
		BindIP:        n.iface.Address,
		BindIndex:     1,
		Status2:       0x08, // supports 15-bit port-address
	}

	for i := 0; i < MaxPorts; i++ {
		ip := n.inputs[i]
		r.SwIn[i] = ip.UniverseAddress
		if ip.Enabled {
			r.PortTypes[i] |= 0x40 // can input to Art-Net
			r.GoodInput[i] = 0x80
		}

		op := n.outputs[i]
		r.SwOut[i] = op.UniverseAddress
		if op.Enabled {
			r.PortTypes[i] |= 0x80 // can output from Art-Net
			status := uint8(0x80)
			if op.IsMerging {
				status |= 0x08
			}
			r.GoodOutput[i] = status
		}
	}
	return r
}

// handlePacket is the reactor-invoked entry point for every datagram the
// UDP transport receives: decode, then dispatch by opcode (spec.md §4.3).
func (n *Node) handlePacket(data []byte, src net.Addr) {
	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return
	}
	srcIP := udpAddr.IP.To4()
	if srcIP == nil {
		return
	}

	pkt, err := artnet.Decode(data)
	if err != nil {
		if errors.Is(err, artnet.ErrUnsupportedVersion) {
			log.Printf("artnetnode: dropping packet from %s: %v", srcIP, err)
		} else {
			log.Printf("artnetnode: dropping malformed packet from %s: %v", srcIP, err)
		}
		return
	}

	switch p := pkt.(type) {
	case *artnet.Poll:
		n.handlePoll(p, srcIP)
	case *artnet.PollReply:
		n.handlePollReply(p, srcIP)
	case *artnet.DMX:
		n.handleDMX(p, srcIP)
	case *artnet.TodRequest:
		n.handleTodRequest(p, srcIP)
	case *artnet.TodData:
		n.handleTodData(p, srcIP)
	case *artnet.TodControl:
		n.handleTodControl(p, srcIP)
	case *artnet.RDM:
		n.handleRDM(p, srcIP)
	case *artnet.IPProg:
		// Remote IP reprogramming is out of scope (spec.md Non-goals);
		// parsed only so the codec never chokes on it.
	default:
		log.Printf("artnetnode: no handler for packet type %T", p)
	}
}

func (n *Node) handlePoll(_ *artnet.Poll, _ net.IP) {
	n.sendUnsolicitedPollReplySolicited()
}

// sendUnsolicitedPollReplySolicited replies to an inbound ArtPoll. It does
// not increment unsolicitedReplyCount: that counter is reserved for
// config-change-triggered replies per spec.md §3.
func (n *Node) sendUnsolicitedPollReplySolicited() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	pkt := n.buildPollReplyLocked()
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	encoded, _ := artnet.Encode(pkt)
	if err := trans.SendTo(encoded, dst); err != nil {
		log.Printf("artnetnode: failed to send solicited ArtPollReply: %v", err)
	}
}

func (n *Node) handlePollReply(p *artnet.PollReply, srcIP net.IP) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.iface.Address != nil && p.IP != nil && srcIP.Equal(n.iface.Address) {
		return // self-reflection suppression, spec.md §4.3
	}

	now := n.sched.Now()
	var key [4]byte
	copy(key[:], srcIP.To4())

	// A remote's SwOut entries are the universes it wants delivered from
	// the network (it is an Art-Net *output* device for them), i.e. the
	// universes it subscribes to from whatever sources it.
	for i := 0; i < artnet.MaxPorts; i++ {
		if p.GoodOutput[i] == 0 && p.SwOut[i] == 0 {
			continue
		}
		for _, ip := range n.inputs {
			if ip.Enabled && ip.UniverseAddress == p.SwOut[i] {
				ip.subscribedNodes[key] = now
			}
		}
	}
}

func universeNet(u uint16) uint8      { return uint8(u >> 8) }
func universePortAddr(u uint16) uint8 { return uint8(u & 0xff) }
