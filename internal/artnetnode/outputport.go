package artnetnode

import (
	"log"
	"net"
	"time"

	"github.com/bbernstein/artnetnode/internal/dmxbuffer"
	"github.com/bbernstein/artnetnode/internal/rdm"
	"github.com/bbernstein/artnetnode/pkg/artnet"
)

// mergeSource is one of an output port's MaxMergeSources tracked DMX
// senders. A nil address means the slot is empty (spec.md §3).
type mergeSource struct {
	address   net.IP
	timestamp time.Time
	buffer    *dmxbuffer.Buffer
}

// OutputPort is a sink that delivers network-received DMX to a local
// consumer, merging up to MaxMergeSources concurrent senders, and an RDM
// responder proxy for the local device(s) on its universe (spec.md §3, §4.5).
type OutputPort struct {
	UniverseAddress uint8
	Enabled         bool
	MergeMode       MergeMode
	IsMerging       bool

	sources [MaxMergeSources]mergeSource

	// Buffer is externally owned: the node writes merged channel data into
	// it but never allocates or frees it (spec.md §5).
	Buffer *dmxbuffer.Buffer

	OnData       func()
	OnFlush      func()
	OnDiscover   func()
	OnRDMRequest func(req *rdm.Command, complete func(code rdm.ResponseCode, resp *rdm.Command))
}

func newOutputPort() *OutputPort {
	return &OutputPort{MergeMode: MergeHTP}
}

// SetDMXHandler wires an output port's externally-owned DMX buffer and the
// callback invoked after every accepted update.
func (n *Node) SetDMXHandler(portID int, buf *dmxbuffer.Buffer, onData func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	op, err := n.outputPort(portID)
	if err != nil {
		return err
	}
	op.Buffer = buf
	op.OnData = onData
	return nil
}

// SetOutputRDMHandlers wires an output port's RDM responder-proxy callbacks.
func (n *Node) SetOutputRDMHandlers(portID int, onDiscover, onFlush func(), onRDMRequest func(req *rdm.Command, complete func(code rdm.ResponseCode, resp *rdm.Command))) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	op, err := n.outputPort(portID)
	if err != nil {
		return err
	}
	op.OnDiscover = onDiscover
	op.OnFlush = onFlush
	op.OnRDMRequest = onRDMRequest
	return nil
}

// handleDMXOnOutputPort folds an inbound ArtDmx into the output port's
// merge state and invokes on_data (spec.md §4.5).
func (n *Node) handleDMXOnOutputPort(portID int, p *artnet.DMX, srcIP net.IP) {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil || !op.Enabled {
		n.mu.Unlock()
		return
	}

	buf := dmxbuffer.New()
	buf.Set(p.Data)
	src := mergeSource{address: srcIP, timestamp: n.sched.Now(), buffer: buf}

	accepted, enteredMerge := n.updatePortFromSourceLocked(op, src)
	onData := op.OnData
	dst := n.bcastAddressLocked()
	trans := n.trans
	n.mu.Unlock()

	if !accepted {
		log.Printf("artnetnode: output port %d: no free merge slot, dropping DMX from %s", portID, srcIP)
		return
	}

	if enteredMerge {
		pkt := n.buildPollReplyForMergeTransition(portID)
		encoded, _ := artnet.Encode(pkt)
		if sendErr := trans.SendTo(encoded, dst); sendErr != nil {
			log.Printf("artnetnode: failed to send merge-transition ArtPollReply: %v", sendErr)
		}
	}

	if onData != nil {
		onData()
	}
}

func (n *Node) buildPollReplyForMergeTransition(_ int) *artnet.PollReply {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.buildPollReplyLocked()
}

// updatePortFromSourceLocked is the merge core of spec.md §4.5. Must be
// called with n.mu held. It returns whether the datagram was accepted and
// whether the port just transitioned from not-merging to merging.
func (n *Node) updatePortFromSourceLocked(op *OutputPort, src mergeSource) (accepted, enteredMerge bool) {
	now := n.sched.Now()

	sourceSlot := -1
	emptySlot := -1
	activeCount := 0

	for i := range op.sources {
		s := &op.sources[i]
		if s.address != nil && now.Sub(s.timestamp) >= MergeTimeout {
			s.address = nil
			s.buffer = nil
		}
		if s.address == nil {
			if emptySlot == -1 {
				emptySlot = i
			}
			continue
		}
		activeCount++
		if s.address.Equal(src.address) {
			sourceSlot = i
		}
	}

	wasMerging := op.IsMerging

	switch {
	case sourceSlot == -1:
		if emptySlot == -1 {
			return false, false
		}
		newActiveCount := activeCount + 1
		op.IsMerging = newActiveCount >= MaxMergeSources
		enteredMerge = !wasMerging && op.IsMerging
		sourceSlot = emptySlot
	case activeCount == 1:
		op.IsMerging = false
	}

	op.sources[sourceSlot] = src
	n.remergeLocked(op, sourceSlot)
	return true, enteredMerge
}

// remergeLocked recomputes op.Buffer from the port's active sources under
// its current merge mode. sourceSlot is the slot just written by the
// caller. Must be called with n.mu held.
func (n *Node) remergeLocked(op *OutputPort, sourceSlot int) {
	if op.Buffer == nil {
		return
	}

	if op.MergeMode == MergeLTP {
		// LTP (spec.md §4.5 step 5): buffer := source.buffer — the source
		// just written wins outright, not whichever slot carries the
		// latest timestamp (two sources processed without the clock
		// advancing would tie, and a timestamp scan has no principled way
		// to break that tie in the newly-written source's favor).
		op.Buffer.Set(op.sources[sourceSlot].buffer.Bytes())
		return
	}

	merged := dmxbuffer.New()
	for i := range op.sources {
		s := &op.sources[i]
		if s.address != nil && s.buffer != nil {
			merged.HTPMerge(s.buffer)
		}
	}
	op.Buffer.Set(merged.Bytes())
}

// handleTodRequestOnOutputPort invokes on_discover at most once per request
// (spec.md §4.5). The caller has already confirmed this port's universe
// matched one of the request's addresses.
func (n *Node) handleTodRequestOnOutputPort(portID int) {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil {
		n.mu.Unlock()
		return
	}
	cb := op.OnDiscover
	n.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// handleTodControlOnOutputPort invokes on_flush for a FLUSH command on this
// port's universe (spec.md §4.5).
func (n *Node) handleTodControlOnOutputPort(portID int, p *artnet.TodControl) {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil || !op.Enabled || p.Command != artnet.TodFlush {
		n.mu.Unlock()
		return
	}
	cb := op.OnFlush
	n.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// handleRDMOnOutputPort parses an inbound ArtRdm as an RDM request and
// dispatches it to the port's responder-proxy callback. The completion
// callback is bound to (srcIP, portID, universe-at-submit-time) per
// spec.md §4.5.
func (n *Node) handleRDMOnOutputPort(portID int, p *artnet.RDM, srcIP net.IP) {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil || !op.Enabled {
		n.mu.Unlock()
		return
	}

	req, inflateErr := n.codec.Inflate(p.Data)
	if inflateErr != nil {
		n.mu.Unlock()
		return
	}
	universeAtSubmit := op.UniverseAddress
	onRDMRequest := op.OnRDMRequest
	n.mu.Unlock()

	if onRDMRequest == nil {
		return
	}

	onRDMRequest(req, func(code rdm.ResponseCode, resp *rdm.Command) {
		n.completeOutputRDMRequest(portID, srcIP, universeAtSubmit, code, resp)
	})
}

func (n *Node) completeOutputRDMRequest(portID int, srcIP net.IP, universeAtSubmit uint8, code rdm.ResponseCode, resp *rdm.Command) {
	n.mu.Lock()
	op, err := n.outputPort(portID)
	if err != nil || op.UniverseAddress != universeAtSubmit {
		n.mu.Unlock()
		return
	}

	switch code {
	case rdm.ResponseCompletedOK:
		netAddr := n.netAddress
		portAddr := op.UniverseAddress
		trans := n.trans
		n.mu.Unlock()

		payload, packErr := n.codec.Pack(resp)
		if packErr != nil {
			log.Printf("artnetnode: output port %d: failed to pack RDM response: %v", portID, packErr)
			return
		}
		pkt := &artnet.RDM{Net: netAddr, Address: portAddr, Data: payload}
		encoded, _ := artnet.Encode(pkt)
		if sendErr := trans.SendTo(encoded, srcIP); sendErr != nil {
			log.Printf("artnetnode: output port %d: failed to send RDM response to %s: %v", portID, srcIP, sendErr)
		}

	case rdm.ResponseUnknownUID:
		cb := op.OnDiscover
		n.mu.Unlock()
		if cb != nil {
			cb()
		}

	default:
		log.Printf("artnetnode: output port %d: rdm request completed with %s; dropping", portID, code)
		n.mu.Unlock()
	}
}
