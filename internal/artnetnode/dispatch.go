package artnetnode

import (
	"net"

	"github.com/bbernstein/artnetnode/pkg/artnet"
)

// handleDMX routes an inbound ArtDmx to the enabled output port advertising
// its universe, after the net-address filter (spec.md §4.3, §4.5).
func (n *Node) handleDMX(p *artnet.DMX, srcIP net.IP) {
	if universeNet(p.Universe) != n.readNetAddress() {
		return
	}
	portAddr := universePortAddr(p.Universe)

	n.mu.Lock()
	portID := -1
	for i, op := range n.outputs {
		if op.Enabled && op.UniverseAddress == portAddr {
			portID = i
			break
		}
	}
	n.mu.Unlock()

	if portID == -1 {
		return
	}
	n.handleDMXOnOutputPort(portID, p, srcIP)
}

// handleTodRequest routes an inbound ArtTodRequest to every enabled output
// port whose universe appears in the request's address list (spec.md §4.5).
func (n *Node) handleTodRequest(p *artnet.TodRequest, _ net.IP) {
	if p.Net != n.readNetAddress() {
		return
	}

	n.mu.Lock()
	var matched []int
	for i, op := range n.outputs {
		if !op.Enabled {
			continue
		}
		for _, a := range p.Addresses {
			if a == op.UniverseAddress {
				matched = append(matched, i)
				break
			}
		}
	}
	n.mu.Unlock()

	for _, id := range matched {
		n.handleTodRequestOnOutputPort(id)
	}
}

// handleTodControl routes an inbound ArtTodControl to the enabled output
// port advertising its universe (spec.md §4.5).
func (n *Node) handleTodControl(p *artnet.TodControl, _ net.IP) {
	if p.Net != n.readNetAddress() {
		return
	}

	n.mu.Lock()
	portID := -1
	for i, op := range n.outputs {
		if op.Enabled && op.UniverseAddress == p.Address {
			portID = i
			break
		}
	}
	n.mu.Unlock()

	if portID != -1 {
		n.handleTodControlOnOutputPort(portID, p)
	}
}

// handleTodData routes an inbound ArtTodData to the enabled input port
// collecting discovery (or delivering an unsolicited TOD) on that universe
// (spec.md §4.4).
func (n *Node) handleTodData(p *artnet.TodData, srcIP net.IP) {
	if p.Net != n.readNetAddress() {
		return
	}

	n.mu.Lock()
	portID := -1
	for i, ip := range n.inputs {
		if ip.Enabled && ip.UniverseAddress == p.Address {
			portID = i
			break
		}
	}
	n.mu.Unlock()

	if portID != -1 {
		n.handleTodDataOnInputPort(portID, p, srcIP)
	}
}

// handleRDM routes an inbound ArtRdm. An input port awaiting a response on
// this universe takes priority (response correlation, spec.md §4.4); absent
// that, an enabled output port on this universe treats it as a fresh
// request to its local responder (spec.md §4.5).
func (n *Node) handleRDM(p *artnet.RDM, srcIP net.IP) {
	if p.Net != n.readNetAddress() {
		return
	}

	n.mu.Lock()
	inputID := -1
	for i, ip := range n.inputs {
		if ip.Enabled && ip.UniverseAddress == p.Address && ip.rdmRequestCallback != nil {
			inputID = i
			break
		}
	}
	outputID := -1
	if inputID == -1 {
		for i, op := range n.outputs {
			if op.Enabled && op.UniverseAddress == p.Address {
				outputID = i
				break
			}
		}
	}
	n.mu.Unlock()

	if inputID != -1 {
		n.handleRDMOnInputPort(inputID, p, srcIP)
		return
	}
	if outputID != -1 {
		n.handleRDMOnOutputPort(outputID, p, srcIP)
	}
}

func (n *Node) readNetAddress() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.netAddress
}
