package artnetnode

import (
	"net"
	"testing"

	"github.com/bbernstein/artnetnode/pkg/artnet"
)

func mustEncode(t *testing.T, p artnet.Packet) []byte {
	t.Helper()
	b, err := artnet.Encode(p)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	return b
}

func TestStartIsIdempotent(t *testing.T) {
	n, _, _ := newTestNode(Config{})

	// Already marked running by newTestNode: a second Start must report
	// started=false without touching the network.
	started, err := n.Start()
	if started || err != nil {
		t.Fatalf("Start on an already-running node: got (%v, %v), want (false, nil)", started, err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	n, _, _ := newTestNode(Config{})
	if ok := n.Stop(); !ok {
		t.Fatalf("first Stop() = false, want true")
	}
	if ok := n.Stop(); ok {
		t.Fatalf("second Stop() = true, want false (idempotent)")
	}
}

func TestHandlePollTriggersSolicitedReply(t *testing.T) {
	n, _, sender := newTestNode(Config{ShortName: "node"})

	n.handlePacket(mustEncode(t, &artnet.Poll{TalkToMe: artnet.TalkToMeReplyOnChange}), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 50), Port: artnet.DefaultPort})

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("got %d packets sent, want 1", len(sent))
	}
	pkt, err := artnet.Decode(sent[0].data)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if _, ok := pkt.(*artnet.PollReply); !ok {
		t.Fatalf("got %T, want *artnet.PollReply", pkt)
	}
	// A solicited reply must not increment the unsolicited counter.
	if n.UnsolicitedReplyCount() != 0 {
		t.Fatalf("UnsolicitedReplyCount() = %d, want 0 after a solicited reply", n.UnsolicitedReplyCount())
	}
}

func TestSetShortNameSendsUnsolicitedReplyOnChange(t *testing.T) {
	n, _, sender := newTestNode(Config{SendReplyOnChange: true})

	n.SetShortName("studio-a")

	sent := sender.sent()
	if len(sent) != 1 {
		t.Fatalf("got %d packets, want 1 unsolicited ArtPollReply", len(sent))
	}
	if n.UnsolicitedReplyCount() != 1 {
		t.Fatalf("UnsolicitedReplyCount() = %d, want 1", n.UnsolicitedReplyCount())
	}
}

func TestSetShortNameSuppressedWithoutReplyOnChange(t *testing.T) {
	n, _, sender := newTestNode(Config{})
	n.SetShortName("studio-a")
	if got := len(sender.sent()); got != 0 {
		t.Fatalf("got %d packets, want 0 (SendReplyOnChange unset)", got)
	}
}

func TestHandlePollReplySelfSuppression(t *testing.T) {
	n, _, _ := newTestNode(Config{})
	self := n.iface.Address

	if err := n.SetPortUniverse(PortInput, 0, 3); err != nil {
		t.Fatal(err)
	}

	reply := &artnet.PollReply{IP: self}
	reply.SwOut[0] = 3
	reply.GoodOutput[0] = 0x80

	n.handlePacket(mustEncode(t, reply), &net.UDPAddr{IP: self, Port: artnet.DefaultPort})

	nodes, err := n.SubscribedNodes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("self-originated ArtPollReply must not register a subscriber, got %v", nodes)
	}
}

func TestHandlePollReplyRegistersSubscriber(t *testing.T) {
	n, _, _ := newTestNode(Config{})
	if err := n.SetPortUniverse(PortInput, 0, 5); err != nil {
		t.Fatal(err)
	}

	remote := net.IPv4(10, 0, 0, 77)
	reply := &artnet.PollReply{IP: remote}
	reply.SwOut[0] = 5
	reply.GoodOutput[0] = 0x80

	n.handlePacket(mustEncode(t, reply), &net.UDPAddr{IP: remote, Port: artnet.DefaultPort})

	nodes, err := n.SubscribedNodes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || !nodes[0].Equal(remote.To4()) {
		t.Fatalf("SubscribedNodes() = %v, want [%v]", nodes, remote)
	}
}

func TestSubscriberEvictedAfterNodeTimeout(t *testing.T) {
	n, sched, _ := newTestNode(Config{})
	if err := n.SetPortUniverse(PortInput, 0, 5); err != nil {
		t.Fatal(err)
	}
	remote := net.IPv4(10, 0, 0, 77)
	reply := &artnet.PollReply{IP: remote}
	reply.SwOut[0] = 5
	reply.GoodOutput[0] = 0x80
	n.handlePacket(mustEncode(t, reply), &net.UDPAddr{IP: remote, Port: artnet.DefaultPort})

	sched.Advance(NodeTimeout + 1)

	nodes, err := n.SubscribedNodes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("subscriber should have been pruned after NodeTimeout, got %v", nodes)
	}
}

func TestSendPollSkippedWithNoInputPorts(t *testing.T) {
	n, _, sender := newTestNode(Config{})
	if err := n.SendPoll(); err != nil {
		t.Fatal(err)
	}
	if got := len(sender.sent()); got != 0 {
		t.Fatalf("SendPoll with no enabled input ports sent %d packets, want 0", got)
	}
}

func TestSendPollWithEnabledInputPort(t *testing.T) {
	n, _, sender := newTestNode(Config{})
	if err := n.SetPortUniverse(PortInput, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := n.SendPoll(); err != nil {
		t.Fatal(err)
	}
	if got := len(sender.sent()); got != 1 {
		t.Fatalf("got %d packets, want 1", got)
	}
}
