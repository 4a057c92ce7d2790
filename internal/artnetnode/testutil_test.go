package artnetnode

import (
	"net"
	"sync"
	"time"

	"github.com/bbernstein/artnetnode/internal/reactor"
	"github.com/bbernstein/artnetnode/internal/services/network"
)

// fakeScheduler is a manually-advanced reactor.Scheduler for deterministic
// tests: no goroutines, no wall-clock time. Advance fires any timeout whose
// deadline has passed.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID reactor.TimeoutID
	timers map[reactor.TimeoutID]fakeTimer
}

type fakeTimer struct {
	fireAt time.Time
	cb     func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		timers: make(map[reactor.TimeoutID]fakeTimer),
	}
}

func (f *fakeScheduler) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeScheduler) RegisterSingleTimeout(d time.Duration, cb func()) reactor.TimeoutID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.timers[id] = fakeTimer{fireAt: f.now.Add(d), cb: cb}
	return id
}

func (f *fakeScheduler) RemoveTimeout(id reactor.TimeoutID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.timers, id)
}

func (f *fakeScheduler) AddReadable(net.PacketConn, func([]byte, net.Addr)) {}
func (f *fakeScheduler) RemoveReadable(net.PacketConn)                     {}

// Advance moves the fake clock forward by d and fires (and removes) any
// timeout whose deadline has elapsed.
func (f *fakeScheduler) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []func()
	for id, t := range f.timers {
		if !t.fireAt.After(now) {
			due = append(due, t.cb)
			delete(f.timers, id)
		}
	}
	f.mu.Unlock()
	for _, cb := range due {
		cb()
	}
}

// sentPacket records one outbound datagram for assertions.
type sentPacket struct {
	data []byte
	dst  net.IP
}

// fakeSender is a recording packetSender: SendTo never touches the network.
type fakeSender struct {
	mu  sync.Mutex
	out []sentPacket
	err error
}

func (f *fakeSender) SendTo(data []byte, dst net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := append([]byte(nil), data...)
	f.out = append(f.out, sentPacket{data: cp, dst: dst})
	return nil
}

func (f *fakeSender) sent() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPacket(nil), f.out...)
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = nil
}

// newTestNode builds a Node wired to a fakeScheduler and fakeSender, already
// marked running, with no real socket anywhere near it.
func newTestNode(cfg Config) (*Node, *fakeScheduler, *fakeSender) {
	sched := newFakeScheduler()
	if cfg.Interface.Address == nil {
		cfg.Interface = network.BoundInterface{
			Name:      "eth-test",
			Address:   net.IPv4(10, 0, 0, 1),
			Broadcast: net.IPv4(10, 0, 0, 255),
			MAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		}
	}
	n := New(cfg, sched)
	sender := &fakeSender{}
	n.trans = sender
	n.running = true
	return n, sched, sender
}

func ip4(a, b, c, d byte) net.IP {
	return net.IPv4(a, b, c, d)
}
