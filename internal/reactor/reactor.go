// Package reactor provides the abstract timer/socket scheduler the Art-Net
// node core is driven by (spec.md §6's "Scheduler" collaborator), plus a
// concrete implementation built on stdlib timers and goroutines. The
// teacher repo drives its DMX and fade loops with a ticker/stopChan select
// loop per service (internal/services/dmx, internal/services/fade); the
// Reactor here generalizes that pattern into a single reusable scheduler so
// the node core can depend on an interface instead of reimplementing timer
// bookkeeping per port.
package reactor

import (
	"net"
	"sync"
	"time"
)

// TimeoutID identifies a registered single-shot timeout so it can later be
// cancelled with RemoveTimeout.
type TimeoutID uint64

// Scheduler is the abstract reactor the node core requires: a clock, a
// single-shot timer facility, and readable-fd registration for sockets.
type Scheduler interface {
	// Now returns the current time.
	Now() time.Time
	// RegisterSingleTimeout arranges for cb to run once after d elapses.
	RegisterSingleTimeout(d time.Duration, cb func()) TimeoutID
	// RemoveTimeout cancels a previously registered timeout. Removing an
	// already-fired or already-removed ID is a no-op.
	RemoveTimeout(id TimeoutID)
	// AddReadable starts a read loop on conn, invoking onPacket with each
	// received datagram and its source address.
	AddReadable(conn net.PacketConn, onPacket func(data []byte, src net.Addr))
	// RemoveReadable stops the read loop started by AddReadable for conn.
	RemoveReadable(conn net.PacketConn)
}

// Reactor is the concrete Scheduler used outside of tests: each timeout is
// a real time.Timer, and each readable is a dedicated goroutine that blocks
// in ReadFrom and hands datagrams back one at a time.
type Reactor struct {
	mu        sync.Mutex
	nextID    TimeoutID
	timers    map[TimeoutID]*time.Timer
	readables map[net.PacketConn]chan struct{}
}

// New creates a Reactor with no timers or readables registered.
func New() *Reactor {
	return &Reactor{
		timers:    make(map[TimeoutID]*time.Timer),
		readables: make(map[net.PacketConn]chan struct{}),
	}
}

// Now implements Scheduler.
func (r *Reactor) Now() time.Time {
	return time.Now()
}

// RegisterSingleTimeout implements Scheduler.
func (r *Reactor) RegisterSingleTimeout(d time.Duration, cb func()) TimeoutID {
	r.mu.Lock()
	id := r.nextID
	r.nextID++

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		_, stillRegistered := r.timers[id]
		if stillRegistered {
			delete(r.timers, id)
		}
		r.mu.Unlock()
		if stillRegistered {
			cb()
		}
	})
	r.timers[id] = timer
	r.mu.Unlock()
	return id
}

// RemoveTimeout implements Scheduler.
func (r *Reactor) RemoveTimeout(id TimeoutID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

// AddReadable implements Scheduler.
func (r *Reactor) AddReadable(conn net.PacketConn, onPacket func(data []byte, src net.Addr)) {
	done := make(chan struct{})
	r.mu.Lock()
	r.readables[conn] = done
	r.mu.Unlock()

	go func() {
		buf := make([]byte, 65535)
		for {
			select {
			case <-done:
				return
			default:
			}

			n, src, err := conn.ReadFrom(buf)
			if err != nil {
				select {
				case <-done:
					return
				default:
					continue
				}
			}

			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			onPacket(pkt, src)
		}
	}()
}

// RemoveReadable implements Scheduler.
func (r *Reactor) RemoveReadable(conn net.PacketConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done, ok := r.readables[conn]; ok {
		close(done)
		delete(r.readables, conn)
	}
}

// StopAll cancels every registered timeout and readable. Used during
// process shutdown after Node.Stop() has already released node-owned state.
func (r *Reactor) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	for conn, done := range r.readables {
		close(done)
		delete(r.readables, conn)
	}
}
