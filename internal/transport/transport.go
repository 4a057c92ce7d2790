// Package transport provides the UDP endpoint the Art-Net node core sends
// and receives wire packets through (spec.md §4.2, C2). It binds a
// non-blocking broadcast-enabled socket to port 6454 and hands datagrams to
// the reactor's readable-fd registration, matching the teacher's own
// net.DialUDP/net.ListenUDP handling in internal/services/dmx.Service.
package transport

import (
	"fmt"
	"net"
)

// Port is the standard Art-Net UDP port, both source and destination.
const Port = 6454

// NetworkUnavailable is returned by Bind when the socket cannot be opened
// or configured for broadcast on the requested port (spec.md §4.2).
type NetworkUnavailable struct {
	Err error
}

func (e *NetworkUnavailable) Error() string {
	return fmt.Sprintf("artnet: network unavailable: %v", e.Err)
}

func (e *NetworkUnavailable) Unwrap() error { return e.Err }

// Transport is a broadcast-enabled UDP/IPv4 socket bound to Port.
type Transport struct {
	conn *net.UDPConn
}

// Bind opens and configures the node's UDP socket. It binds to
// 0.0.0.0:Port (so the node receives broadcast and unicast traffic alike)
// and enables broadcast permission for sends to limited/subnet broadcast
// addresses.
func Bind() (*Transport, error) {
	udpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: Port}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, &NetworkUnavailable{Err: err}
	}

	return &Transport{conn: conn}, nil
}

// Conn returns the underlying net.PacketConn, for registration with a
// reactor.Scheduler's AddReadable.
func (t *Transport) Conn() *net.UDPConn {
	return t.conn
}

// SendTo transmits data to dst on the Art-Net port.
func (t *Transport) SendTo(data []byte, dst net.IP) error {
	addr := &net.UDPAddr{IP: dst, Port: Port}
	_, err := t.conn.WriteToUDP(data, addr)
	return err
}

// Close releases the socket.
func (t *Transport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
