package transport

import (
	"net"
	"testing"
	"time"
)

func TestBindAndSendTo(t *testing.T) {
	tr, err := Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer tr.Close()

	if tr.Conn() == nil {
		t.Fatal("Conn() returned nil")
	}

	err = tr.SendTo([]byte("hello"), net.IPv4(127, 0, 0, 1))
	if err != nil {
		t.Fatalf("SendTo: %v", err)
	}
}

func TestCloseIdempotentWhenNil(t *testing.T) {
	var tr Transport
	if err := tr.Close(); err != nil {
		t.Fatalf("Close on zero-value Transport: %v", err)
	}
}

func TestBindReceivesLoopbackDatagram(t *testing.T) {
	tr, err := Bind()
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer tr.Close()

	sender, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: Port})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	if _, err := sender.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 16)
	_ = tr.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := tr.Conn().ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want %q", buf[:n], "ping")
	}
}
