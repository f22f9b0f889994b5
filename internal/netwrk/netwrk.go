// Package netwrk owns the socket. It turns the kernel's receive queue into a
// channel the session drains once per tick, and exposes the two send shapes
// the protocol needs: unicast to the linked peer and LAN broadcast for
// discovery. Both peers bind the same fixed port, so discovery needs no port
// negotiation at all.
package netwrk

import (
	"errors"
	"net"
)

// DefaultPort is the shared port both peers bind and broadcast on.
const DefaultPort = 41000

const recvQueueLen = 64

var errNotOpen = errors.New("transport not open")

// Datagram is one received packet, still encoded, with its source address.
type Datagram struct {
	Addr    *net.UDPAddr
	Payload []byte
}

// Transport is the session's view of the network. UDP is the production
// implementation; Pair builds the in-memory one tests run on.
type Transport interface {
	// Open binds the socket. Opening an already-open transport rebinds
	// it, dropping anything still queued from the previous bind.
	Open() error
	Close() error
	Send(addr *net.UDPAddr, payload []byte) error
	// Broadcast sends to the IPv4 broadcast address on the shared port.
	Broadcast(payload []byte) error
	// Recv is the inbound queue. The channel stays valid across
	// Open/Close cycles.
	Recv() <-chan Datagram
	LocalAddr() *net.UDPAddr
}
