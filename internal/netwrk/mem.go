package netwrk

import "net"

// Mem is the in-memory transport tests run on: two ends joined back to
// back, no sockets. A broadcast just lands on the other end, which is what
// single-segment LAN discovery looks like from this protocol's side.
type Mem struct {
	addr *net.UDPAddr
	peer *Mem
	recv chan Datagram
	open bool
}

// Pair wires two in-memory transports together on fake LAN addresses.
func Pair() (*Mem, *Mem) {
	a := &Mem{
		addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: DefaultPort},
		recv: make(chan Datagram, recvQueueLen),
	}
	b := &Mem{
		addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: DefaultPort},
		recv: make(chan Datagram, recvQueueLen),
	}
	a.peer, b.peer = b, a
	return a, b
}

func (m *Mem) Open() error {
	m.open = true
	for len(m.recv) > 0 {
		<-m.recv
	}
	return nil
}

func (m *Mem) Close() error {
	m.open = false
	return nil
}

// Send delivers only when addr names the linked peer. Anything else is a
// send to nobody, which UDP swallows without complaint, so we do too.
func (m *Mem) Send(addr *net.UDPAddr, payload []byte) error {
	if addr == nil || !addr.IP.Equal(m.peer.addr.IP) || addr.Port != m.peer.addr.Port {
		return nil
	}
	return m.deliver(payload)
}

func (m *Mem) Broadcast(payload []byte) error {
	return m.deliver(payload)
}

func (m *Mem) Recv() <-chan Datagram { return m.recv }

func (m *Mem) LocalAddr() *net.UDPAddr { return m.addr }

// Inject queues a datagram as if it arrived from an arbitrary source.
func (m *Mem) Inject(from *net.UDPAddr, payload []byte) {
	m.recv <- Datagram{Addr: from, Payload: payload}
}

func (m *Mem) deliver(payload []byte) error {
	if !m.open {
		return errNotOpen
	}
	if !m.peer.open {
		return nil
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	select {
	case m.peer.recv <- Datagram{Addr: m.addr, Payload: p}:
	default:
	}
	return nil
}
