package netwrk

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"lanpong/internal/protocol"
)

// UDP is the production transport: one IPv4 socket on the shared port with
// a reader goroutine feeding Recv. Sends are fire and forget.
type UDP struct {
	port  int
	bcast net.IP
	log   zerolog.Logger

	conn *net.UDPConn
	recv chan Datagram
	done chan struct{}
}

// NewUDP builds a transport on the given port. bcast is the discovery
// target; nil means the limited broadcast address.
func NewUDP(port int, bcast net.IP, log zerolog.Logger) *UDP {
	if bcast == nil {
		bcast = net.IPv4bcast
	}
	return &UDP{
		port:  port,
		bcast: bcast,
		log:   log,
		recv:  make(chan Datagram, recvQueueLen),
	}
}

func (u *UDP) Open() error {
	if u.conn != nil {
		u.Close()
	}

	lc := net.ListenConfig{Control: enableBroadcast}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", u.port))
	if err != nil {
		return fmt.Errorf("binding udp port %d: %w", u.port, err)
	}
	u.conn = pc.(*net.UDPConn)

	// Flush whatever a previous bind left queued.
	for len(u.recv) > 0 {
		<-u.recv
	}

	u.done = make(chan struct{})
	go u.read(u.conn, u.done)

	u.log.Info().Int("port", u.port).Msg("udp socket bound")
	return nil
}

func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	close(u.done)
	err := u.conn.Close()
	u.conn = nil
	return err
}

func (u *UDP) Send(addr *net.UDPAddr, payload []byte) error {
	if u.conn == nil {
		return errNotOpen
	}
	_, err := u.conn.WriteToUDP(payload, addr)
	return err
}

func (u *UDP) Broadcast(payload []byte) error {
	return u.Send(&net.UDPAddr{IP: u.bcast, Port: u.port}, payload)
}

func (u *UDP) Recv() <-chan Datagram { return u.recv }

func (u *UDP) LocalAddr() *net.UDPAddr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr().(*net.UDPAddr)
}

func (u *UDP) read(conn *net.UDPConn, done chan struct{}) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
			default:
				u.log.Debug().Err(err).Msg("udp read failed")
			}
			return
		}
		if n > protocol.MaxDatagram {
			u.log.Debug().Int("len", n).Msg("dropping oversized datagram")
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		select {
		case u.recv <- Datagram{Addr: addr, Payload: payload}:
		default:
			u.log.Debug().Msg("inbound queue full, dropping datagram")
		}
	}
}

// Discovery sends to a broadcast address, which the kernel refuses unless
// the socket asks for SO_BROADCAST first.
func enableBroadcast(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
