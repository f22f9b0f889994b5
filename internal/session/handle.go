package session

import (
	"net"
	"time"

	"golang.org/x/exp/rand"

	"lanpong/internal/pong"
	"lanpong/internal/protocol"
)

// handle dispatches one decoded packet. Every arm re-checks role and phase,
// so stray, duplicated or forged packets fall through without side effects.
func (s *Session) handle(msg protocol.Msg, from *net.UDPAddr, now time.Time) {
	switch m := msg.(type) {
	case *protocol.Join:
		if s.role != RoleHost || s.phase != PhaseHostWaiting {
			return
		}
		s.linkPeer(from, m.Name, "Challenger")
		if err := s.tr.Send(from, (&protocol.JoinAck{Name: s.localName}).Encode()); err != nil {
			s.log.Debug().Err(err).Msg("join ack send failed")
		}
		s.match.Reset()
		s.phase = PhaseLobby
		s.log.Info().Str("peer", from.String()).Str("name", s.remoteName).Msg("challenger joined")

	case *protocol.JoinAck:
		if s.role != RoleClient || s.phase != PhaseClientSearching {
			return
		}
		s.linkPeer(from, m.Name, "Host")
		s.match.Reset()
		s.phase = PhaseLobby
		s.log.Info().Str("peer", from.String()).Str("name", s.remoteName).Msg("found a host")

	case *protocol.Start:
		// Both sides honor Start: the client so matches begin in sync,
		// the host so a replayed Start simply restarts its own match.
		switch s.role {
		case RoleHost:
			s.startMatch(now, m.Seed, true)
		case RoleClient:
			s.startMatch(now, m.Seed, false)
		}

	case *protocol.State:
		if s.role != RoleClient {
			return
		}
		s.applyState(m, now)

	case *protocol.Paddle:
		if s.role != RoleHost || !s.peer.HasPeer {
			return
		}
		s.match.ClientPaddleY = pong.ClampPaddle(m.Y)
	}
}

func (s *Session) linkPeer(addr *net.UDPAddr, name, fallback string) {
	if name == "" {
		name = fallback
	}
	s.remoteName = name
	s.peer.Addr = addr
	s.peer.HasPeer = true
}

// applyState mirrors the host's snapshot wholesale. Last write wins; an
// out-of-order frame is applied as-is, the next fresh one repairs it.
func (s *Session) applyState(m *protocol.State, now time.Time) {
	s.match.HostScore = m.HostScore
	s.match.ClientScore = m.ClientScore
	s.match.FrameID = m.FrameID
	s.match.Ball.Pos = pong.Vector{X: m.BallX, Y: m.BallY}
	s.match.Ball.Vel = pong.Vector{X: m.BallVX, Y: m.BallVY}
	s.match.HostPaddleY = m.HostPaddleY
	s.match.ClientPaddleY = m.ClientPaddleY

	wasOver := s.match.GameOver
	s.match.GameOver = m.Flags.Has(protocol.FlagGameOver)
	s.match.WaitingServe = m.Flags.Has(protocol.FlagWaitingServe)
	s.match.Paused = m.Flags.Has(protocol.FlagPaused)
	s.match.MatchActive = m.Flags.Has(protocol.FlagMatchActive) || s.match.WaitingServe

	if s.match.GameOver && !wasOver {
		s.phase = PhaseGameOver
		s.log.Info().
			Uint8("host", s.match.HostScore).
			Uint8("client", s.match.ClientScore).
			Msg("match over")
	} else if !s.match.GameOver && s.match.MatchActive && s.phase != PhasePlaying {
		s.phase = PhasePlaying
	}

	s.peer.LastStateReceived = now
}

// startHosting rebinds the socket and waits for a challenger.
func (s *Session) startHosting() {
	if !s.rebind() {
		return
	}
	s.role = RoleHost
	s.peer = PeerLink{}
	s.match.Reset()
	s.phase = PhaseHostWaiting
	s.log.Info().Msg("hosting, waiting for a challenger")
}

// startJoining rebinds the socket and starts shouting at the segment.
func (s *Session) startJoining() {
	if !s.rebind() {
		return
	}
	s.role = RoleClient
	s.peer = PeerLink{}
	s.match.Reset()
	s.phase = PhaseClientSearching
	s.log.Info().Msg("searching for a host")
}

func (s *Session) rebind() bool {
	if err := s.tr.Open(); err != nil {
		s.log.Error().Err(err).Msg("udp bind failed")
		s.errText = "UDP bind failed."
		s.phase = PhaseError
		return false
	}
	return true
}

// hostStartMatch is the host's serve command, from the lobby or as a
// rematch: share a fresh seed, then start the same match locally.
func (s *Session) hostStartMatch(now time.Time) {
	seed := nextSeed(now)
	if s.peer.HasPeer {
		if err := s.tr.Send(s.peer.Addr, (&protocol.Start{Seed: seed}).Encode()); err != nil {
			s.log.Debug().Err(err).Msg("start send failed")
		}
	}
	s.startMatch(now, seed, true)
}

// startMatch begins play from a shared seed. The serving side arms the serve
// and pushes a snapshot right away; the other side arms the same serve wait
// and lets State packets drive everything after.
func (s *Session) startMatch(now time.Time, seed uint32, serving bool) {
	s.rng = rand.New(rand.NewSource(uint64(seed)))
	s.match.Reset()
	if serving {
		s.match.PrepareServe(1)
	} else {
		s.match.WaitingServe = true
		s.match.MatchActive = true
	}
	s.phase = PhasePlaying
	s.log.Info().Uint32("seed", seed).Bool("serving", serving).Msg("match started")
	if serving {
		s.sendState(now)
	}
}

// resetToMenu abandons whatever is happening and returns to role select.
// The socket stays bound; entering host or join rebinds it anyway.
func (s *Session) resetToMenu() {
	s.peer = PeerLink{}
	s.role = RoleNone
	s.match.Reset()
	s.remoteName = defaultRemoteName
	s.errText = ""
	s.phase = PhaseRoleSelect
	s.log.Info().Msg("back to the menu")
}

func nextSeed(now time.Time) uint32 {
	ms := uint32(now.UnixMilli())
	us := uint32(now.UnixMicro())
	return ms ^ (us << 8)
}
