package session

import (
	"time"

	"lanpong/internal/pong"
	"lanpong/internal/protocol"
)

// Tick runs one cooperative frame: drain the network, check peer liveness,
// do whatever the current phase needs, send whatever is due. The caller
// renders from Snapshot afterwards and sleeps its own frame delay.
func (s *Session) Tick(ctrl Controls) {
	now := s.clock.Now()
	dt := float32(now.Sub(s.lastTick).Seconds())
	s.lastTick = now

	s.drainInbound(now)
	s.checkPeerTimeout(now)

	if s.phase >= PhaseHostWaiting && ctrl.PressedQuit() {
		s.resetToMenu()
		return
	}

	switch s.phase {
	case PhaseRoleSelect:
		if ctrl.PressedHost() {
			s.startHosting()
		} else if ctrl.PressedJoin() {
			s.startJoining()
		}
	case PhaseClientSearching:
		s.broadcastJoin(now)
	case PhaseLobby, PhaseGameOver:
		if s.role == RoleHost && ctrl.PressedServe() {
			s.hostStartMatch(now)
		}
	case PhasePlaying:
		s.playFrame(ctrl, now, dt)
	}
}

func (s *Session) drainInbound(now time.Time) {
	for {
		select {
		case d := <-s.tr.Recv():
			msg, ok := protocol.Decode(d.Payload)
			if !ok {
				s.log.Debug().Int("len", len(d.Payload)).Msg("dropping malformed datagram")
				continue
			}
			s.handle(msg, d.Addr, now)
		default:
			return
		}
	}
}

// checkPeerTimeout drops a client whose host went quiet. Only the client
// watches: the host just keeps waiting for paddle traffic that never comes.
func (s *Session) checkPeerTimeout(now time.Time) {
	if s.role != RoleClient || !s.peer.HasPeer || s.phase < PhasePlaying {
		return
	}
	if now.Sub(s.peer.LastStateReceived) > s.cfg.PeerTimeout() {
		s.log.Warn().Msg("no state from host, dropping the link")
		s.errText = "Lost connection to host."
		s.phase = PhaseError
		s.peer.HasPeer = false
	}
}

// broadcastJoin announces the searching client to the whole segment on a
// fixed cadence. The first call fires immediately.
func (s *Session) broadcastJoin(now time.Time) {
	if now.Sub(s.peer.LastJoinBroadcast) < s.cfg.JoinInterval() {
		return
	}
	if err := s.tr.Broadcast((&protocol.Join{Name: s.localName}).Encode()); err != nil {
		s.log.Debug().Err(err).Msg("join broadcast failed")
	}
	s.peer.LastJoinBroadcast = now
}

func (s *Session) playFrame(ctrl Controls, now time.Time, dt float32) {
	pauseToggled := false
	if s.role == RoleHost && ctrl.PressedPause() {
		s.match.Paused = !s.match.Paused
		pauseToggled = true
		s.log.Info().Bool("paused", s.match.Paused).Msg("pause toggled")
	}

	in := pong.Input{Up: ctrl.HeldUp(), Down: ctrl.HeldDown()}

	switch s.role {
	case RoleHost:
		forceSend := pauseToggled
		if !s.match.Paused {
			out := pong.Advance(&s.match, in, dt, s.rng)
			if out.Scored != pong.NoSide {
				forceSend = true
				s.log.Info().
					Uint8("host", s.match.HostScore).
					Uint8("client", s.match.ClientScore).
					Msg("point")
			}
			if out.Ended {
				s.phase = PhaseGameOver
				forceSend = true
				s.log.Info().Msg("match over")
			}
		}
		if forceSend || now.Sub(s.peer.LastStateSent) >= s.cfg.StateInterval() {
			s.sendState(now)
		}
	case RoleClient:
		if s.match.Paused {
			return
		}
		prev := s.match.ClientPaddleY
		s.match.ClientPaddleY = pong.MovePaddle(s.match.ClientPaddleY, in, dt)
		moved := s.match.ClientPaddleY != prev
		if moved || now.Sub(s.peer.LastPaddleSent) >= s.cfg.PaddleInterval() {
			s.sendPaddle(now)
		}
	}
}

func (s *Session) sendState(now time.Time) {
	if !s.peer.HasPeer {
		return
	}
	s.match.FrameID++
	m := &protocol.State{
		Flags:         stateFlags(&s.match),
		HostScore:     s.match.HostScore,
		ClientScore:   s.match.ClientScore,
		FrameID:       s.match.FrameID,
		BallX:         s.match.Ball.Pos.X,
		BallY:         s.match.Ball.Pos.Y,
		BallVX:        s.match.Ball.Vel.X,
		BallVY:        s.match.Ball.Vel.Y,
		HostPaddleY:   s.match.HostPaddleY,
		ClientPaddleY: s.match.ClientPaddleY,
	}
	if err := s.tr.Send(s.peer.Addr, m.Encode()); err != nil {
		s.log.Debug().Err(err).Msg("state send failed")
	}
	s.peer.LastStateSent = now
}

func (s *Session) sendPaddle(now time.Time) {
	if !s.peer.HasPeer {
		return
	}
	if err := s.tr.Send(s.peer.Addr, (&protocol.Paddle{Y: s.match.ClientPaddleY}).Encode()); err != nil {
		s.log.Debug().Err(err).Msg("paddle send failed")
	}
	s.peer.LastPaddleSent = now
}

func stateFlags(m *pong.MatchState) protocol.Flags {
	var f protocol.Flags
	if m.MatchActive {
		f |= protocol.FlagMatchActive
	}
	if m.WaitingServe {
		f |= protocol.FlagWaitingServe
	}
	if m.GameOver {
		f |= protocol.FlagGameOver
	}
	if m.Paused {
		f |= protocol.FlagPaused
	}
	return f
}
