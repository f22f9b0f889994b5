package pong

import (
	"golang.org/x/exp/rand"
)

// Input is what the paddle owner is holding this frame.
type Input struct {
	Up   bool
	Down bool
}

// Side says who took the point in an Outcome.
type Side int

const (
	NoSide Side = iota
	HostSide
	ClientSide
)

// Outcome reports what a single Advance step did, so the caller can react
// right away (a point or a finished match wants an immediate broadcast).
type Outcome struct {
	Scored   Side
	Launched bool
	Ended    bool
}

// PrepareServe parks the ball at center and arms the serve timer. The match
// stays active (or becomes active, on the first serve of a match).
func (m *MatchState) PrepareServe(direction float32) {
	m.ServeDirection = direction
	m.WaitingServe = true
	m.MatchActive = true
	m.ServeWait = 0
	m.centerBall()
}

// End freezes play. Scores stay as they are for the post-game screen.
func (m *MatchState) End() {
	m.GameOver = true
	m.MatchActive = false
	m.WaitingServe = false
	m.centerBall()
}

// MovePaddle applies held input to a paddle center and clamps it.
func MovePaddle(y float32, in Input, dt float32) float32 {
	if in.Up {
		y -= PaddleSpeed * dt
	}
	if in.Down {
		y += PaddleSpeed * dt
	}
	return ClampPaddle(y)
}

// Advance runs one authoritative simulation step: paddle movement, serve
// timing, ball integration, collisions, scoring. It is a no-op between
// matches. Only the host side ever calls this; clients mirror.
func Advance(m *MatchState, in Input, dt float32, rng *rand.Rand) Outcome {
	var out Outcome

	if !m.MatchActive && !m.WaitingServe {
		return out
	}

	m.HostPaddleY = MovePaddle(m.HostPaddleY, in, dt)

	if m.WaitingServe {
		m.ServeWait += dt
		if m.ServeWait < ServeDelay {
			return out
		}
		m.launch(rng)
		out.Launched = true
	}

	m.Ball.Pos.X += m.Ball.Vel.X * dt
	m.Ball.Pos.Y += m.Ball.Vel.Y * dt

	m.bounceWalls()
	m.collidePaddles()

	switch {
	case m.Ball.Pos.X+BallRadius < 0:
		out.Scored = ClientSide
		m.ClientScore++
		if m.ClientScore >= MaxScore {
			m.End()
			out.Ended = true
		} else {
			m.PrepareServe(1)
		}
	case m.Ball.Pos.X-BallRadius > FieldWidth:
		out.Scored = HostSide
		m.HostScore++
		if m.HostScore >= MaxScore {
			m.End()
			out.Ended = true
		} else {
			m.PrepareServe(-1)
		}
	}

	return out
}

// launch fires the serve: full speed toward the receiving side, with a
// random vertical arc of at most 60% of that speed.
func (m *MatchState) launch(rng *rand.Rand) {
	arc := float32(rng.Intn(121)-60) / 100
	m.Ball.Vel.X = BallSpeed * m.ServeDirection
	m.Ball.Vel.Y = BallSpeed * 0.6 * arc
	m.WaitingServe = false
}

func (m *MatchState) bounceWalls() {
	if m.Ball.Pos.Y-BallRadius <= 0 {
		m.Ball.Pos.Y = BallRadius
		m.Ball.Vel.Y = -m.Ball.Vel.Y
	}
	if m.Ball.Pos.Y+BallRadius >= FieldHeight {
		m.Ball.Pos.Y = FieldHeight - BallRadius
		m.Ball.Vel.Y = -m.Ball.Vel.Y
	}
}

func (m *MatchState) collidePaddles() {
	// Host paddle, ball heading left.
	if m.Ball.Vel.X < 0 {
		edge := m.Ball.Pos.X - BallRadius
		if edge <= HostPaddleX+PaddleWidth && edge >= HostPaddleX &&
			absf(m.Ball.Pos.Y-m.HostPaddleY) <= PaddleHalf {
			m.Ball.Pos.X = HostPaddleX + PaddleWidth + BallRadius
			m.Ball.Vel.X = absf(m.Ball.Vel.X) * BallSpeedGrowth
			m.Ball.Vel.Y += steer(m.Ball.Pos.Y, m.HostPaddleY)
		}
	}
	// Client paddle, ball heading right.
	if m.Ball.Vel.X > 0 {
		edge := m.Ball.Pos.X + BallRadius
		if edge >= ClientPaddleX && edge <= ClientPaddleX+PaddleWidth &&
			absf(m.Ball.Pos.Y-m.ClientPaddleY) <= PaddleHalf {
			m.Ball.Pos.X = ClientPaddleX - BallRadius
			m.Ball.Vel.X = -absf(m.Ball.Vel.X) * BallSpeedGrowth
			m.Ball.Vel.Y += steer(m.Ball.Pos.Y, m.ClientPaddleY)
		}
	}
}

// steer converts where the ball struck the paddle into vertical spin:
// nothing dead center, plus or minus 45 at the very edge.
func steer(ballY, paddleY float32) float32 {
	return (ballY - paddleY) / PaddleHalf * steerStrength
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
