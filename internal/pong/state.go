package pong

// All gameplay happens in a fixed 240x135 logical space; the renderer scales
// to whatever cells it has. Paddle Y values are vertical centers.
const (
	FieldWidth  float32 = 240
	FieldHeight float32 = 135

	PaddleWidth  float32 = 8
	PaddleHeight float32 = 34
	PaddleHalf   float32 = PaddleHeight / 2
	PaddleSpeed  float32 = 170

	HostPaddleX   float32 = 16
	ClientPaddleX float32 = FieldWidth - 16 - PaddleWidth

	BallRadius      float32 = 5
	BallSpeed       float32 = 170
	BallSpeedGrowth float32 = 1.06

	MaxScore uint8 = 7

	// ServeDelay is how long the ball sits at center before launching,
	// in seconds.
	ServeDelay float32 = 1.3

	steerStrength float32 = 45
)

type Vector struct {
	X float32
	Y float32
}

type Ball struct {
	Pos Vector
	Vel Vector
}

// MatchState is the whole match. The host's copy is authoritative; a client
// copy is overwritten wholesale by every inbound state snapshot. Exactly one
// goroutine owns any given MatchState.
type MatchState struct {
	HostScore   uint8
	ClientScore uint8

	Ball          Ball
	HostPaddleY   float32
	ClientPaddleY float32

	MatchActive  bool
	WaitingServe bool
	GameOver     bool
	Paused       bool

	// ServeDirection is +1 toward the client, -1 toward the host.
	ServeDirection float32
	// ServeWait accumulates seconds since the serve was requested.
	ServeWait float32

	// FrameID counts state snapshots sent this match. Advisory only;
	// receivers never reject on it.
	FrameID uint32
}

// Reset returns the match to its pre-serve idle: zero scores, centered
// paddles and ball, all flags down, frame counter restarted.
func (m *MatchState) Reset() {
	*m = MatchState{
		HostPaddleY:    FieldHeight / 2,
		ClientPaddleY:  FieldHeight / 2,
		Ball:           Ball{Pos: Vector{X: FieldWidth / 2, Y: FieldHeight / 2}},
		ServeDirection: 1,
	}
}

func (m *MatchState) centerBall() {
	m.Ball.Pos = Vector{X: FieldWidth / 2, Y: FieldHeight / 2}
	m.Ball.Vel = Vector{}
}

// ClampPaddle keeps a paddle center on the field.
func ClampPaddle(y float32) float32 {
	if y < PaddleHalf {
		return PaddleHalf
	}
	if y > FieldHeight-PaddleHalf {
		return FieldHeight - PaddleHalf
	}
	return y
}
