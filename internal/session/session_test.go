package session

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanpong/internal/config"
	"lanpong/internal/netwrk"
	"lanpong/internal/pong"
	"lanpong/internal/protocol"
)

type fakeControls struct {
	up, down                       bool
	serve, pause, quit, host, join bool
}

func (f *fakeControls) HeldUp() bool   { return f.up }
func (f *fakeControls) HeldDown() bool { return f.down }

// Command queries are edge triggered, so reading one consumes it.
func (f *fakeControls) PressedServe() bool { v := f.serve; f.serve = false; return v }
func (f *fakeControls) PressedPause() bool { v := f.pause; f.pause = false; return v }
func (f *fakeControls) PressedQuit() bool  { v := f.quit; f.quit = false; return v }
func (f *fakeControls) PressedHost() bool  { v := f.host; f.host = false; return v }
func (f *fakeControls) PressedJoin() bool  { v := f.join; f.join = false; return v }

type rig struct {
	s     *Session
	tr    *netwrk.Mem
	far   *netwrk.Mem
	clock *clockwork.FakeClock
	ctrl  *fakeControls
}

func newRig(t *testing.T, name string) *rig {
	t.Helper()
	tr, far := netwrk.Pair()
	clock := clockwork.NewFakeClock()
	r := &rig{
		s:     New(config.Default(), name, tr, clock, zerolog.Nop()),
		tr:    tr,
		far:   far,
		clock: clock,
		ctrl:  &fakeControls{},
	}
	require.NoError(t, far.Open())
	return r
}

func (r *rig) tick() { r.s.Tick(r.ctrl) }

func (r *rig) step(d time.Duration) {
	r.clock.Advance(d)
	r.s.Tick(r.ctrl)
}

func recvFrom(t *testing.T, m *netwrk.Mem) (netwrk.Datagram, protocol.Msg) {
	t.Helper()
	select {
	case d := <-m.Recv():
		msg, ok := protocol.Decode(d.Payload)
		require.True(t, ok, "far end got a malformed packet")
		return d, msg
	default:
		t.Fatal("expected a packet")
	}
	return netwrk.Datagram{}, nil
}

func noPacket(t *testing.T, m *netwrk.Mem) {
	t.Helper()
	select {
	case d := <-m.Recv():
		t.Fatalf("unexpected packet % x", d.Payload)
	default:
	}
}

func drain(m *netwrk.Mem) int {
	n := 0
	for {
		select {
		case <-m.Recv():
			n++
		default:
			return n
		}
	}
}

func hostInLobby(t *testing.T) *rig {
	t.Helper()
	r := newRig(t, "Hosty")
	r.ctrl.host = true
	r.tick()
	require.NoError(t, r.far.Broadcast((&protocol.Join{Name: "Clienty"}).Encode()))
	r.step(16 * time.Millisecond)
	require.Equal(t, PhaseLobby, r.s.Snapshot().Phase)
	drain(r.far)
	return r
}

func clientInLobby(t *testing.T) *rig {
	t.Helper()
	r := newRig(t, "Clienty")
	r.ctrl.join = true
	r.tick()
	r.step(16 * time.Millisecond)
	d, msg := recvFrom(t, r.far)
	require.IsType(t, &protocol.Join{}, msg)
	require.NoError(t, r.far.Send(d.Addr, (&protocol.JoinAck{Name: "Hosty"}).Encode()))
	r.step(16 * time.Millisecond)
	require.Equal(t, PhaseLobby, r.s.Snapshot().Phase)
	drain(r.far)
	return r
}

func TestHostAcceptsJoinAndAcks(t *testing.T) {
	r := newRig(t, "Hosty")
	r.ctrl.host = true
	r.tick()
	require.Equal(t, PhaseHostWaiting, r.s.Snapshot().Phase)
	require.Equal(t, RoleHost, r.s.Snapshot().Role)

	require.NoError(t, r.far.Broadcast((&protocol.Join{Name: "Challenger1"}).Encode()))
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhaseLobby, snap.Phase)
	assert.True(t, snap.HasPeer)
	assert.Equal(t, "Challenger1", snap.RemoteName)

	_, msg := recvFrom(t, r.far)
	ack, ok := msg.(*protocol.JoinAck)
	require.True(t, ok, "host answers with a join ack")
	assert.Equal(t, "Hosty", ack.Name)
}

func TestHostFillsInBlankChallengerName(t *testing.T) {
	r := newRig(t, "Hosty")
	r.ctrl.host = true
	r.tick()

	require.NoError(t, r.far.Broadcast((&protocol.Join{}).Encode()))
	r.step(16 * time.Millisecond)

	assert.Equal(t, "Challenger", r.s.Snapshot().RemoteName)
}

func TestLateJoinIgnoredOnceLinked(t *testing.T) {
	r := hostInLobby(t)

	stranger := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 77), Port: netwrk.DefaultPort}
	r.tr.Inject(stranger, (&protocol.Join{Name: "Late"}).Encode())
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhaseLobby, snap.Phase)
	assert.Equal(t, "Clienty", snap.RemoteName, "first challenger keeps the slot")
	noPacket(t, r.far)
}

func TestClientFindsHost(t *testing.T) {
	r := newRig(t, "Clienty")
	r.ctrl.join = true
	r.tick()
	require.Equal(t, PhaseClientSearching, r.s.Snapshot().Phase)

	r.step(16 * time.Millisecond)
	d, msg := recvFrom(t, r.far)
	require.IsType(t, &protocol.Join{}, msg)
	assert.Equal(t, "Clienty", msg.(*protocol.Join).Name)

	require.NoError(t, r.far.Send(d.Addr, (&protocol.JoinAck{Name: "Hosty"}).Encode()))
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhaseLobby, snap.Phase)
	assert.True(t, snap.HasPeer)
	assert.Equal(t, "Hosty", snap.RemoteName)
}

func TestDiscoveryCadence(t *testing.T) {
	r := newRig(t, "Clienty")
	r.ctrl.join = true
	r.tick()

	sent := 0
	for i := 0; i < 25; i++ {
		r.step(100 * time.Millisecond)
		sent += drain(r.far)
	}

	assert.Equal(t, 4, sent, "one join per 800ms window while searching")
	assert.Equal(t, PhaseClientSearching, r.s.Snapshot().Phase, "no replies means no transition")
}

func TestJoinAckRetransmitIgnoredInLobby(t *testing.T) {
	r := clientInLobby(t)

	require.NoError(t, r.far.Broadcast((&protocol.JoinAck{Name: "Impostor"}).Encode()))
	r.step(16 * time.Millisecond)

	assert.Equal(t, "Hosty", r.s.Snapshot().RemoteName)
	assert.Equal(t, PhaseLobby, r.s.Snapshot().Phase)
}

func TestClientMirrorsStateWholesale(t *testing.T) {
	r := clientInLobby(t)

	st := &protocol.State{
		Flags:         protocol.FlagMatchActive,
		HostScore:     2,
		ClientScore:   1,
		FrameID:       9,
		BallX:         50,
		BallY:         60,
		BallVX:        -170,
		BallVY:        12,
		HostPaddleY:   30,
		ClientPaddleY: 90,
	}
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), st.Encode()))
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase, "an active snapshot pulls the client into play")
	m := snap.Match
	assert.Equal(t, uint8(2), m.HostScore)
	assert.Equal(t, uint8(1), m.ClientScore)
	assert.Equal(t, uint32(9), m.FrameID)
	assert.Equal(t, pong.Vector{X: 50, Y: 60}, m.Ball.Pos)
	assert.Equal(t, pong.Vector{X: -170, Y: 12}, m.Ball.Vel)
	assert.Equal(t, float32(30), m.HostPaddleY)
	assert.Equal(t, float32(90), m.ClientPaddleY)
	assert.True(t, m.MatchActive)
	assert.False(t, m.GameOver)

	// Applying the identical snapshot again changes nothing.
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), st.Encode()))
	r.step(16 * time.Millisecond)
	assert.Equal(t, m, r.s.Snapshot().Match)
	assert.Equal(t, PhasePlaying, r.s.Snapshot().Phase)
}

func TestClientNeverScoresLocally(t *testing.T) {
	r := clientInLobby(t)

	st := &protocol.State{
		Flags:  protocol.FlagMatchActive,
		BallX:  -20,
		BallVX: -170,
		BallY:  67.5,
	}
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), st.Encode()))
	r.step(16 * time.Millisecond)
	// Ball past the edge, but scoring is the host's call alone.
	r.step(16 * time.Millisecond)

	m := r.s.Snapshot().Match
	assert.Equal(t, uint8(0), m.HostScore)
	assert.Equal(t, uint8(0), m.ClientScore)
	assert.Equal(t, float32(-20), m.Ball.Pos.X, "ball stays where the host put it")
}

func TestFrameIDIsAdvisoryOnly(t *testing.T) {
	r := clientInLobby(t)

	newer := &protocol.State{Flags: protocol.FlagMatchActive, FrameID: 5, BallX: 100, BallY: 60}
	older := &protocol.State{Flags: protocol.FlagMatchActive, FrameID: 3, BallX: 80, BallY: 60}
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), newer.Encode()))
	r.step(16 * time.Millisecond)
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), older.Encode()))
	r.step(16 * time.Millisecond)

	m := r.s.Snapshot().Match
	assert.Equal(t, uint32(3), m.FrameID, "last write wins even when the frame id runs backwards")
	assert.Equal(t, float32(80), m.Ball.Pos.X)
}

func TestStateIgnoredByHost(t *testing.T) {
	r := hostInLobby(t)

	st := &protocol.State{Flags: protocol.FlagGameOver, HostScore: 7}
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), st.Encode()))
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhaseLobby, snap.Phase)
	assert.Equal(t, uint8(0), snap.Match.HostScore)
	assert.False(t, snap.Match.GameOver)
}

func TestHostClampsInboundPaddle(t *testing.T) {
	r := hostInLobby(t)

	cases := []struct {
		sent float32
		want float32
	}{
		{sent: 500, want: pong.FieldHeight - pong.PaddleHalf},
		{sent: -50, want: pong.PaddleHalf},
		{sent: 60, want: 60},
	}
	for _, tc := range cases {
		require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.Paddle{Y: tc.sent}).Encode()))
		r.step(16 * time.Millisecond)
		assert.Equal(t, tc.want, r.s.Snapshot().Match.ClientPaddleY)
	}
	assert.Equal(t, PhaseLobby, r.s.Snapshot().Phase, "paddle packets never change phase")
}

func TestServeCommandStartsMatch(t *testing.T) {
	r := hostInLobby(t)

	r.ctrl.serve = true
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.True(t, snap.Match.WaitingServe)
	assert.True(t, snap.Match.MatchActive)

	_, first := recvFrom(t, r.far)
	start, ok := first.(*protocol.Start)
	require.True(t, ok, "start packet goes out first")
	assert.NotZero(t, start.Seed)

	_, second := recvFrom(t, r.far)
	st, ok := second.(*protocol.State)
	require.True(t, ok, "an immediate snapshot follows")
	assert.True(t, st.Flags.Has(protocol.FlagWaitingServe))
	assert.True(t, st.Flags.Has(protocol.FlagMatchActive))
	assert.Equal(t, uint32(1), st.FrameID)
}

func TestClientStartsOnStartPacket(t *testing.T) {
	r := clientInLobby(t)

	require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.Start{Seed: 99}).Encode()))
	r.step(16 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase)
	assert.True(t, snap.Match.WaitingServe)
	assert.True(t, snap.Match.MatchActive)

	// The client never simulates: the serve delay passing changes nothing
	// until the host says so.
	for i := 0; i < 100; i++ {
		r.step(20 * time.Millisecond)
	}
	assert.Equal(t, pong.Vector{}, r.s.Snapshot().Match.Ball.Vel)
}

func TestStartIgnoredWithoutRole(t *testing.T) {
	r := newRig(t, "Menuer")

	r.tr.Inject(r.far.LocalAddr(), (&protocol.Start{Seed: 5}).Encode())
	r.step(16 * time.Millisecond)

	assert.Equal(t, PhaseRoleSelect, r.s.Snapshot().Phase)
	assert.False(t, r.s.Snapshot().Match.MatchActive)
}

func TestServeDelayThenLaunch(t *testing.T) {
	r := hostInLobby(t)
	r.ctrl.serve = true
	r.step(16 * time.Millisecond)
	drain(r.far)

	for i := 0; i < 64; i++ {
		r.step(20 * time.Millisecond)
	}
	require.True(t, r.s.Snapshot().Match.WaitingServe, "1.28s in, the ball is still parked")
	assert.Equal(t, pong.Vector{}, r.s.Snapshot().Match.Ball.Vel)

	r.step(20 * time.Millisecond)
	r.step(20 * time.Millisecond)

	m := r.s.Snapshot().Match
	require.False(t, m.WaitingServe, "past 1.3s the serve fires")
	assert.Equal(t, pong.BallSpeed, m.Ball.Vel.X, "first serve heads for the client")
	assert.LessOrEqual(t, absf(m.Ball.Vel.Y), pong.BallSpeed*0.6*0.6+0.001)
}

func TestHostWinEmitsFinalState(t *testing.T) {
	r := hostInLobby(t)
	r.ctrl.serve = true
	r.step(16 * time.Millisecond)
	drain(r.far)

	r.s.match.WaitingServe = false
	r.s.match.HostScore = 6
	r.s.match.Ball.Pos = pong.Vector{X: 237, Y: 30}
	r.s.match.Ball.Vel = pong.Vector{X: 170, Y: 0}

	r.step(60 * time.Millisecond)

	snap := r.s.Snapshot()
	assert.Equal(t, PhaseGameOver, snap.Phase)
	assert.Equal(t, uint8(7), snap.Match.HostScore)
	assert.True(t, snap.Match.GameOver)
	assert.False(t, snap.Match.MatchActive)

	_, msg := recvFrom(t, r.far)
	st := msg.(*protocol.State)
	assert.True(t, st.Flags.Has(protocol.FlagGameOver))
	assert.False(t, st.Flags.Has(protocol.FlagMatchActive))
	assert.Equal(t, uint8(7), st.HostScore)

	// The host goes quiet on the post-game screen.
	for i := 0; i < 10; i++ {
		r.step(50 * time.Millisecond)
	}
	noPacket(t, r.far)
}

func TestClientTimeoutIsExact(t *testing.T) {
	r := clientInLobby(t)
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
	r.step(16 * time.Millisecond)
	require.Equal(t, PhasePlaying, r.s.Snapshot().Phase)

	r.step(4000 * time.Millisecond)
	assert.Equal(t, PhasePlaying, r.s.Snapshot().Phase, "exactly the window is not yet a timeout")

	r.step(1 * time.Millisecond)
	snap := r.s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "Lost connection to host.", snap.ErrText)
	assert.False(t, snap.HasPeer)

	// Unlinked, the client stops talking.
	drain(r.far)
	r.step(100 * time.Millisecond)
	noPacket(t, r.far)
}

func TestFreshStateResetsTimeoutWindow(t *testing.T) {
	r := clientInLobby(t)
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
	r.step(16 * time.Millisecond)

	for i := 0; i < 5; i++ {
		r.step(3000 * time.Millisecond)
		require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
		r.step(16 * time.Millisecond)
	}

	assert.Equal(t, PhasePlaying, r.s.Snapshot().Phase, "steady snapshots keep the link alive")
}

func TestHostNeverTimesOut(t *testing.T) {
	r := hostInLobby(t)
	r.ctrl.serve = true
	r.step(16 * time.Millisecond)
	r.ctrl.pause = true
	r.step(16 * time.Millisecond)
	require.True(t, r.s.Snapshot().Match.Paused)

	for i := 0; i < 60; i++ {
		r.step(100 * time.Millisecond)
	}

	snap := r.s.Snapshot()
	assert.Equal(t, PhasePlaying, snap.Phase, "a silent client costs the host nothing")
	assert.True(t, snap.HasPeer)
}

func TestPauseForcesImmediateState(t *testing.T) {
	r := hostInLobby(t)
	r.ctrl.serve = true
	r.step(16 * time.Millisecond)
	drain(r.far)

	r.ctrl.pause = true
	r.step(1 * time.Millisecond)

	_, msg := recvFrom(t, r.far)
	st := msg.(*protocol.State)
	assert.True(t, st.Flags.Has(protocol.FlagPaused), "toggle goes out without waiting for the cadence")

	r.s.match.ServeWait = 0
	for i := 0; i < 100; i++ {
		r.step(20 * time.Millisecond)
	}
	m := r.s.Snapshot().Match
	assert.True(t, m.WaitingServe, "paused matches do not simulate")
	assert.Equal(t, pong.Vector{}, m.Ball.Vel)
	assert.Equal(t, 50, drain(r.far), "snapshots keep flowing while paused")

	r.ctrl.pause = true
	r.step(1 * time.Millisecond)
	_, msg = recvFrom(t, r.far)
	assert.False(t, msg.(*protocol.State).Flags.Has(protocol.FlagPaused))
}

func TestClientPaddleCadence(t *testing.T) {
	r := clientInLobby(t)
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
	r.step(16 * time.Millisecond)
	drain(r.far)

	// Holding a key sends every tick; the paddle is moving.
	r.ctrl.down = true
	moving := 0
	for i := 0; i < 5; i++ {
		r.step(16 * time.Millisecond)
		moving += drain(r.far)
	}
	assert.Equal(t, 5, moving, "movement reports immediately")

	// Idle, the cadence throttles to the keepalive interval.
	r.ctrl.down = false
	idle := 0
	for i := 0; i < 9; i++ {
		r.step(15 * time.Millisecond)
		idle += drain(r.far)
	}
	assert.Equal(t, 3, idle, "idle paddle keepalives at 45ms")
}

func TestClientStopsPaddlingWhenHostPauses(t *testing.T) {
	r := clientInLobby(t)
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
	r.step(16 * time.Millisecond)
	drain(r.far)

	paused := &protocol.State{
		Flags:         protocol.FlagMatchActive | protocol.FlagPaused,
		HostPaddleY:   pong.FieldHeight / 2,
		ClientPaddleY: pong.FieldHeight / 2,
	}
	require.NoError(t, r.far.Send(r.tr.LocalAddr(), paused.Encode()))
	r.step(16 * time.Millisecond)
	drain(r.far)

	r.ctrl.down = true
	for i := 0; i < 5; i++ {
		r.step(16 * time.Millisecond)
	}
	noPacket(t, r.far)
	assert.Equal(t, pong.FieldHeight/2, r.s.Snapshot().Match.ClientPaddleY,
		"own paddle frozen while the host holds the match")
}

func TestQuitFromAnywhereResets(t *testing.T) {
	t.Run("from lobby", func(t *testing.T) {
		r := hostInLobby(t)
		r.ctrl.quit = true
		r.step(16 * time.Millisecond)

		snap := r.s.Snapshot()
		assert.Equal(t, PhaseRoleSelect, snap.Phase)
		assert.Equal(t, RoleNone, snap.Role)
		assert.False(t, snap.HasPeer)
		assert.Equal(t, "Opponent", snap.RemoteName)
	})

	t.Run("from error", func(t *testing.T) {
		r := clientInLobby(t)
		require.NoError(t, r.far.Send(r.tr.LocalAddr(), (&protocol.State{Flags: protocol.FlagMatchActive}).Encode()))
		r.step(16 * time.Millisecond)
		r.step(4001 * time.Millisecond)
		require.Equal(t, PhaseError, r.s.Snapshot().Phase)

		r.ctrl.quit = true
		r.step(16 * time.Millisecond)

		snap := r.s.Snapshot()
		assert.Equal(t, PhaseRoleSelect, snap.Phase)
		assert.Empty(t, snap.ErrText)
	})

	t.Run("from playing mid match", func(t *testing.T) {
		r := hostInLobby(t)
		r.ctrl.serve = true
		r.step(16 * time.Millisecond)
		r.s.match.HostScore = 3

		r.ctrl.quit = true
		r.step(16 * time.Millisecond)

		snap := r.s.Snapshot()
		assert.Equal(t, PhaseRoleSelect, snap.Phase)
		assert.Equal(t, uint8(0), snap.Match.HostScore, "scores wiped with the match")
	})
}

type failingTransport struct {
	netwrk.Transport
}

func (failingTransport) Open() error { return errors.New("bind: address already in use") }

func TestBindFailureLandsInError(t *testing.T) {
	tr, _ := netwrk.Pair()
	clock := clockwork.NewFakeClock()
	s := New(config.Default(), "X", failingTransport{tr}, clock, zerolog.Nop())
	ctrl := &fakeControls{host: true}

	s.Tick(ctrl)

	snap := s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "UDP bind failed.", snap.ErrText)
	assert.Equal(t, RoleNone, snap.Role)
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
