// Package session is the whole journey of one player: menu, discovery,
// handshake, match, post-game. A Session is plain data plus a Tick method;
// exactly one goroutine owns it. The transport's reader goroutine never
// touches session state, it only feeds the queue Tick drains.
package session

import (
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/exp/rand"

	"lanpong/internal/config"
	"lanpong/internal/netwrk"
	"lanpong/internal/pong"
)

// Phase is where the session is in its flow. Order matters: the peer
// liveness check applies to Playing and everything after it.
type Phase uint8

const (
	PhaseWifiSelect Phase = iota
	PhaseWifiPassword
	PhaseNameEntry
	PhaseRoleSelect
	PhaseHostWaiting
	PhaseClientSearching
	PhaseLobby
	PhasePlaying
	PhaseGameOver
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseWifiSelect:
		return "wifi-select"
	case PhaseWifiPassword:
		return "wifi-password"
	case PhaseNameEntry:
		return "name-entry"
	case PhaseRoleSelect:
		return "role-select"
	case PhaseHostWaiting:
		return "host-waiting"
	case PhaseClientSearching:
		return "client-searching"
	case PhaseLobby:
		return "lobby"
	case PhasePlaying:
		return "playing"
	case PhaseGameOver:
		return "game-over"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

type Role uint8

const (
	RoleNone Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	}
	return "none"
}

// Controls is the frame input view: level queries for paddle movement and
// edge queries for commands. The terminal front end implements this; tests
// script a fake.
type Controls interface {
	HeldUp() bool
	HeldDown() bool
	PressedServe() bool
	PressedPause() bool
	PressedQuit() bool
	PressedHost() bool
	PressedJoin() bool
}

// PeerLink is everything known about the other machine.
type PeerLink struct {
	Addr    *net.UDPAddr
	HasPeer bool

	LastStateSent     time.Time
	LastPaddleSent    time.Time
	LastStateReceived time.Time
	LastJoinBroadcast time.Time
}

const defaultRemoteName = "Opponent"

// Session owns the phase machine, the peer link and the match state.
type Session struct {
	cfg   config.Config
	log   zerolog.Logger
	clock clockwork.Clock
	tr    netwrk.Transport
	rng   *rand.Rand

	phase Phase
	role  Role
	peer  PeerLink
	match pong.MatchState

	localName  string
	remoteName string
	errText    string

	lastTick time.Time
}

// New builds an idle session at role select. The name is what Join and
// JoinAck packets will carry; the wire format caps what fits.
func New(cfg config.Config, name string, tr netwrk.Transport, clock clockwork.Clock, log zerolog.Logger) *Session {
	s := &Session{
		cfg:        cfg,
		log:        log.With().Str("session", uuid.New().String()[:8]).Logger(),
		clock:      clock,
		tr:         tr,
		rng:        rand.New(rand.NewSource(uint64(clock.Now().UnixNano()))),
		phase:      PhaseRoleSelect,
		role:       RoleNone,
		localName:  name,
		remoteName: defaultRemoteName,
		lastTick:   clock.Now(),
	}
	s.match.Reset()
	return s
}

// Snapshot is the read-only view handed to the renderer once per tick.
type Snapshot struct {
	Phase      Phase
	Role       Role
	Match      pong.MatchState
	LocalName  string
	RemoteName string
	ErrText    string
	LocalAddr  string
	HasPeer    bool
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:      s.phase,
		Role:       s.role,
		Match:      s.match,
		LocalName:  s.localName,
		RemoteName: s.remoteName,
		ErrText:    s.errText,
		HasPeer:    s.peer.HasPeer,
	}
	if addr := s.tr.LocalAddr(); addr != nil {
		snap.LocalAddr = addr.String()
	}
	return snap
}
