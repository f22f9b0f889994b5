// Package protocol frames the datagrams two peers trade during a match.
// Every datagram is exactly one packet: a type byte followed by a fixed
// little-endian layout. There is no length prefix and no fragmentation;
// a datagram either matches a known layout exactly or it is dropped.
package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
)

type Kind byte

const (
	KindJoin    Kind = 1
	KindJoinAck Kind = 2
	KindState   Kind = 3
	KindPaddle  Kind = 4
	KindStart   Kind = 5
)

// MaxDatagram is the inbound safety ceiling. Real packets are far smaller,
// so anything bigger is noise and never reaches the parser arms.
const MaxDatagram = 128

const (
	nameLen = 16

	// MaxName is the longest name that survives the wire. The field is
	// 16 bytes with the last always a terminator.
	MaxName = nameLen - 1

	joinSize   = 1 + nameLen
	stateSize  = 1 + 1 + 1 + 1 + 4 + 6*4
	paddleSize = 1 + 4
	startSize  = 1 + 4
)

// Flags is the packed match-status bitfield carried by State packets.
type Flags byte

const (
	FlagMatchActive Flags = 1 << iota
	FlagWaitingServe
	FlagGameOver
	FlagPaused
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Msg is the decoded form of a datagram. Concrete types are Join, JoinAck,
// State, Paddle and Start; receivers dispatch with a type switch.
type Msg interface {
	Kind() Kind
	Encode() []byte
}

// Join is broadcast by a searching client. The name rides along so the host
// can greet its opponent by name before any match state exists.
type Join struct {
	Name string
}

// JoinAck is the host's unicast reply to the first Join it accepts.
type JoinAck struct {
	Name string
}

// Start announces a new match and carries the shared RNG seed.
type Start struct {
	Seed uint32
}

// Paddle carries the client paddle's vertical center, client to host only.
type Paddle struct {
	Y float32
}

// State is the host's full-match snapshot. The client overwrites its local
// copy wholesale with every one of these it receives.
type State struct {
	Flags         Flags
	HostScore     uint8
	ClientScore   uint8
	FrameID       uint32
	BallX         float32
	BallY         float32
	BallVX        float32
	BallVY        float32
	HostPaddleY   float32
	ClientPaddleY float32
}

func (*Join) Kind() Kind    { return KindJoin }
func (*JoinAck) Kind() Kind { return KindJoinAck }
func (*State) Kind() Kind   { return KindState }
func (*Paddle) Kind() Kind  { return KindPaddle }
func (*Start) Kind() Kind   { return KindStart }

func (j *Join) Encode() []byte    { return encodeName(KindJoin, j.Name) }
func (j *JoinAck) Encode() []byte { return encodeName(KindJoinAck, j.Name) }

func (s *Start) Encode() []byte {
	buf := make([]byte, startSize)
	buf[0] = byte(KindStart)
	binary.LittleEndian.PutUint32(buf[1:], s.Seed)
	return buf
}

func (p *Paddle) Encode() []byte {
	buf := make([]byte, paddleSize)
	buf[0] = byte(KindPaddle)
	putFloat(buf[1:], p.Y)
	return buf
}

func (s *State) Encode() []byte {
	buf := make([]byte, stateSize)
	buf[0] = byte(KindState)
	buf[1] = byte(s.Flags)
	buf[2] = s.HostScore
	buf[3] = s.ClientScore
	binary.LittleEndian.PutUint32(buf[4:], s.FrameID)
	putFloat(buf[8:], s.BallX)
	putFloat(buf[12:], s.BallY)
	putFloat(buf[16:], s.BallVX)
	putFloat(buf[20:], s.BallVY)
	putFloat(buf[24:], s.HostPaddleY)
	putFloat(buf[28:], s.ClientPaddleY)
	return buf
}

// Decode parses one inbound datagram. The bool is false for anything that is
// not an exact known layout: empty or oversized buffers, unknown type tags,
// length mismatches. A bad datagram is the network's problem, not a caller
// error, so there is nothing to return but "no".
func Decode(buf []byte) (Msg, bool) {
	if len(buf) == 0 || len(buf) > MaxDatagram {
		return nil, false
	}
	switch Kind(buf[0]) {
	case KindJoin:
		if len(buf) != joinSize {
			return nil, false
		}
		return &Join{Name: decodeName(buf[1:])}, true
	case KindJoinAck:
		if len(buf) != joinSize {
			return nil, false
		}
		return &JoinAck{Name: decodeName(buf[1:])}, true
	case KindState:
		if len(buf) != stateSize {
			return nil, false
		}
		return &State{
			Flags:         Flags(buf[1]),
			HostScore:     buf[2],
			ClientScore:   buf[3],
			FrameID:       binary.LittleEndian.Uint32(buf[4:]),
			BallX:         getFloat(buf[8:]),
			BallY:         getFloat(buf[12:]),
			BallVX:        getFloat(buf[16:]),
			BallVY:        getFloat(buf[20:]),
			HostPaddleY:   getFloat(buf[24:]),
			ClientPaddleY: getFloat(buf[28:]),
		}, true
	case KindPaddle:
		if len(buf) != paddleSize {
			return nil, false
		}
		return &Paddle{Y: getFloat(buf[1:])}, true
	case KindStart:
		if len(buf) != startSize {
			return nil, false
		}
		return &Start{Seed: binary.LittleEndian.Uint32(buf[1:])}, true
	}
	return nil, false
}

func putFloat(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func getFloat(b []byte) float32    { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

// Names travel as a fixed 16-byte field, zero padded. The final byte is
// always a terminator, so at most 15 bytes of name survive the trip.
func encodeName(k Kind, name string) []byte {
	buf := make([]byte, joinSize)
	buf[0] = byte(k)
	copy(buf[1:nameLen], name)
	return buf
}

func decodeName(b []byte) string {
	b = b[:nameLen-1]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
