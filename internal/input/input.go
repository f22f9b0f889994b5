// Package input turns raw terminal bytes into the frame queries the
// session asks for. A reader goroutine pumps stdin into a latch; the tick
// loop samples it once per frame.
package input

import (
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lanpong/internal/session"
)

// holdWindow is how long a movement key counts as held after its last
// byte. Raw terminals only report presses and auto-repeats, never
// releases, so held state has to be inferred from repeat arrival.
const holdWindow = 200 * time.Millisecond

const (
	escNone = iota
	escSeen
	escBracket
)

type Keys struct {
	mu    sync.Mutex
	clock clockwork.Clock
	log   zerolog.Logger

	esc      int
	lastUp   time.Time
	lastDown time.Time

	serve, pause, quit, host, join bool
}

var _ session.Controls = (*Keys)(nil)

func New(clock clockwork.Clock, log zerolog.Logger) *Keys {
	return &Keys{clock: clock, log: log}
}

// Pump consumes r until it fails. Run it on its own goroutine with the
// terminal in raw mode; it stops when the terminal goes away.
func (k *Keys) Pump(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if err != nil {
			k.log.Debug().Err(err).Msg("input pump stopped")
			return
		}
		for _, c := range buf[:n] {
			k.press(c)
		}
	}
}

func (k *Keys) press(c byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch k.esc {
	case escSeen:
		if c == '[' {
			k.esc = escBracket
		} else {
			k.esc = escNone
		}
		return
	case escBracket:
		switch c {
		case 'A':
			k.lastUp = k.clock.Now()
		case 'B':
			k.lastDown = k.clock.Now()
		}
		k.esc = escNone
		return
	}

	switch c {
	case 0x1b:
		k.esc = escSeen
	case 'w', 'W':
		k.lastUp = k.clock.Now()
	case 's', 'S':
		k.lastDown = k.clock.Now()
	case ' ':
		k.serve = true
	case 'p', 'P':
		k.pause = true
	case 'q', 'Q', 0x03:
		k.quit = true
	case 'h', 'H':
		k.host = true
	case 'j', 'J':
		k.join = true
	}
}

func (k *Keys) HeldUp() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.clock.Now().Sub(k.lastUp) < holdWindow
}

func (k *Keys) HeldDown() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.clock.Now().Sub(k.lastDown) < holdWindow
}

// The command queries consume their latch: one press, one answer.

func (k *Keys) PressedServe() bool { return k.take(&k.serve) }
func (k *Keys) PressedPause() bool { return k.take(&k.pause) }
func (k *Keys) PressedQuit() bool  { return k.take(&k.quit) }
func (k *Keys) PressedHost() bool  { return k.take(&k.host) }
func (k *Keys) PressedJoin() bool  { return k.take(&k.join) }

func (k *Keys) take(flag *bool) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	v := *flag
	*flag = false
	return v
}
