// Package renderer draws one session snapshot per frame into an ANSI
// terminal. Each frame is composed in a strings.Builder and written in a
// single call, which keeps flicker down even over slow links.
package renderer

import (
	"fmt"
	"io"
	"strings"

	"lanpong/internal/ansii"
	"lanpong/internal/pong"
	"lanpong/internal/session"
)

const (
	minWidth  = 40
	minHeight = 12

	fallbackWidth  = 80
	fallbackHeight = 24
)

type Renderer struct {
	out   io.Writer
	frame int
}

func New(out io.Writer) *Renderer {
	return &Renderer{out: out}
}

// Draw renders one frame. Terminal size is sampled every frame, so a
// resize takes effect on the next tick.
func (r *Renderer) Draw(snap session.Snapshot) {
	r.frame++

	w, h, err := ansii.GetTermSize()
	if err != nil {
		w, h = fallbackWidth, fallbackHeight
	}

	b := &strings.Builder{}
	b.WriteString(string(ansii.Screen.ClearScreen))
	b.WriteString(string(ansii.Screen.HideCursor))

	if w < minWidth || h < minHeight {
		ansii.DrawText(b, 1, 1, ansii.Styles.Plain, "Terminal too small.")
		io.WriteString(r.out, b.String())
		return
	}

	switch snap.Phase {
	case session.PhaseHostWaiting:
		r.notice(b, w, h,
			"Hosting on "+snap.LocalAddr,
			"Waiting for a challenger"+dots(r.frame),
			"",
			"Q to cancel")
	case session.PhaseClientSearching:
		r.notice(b, w, h,
			"Searching for a host"+dots(r.frame),
			"",
			"Q to cancel")
	case session.PhaseLobby:
		serveHint := "Waiting for " + snap.RemoteName + " to serve"
		if snap.Role == session.RoleHost {
			serveHint = "Space to serve"
		}
		r.notice(b, w, h, "Matched with "+snap.RemoteName, serveHint, "", "Q to leave")
	case session.PhasePlaying, session.PhaseGameOver:
		r.drawMatch(b, w, h, snap)
	case session.PhaseError:
		r.notice(b, w, h, snap.ErrText, "", "Q to go back")
	default:
		r.drawMenu(b, w, h, snap)
	}

	io.WriteString(r.out, b.String())
}

func (r *Renderer) drawMenu(b *strings.Builder, w, h int, snap session.Snapshot) {
	ansii.DrawBox(b, 1, 1, w, h, ansii.Colors.White)
	mid := h / 2
	r.center(b, w, mid-3, "L A N   P O N G")
	r.center(b, w, mid-1, "Playing as "+snap.LocalName)
	r.center(b, w, mid+1, "H  host a match")
	r.center(b, w, mid+2, "J  join a match")
	r.center(b, w, mid+3, "Q  quit")
}

func (r *Renderer) drawMatch(b *strings.Builder, w, h int, snap session.Snapshot) {
	// Top row carries the score, bottom row the key hints.
	fieldY := 2
	fieldH := h - 2
	ansii.DrawBox(b, 1, fieldY, w, fieldH, ansii.Colors.White)

	inX, inY := 2, fieldY+1
	inW, inH := w-2, fieldH-2
	sx := float32(inW) / pong.FieldWidth
	sy := float32(inH) / pong.FieldHeight
	cellX := func(fx float32) int { return inX + int(fx*sx) }
	cellY := func(fy float32) int { return inY + int(fy*sy) }

	for y := inY; y < inY+inH; y += 2 {
		ansii.DrawText(b, inX+inW/2, y, ansii.Styles.Plain, ansii.Blocks.Shade)
	}

	ph := max(1, int(pong.PaddleHeight*sy))
	ansii.FillBox(b, cellX(pong.HostPaddleX), cellY(snap.Match.HostPaddleY-pong.PaddleHalf), 1, ph, ansii.Colors.Cyan)
	ansii.FillBox(b, cellX(pong.ClientPaddleX), cellY(snap.Match.ClientPaddleY-pong.PaddleHalf), 1, ph, ansii.Colors.Purple)

	if !snap.Match.GameOver {
		// Two cells wide reads roughly square in most fonts.
		ansii.FillBox(b, cellX(snap.Match.Ball.Pos.X), cellY(snap.Match.Ball.Pos.Y), 2, 1, ansii.Styles.Bold)
	}

	r.drawScore(b, w, snap)

	mid := fieldY + fieldH/2
	switch {
	case snap.Match.GameOver:
		r.center(b, w, mid, winnerLine(snap))
		if snap.Role == session.RoleHost {
			r.center(b, w, mid+2, "Space for a rematch, Q for the menu")
		} else {
			r.center(b, w, mid+2, "Waiting for "+snap.RemoteName+", Q for the menu")
		}
	case snap.Match.Paused:
		r.center(b, w, mid, "Paused")
	case snap.Match.WaitingServe:
		r.center(b, w, mid, "Get ready"+dots(r.frame))
	}

	hints := "W/S move   Q quit"
	if snap.Role == session.RoleHost {
		hints = "W/S move   P pause   Q quit"
	}
	ansii.DrawText(b, 2, h, ansii.Styles.Plain, hints)
}

// drawScore keeps the host on the left no matter which side we are.
func (r *Renderer) drawScore(b *strings.Builder, w int, snap session.Snapshot) {
	left, right := snap.LocalName, snap.RemoteName
	if snap.Role == session.RoleClient {
		left, right = snap.RemoteName, snap.LocalName
	}
	line := fmt.Sprintf("%s  %d : %d  %s", left, snap.Match.HostScore, snap.Match.ClientScore, right)
	ansii.DrawText(b, max(1, (w-len(line))/2+1), 1, ansii.Styles.Bold, line)
}

func (r *Renderer) notice(b *strings.Builder, w, h int, lines ...string) {
	ansii.DrawBox(b, 1, 1, w, h, ansii.Colors.White)
	y := h/2 - len(lines)/2
	for i, line := range lines {
		r.center(b, w, y+i, line)
	}
}

func (r *Renderer) center(b *strings.Builder, w, y int, text string) {
	if text == "" {
		return
	}
	ansii.DrawText(b, max(1, (w-len(text))/2+1), y, ansii.Styles.Bold, text)
}

func winnerLine(snap session.Snapshot) string {
	hostWon := snap.Match.HostScore > snap.Match.ClientScore
	if (snap.Role == session.RoleHost) == hostWon {
		return "You win!"
	}
	return snap.RemoteName + " wins!"
}

func dots(frame int) string {
	return strings.Repeat(".", frame/20%4)
}
