package ansii

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

type ANSI string

const (
	reset       ANSI = "\033[0m"
	plain       ANSI = ""
	bold        ANSI = "\033[1m"
	underline   ANSI = "\033[4m"
	black       ANSI = "\033[30m"
	red         ANSI = "\033[31m"
	green       ANSI = "\033[32m"
	yellow      ANSI = "\033[33m"
	blue        ANSI = "\033[34m"
	purple      ANSI = "\033[35m"
	cyan        ANSI = "\033[36m"
	white       ANSI = "\033[37m"
	clearScreen ANSI = "\033[2J"
	hideCursor  ANSI = "\033[?25l"
	showCursor  ANSI = "\033[?25h"
)

type style struct {
	Reset     ANSI
	Plain     ANSI
	Bold      ANSI
	Underline ANSI
}

type color struct {
	Black  ANSI
	Red    ANSI
	Green  ANSI
	Yellow ANSI
	Blue   ANSI
	Purple ANSI
	Cyan   ANSI
	White  ANSI
}

type screen struct {
	ClearScreen ANSI
	HideCursor  ANSI
	ShowCursor  ANSI
}

type ascii struct {
	Block string
	Shade string
}

var (
	Styles = style{Bold: bold, Underline: underline, Reset: reset, Plain: plain}
	Colors = color{Black: black, Red: red, Green: green, Yellow: yellow, Blue: blue, Purple: purple, Cyan: cyan, White: white}
	Screen = screen{ClearScreen: clearScreen, HideCursor: hideCursor, ShowCursor: showCursor}
	Blocks = ascii{Block: "█", Shade: "░"}
)

func GetTermSize() (width int, height int, err error) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0, 0, fmt.Errorf("terminal size: %w", err)
	}
	return w, h, nil
}

func MakeTermRaw() (*term.State, error) {
	return term.MakeRaw(int(os.Stdin.Fd()))
}

func RestoreTerm(prev *term.State) error {
	return term.Restore(int(os.Stdin.Fd()), prev)
}

// PlaceCursor moves to a 1-based cell, column x row y.
func (s screen) PlaceCursor(x, y int) ANSI {
	return ANSI(fmt.Sprintf("\033[%d;%dH", y, x))
}

// DrawBox draws a one-cell border with its top left at x, y.
func DrawBox(b *strings.Builder, x, y, width, height int, style ANSI) {
	b.WriteString(string(style))
	for row := range height {
		if row == 0 || row == height-1 {
			for col := range width {
				drawCell(b, x+col, y+row)
			}
		} else {
			drawCell(b, x, y+row)
			drawCell(b, x+width-1, y+row)
		}
	}
	b.WriteString(string(Styles.Reset))
}

// FillBox floods the whole rectangle.
func FillBox(b *strings.Builder, x, y, width, height int, style ANSI) {
	b.WriteString(string(style))
	for row := range height {
		for col := range width {
			drawCell(b, x+col, y+row)
		}
	}
	b.WriteString(string(Styles.Reset))
}

// DrawText writes a string starting at x, y in the given style.
func DrawText(b *strings.Builder, x, y int, style ANSI, text string) {
	b.WriteString(string(style))
	b.WriteString(string(Screen.PlaceCursor(x, y)))
	b.WriteString(text)
	b.WriteString(string(Styles.Reset))
}

func drawCell(b *strings.Builder, x, y int) {
	if x < 1 || y < 1 {
		return
	}
	b.WriteString(string(Screen.PlaceCursor(x, y)))
	b.WriteString(Blocks.Block)
}
