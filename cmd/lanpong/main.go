package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"lanpong/internal/ansii"
	"lanpong/internal/config"
	"lanpong/internal/input"
	"lanpong/internal/netwrk"
	"lanpong/internal/protocol"
	"lanpong/internal/renderer"
	"lanpong/internal/session"
)

const frameDelay = 16 * time.Millisecond

func main() {
	configPath := flag.String("config", "", "path to lanpong.yaml")
	nameFlag := flag.String("name", "", "player name, skips the prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
	}

	log, closeLog, err := openLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	name := strings.TrimSpace(*nameFlag)
	if name == "" {
		name = strings.TrimSpace(cfg.Name)
	}
	if name == "" {
		name = promptName()
	}
	if len(name) > protocol.MaxName {
		name = name[:protocol.MaxName]
	}

	clock := clockwork.NewRealClock()
	tr := netwrk.NewUDP(cfg.Port, cfg.BroadcastIP(), log)
	sess := session.New(cfg, name, tr, clock, log)
	keys := input.New(clock, log)
	screen := renderer.New(os.Stdout)

	prev, err := ansii.MakeTermRaw()
	if err != nil {
		log.Error().Err(err).Msg("raw mode failed")
		fmt.Fprintln(os.Stderr, "lanpong needs an interactive terminal:", err)
		os.Exit(1)
	}
	defer func() {
		ansii.RestoreTerm(prev)
		os.Stdout.WriteString(string(ansii.Screen.ClearScreen))
		os.Stdout.WriteString(string(ansii.Screen.ShowCursor))
		os.Stdout.WriteString(string(ansii.Screen.PlaceCursor(1, 1)))
	}()

	go keys.Pump(os.Stdin)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	log.Info().Str("name", name).Int("port", cfg.Port).Msg("lanpong starting")

	ticker := time.NewTicker(frameDelay)
	defer ticker.Stop()

	for {
		select {
		case <-sigs:
			log.Info().Msg("caught signal, shutting down")
			tr.Close()
			return
		case <-ticker.C:
			sess.Tick(keys)
			snap := sess.Snapshot()
			screen.Draw(snap)
			// Quitting from the menu quits the program; everywhere
			// else the session consumes Q first.
			if snap.Phase == session.PhaseRoleSelect && keys.PressedQuit() {
				log.Info().Msg("quit from the menu")
				tr.Close()
				return
			}
		}
	}
}

// promptName runs before raw mode, so plain line input works.
func promptName() string {
	for {
		fmt.Printf("Enter your name (%d letters max): ", protocol.MaxName)
		buf := make([]byte, 64)
		n, err := os.Stdin.Read(buf)
		if err != nil {
			fmt.Fprintln(os.Stderr, "reading name:", err)
			os.Exit(1)
		}
		if name := strings.TrimSpace(string(buf[:n])); name != "" {
			return name
		}
	}
}

// openLogger writes structured logs to the configured file. Stdout is the
// game screen, so it is never an option.
func openLogger(cfg config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("opening log file: %w", err)
	}
	log := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return log, func() { f.Close() }, nil
}
