package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"lanpong/internal/netwrk"
)

// Config carries everything tunable. No config file is fine; every field
// defaults to the wire protocol's fixed timings and the shared port.
type Config struct {
	Port      int    `yaml:"port"`
	Broadcast string `yaml:"broadcast"`
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`

	StateIntervalMs  int `yaml:"state_interval_ms"`
	PaddleIntervalMs int `yaml:"paddle_interval_ms"`
	JoinIntervalMs   int `yaml:"join_interval_ms"`
	PeerTimeoutMs    int `yaml:"peer_timeout_ms"`
}

func Default() Config {
	return Config{
		Port:             netwrk.DefaultPort,
		LogLevel:         "info",
		LogFile:          "lanpong.log",
		StateIntervalMs:  32,
		PaddleIntervalMs: 45,
		JoinIntervalMs:   800,
		PeerTimeoutMs:    4000,
	}
}

// Load reads the file at path, or lanpong.yaml when path is empty. A missing
// file just means defaults. LANPONG_* environment variables (including any
// loaded from a .env file) override both.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "lanpong.yaml"
	}
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Default(), fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	godotenv.Load()
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LANPONG_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("LANPONG_BROADCAST"); v != "" {
		cfg.Broadcast = v
	}
	if v := os.Getenv("LANPONG_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("LANPONG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LANPONG_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// BroadcastIP parses the configured discovery target. Empty or unparsable
// values mean the limited broadcast address; a subnet-directed address like
// 192.168.1.255 helps on hosts where 255.255.255.255 picks the wrong
// interface.
func (c Config) BroadcastIP() net.IP {
	if ip := net.ParseIP(c.Broadcast); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return net.IPv4bcast
}

func (c Config) StateInterval() time.Duration {
	return time.Duration(c.StateIntervalMs) * time.Millisecond
}

func (c Config) PaddleInterval() time.Duration {
	return time.Duration(c.PaddleIntervalMs) * time.Millisecond
}

func (c Config) JoinInterval() time.Duration {
	return time.Duration(c.JoinIntervalMs) * time.Millisecond
}

func (c Config) PeerTimeout() time.Duration {
	return time.Duration(c.PeerTimeoutMs) * time.Millisecond
}
