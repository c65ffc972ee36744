// Package config holds the client settings used when contacting trackers.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"go.uber.org/zap/zapcore"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// Port is the listen port reported to trackers.
	Port uint16 `mapstructure:"port"`
	// PeerID fixes the 20 byte peer id. A random one is generated when empty.
	PeerID   string        `mapstructure:"peer_id"`
	NumWant  int32         `mapstructure:"num_want"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogLevel string        `mapstructure:"log_level"`
}

func Default() Config {
	return Config{
		Port:     6881,
		NumWant:  50,
		Timeout:  15 * time.Second,
		LogLevel: "info",
	}
}

// Load reads a JSON config file. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (Config, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("%w: port must be set", ErrInvalidConfig)
	}
	if c.NumWant < 0 {
		return fmt.Errorf("%w: num_want %d is negative", ErrInvalidConfig, c.NumWant)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout %s is negative", ErrInvalidConfig, c.Timeout)
	}
	if c.PeerID != "" {
		if _, err := metainfo.ParsePeerID(c.PeerID); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return lvl, nil
}

// ResolvePeerID returns the configured peer id or a new one read from r.
func (c Config) ResolvePeerID(r io.Reader) (metainfo.PeerID, error) {
	if c.PeerID != "" {
		return metainfo.ParsePeerID(c.PeerID)
	}
	return metainfo.GeneratePeerID(r)
}
