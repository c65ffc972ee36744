package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"go.uber.org/zap/zapcore"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Config
		wantErr bool
	}{
		{
			name:  "empty object keeps defaults",
			input: `{}`,
			want:  Default(),
		},
		{
			name:  "all fields",
			input: `{"port": 51413, "peer_id": "-MY0001-abcdefghijkl", "num_want": 80, "timeout": "3s", "log_level": "debug"}`,
			want: Config{
				Port:     51413,
				PeerID:   "-MY0001-abcdefghijkl",
				NumWant:  80,
				Timeout:  3 * time.Second,
				LogLevel: "debug",
			},
		},
		{
			name:    "unknown key",
			input:   `{"prot": 1}`,
			wantErr: true,
		},
		{
			name:    "bad duration",
			input:   `{"timeout": "soon"}`,
			wantErr: true,
		},
		{
			name:    "short peer id",
			input:   `{"peer_id": "abc"}`,
			wantErr: true,
		},
		{
			name:    "negative num_want",
			input:   `{"num_want": -5}`,
			wantErr: true,
		},
		{
			name:    "zero port",
			input:   `{"port": 0}`,
			wantErr: true,
		},
		{
			name:    "unknown log level",
			input:   `{"log_level": "loud"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `port = 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("Parse() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	if err := os.WriteFile(path, []byte(`{"port": 7000, "log_level": "warn"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7000 || cfg.Timeout != 15*time.Second {
		t.Errorf("Load() = %+v", cfg)
	}
	lvl, err := cfg.Level()
	if err != nil || lvl != zapcore.WarnLevel {
		t.Errorf("Level() = %v, %v, want warn", lvl, err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestResolvePeerID(t *testing.T) {
	fixed := Config{PeerID: "-MY0001-abcdefghijkl"}
	id, err := fixed.ResolvePeerID(nil)
	if err != nil {
		t.Fatalf("ResolvePeerID() error = %v", err)
	}
	if id.String() != fixed.PeerID {
		t.Errorf("ResolvePeerID() = %q, want %q", id.String(), fixed.PeerID)
	}

	id, err = Default().ResolvePeerID(bytes.NewReader(bytes.Repeat([]byte{'z'}, 12)))
	if err != nil {
		t.Fatalf("ResolvePeerID() error = %v", err)
	}
	if want := metainfo.ClientTag + "zzzzzzzzzzzz"; id.String() != want {
		t.Errorf("ResolvePeerID() = %q, want %q", id.String(), want)
	}
}
