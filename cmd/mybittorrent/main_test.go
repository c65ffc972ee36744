package main

import (
	"reflect"
	"testing"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/tracker"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    commandArgs
		wantErr bool
	}{
		{
			name: "positional only",
			args: []string{"sample.torrent"},
			want: commandArgs{positional: []string{"sample.torrent"}},
		},
		{
			name: "flags around positional",
			args: []string{"-c", "client.json", "sample.torrent", "-e", "started"},
			want: commandArgs{
				configPath: "client.json",
				event:      tracker.Started,
				positional: []string{"sample.torrent"},
			},
		},
		{
			name:    "missing flag value",
			args:    []string{"sample.torrent", "-c"},
			wantErr: true,
		},
		{
			name:    "unknown event",
			args:    []string{"-e", "paused", "sample.torrent"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
