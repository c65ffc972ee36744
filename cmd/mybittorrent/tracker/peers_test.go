package tracker

import (
	"errors"
	"net"
	"testing"
)

func TestParseCompactPeers(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty",
			input: []byte{},
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: []byte{185, 125, 190, 59, 0x1b, 0x1e},
			want:  []Peer{{IP: net.IPv4(185, 125, 190, 59), Port: 6942}},
		},
		{
			name:  "two peers keep order",
			input: []byte{10, 0, 0, 1, 0x1a, 0xe1, 192, 168, 1, 2, 0x00, 0x50},
			want: []Peer{
				{IP: net.IPv4(10, 0, 0, 1), Port: 6881},
				{IP: net.IPv4(192, 168, 1, 2), Port: 80},
			},
		},
		{
			name:    "partial record",
			input:   []byte{10, 0, 0, 1, 0x1a},
			wantErr: true,
		},
		{
			name:    "trailing byte",
			input:   []byte{10, 0, 0, 1, 0x1a, 0xe1, 7},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompactPeers(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("ParseCompactPeers() error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCompactPeers() error = %v", err)
			}
			assertPeers(t, got, tt.want)
		})
	}
}

func TestParseCompactPeersCopiesInput(t *testing.T) {
	input := []byte{1, 2, 3, 4, 0, 1}
	peers, err := ParseCompactPeers(input)
	if err != nil {
		t.Fatalf("ParseCompactPeers() error = %v", err)
	}
	input[0] = 99
	if !peers[0].IP.Equal(net.IPv4(1, 2, 3, 4)) {
		t.Errorf("peer ip changed with input buffer: %s", peers[0].IP)
	}
}

func TestParseCompactPeers6(t *testing.T) {
	record := append(net.ParseIP("2001:db8::1").To16(), 0x1a, 0xe1)

	peers, err := ParseCompactPeers6(record)
	if err != nil {
		t.Fatalf("ParseCompactPeers6() error = %v", err)
	}
	assertPeers(t, peers, []Peer{{IP: net.ParseIP("2001:db8::1"), Port: 6881}})

	if _, err := ParseCompactPeers6(record[:12]); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("ParseCompactPeers6(12 bytes) error = %v, want ErrMalformedResponse", err)
	}
}

func TestPeerString(t *testing.T) {
	tests := []struct {
		peer Peer
		want string
	}{
		{Peer{IP: net.IPv4(185, 125, 190, 59), Port: 6942}, "185.125.190.59:6942"},
		{Peer{IP: net.ParseIP("::1"), Port: 80}, "[::1]:80"},
	}
	for _, tt := range tests {
		if got := tt.peer.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func assertPeers(t *testing.T, got, want []Peer) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d peers, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].IP.Equal(want[i].IP) || got[i].Port != want[i].Port || got[i].ID != want[i].ID {
			t.Errorf("peer %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
