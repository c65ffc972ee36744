package metainfo

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// ClientTag prefixes every generated peer id.
const ClientTag = "-MY0001-"

// PeerID identifies this client to trackers and peers.
type PeerID [20]byte

// NewPeerID returns a peer id whose suffix comes from crypto/rand.
func NewPeerID() PeerID {
	id, err := GeneratePeerID(rand.Reader)
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return id
}

// GeneratePeerID builds a peer id from ClientTag followed by 12 bytes read from r.
func GeneratePeerID(r io.Reader) (PeerID, error) {
	var id PeerID
	n := copy(id[:], ClientTag)
	if _, err := io.ReadFull(r, id[n:]); err != nil {
		return PeerID{}, fmt.Errorf("failed to read peer id suffix: %w", err)
	}
	return id, nil
}

func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	if len(s) != len(id) {
		return id, fmt.Errorf("%w: peer id must be %d bytes long, got %d", ErrFormat, len(id), len(s))
	}
	copy(id[:], s)
	return id, nil
}

func (id PeerID) Bytes() []byte {
	return id[:]
}

func (id PeerID) HexString() string {
	return hex.EncodeToString(id[:])
}

// String returns the raw bytes of the id.
func (id PeerID) String() string {
	return string(id[:])
}
