package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// InfoHash is the SHA-1 digest of the bencoded info dictionary.
type InfoHash [sha1.Size]byte

func InfoHashFromHex(s string) (InfoHash, error) {
	var h InfoHash
	if len(s) != 2*len(h) {
		return h, fmt.Errorf("%w: info hash must be %d hex characters, got %d", ErrFormat, 2*len(h), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return h, nil
}

func InfoHashFromBytes(b []byte) (InfoHash, error) {
	var h InfoHash
	if len(b) != len(h) {
		return h, fmt.Errorf("%w: info hash must be %d bytes, got %d", ErrFormat, len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h InfoHash) Bytes() []byte {
	return h[:]
}

func (h InfoHash) HexString() string {
	return hex.EncodeToString(h[:])
}

func (h InfoHash) String() string {
	return h.HexString()
}
