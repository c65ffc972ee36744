package metainfo

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"

	"github.com/go-viper/mapstructure/v2"
	bencode "github.com/jackpal/bencode-go"
)

type Torrent struct {
	Info         Info         `mapstructure:"info"`
	Announce     string       `mapstructure:"announce"`
	AnnounceList AnnounceList `mapstructure:"announce-list"`
	Comment      string       `mapstructure:"comment"`
	CreatedBy    string       `mapstructure:"created by"`
	CreationDate int64        `mapstructure:"creation date"`
	Encoding     string       `mapstructure:"encoding"`
}

func Load(path string) (*Torrent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Torrent, error) {
	decoded, err := bencode.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTorrent, err)
	}

	dict, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level value is %T, not a dictionary", ErrInvalidTorrent, decoded)
	}
	if _, ok := dict["info"].(map[string]any); !ok {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrInvalidTorrent)
	}

	t := &Torrent{}
	if err := DecodeValue(dict, t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTorrent, err)
	}
	if err := t.Info.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTorrent, err)
	}
	return t, nil
}

// DecodeValue maps a value produced by bencode.Decode onto a struct tagged
// with mapstructure keys. Bencode integers arrive as int64 and byte strings as string.
func DecodeValue(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func (t *Torrent) InfoHash() (InfoHash, error) {
	return t.Info.Hash()
}

// Trackers returns the announce URL followed by every announce-list URL, without duplicates.
func (t *Torrent) Trackers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(t.Announce)
	for _, tier := range t.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	return out
}

// AnnounceAddrs resolves the host of the primary announce URL.
func (t *Torrent) AnnounceAddrs(ctx context.Context, r Resolver) ([]netip.AddrPort, error) {
	if t.Announce == "" {
		return nil, fmt.Errorf("%w: torrent has no announce url", ErrInvalidURL)
	}
	u, err := ParseTrackerURL(t.Announce)
	if err != nil {
		return nil, err
	}
	return ResolveURL(ctx, r, u)
}
