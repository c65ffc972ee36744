package magnet

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
)

var ErrInvalidLink = errors.New("invalid magnet link")

// Link represents a parsed magnet link with its components
type Link struct {
	InfoHash   metainfo.InfoHash
	Name       string
	Trackers   []string
	ExactTopic string
}

// Parse parses a magnet URI and returns a Link object containing the extracted information.
// The info hash may be 40 hex characters or 32 base32 characters.
func Parse(uri string) (*Link, error) {
	if !strings.HasPrefix(uri, "magnet:?") {
		return nil, fmt.Errorf("%w: missing magnet:? prefix", ErrInvalidLink)
	}

	values, err := url.ParseQuery(uri[len("magnet:?"):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	xt := values.Get("xt")
	if !strings.HasPrefix(xt, "urn:btih:") {
		return nil, fmt.Errorf("%w: invalid or missing urn:btih prefix in xt parameter", ErrInvalidLink)
	}

	hash, err := parseInfoHash(strings.TrimPrefix(xt, "urn:btih:"))
	if err != nil {
		return nil, err
	}

	return &Link{
		ExactTopic: xt,
		InfoHash:   hash,
		Name:       values.Get("dn"),
		Trackers:   values["tr"],
	}, nil
}

func parseInfoHash(s string) (metainfo.InfoHash, error) {
	switch len(s) {
	case 40:
		return metainfo.InfoHashFromHex(s)
	case 32:
		b, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
		if err != nil {
			return metainfo.InfoHash{}, fmt.Errorf("%w: %v", metainfo.ErrFormat, err)
		}
		return metainfo.InfoHashFromBytes(b)
	default:
		return metainfo.InfoHash{}, fmt.Errorf("%w: info hash has %d characters", metainfo.ErrFormat, len(s))
	}
}

// TrackerURLs parses every tr parameter. An invalid tracker fails the whole link,
// the same way an announce-list does.
func (l *Link) TrackerURLs() ([]*url.URL, error) {
	if len(l.Trackers) == 0 {
		return nil, fmt.Errorf("%w: no trackers found in magnet link", ErrInvalidLink)
	}
	tiers, err := metainfo.AnnounceList{l.Trackers}.Tiers()
	if err != nil {
		return nil, err
	}
	return tiers[0], nil
}
