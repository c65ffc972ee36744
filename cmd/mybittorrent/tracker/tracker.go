// Package tracker implements HTTP and UDP tracker clients.
package tracker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"go.uber.org/zap"
)

const (
	// DefaultNumWant is the number of peers asked from HTTP trackers.
	DefaultNumWant = 50
	DefaultTimeout = 15 * time.Second
)

// Tracker announces a transfer to a single tracker. Use New to pick the
// implementation matching the URL scheme.
type Tracker interface {
	URL() string
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)
}

// Scraper is implemented by trackers that report swarm statistics.
type Scraper interface {
	Scrape(ctx context.Context, hashes []metainfo.InfoHash) ([]ScrapeStats, error)
}

type AnnounceRequest struct {
	InfoHash   metainfo.InfoHash
	PeerID     metainfo.PeerID
	IP         net.IP // optional
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	NumWant    int32 // 0 means the transport default
	Key        uint32
}

type AnnounceResponse struct {
	Interval       time.Duration
	MinInterval    time.Duration
	Leechers       int32
	Seeders        int32
	TrackerID      string
	WarningMessage string
	Peers          []Peer
}

type ScrapeStats struct {
	Seeders   int32
	Completed int32
	Leechers  int32
}

type Peer struct {
	IP   net.IP
	Port uint16
	ID   string // only set by non-compact HTTP responses
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Event is the announce event. Values match the UDP tracker protocol.
type Event int32

const (
	None Event = iota
	Completed
	Started
	Stopped
)

var eventNames = [...]string{
	"",
	"completed",
	"started",
	"stopped",
}

// String returns the name of the event as sent to HTTP trackers.
func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return ""
	}
	return eventNames[e]
}

func ParseEvent(s string) (Event, error) {
	switch s {
	case "", "none", "empty":
		return None, nil
	case "completed":
		return Completed, nil
	case "started":
		return Started, nil
	case "stopped":
		return Stopped, nil
	}
	return None, fmt.Errorf("unknown announce event %q", s)
}

type options struct {
	log        *zap.Logger
	rand       io.Reader
	httpClient *http.Client
	resolver   metainfo.Resolver
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRand sets the source of transaction ids and keys.
func WithRand(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithResolver(r metainfo.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithTimeout bounds a whole announce or scrape exchange.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func newOptions(opts []Option) options {
	o := options{
		log:      zap.L(),
		rand:     rand.Reader,
		resolver: net.DefaultResolver,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// New returns an HTTPTracker for http and https URLs and a UDPTracker for udp URLs.
func New(rawURL string, opts ...Option) (Tracker, error) {
	u, err := metainfo.ParseTrackerURL(rawURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPTracker(u, opts...), nil
	case "udp":
		return NewUDPTracker(u, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func randUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
