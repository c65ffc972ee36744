package tracker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ConnectionTTL is how long a connection id stays valid after the connect reply.
const ConnectionTTL = time.Minute

const maxDatagramSize = 65507

// UDPTracker talks to BEP 15 trackers. Each Announce or Scrape opens its own
// socket, so a UDPTracker can be shared between goroutines.
type UDPTracker struct {
	url  *url.URL
	opts options
}

func NewUDPTracker(u *url.URL, opts ...Option) *UDPTracker {
	return &UDPTracker{url: u, opts: newOptions(opts)}
}

func (t *UDPTracker) URL() string { return t.url.String() }

// Dial resolves the tracker host and opens a session on the first address.
func (t *UDPTracker) Dial(ctx context.Context) (*UDPSession, error) {
	addrs, err := metainfo.ResolveURL(ctx, t.opts.resolver, t.url)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addrs[0].String())
	if err != nil {
		return nil, fmt.Errorf("%w: error connecting to UDP tracker: %w", ErrTransport, err)
	}
	t.opts.log.Debug("Opened UDP tracker socket",
		zap.String("tracker", t.url.String()),
		zap.Stringer("remote", conn.RemoteAddr()))
	return newUDPSession(conn, t.opts), nil
}

func (t *UDPTracker) Announce(ctx context.Context, req AnnounceRequest) (resp *AnnounceResponse, err error) {
	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()

	s, err := t.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
		if err != nil {
			resp = nil
		}
	}()

	return s.Announce(ctx, req)
}

func (t *UDPTracker) Scrape(ctx context.Context, hashes []metainfo.InfoHash) (stats []ScrapeStats, err error) {
	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()

	s, err := t.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
		if err != nil {
			stats = nil
		}
	}()

	return s.Scrape(ctx, hashes)
}

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingConnect
	StateConnected
	StateAwaitingAnnounce
	StateAnnounced
	StateAwaitingScrape
	StateScraped
)

var sessionStateNames = [...]string{
	"idle",
	"awaiting connect",
	"connected",
	"awaiting announce",
	"announced",
	"awaiting scrape",
	"scraped",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(sessionStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return sessionStateNames[s]
}

// UDPSession runs connect, announce and scrape exchanges over one socket.
// Only one exchange may be in flight at a time.
type UDPSession struct {
	conn         net.Conn
	opts         options
	state        SessionState
	connectionID uint64
	connectedAt  time.Time
	buf          []byte
}

// NewUDPSession wraps a connected datagram socket.
func NewUDPSession(conn net.Conn, opts ...Option) *UDPSession {
	return newUDPSession(conn, newOptions(opts))
}

func newUDPSession(conn net.Conn, opts options) *UDPSession {
	return &UDPSession{
		conn: conn,
		opts: opts,
		buf:  make([]byte, maxDatagramSize),
	}
}

func (s *UDPSession) State() SessionState { return s.state }

// ConnectionID returns the current connection id and whether it is still valid.
func (s *UDPSession) ConnectionID() (uint64, bool) {
	if s.connectedAt.IsZero() || s.opts.now().Sub(s.connectedAt) >= ConnectionTTL {
		return 0, false
	}
	return s.connectionID, true
}

func (s *UDPSession) Close() error {
	return s.conn.Close()
}

// Connect obtains a fresh connection id.
func (s *UDPSession) Connect(ctx context.Context) error {
	txID, err := randUint32(s.opts.rand)
	if err != nil {
		return err
	}
	pkt, err := ConnectRequest{TransactionID: txID}.MarshalBinary()
	if err != nil {
		return err
	}

	prev := s.state
	s.state = StateAwaitingConnect
	var reply ConnectResponse
	err = s.roundTrip(ctx, pkt, func(b []byte) error {
		var err error
		reply, err = ParseConnectResponse(b, txID)
		return err
	})
	if err != nil {
		s.state = prev
		return err
	}

	s.connectionID = reply.ConnectionID
	s.connectedAt = s.opts.now()
	s.state = StateConnected
	s.opts.log.Debug("Connected to UDP tracker", zap.Uint64("connection_id", reply.ConnectionID))
	return nil
}

// Announce connects first when there is no valid connection id.
func (s *UDPSession) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	connID, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	txID, err := randUint32(s.opts.rand)
	if err != nil {
		return nil, err
	}

	numWant := req.NumWant
	if numWant == 0 {
		numWant = -1
	}
	packet := UDPAnnounceRequest{
		ConnectionID:  connID,
		TransactionID: txID,
		InfoHash:      req.InfoHash,
		PeerID:        req.PeerID,
		Downloaded:    req.Downloaded,
		Left:          req.Left,
		Uploaded:      req.Uploaded,
		Event:         req.Event,
		Key:           req.Key,
		NumWant:       numWant,
		Port:          req.Port,
	}
	if ip4 := req.IP.To4(); ip4 != nil {
		copy(packet.IP[:], ip4)
	} else if req.IP != nil {
		s.opts.log.Debug("Dropping announce ip, UDP announces carry IPv4 only",
			zap.Stringer("ip", req.IP))
	}
	pkt, err := packet.MarshalBinary()
	if err != nil {
		return nil, err
	}

	s.state = StateAwaitingAnnounce
	var reply UDPAnnounceResponse
	err = s.roundTrip(ctx, pkt, func(b []byte) error {
		var err error
		reply, err = ParseAnnounceResponse(b, txID)
		return err
	})
	if err != nil {
		s.state = StateConnected
		return nil, err
	}

	s.state = StateAnnounced
	s.opts.log.Debug("Announce succeeded",
		zap.Stringer("info_hash", req.InfoHash),
		zap.Uint32("interval", reply.Interval),
		zap.Int("peers", len(reply.Peers)))
	return &AnnounceResponse{
		Interval: time.Duration(reply.Interval) * time.Second,
		Leechers: int32(reply.Leechers),
		Seeders:  int32(reply.Seeders),
		Peers:    reply.Peers,
	}, nil
}

// Scrape returns stats for each hash, in the order given.
func (s *UDPSession) Scrape(ctx context.Context, hashes []metainfo.InfoHash) ([]ScrapeStats, error) {
	connID, err := s.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	txID, err := randUint32(s.opts.rand)
	if err != nil {
		return nil, err
	}
	pkt, err := ScrapeRequest{ConnectionID: connID, TransactionID: txID, InfoHashes: hashes}.MarshalBinary()
	if err != nil {
		return nil, err
	}

	s.state = StateAwaitingScrape
	var reply ScrapeResponse
	err = s.roundTrip(ctx, pkt, func(b []byte) error {
		var err error
		if reply, err = ParseScrapeResponse(b, txID); err != nil {
			return err
		}
		if len(reply.Stats) != len(hashes) {
			return fmt.Errorf("%w: %d scrape entries for %d hashes", ErrMalformedResponse, len(reply.Stats), len(hashes))
		}
		return nil
	})
	if err != nil {
		s.state = StateConnected
		return nil, err
	}

	s.state = StateScraped
	return reply.Stats, nil
}

func (s *UDPSession) ensureConnected(ctx context.Context) (uint64, error) {
	if id, ok := s.ConnectionID(); ok {
		return id, nil
	}
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	return s.connectionID, nil
}

// roundTrip sends pkt and reads datagrams until accept takes one. Datagrams
// accept rejects are dropped, except for errors reported by the tracker.
func (s *UDPSession) roundTrip(ctx context.Context, pkt []byte, accept func([]byte) error) error {
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := s.conn.Write(pkt); err != nil {
		return s.ioError(ctx, "error sending request", err)
	}

	for {
		n, err := s.conn.Read(s.buf)
		if err != nil {
			return s.ioError(ctx, "error receiving response", err)
		}

		err = accept(s.buf[:n])
		var trackerErr Error
		switch {
		case err == nil:
			return nil
		case errors.As(err, &trackerErr):
			return err
		default:
			s.opts.log.Debug("Discarding datagram",
				zap.Stringer("state", s.state),
				zap.Int("length", n),
				zap.Error(err))
		}
	}
}

func (s *UDPSession) ioError(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, msg, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, msg, err)
}
