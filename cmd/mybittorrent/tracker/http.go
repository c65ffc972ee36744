package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bencode "github.com/jackpal/bencode-go"
	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// HTTPTracker talks to trackers over HTTP(S) GET requests.
type HTTPTracker struct {
	url  *url.URL
	opts options
}

func NewHTTPTracker(u *url.URL, opts ...Option) *HTTPTracker {
	return &HTTPTracker{url: u, opts: newOptions(opts)}
}

func (t *HTTPTracker) URL() string { return t.url.String() }

type httpAnnounceResponse struct {
	FailureReason  string `mapstructure:"failure reason"`
	WarningMessage string `mapstructure:"warning message"`
	Interval       int64  `mapstructure:"interval"`
	MinInterval    int64  `mapstructure:"min interval"`
	TrackerID      string `mapstructure:"tracker id"`
	Complete       int64  `mapstructure:"complete"`
	Incomplete     int64  `mapstructure:"incomplete"`
	// Peers is a byte string in compact form or a list of dictionaries otherwise.
	Peers  any    `mapstructure:"peers"`
	Peers6 string `mapstructure:"peers6"`
}

type nonCompactPeer struct {
	IP     string `mapstructure:"ip"`
	Port   int64  `mapstructure:"port"`
	PeerID string `mapstructure:"peer id"`
}

type httpScrapeFile struct {
	Complete   int64 `mapstructure:"complete"`
	Downloaded int64 `mapstructure:"downloaded"`
	Incomplete int64 `mapstructure:"incomplete"`
}

type httpScrapeResponse struct {
	FailureReason string                    `mapstructure:"failure reason"`
	Files         map[string]httpScrapeFile `mapstructure:"files"`
}

func (t *HTTPTracker) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()

	reqURL := buildAnnounceURL(t.url, req)
	t.opts.log.Debug("Announcing to HTTP tracker",
		zap.String("tracker", t.url.String()),
		zap.Stringer("info_hash", req.InfoHash),
		zap.Stringer("event", req.Event))

	body, status, err := t.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	resp, err := decodeAnnounceResponse(body)
	if status != http.StatusOK {
		return nil, statusError(status, err)
	}
	if err != nil {
		return nil, err
	}
	if resp.WarningMessage != "" {
		t.opts.log.Warn("Tracker warning", zap.String("tracker", t.url.String()), zap.String("message", resp.WarningMessage))
	}
	t.opts.log.Debug("Announce succeeded",
		zap.String("tracker", t.url.String()),
		zap.Duration("interval", resp.Interval),
		zap.Int("peers", len(resp.Peers)))
	return resp, nil
}

// Scrape queries the BEP 48 scrape endpoint derived from the announce URL.
func (t *HTTPTracker) Scrape(ctx context.Context, hashes []metainfo.InfoHash) ([]ScrapeStats, error) {
	u, err := scrapeURL(t.url)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for _, h := range hashes {
		q.Add("info_hash", string(h[:]))
	}
	u.RawQuery = appendQuery(u.RawQuery, q)

	ctx, cancel := t.opts.withTimeout(ctx)
	defer cancel()

	body, status, err := t.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	stats, err := decodeScrapeResponse(body, hashes)
	if status != http.StatusOK {
		return nil, statusError(status, err)
	}
	return stats, err
}

// get returns the body and status code of any response the tracker sends.
func (t *HTTPTracker) get(ctx context.Context, rawURL string) (body []byte, status int, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := t.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: error contacting HTTP tracker: %w", ErrTransport, err)
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
		if err != nil {
			body = nil
		}
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: error reading response body: %w", ErrTransport, err)
	}
	return body, resp.StatusCode, nil
}

// statusError reports a non-200 response. A failure reason in the body wins
// over the status code.
func statusError(status int, decodeErr error) error {
	var trackerErr Error
	if errors.As(decodeErr, &trackerErr) {
		return decodeErr
	}
	return fmt.Errorf("%w: unexpected tracker response: %d %s", ErrTransport, status, http.StatusText(status))
}

// buildAnnounceURL appends the announce parameters to the tracker URL. The
// query the tracker URL already carries is kept byte for byte. info_hash and
// peer_id are raw bytes: every byte is escaped on its own, so no byte is ever
// read as part of a UTF-8 sequence.
func buildAnnounceURL(base *url.URL, req AnnounceRequest) string {
	numWant := req.NumWant
	if numWant <= 0 {
		numWant = DefaultNumWant
	}

	q := url.Values{}
	q.Set("info_hash", string(req.InfoHash[:]))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.Itoa(int(req.Port)))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "0")
	q.Set("numwant", strconv.Itoa(int(numWant)))
	if req.IP != nil {
		q.Set("ip", req.IP.String())
	}
	if req.Event != None {
		q.Set("event", req.Event.String())
	}

	u := *base
	u.RawQuery = appendQuery(base.RawQuery, q)
	return u.String()
}

func appendQuery(raw string, q url.Values) string {
	if raw == "" {
		return q.Encode()
	}
	return raw + "&" + q.Encode()
}

func decodeAnnounceResponse(body []byte) (*AnnounceResponse, error) {
	dict, err := decodeDict(body)
	if err != nil {
		return nil, err
	}

	var raw httpAnnounceResponse
	if err := metainfo.DecodeValue(dict, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.FailureReason != "" {
		return nil, Error(raw.FailureReason)
	}

	peers, err := decodePeers(raw.Peers)
	if err != nil {
		return nil, err
	}
	if raw.Peers6 != "" {
		peers6, err := ParseCompactPeers6([]byte(raw.Peers6))
		if err != nil {
			return nil, err
		}
		peers = append(peers, peers6...)
	}

	return &AnnounceResponse{
		Interval:       time.Duration(raw.Interval) * time.Second,
		MinInterval:    time.Duration(raw.MinInterval) * time.Second,
		Leechers:       int32(raw.Incomplete),
		Seeders:        int32(raw.Complete),
		TrackerID:      raw.TrackerID,
		WarningMessage: raw.WarningMessage,
		Peers:          peers,
	}, nil
}

// decodePeers picks the peer list form from the type of the bencoded value.
func decodePeers(v any) ([]Peer, error) {
	switch peers := v.(type) {
	case nil:
		return []Peer{}, nil
	case string:
		return ParseCompactPeers([]byte(peers))
	case []any:
		return parseNonCompactPeers(peers)
	default:
		return nil, fmt.Errorf("%w: peers has unexpected type %T", ErrMalformedResponse, v)
	}
}

func parseNonCompactPeers(list []any) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for i, item := range list {
		dict, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: peer %d is %T, not a dictionary", ErrMalformedResponse, i, item)
		}

		var p nonCompactPeer
		if err := metainfo.DecodeValue(dict, &p); err != nil {
			return nil, fmt.Errorf("%w: peer %d: %v", ErrMalformedResponse, i, err)
		}
		ip := net.ParseIP(p.IP)
		if ip == nil {
			return nil, fmt.Errorf("%w: peer %d has invalid ip %q", ErrMalformedResponse, i, p.IP)
		}
		if p.Port < 0 || p.Port > 65535 {
			return nil, fmt.Errorf("%w: peer %d has invalid port %d", ErrMalformedResponse, i, p.Port)
		}
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		peers = append(peers, Peer{IP: ip, Port: uint16(p.Port), ID: p.PeerID})
	}
	return peers, nil
}

// scrapeURL replaces the "announce" prefix of the last path segment with "scrape".
func scrapeURL(announce *url.URL) (*url.URL, error) {
	i := strings.LastIndex(announce.Path, "/")
	last := announce.Path[i+1:]
	if !strings.HasPrefix(last, "announce") {
		return nil, fmt.Errorf("%w: %s", ErrScrapeUnsupported, announce)
	}
	u := *announce
	u.Path = announce.Path[:i+1] + "scrape" + strings.TrimPrefix(last, "announce")
	u.RawPath = ""
	return &u, nil
}

func decodeScrapeResponse(body []byte, hashes []metainfo.InfoHash) ([]ScrapeStats, error) {
	dict, err := decodeDict(body)
	if err != nil {
		return nil, err
	}

	var raw httpScrapeResponse
	if err := metainfo.DecodeValue(dict, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.FailureReason != "" {
		return nil, Error(raw.FailureReason)
	}

	// Trackers leave out torrents they do not know; those report zero.
	stats := make([]ScrapeStats, len(hashes))
	for i, h := range hashes {
		f, ok := raw.Files[string(h[:])]
		if !ok {
			continue
		}
		stats[i] = ScrapeStats{
			Seeders:   int32(f.Complete),
			Completed: int32(f.Downloaded),
			Leechers:  int32(f.Incomplete),
		}
	}
	return stats, nil
}

func decodeDict(body []byte) (map[string]any, error) {
	decoded, err := bencode.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	dict, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: response is %T, not a dictionary", ErrMalformedResponse, decoded)
	}
	return dict, nil
}
