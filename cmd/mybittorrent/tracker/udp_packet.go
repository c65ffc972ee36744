package tracker

import (
	"encoding/binary"
	"fmt"

	"github.com/mcheviron/bittorrent-tracker/cmd/mybittorrent/metainfo"
)

// ProtocolID is the magic constant that opens every BEP 15 connect request.
const ProtocolID uint64 = 0x41727101980

// Action is the leading field of every UDP tracker packet.
type Action uint32

const (
	ActionConnect Action = iota
	ActionAnnounce
	ActionScrape
	ActionError
)

var actionNames = [...]string{"connect", "announce", "scrape", "error"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint32(a))
}

const (
	connectRequestLen         = 16
	connectResponseLen        = 16
	announceRequestLen        = 98
	announceResponseHeaderLen = 20
	scrapeRequestHeaderLen    = 16
	scrapeResponseHeaderLen   = 8
	scrapeStatsLen            = 12
	errorResponseHeaderLen    = 8

	// MaxScrapeHashes is the number of info hashes that fit in one scrape request.
	MaxScrapeHashes = 74
)

type ConnectRequest struct {
	TransactionID uint32
}

func (r ConnectRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, connectRequestLen)
	b = binary.BigEndian.AppendUint64(b, ProtocolID)
	b = binary.BigEndian.AppendUint32(b, uint32(ActionConnect))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	return b, nil
}

func (r *ConnectRequest) UnmarshalBinary(b []byte) error {
	if len(b) != connectRequestLen {
		return fmt.Errorf("%w: connect request is %d bytes, want %d", ErrMalformedResponse, len(b), connectRequestLen)
	}
	if id := binary.BigEndian.Uint64(b[0:8]); id != ProtocolID {
		return fmt.Errorf("%w: protocol id %#x", ErrProtocol, id)
	}
	if a := Action(binary.BigEndian.Uint32(b[8:12])); a != ActionConnect {
		return fmt.Errorf("%w: action %s, want %s", ErrProtocol, a, ActionConnect)
	}
	r.TransactionID = binary.BigEndian.Uint32(b[12:16])
	return nil
}

type ConnectResponse struct {
	TransactionID uint32
	ConnectionID  uint64
}

func (r ConnectResponse) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, connectResponseLen)
	b = binary.BigEndian.AppendUint32(b, uint32(ActionConnect))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	b = binary.BigEndian.AppendUint64(b, r.ConnectionID)
	return b, nil
}

func (r *ConnectResponse) UnmarshalBinary(b []byte) error {
	if err := expectAction(b, ActionConnect); err != nil {
		return err
	}
	if len(b) < connectResponseLen {
		return fmt.Errorf("%w: connect response is %d bytes, want %d", ErrMalformedResponse, len(b), connectResponseLen)
	}
	r.TransactionID = binary.BigEndian.Uint32(b[4:8])
	r.ConnectionID = binary.BigEndian.Uint64(b[8:16])
	return nil
}

// ParseConnectResponse decodes a connect response and checks that it answers
// the request with the given transaction id.
func ParseConnectResponse(b []byte, transactionID uint32) (ConnectResponse, error) {
	var r ConnectResponse
	if err := checkReply(b, ActionConnect, transactionID); err != nil {
		return r, err
	}
	err := r.UnmarshalBinary(b)
	return r, err
}

// UDPAnnounceRequest is the 98-byte announce packet.
type UDPAnnounceRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHash      metainfo.InfoHash
	PeerID        metainfo.PeerID
	Downloaded    int64
	Left          int64
	Uploaded      int64
	Event         Event
	IP            [4]byte // zero lets the tracker use the sender address
	Key           uint32
	NumWant       int32 // -1 for the tracker default
	Port          uint16
}

func (r UDPAnnounceRequest) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, announceRequestLen)
	b = binary.BigEndian.AppendUint64(b, r.ConnectionID)
	b = binary.BigEndian.AppendUint32(b, uint32(ActionAnnounce))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	b = append(b, r.InfoHash[:]...)
	b = append(b, r.PeerID[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(r.Downloaded))
	b = binary.BigEndian.AppendUint64(b, uint64(r.Left))
	b = binary.BigEndian.AppendUint64(b, uint64(r.Uploaded))
	b = binary.BigEndian.AppendUint32(b, uint32(r.Event))
	b = append(b, r.IP[:]...)
	b = binary.BigEndian.AppendUint32(b, r.Key)
	b = binary.BigEndian.AppendUint32(b, uint32(r.NumWant))
	b = binary.BigEndian.AppendUint16(b, r.Port)
	return b, nil
}

func (r *UDPAnnounceRequest) UnmarshalBinary(b []byte) error {
	if len(b) != announceRequestLen {
		return fmt.Errorf("%w: announce request is %d bytes, want %d", ErrMalformedResponse, len(b), announceRequestLen)
	}
	if a := Action(binary.BigEndian.Uint32(b[8:12])); a != ActionAnnounce {
		return fmt.Errorf("%w: action %s, want %s", ErrProtocol, a, ActionAnnounce)
	}
	r.ConnectionID = binary.BigEndian.Uint64(b[0:8])
	r.TransactionID = binary.BigEndian.Uint32(b[12:16])
	copy(r.InfoHash[:], b[16:36])
	copy(r.PeerID[:], b[36:56])
	r.Downloaded = int64(binary.BigEndian.Uint64(b[56:64]))
	r.Left = int64(binary.BigEndian.Uint64(b[64:72]))
	r.Uploaded = int64(binary.BigEndian.Uint64(b[72:80]))
	r.Event = Event(binary.BigEndian.Uint32(b[80:84]))
	copy(r.IP[:], b[84:88])
	r.Key = binary.BigEndian.Uint32(b[88:92])
	r.NumWant = int32(binary.BigEndian.Uint32(b[92:96]))
	r.Port = binary.BigEndian.Uint16(b[96:98])
	return nil
}

// UDPAnnounceResponse is the announce reply: a 20-byte header followed by
// 6-byte IPv4 peer records up to the end of the datagram.
type UDPAnnounceResponse struct {
	TransactionID uint32
	Interval      uint32
	Leechers      uint32
	Seeders       uint32
	Peers         []Peer
}

func (r UDPAnnounceResponse) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, announceResponseHeaderLen+compactPeerLen*len(r.Peers))
	b = binary.BigEndian.AppendUint32(b, uint32(ActionAnnounce))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	b = binary.BigEndian.AppendUint32(b, r.Interval)
	b = binary.BigEndian.AppendUint32(b, r.Leechers)
	b = binary.BigEndian.AppendUint32(b, r.Seeders)
	for _, p := range r.Peers {
		var err error
		if b, err = appendCompactPeer(b, p); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *UDPAnnounceResponse) UnmarshalBinary(b []byte) error {
	if err := expectAction(b, ActionAnnounce); err != nil {
		return err
	}
	if len(b) < announceResponseHeaderLen {
		return fmt.Errorf("%w: announce response is %d bytes, want at least %d", ErrMalformedResponse, len(b), announceResponseHeaderLen)
	}
	peers, err := ParseCompactPeers(b[announceResponseHeaderLen:])
	if err != nil {
		return err
	}
	r.TransactionID = binary.BigEndian.Uint32(b[4:8])
	r.Interval = binary.BigEndian.Uint32(b[8:12])
	r.Leechers = binary.BigEndian.Uint32(b[12:16])
	r.Seeders = binary.BigEndian.Uint32(b[16:20])
	r.Peers = peers
	return nil
}

func ParseAnnounceResponse(b []byte, transactionID uint32) (UDPAnnounceResponse, error) {
	var r UDPAnnounceResponse
	if err := checkReply(b, ActionAnnounce, transactionID); err != nil {
		return r, err
	}
	err := r.UnmarshalBinary(b)
	return r, err
}

type ScrapeRequest struct {
	ConnectionID  uint64
	TransactionID uint32
	InfoHashes    []metainfo.InfoHash
}

func (r ScrapeRequest) MarshalBinary() ([]byte, error) {
	if len(r.InfoHashes) > MaxScrapeHashes {
		return nil, fmt.Errorf("cannot scrape %d info hashes at once, limit is %d", len(r.InfoHashes), MaxScrapeHashes)
	}
	b := make([]byte, 0, scrapeRequestHeaderLen+len(metainfo.InfoHash{})*len(r.InfoHashes))
	b = binary.BigEndian.AppendUint64(b, r.ConnectionID)
	b = binary.BigEndian.AppendUint32(b, uint32(ActionScrape))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	for _, h := range r.InfoHashes {
		b = append(b, h[:]...)
	}
	return b, nil
}

func (r *ScrapeRequest) UnmarshalBinary(b []byte) error {
	hashLen := len(metainfo.InfoHash{})
	if len(b) < scrapeRequestHeaderLen || (len(b)-scrapeRequestHeaderLen)%hashLen != 0 {
		return fmt.Errorf("%w: scrape request length %d", ErrMalformedResponse, len(b))
	}
	if a := Action(binary.BigEndian.Uint32(b[8:12])); a != ActionScrape {
		return fmt.Errorf("%w: action %s, want %s", ErrProtocol, a, ActionScrape)
	}
	r.ConnectionID = binary.BigEndian.Uint64(b[0:8])
	r.TransactionID = binary.BigEndian.Uint32(b[12:16])
	r.InfoHashes = make([]metainfo.InfoHash, 0, (len(b)-scrapeRequestHeaderLen)/hashLen)
	for i := scrapeRequestHeaderLen; i < len(b); i += hashLen {
		var h metainfo.InfoHash
		copy(h[:], b[i:i+hashLen])
		r.InfoHashes = append(r.InfoHashes, h)
	}
	return nil
}

// ScrapeResponse holds one ScrapeStats per requested hash, in request order.
type ScrapeResponse struct {
	TransactionID uint32
	Stats         []ScrapeStats
}

func (r ScrapeResponse) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, scrapeResponseHeaderLen+scrapeStatsLen*len(r.Stats))
	b = binary.BigEndian.AppendUint32(b, uint32(ActionScrape))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	for _, s := range r.Stats {
		b = binary.BigEndian.AppendUint32(b, uint32(s.Seeders))
		b = binary.BigEndian.AppendUint32(b, uint32(s.Completed))
		b = binary.BigEndian.AppendUint32(b, uint32(s.Leechers))
	}
	return b, nil
}

func (r *ScrapeResponse) UnmarshalBinary(b []byte) error {
	if err := expectAction(b, ActionScrape); err != nil {
		return err
	}
	if len(b) < scrapeResponseHeaderLen || (len(b)-scrapeResponseHeaderLen)%scrapeStatsLen != 0 {
		return fmt.Errorf("%w: scrape response length %d", ErrMalformedResponse, len(b))
	}
	r.TransactionID = binary.BigEndian.Uint32(b[4:8])
	r.Stats = make([]ScrapeStats, 0, (len(b)-scrapeResponseHeaderLen)/scrapeStatsLen)
	for i := scrapeResponseHeaderLen; i < len(b); i += scrapeStatsLen {
		r.Stats = append(r.Stats, ScrapeStats{
			Seeders:   int32(binary.BigEndian.Uint32(b[i : i+4])),
			Completed: int32(binary.BigEndian.Uint32(b[i+4 : i+8])),
			Leechers:  int32(binary.BigEndian.Uint32(b[i+8 : i+12])),
		})
	}
	return nil
}

func ParseScrapeResponse(b []byte, transactionID uint32) (ScrapeResponse, error) {
	var r ScrapeResponse
	if err := checkReply(b, ActionScrape, transactionID); err != nil {
		return r, err
	}
	err := r.UnmarshalBinary(b)
	return r, err
}

// ErrorResponse is sent by the tracker instead of the expected reply.
type ErrorResponse struct {
	TransactionID uint32
	Message       string
}

func (r ErrorResponse) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, errorResponseHeaderLen+len(r.Message))
	b = binary.BigEndian.AppendUint32(b, uint32(ActionError))
	b = binary.BigEndian.AppendUint32(b, r.TransactionID)
	return append(b, r.Message...), nil
}

func (r *ErrorResponse) UnmarshalBinary(b []byte) error {
	if err := expectAction(b, ActionError); err != nil {
		return err
	}
	r.TransactionID = binary.BigEndian.Uint32(b[4:8])
	r.Message = string(b[errorResponseHeaderLen:])
	return nil
}

// expectAction checks the leading action field of a reply.
func expectAction(b []byte, want Action) error {
	if len(b) < 4 {
		return fmt.Errorf("%w: datagram of %d bytes", ErrMalformedResponse, len(b))
	}
	if got := Action(binary.BigEndian.Uint32(b[0:4])); got != want {
		return fmt.Errorf("%w: action %s, want %s", ErrProtocol, got, want)
	}
	if want == ActionError && len(b) < errorResponseHeaderLen {
		return fmt.Errorf("%w: error response of %d bytes", ErrMalformedResponse, len(b))
	}
	return nil
}

// checkReply validates the header of a reply to the request with the given
// transaction id. An error reply becomes an Error that also matches ErrProtocol.
func checkReply(b []byte, want Action, transactionID uint32) error {
	if len(b) < 8 {
		return fmt.Errorf("%w: datagram of %d bytes", ErrMalformedResponse, len(b))
	}
	if got := binary.BigEndian.Uint32(b[4:8]); got != transactionID {
		return fmt.Errorf("%w: transaction id %#x, want %#x", ErrProtocol, got, transactionID)
	}
	if Action(binary.BigEndian.Uint32(b[0:4])) == ActionError {
		var e ErrorResponse
		if err := e.UnmarshalBinary(b); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrProtocol, Error(e.Message))
	}
	return expectAction(b, want)
}
