package tracker

import (
	"encoding/binary"
	"fmt"
	"net"
)

const compactPeerLen = net.IPv4len + 2

// ParseCompactPeers decodes a BEP 23 peer list of 6-byte IPv4 records.
func ParseCompactPeers(b []byte) ([]Peer, error) {
	return parseCompact(b, net.IPv4len)
}

// ParseCompactPeers6 decodes a BEP 7 peers6 list of 18-byte IPv6 records.
func ParseCompactPeers6(b []byte) ([]Peer, error) {
	return parseCompact(b, net.IPv6len)
}

func parseCompact(b []byte, ipLen int) ([]Peer, error) {
	recordLen := ipLen + 2
	if len(b)%recordLen != 0 {
		return nil, fmt.Errorf("%w: compact peer list length %d is not a multiple of %d", ErrMalformedResponse, len(b), recordLen)
	}

	peers := make([]Peer, 0, len(b)/recordLen)
	for i := 0; i < len(b); i += recordLen {
		ip := make(net.IP, ipLen)
		copy(ip, b[i:i+ipLen])
		peers = append(peers, Peer{
			IP:   ip,
			Port: binary.BigEndian.Uint16(b[i+ipLen : i+recordLen]),
		})
	}
	return peers, nil
}

func appendCompactPeer(b []byte, p Peer) ([]byte, error) {
	ip := p.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("peer %s is not an IPv4 address", p.IP)
	}
	b = append(b, ip...)
	return binary.BigEndian.AppendUint16(b, p.Port), nil
}
