package metainfo

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
)

// AnnounceList is the BEP 12 announce-list: tiers in priority order, each an
// ordered set of tracker URLs.
type AnnounceList [][]string

// Tiers parses every URL of every tier. A single invalid URL rejects the whole list.
func (l AnnounceList) Tiers() ([][]*url.URL, error) {
	tiers := make([][]*url.URL, 0, len(l))
	for i, tier := range l {
		urls := make([]*url.URL, 0, len(tier))
		for _, raw := range tier {
			u, err := ParseTrackerURL(raw)
			if err != nil {
				return nil, fmt.Errorf("announce-list tier %d: %w", i, err)
			}
			urls = append(urls, u)
		}
		tiers = append(tiers, urls)
	}
	return tiers, nil
}

// ParseTrackerURL parses an absolute tracker URL, requiring both scheme and host.
func ParseTrackerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no scheme or host", ErrInvalidURL, raw)
	}
	return u, nil
}

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ResolveURL resolves the host of u to socket addresses. The port falls back to
// 443 for https and 80 for every other scheme.
func ResolveURL(ctx context.Context, r Resolver, u *url.URL) ([]netip.AddrPort, error) {
	port, err := urlPort(u)
	if err != nil {
		return nil, err
	}

	host := u.Hostname()
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.AddrPort{netip.AddrPortFrom(addr.Unmap(), port)}, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolution, host)
	}

	out := make([]netip.AddrPort, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, netip.AddrPortFrom(addr.Unmap(), port))
	}
	return out, nil
}

func urlPort(u *url.URL) (uint16, error) {
	if p := u.Port(); p != "" {
		port, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: port %q", ErrInvalidURL, p)
		}
		return uint16(port), nil
	}
	if u.Scheme == "https" {
		return 443, nil
	}
	return 80, nil
}
