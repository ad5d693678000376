package common

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the host part of r.RemoteAddr. Mount RealIP in front of
// it when the service runs behind a proxy.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// RealIP rewrites r.RemoteAddr to the client address reported by a trusted
// proxy. Forwarding headers are ignored unless the direct peer is in Trusted.
// X-Forwarded-For is read right to left and the first hop outside Trusted
// wins, so entries a client prepends itself are never used.
type RealIP struct {
	Trusted []netip.Prefix
}

// Middleware applies the rewrite.
func (rip RealIP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if addr, ok := rip.resolve(r); ok {
			r.RemoteAddr = addr.String()
		}
		next.ServeHTTP(w, r)
	})
}

func (rip RealIP) resolve(r *http.Request) (netip.Addr, bool) {
	if len(rip.Trusted) == 0 {
		return netip.Addr{}, false
	}
	peer, ok := parseRemote(r.RemoteAddr)
	if !ok || !rip.trusted(peer) {
		return netip.Addr{}, false
	}
	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return netip.Addr{}, false
			}
			if addr = addr.Unmap(); !rip.trusted(addr) {
				return addr, true
			}
		}
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP")))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func (rip RealIP) trusted(addr netip.Addr) bool {
	for _, p := range rip.Trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRemote(remote string) (netip.Addr, bool) {
	remote = strings.TrimSpace(remote)
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// ParseTrustedProxies parses CIDRs or bare addresses, e.g. "10.0.0.0/8,127.0.0.1".
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
