package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClient is what rate limiters key on when no address resolved.
const UnknownClient = "unknown"

type clientIPKey struct{}

// ClientIPOptions says how far X-Forwarded-For can be trusted.
type ClientIPOptions struct {
	// TrustedHops counts the proxies in front of the server: 1 for the ALB,
	// 2 for CDN + ALB. 0 ignores X-Forwarded-For entirely.
	TrustedHops int
}

// ClientIP resolves the visitor address once per request and stores it in
// the context for the rate limiters, the form handlers and the access log.
// Forwarded headers are only believed when the peer is inside our network
// and TrustedHops > 0; otherwise they are removed so nothing downstream
// reads them by accident. Unresolvable peers leave the context empty.
func ClientIP(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if addr, ok := resolveClient(r, opts.TrustedHops); ok {
				ctx = WithClientIP(ctx, addr.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveClient(r *http.Request, hops int) (netip.Addr, bool) {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		dropForwarded(r.Header)
		return netip.Addr{}, false
	}
	if hops <= 0 || !(peer.IsPrivate() || peer.IsLoopback()) {
		dropForwarded(r.Header)
		return peer, true
	}

	var hopsSeen []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hopsSeen = append(hopsSeen, strings.Split(v, ",")...)
	}
	if len(hopsSeen) == 0 {
		return peer, true
	}
	// the entry appended by our outermost proxy; fewer entries than hops
	// means the chain is not what we deployed, so fall back to the peer
	idx := len(hopsSeen) - hops
	if idx < 0 {
		dropForwarded(r.Header)
		return peer, true
	}
	client, err := netip.ParseAddr(strings.TrimSpace(hopsSeen[idx]))
	if err != nil {
		return peer, true
	}
	return client.Unmap(), true
}

func peerAddr(remote string) (netip.Addr, bool) {
	if remote == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(remote); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

func dropForwarded(h http.Header) {
	h.Del("X-Forwarded-For")
	h.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the resolved address, or "" if none.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
