package opshttp

import (
	"net/http"
	"net/netip"

	"github.com/ligadeals/ligadeals-web/internal/log"
)

// privatePeersOnly rejects peers outside loopback, private and link-local
// space. The ops port must never answer through the public load balancer.
func privatePeersOnly(L log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := peerAddr(r.RemoteAddr)
			if !ok || !(peer.IsLoopback() || peer.IsPrivate() || peer.IsLinkLocalUnicast()) {
				L.Warn(r.Context(), "ops request rejected", "network.peer.address", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peerAddr parses host:port, judging ::ffff:a.b.c.d by its IPv4 form.
func peerAddr(remote string) (netip.Addr, bool) {
	ap, err := netip.ParseAddrPort(remote)
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}
