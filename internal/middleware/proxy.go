package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"
)

// forwardingHeaders are the proxy-set headers that change what c.RealIP()
// and c.Scheme() report.
var forwardingHeaders = []string{
	echo.HeaderXForwardedFor,
	echo.HeaderXRealIP,
	echo.HeaderXForwardedProto,
	echo.HeaderXForwardedProtocol,
	echo.HeaderXForwardedSsl,
	echo.HeaderXUrlScheme,
}

// TrustedProxies makes c.RealIP() and c.Scheme() honour forwarding headers,
// but only when the direct peer falls inside one of trustedCIDRs. Requests
// from any other peer have those headers removed before routing. Rate
// limits key on the client IP and the credential cookie's Secure flag
// follows the scheme, so an untrusted peer must not be able to pick either.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	var trusted []netip.Prefix
	for _, cidr := range trustedCIDRs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, prefix)
	}
	e.IPExtractor = ipExtractor(trusted)
	e.Pre(stripUntrustedForwarding(trusted))
}

func stripUntrustedForwarding(trusted []netip.Prefix) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !inAny(peerAddr(req.RemoteAddr), trusted) {
				for _, h := range forwardingHeaders {
					req.Header.Del(h)
				}
			}
			return next(c)
		}
	}
}

func ipExtractor(trusted []netip.Prefix) echo.IPExtractor {
	return func(req *http.Request) string {
		peer := peerAddr(req.RemoteAddr)
		if !peer.IsValid() {
			return req.RemoteAddr
		}
		if !inAny(peer, trusted) {
			return peer.String()
		}

		if realIP := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); realIP != "" {
			return realIP
		}
		if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
			client, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(client)
		}
		return peer.String()
	}
}

func peerAddr(remoteAddr string) netip.Addr {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap()
	}
	addr, _ := netip.ParseAddr(remoteAddr)
	return addr.Unmap()
}

func inAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
