package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the original caller IP. Behind a reverse proxy the
// first hop of X-Forwarded-For is the client; X-Real-IP is the nginx
// variant; otherwise the socket address is used directly.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
