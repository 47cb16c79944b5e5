// Package metadata extracts client metadata — IP, User-Agent, and the
// declared timezone — into the request context. Applied early in the
// chain so every later layer sees the same values.
package metadata

import (
	"net/http"
	"strings"

	"meridian/pkg/requestcontext"
)

// TimezoneHeader carries the client's declared IANA timezone. The
// value is untrusted input; the timezone service validates it before
// use.
const TimezoneHeader = "X-Timezone"

// ClientMetadata puts client IP, User-Agent, and declared timezone on
// the context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientMetadata(ctx, ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		if tz := strings.TrimSpace(r.Header.Get(TimezoneHeader)); tz != "" {
			ctx = requestcontext.WithTimezone(ctx, tz)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the real client IP, handling proxies and
// load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the
	// original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
