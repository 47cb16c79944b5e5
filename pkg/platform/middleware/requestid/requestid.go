// Package requestid assigns each request a correlation ID, reusing the
// client's X-Request-ID when one is supplied.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"meridian/pkg/requestcontext"
)

// Header is the request ID header read from and echoed to clients.
const Header = "X-Request-ID"

// Middleware puts a request ID on the context and echoes it in the
// response so clients and logs can be correlated.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
