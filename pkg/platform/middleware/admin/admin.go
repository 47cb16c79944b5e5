// Package admin gates the ops endpoints behind a shared admin token.
// The expected token is stored as a bcrypt hash; the plaintext arrives
// in the X-Admin-Token header.
package admin

import (
	"log/slog"
	"net/http"

	dErrors "meridian/pkg/domain-errors"
	"meridian/pkg/platform/httputil"
	"meridian/pkg/platform/secrets"
	"meridian/pkg/requestcontext"
)

// Header carries the plaintext admin token.
const Header = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not
// verify against the configured bcrypt hash. An empty hash disables
// the ops endpoints entirely rather than leaving them open.
func RequireAdminToken(expectedHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if expectedHash == "" {
				logger.WarnContext(ctx, "ops endpoint hit with no admin token configured",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "ops endpoints are disabled"))
				return
			}

			if err := secrets.Verify(r.Header.Get(Header), expectedHash); err != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
