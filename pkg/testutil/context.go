// Package testutil holds small helpers shared by test suites: request
// context injection and readable BDD-ish step wrappers.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"time"

	id "meridian/pkg/domain"
	"meridian/pkg/requestcontext"
)

// DiscardLogger returns a logger suitable for tests that only care
// about behavior, not log output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AuthedContext returns a context carrying an authenticated user, a
// request ID, and a fixed request time, the way the middleware chain
// would have populated it.
func AuthedContext(userID id.UserID, at time.Time) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), userID)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	return requestcontext.WithTime(ctx, at)
}
