package testutil

import (
	"net/http"

	id "meridian/pkg/domain"
	"meridian/pkg/requestcontext"
)

// WithUserID attaches an authenticated user to the request context,
// simulating what the auth middleware does. Invalid IDs are ignored so
// unauthenticated paths stay testable with the same helper.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithTimezoneHeader sets the client timezone declaration header.
func WithTimezoneHeader(req *http.Request, tz string) *http.Request {
	req.Header.Set("X-Timezone", tz)
	return req
}
