package testutil

import (
	"net/http"
	"time"

	id "lifeline/pkg/domain"
	"lifeline/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithAuth adds a user ID and role, the state RequireAuth leaves behind.
// Invalid IDs are silently ignored.
func WithAuth(req *http.Request, userID, role string) *http.Request {
	req = WithUserID(req, userID)
	if role != "" {
		req = req.WithContext(requestcontext.WithRole(req.Context(), role))
	}
	return req
}

// WithModerator is WithAuth for the moderator role.
func WithModerator(req *http.Request, userID string) *http.Request {
	return WithAuth(req, userID, "moderator")
}

// WithTime pins the request clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
