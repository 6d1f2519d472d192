package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"vtrack/pkg/requestcontext"
)

// WithCaller attaches an authenticated identity to the request context,
// the same way the auth middleware does for a verified token.
func WithCaller(req *http.Request, userID uuid.UUID, role string) *http.Request {
	ctx := requestcontext.WithCaller(req.Context(), requestcontext.Identity{
		UserID: userID,
		Role:   role,
		Active: true,
	})
	return req.WithContext(ctx)
}

// CallerContext returns a background context carrying an active caller.
func CallerContext(userID uuid.UUID, role string) context.Context {
	return requestcontext.WithCaller(context.Background(), requestcontext.Identity{
		UserID: userID,
		Role:   role,
		Active: true,
	})
}
