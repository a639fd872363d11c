package services

import (
	"context"

	"github.com/agrisubsidy/backend/internal/models"
)

type sessionContextKey struct{}

// WithSession threads the authenticated session through the request context
// under a typed key.
func WithSession(ctx context.Context, session *models.SessionWithMerchant) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the authenticated session, or nil when the
// request never passed the session middleware.
func SessionFromContext(ctx context.Context) *models.SessionWithMerchant {
	session, _ := ctx.Value(sessionContextKey{}).(*models.SessionWithMerchant)
	return session
}
