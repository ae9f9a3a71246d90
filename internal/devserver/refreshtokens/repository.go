// Package refreshtokens stores the server side of refresh tokens.
package refreshtokens

import (
	"context"
	"time"
)

// RefreshToken is one issued refresh token.
type RefreshToken struct {
	Token   string
	UserID  string
	Expires time.Time
}

type Repository interface {
	Create(ctx context.Context, userID string, token string, expires time.Time) error
	// Find returns common.ErrorNotFound for unknown tokens.
	Find(ctx context.Context, token string) (*RefreshToken, error)
	Delete(ctx context.Context, token string) error
}
