package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/narrate/internal/client/models"
)

// Client is the transport-agnostic contract of the Narrate backend API.
type Client interface {
	Close() error

	FetchCSRFToken(ctx context.Context) (string, error)
	RefreshTokens(ctx context.Context) error

	SignIn(ctx context.Context, email, password string) (*models.User, error)
	SignUp(ctx context.Context, data models.SignUpData) (*models.User, error)
	SessionCheck(ctx context.Context) (*models.User, error)
	CheckUsername(ctx context.Context, username string) (bool, error)
	VerifyOTP(ctx context.Context, email, otp string) (*models.User, error)
	ResendOTP(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	UpdateProfile(ctx context.Context, data models.UpdateUserData) (*models.User, error)
	UploadProfileImage(ctx context.Context, filename string, content io.Reader) (string, error)
	SearchUsers(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error)
}
