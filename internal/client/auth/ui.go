package auth

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/narrate/internal/client/client"
)

var (
	ErrBusy             = errors.New("operation already in progress")
	ErrWrongStep        = errors.New("not allowed at this step")
	ErrIncompleteOTP    = errors.New("verification code is incomplete")
	ErrUsernameTaken    = errors.New("username is already taken")
	ErrNoPendingSignOut = errors.New("sign out was not requested")
)

// Navigator changes the route shown to the user.
type Navigator interface {
	Navigate(route string)
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Invalidator marks the cached session stale.
type Invalidator interface {
	Invalidate()
}

// Clearer drops in-memory client state.
type Clearer interface {
	Clear()
}

// CookieStore is the persisted cookie jar.
type CookieStore interface {
	Clear(ctx context.Context) error
}

// failureMessage returns the server message carried by err, or fallback.
func failureMessage(err error, fallback string) string {
	if msg := client.Message(err); msg != "" {
		return msg
	}
	return fallback
}
