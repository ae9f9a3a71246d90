package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

// SignOutAPI is the backend call used by SignOutFlow.
type SignOutAPI interface {
	SignOut(ctx context.Context) error
}

const signOutFailed = "sign out failed"

// SignOutFlow signs the user out after an explicit confirmation.
type SignOutFlow struct {
	api     SignOutAPI
	session Clearer
	csrf    Clearer
	cookies CookieStore
	nav     Navigator
	notify  Notifier
	logger  logging.Logger

	mu      sync.Mutex
	pending bool
	busy    bool
}

// NewSignOutFlow creates the flow. cookies may be nil when cookies are not
// persisted.
func NewSignOutFlow(api SignOutAPI, session, csrf Clearer, cookies CookieStore, nav Navigator, notify Notifier, logger logging.Logger) *SignOutFlow {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SignOutFlow{
		api:     api,
		session: session,
		csrf:    csrf,
		cookies: cookies,
		nav:     nav,
		notify:  notify,
		logger:  logger.With("flow", "signout"),
	}
}

// Request opens the confirmation.
func (f *SignOutFlow) Request() {
	f.mu.Lock()
	f.pending = true
	f.mu.Unlock()
}

// Cancel closes the confirmation without signing out.
func (f *SignOutFlow) Cancel() {
	f.mu.Lock()
	f.pending = false
	f.mu.Unlock()
}

// Pending reports whether a confirmation is open.
func (f *SignOutFlow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Confirm signs out. On success all client state is dropped: the session
// cache, the CSRF token and the persisted cookies. The user is then sent to
// sign-in. The confirmation closes whatever the outcome.
func (f *SignOutFlow) Confirm(ctx context.Context) error {
	f.mu.Lock()
	if !f.pending {
		f.mu.Unlock()
		return ErrNoPendingSignOut
	}
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	f.pending = false
	f.busy = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	if err := f.api.SignOut(ctx); err != nil {
		f.logger.Warn(ctx, "sign out failed", "error", err)
		f.notify.Error(failureMessage(err, signOutFailed))
		return fmt.Errorf("sign out: %w", err)
	}

	f.session.Clear()
	f.csrf.Clear()
	if f.cookies != nil {
		if err := f.cookies.Clear(ctx); err != nil {
			f.logger.Error(ctx, "failed to clear stored cookies", "error", err)
		}
	}

	f.logger.Info(ctx, "signed out")
	f.nav.Navigate(guard.RouteSignIn)
	return nil
}
