package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

// SignInAPI is the backend call used by SignInFlow.
type SignInAPI interface {
	SignIn(ctx context.Context, email, password string) (*models.User, error)
}

type SignInStatus string

const (
	SignInIdle          SignInStatus = "idle"
	SignInSubmitting    SignInStatus = "submitting"
	SignInAuthenticated SignInStatus = "authenticated"
	SignInFailed        SignInStatus = "failed"
)

const signInFailed = "sign in failed"

var signInMessages = map[string]string{
	"email.required":    "Email is required",
	"password.required": "Password is required",
}

type signInForm struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignInFlow signs a user in with e-mail and password.
//
// States: idle -> submitting -> authenticated | failed. A failure is reported
// through the Notifier and the flow returns to idle so the form can be
// submitted again.
type SignInFlow struct {
	api     SignInAPI
	session Invalidator
	nav     Navigator
	notify  Notifier
	logger  logging.Logger

	mu     sync.Mutex
	status SignInStatus
}

func NewSignInFlow(api SignInAPI, session Invalidator, nav Navigator, notify Notifier, logger logging.Logger) *SignInFlow {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SignInFlow{
		api:     api,
		session: session,
		nav:     nav,
		notify:  notify,
		logger:  logger.With("flow", "signin"),
		status:  SignInIdle,
	}
}

func (f *SignInFlow) Status() SignInStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Submit validates the form and signs in. On success the session is
// invalidated, so the next read picks up the new identity, and the user is
// sent home. Validation failures are returned as ValidationErrors without a
// request being made.
func (f *SignInFlow) Submit(ctx context.Context, email, password string) error {
	if verrs := validateStruct(signInForm{Email: email, Password: password}, signInMessages); verrs != nil {
		return verrs
	}

	f.mu.Lock()
	if f.status == SignInSubmitting {
		f.mu.Unlock()
		return ErrBusy
	}
	f.status = SignInSubmitting
	f.mu.Unlock()

	user, err := f.api.SignIn(ctx, email, password)
	if err != nil {
		f.setStatus(SignInFailed)
		f.logger.Warn(ctx, "sign in failed", "error", err)
		f.notify.Error(failureMessage(err, signInFailed))
		f.setStatus(SignInIdle)
		return fmt.Errorf("sign in: %w", err)
	}

	f.setStatus(SignInAuthenticated)
	if user != nil {
		f.logger.Info(ctx, "signed in", "user_id", user.ID)
	}
	f.session.Invalidate()
	f.nav.Navigate(guard.RouteHome)
	return nil
}

// Reset returns an authenticated flow to idle, for a form shown again.
func (f *SignInFlow) Reset() {
	f.setStatus(SignInIdle)
}

func (f *SignInFlow) setStatus(s SignInStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}
