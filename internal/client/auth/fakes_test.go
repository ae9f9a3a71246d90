package auth

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/models"
)

type fakeNav struct {
	mu     sync.Mutex
	routes []string
}

func (n *fakeNav) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *fakeNav) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *fakeNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *fakeNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeSession struct {
	invalidated counter
	cleared     counter
}

func (s *fakeSession) Invalidate() { s.invalidated.inc() }
func (s *fakeSession) Clear()      { s.cleared.inc() }

type fakeCSRF struct{ cleared counter }

func (c *fakeCSRF) Clear() { c.cleared.inc() }

type fakeCookies struct {
	cleared counter
	err     error
}

func (c *fakeCookies) Clear(context.Context) error {
	c.cleared.inc()
	return c.err
}

// fakeAPI implements every backend call the flows use.
type fakeAPI struct {
	mu sync.Mutex

	signInUser *models.User
	signInErr  error
	signInGate chan struct{}
	signIns    []models.SignInData

	signUpErr error
	signUps   []models.SignUpData

	verifyErr error
	verifies  []models.VerifyOTPData

	resendErr error
	resends   []string

	signOutErr error
	signOuts   int

	usernameTaken map[string]bool
	usernameErr   error
	usernameGate  chan struct{}
	usernames     []string
}

func (f *fakeAPI) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	f.mu.Lock()
	f.signIns = append(f.signIns, models.SignInData{Email: email, Password: password})
	gate := f.signInGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.signInUser, f.signInErr
}

func (f *fakeAPI) SignUp(ctx context.Context, data models.SignUpData) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps = append(f.signUps, data)
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return &models.User{ID: "new", Username: data.Username, Email: data.Email}, nil
}

func (f *fakeAPI) VerifyOTP(ctx context.Context, email, otp string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies = append(f.verifies, models.VerifyOTPData{Email: email, OTP: otp})
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &models.User{ID: "new", Email: email}, nil
}

func (f *fakeAPI) ResendOTP(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resends = append(f.resends, email)
	return f.resendErr
}

func (f *fakeAPI) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.signOutErr
}

func (f *fakeAPI) CheckUsername(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	f.usernames = append(f.usernames, username)
	gate := f.usernameGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usernameTaken[username], f.usernameErr
}

func (f *fakeAPI) checkedUsernames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.usernames...)
}
