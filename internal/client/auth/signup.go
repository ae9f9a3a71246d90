package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

// SignUpAPI is the set of backend calls used by SignUpFlow.
type SignUpAPI interface {
	SignUp(ctx context.Context, data models.SignUpData) (*models.User, error)
	VerifyOTP(ctx context.Context, email, otp string) (*models.User, error)
	ResendOTP(ctx context.Context, email string) error
}

// Step is the sign-up step on screen.
type Step string

const (
	StepRegistration    Step = "registration"
	StepOTPVerification Step = "otp-verification"
)

const (
	codeSentMessage = "verification code has been sent to your email, please check spam in case not found"
	signUpFailed    = "sign up failed"
	verifyFailed    = "verification failed"
	resendFailed    = "could not resend the verification code"
)

// SignupDraft holds the registration form.
type SignupDraft struct {
	Email           string `json:"email" validate:"email"`
	Username        string `json:"username" validate:"min=3"`
	Password        string `json:"password" validate:"min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"min=8,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"min=3"`
	LastName        string `json:"last_name" validate:"min=3"`
}

var signUpMessages = map[string]string{
	"email.email":             "Email is invalid",
	"username.min":            "Username must be at least 3 characters",
	"password.min":            "Password must be at least 8 characters",
	"confirmPassword.min":     "Password must be at least 8 characters",
	"confirmPassword.eqfield": "Passwords do not match",
	"first_name.min":          "First name must be at least 3 characters",
	"last_name.min":           "Last name must be at least 3 characters",
}

// Validate checks the draft and returns per-field errors, or nil.
func (d SignupDraft) Validate() ValidationErrors {
	return validateStruct(d, signUpMessages)
}

func (d SignupDraft) data() models.SignUpData {
	return models.SignUpData{
		Email:     d.Email,
		Password:  d.Password,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Username:  d.Username,
	}
}

// SignUpFlow runs the two sign-up steps: registration, then verification of
// the code e-mailed by the backend.
type SignUpFlow struct {
	api         SignUpAPI
	session     Invalidator
	usernames   *UsernameChecker
	nav         Navigator
	notify      Notifier
	logger      logging.Logger
	afterVerify string

	mu    sync.Mutex
	step  Step
	draft *SignupDraft
	otp   OTPBuffer
	busy  bool
}

// SignUpOption configures a SignUpFlow.
type SignUpOption func(*SignUpFlow)

// WithUsernameChecker blocks registration while the checker reports the
// drafted username as taken.
func WithUsernameChecker(c *UsernameChecker) SignUpOption {
	return func(f *SignUpFlow) { f.usernames = c }
}

// WithPostVerifyRoute sets where the user lands after verification.
func WithPostVerifyRoute(route string) SignUpOption {
	return func(f *SignUpFlow) {
		if route != "" {
			f.afterVerify = route
		}
	}
}

func NewSignUpFlow(api SignUpAPI, session Invalidator, nav Navigator, notify Notifier, logger logging.Logger, opts ...SignUpOption) *SignUpFlow {
	if logger == nil {
		logger = logging.Nop()
	}
	f := &SignUpFlow{
		api:         api,
		session:     session,
		nav:         nav,
		notify:      notify,
		logger:      logger.With("flow", "signup"),
		afterVerify: guard.RouteProfile,
		step:        StepRegistration,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *SignUpFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Draft returns a copy of the current draft and whether one exists.
func (f *SignUpFlow) Draft() (SignupDraft, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft == nil {
		return SignupDraft{}, false
	}
	return *f.draft, true
}

// Register validates d and submits it. The draft is kept whatever the
// outcome so the form can be corrected; on success the flow moves to
// verification with an empty code.
func (f *SignUpFlow) Register(ctx context.Context, d SignupDraft) error {
	if err := f.begin(StepRegistration); err != nil {
		return err
	}
	defer f.end()

	f.mu.Lock()
	f.draft = &d
	f.mu.Unlock()

	if verrs := d.Validate(); verrs != nil {
		return verrs
	}
	if f.usernames != nil && f.usernames.Taken(d.Username) {
		return ErrUsernameTaken
	}

	if _, err := f.api.SignUp(ctx, d.data()); err != nil {
		f.logger.Warn(ctx, "sign up failed", "email", d.Email, "error", err)
		f.notify.Error(failureMessage(err, signUpFailed))
		return fmt.Errorf("sign up: %w", err)
	}

	f.mu.Lock()
	f.step = StepOTPVerification
	f.otp.Reset()
	f.mu.Unlock()

	f.logger.Info(ctx, "registered, awaiting verification", "email", d.Email)
	f.notify.Success(codeSentMessage)
	return nil
}

// InputOTP writes value into code slot i.
func (f *SignUpFlow) InputOTP(i int, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otp.Input(i, value)
}

// BackspaceOTP handles backspace on code slot i.
func (f *SignUpFlow) BackspaceOTP(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otp.Backspace(i)
}

// TypeOTP fills the code from a typed or pasted string.
func (f *SignUpFlow) TypeOTP(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otp.Type(s)
}

// OTP returns a copy of the code buffer.
func (f *SignUpFlow) OTP() OTPBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otp
}

// CanVerify reports whether the code may be submitted.
func (f *SignUpFlow) CanVerify() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step == StepOTPVerification && f.otp.Complete()
}

// Verify submits the entered code. On success the session is invalidated,
// the draft and code are wiped and the user is sent to the post-verification
// route. On failure the code stays as entered.
func (f *SignUpFlow) Verify(ctx context.Context) error {
	if err := f.begin(StepOTPVerification); err != nil {
		return err
	}
	defer f.end()

	f.mu.Lock()
	if f.draft == nil {
		f.mu.Unlock()
		return ErrWrongStep
	}
	if !f.otp.Complete() {
		f.mu.Unlock()
		return ErrIncompleteOTP
	}
	email, code := f.draft.Email, f.otp.Code()
	f.mu.Unlock()

	user, err := f.api.VerifyOTP(ctx, email, code)
	if err != nil {
		f.logger.Warn(ctx, "verification failed", "email", email, "error", err)
		f.notify.Error(failureMessage(err, verifyFailed))
		return fmt.Errorf("verify otp: %w", err)
	}

	if user != nil {
		f.logger.Info(ctx, "account verified", "user_id", user.ID)
	}
	f.session.Invalidate()
	f.wipe()
	f.nav.Navigate(f.afterVerify)
	return nil
}

// ResendOTP asks for a new code. On success the code row is emptied and the
// first slot focused; the step does not change.
func (f *SignUpFlow) ResendOTP(ctx context.Context) error {
	if err := f.begin(StepOTPVerification); err != nil {
		return err
	}
	defer f.end()

	f.mu.Lock()
	if f.draft == nil {
		f.mu.Unlock()
		return ErrWrongStep
	}
	email := f.draft.Email
	f.mu.Unlock()

	if err := f.api.ResendOTP(ctx, email); err != nil {
		f.logger.Warn(ctx, "resend otp failed", "email", email, "error", err)
		f.notify.Error(failureMessage(err, resendFailed))
		return fmt.Errorf("resend otp: %w", err)
	}

	f.mu.Lock()
	f.otp.Reset()
	f.mu.Unlock()

	f.notify.Success(codeSentMessage)
	return nil
}

// Abandon destroys the draft and returns to registration.
func (f *SignUpFlow) Abandon() {
	f.wipe()
}

func (f *SignUpFlow) begin(step Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if f.step != step {
		return ErrWrongStep
	}
	f.busy = true
	return nil
}

func (f *SignUpFlow) end() {
	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()
}

func (f *SignUpFlow) wipe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draft != nil {
		*f.draft = SignupDraft{}
		f.draft = nil
	}
	f.otp.Reset()
	f.step = StepRegistration
}
