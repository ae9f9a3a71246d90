package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/client"
	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() SignupDraft {
	return SignupDraft{
		Email:           "alice@example.com",
		Username:        "alice",
		Password:        "password1",
		ConfirmPassword: "password1",
		FirstName:       "Alice",
		LastName:        "Liddell",
	}
}

type signUpHarness struct {
	flow    *SignUpFlow
	api     *fakeAPI
	session *fakeSession
	nav     *fakeNav
	notify  *fakeNotifier
}

func newSignUp(api *fakeAPI, opts ...SignUpOption) signUpHarness {
	h := signUpHarness{api: api, session: &fakeSession{}, nav: &fakeNav{}, notify: &fakeNotifier{}}
	h.flow = NewSignUpFlow(api, h.session, h.nav, h.notify, logging.Nop(), opts...)
	return h
}

func (h signUpHarness) registered(t *testing.T) {
	t.Helper()
	require.NoError(t, h.flow.Register(context.Background(), validDraft()))
	require.Equal(t, StepOTPVerification, h.flow.Step())
}

func TestSignupDraft_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignupDraft)
		want   ValidationErrors
	}{
		{"valid", func(*SignupDraft) {}, nil},
		{"bad email", func(d *SignupDraft) { d.Email = "not-an-email" }, ValidationErrors{"email": "Email is invalid"}},
		{"empty email", func(d *SignupDraft) { d.Email = "" }, ValidationErrors{"email": "Email is invalid"}},
		{"short username", func(d *SignupDraft) { d.Username = "al" }, ValidationErrors{"username": "Username must be at least 3 characters"}},
		{"short password", func(d *SignupDraft) {
			d.Password = "short"
			d.ConfirmPassword = "short"
		}, ValidationErrors{
			"password":        "Password must be at least 8 characters",
			"confirmPassword": "Password must be at least 8 characters",
		}},
		{"mismatch", func(d *SignupDraft) { d.ConfirmPassword = "password2" }, ValidationErrors{"confirmPassword": "Passwords do not match"}},
		{"short names", func(d *SignupDraft) {
			d.FirstName = "Al"
			d.LastName = "Li"
		}, ValidationErrors{
			"first_name": "First name must be at least 3 characters",
			"last_name":  "Last name must be at least 3 characters",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)
			assert.Equal(t, tt.want, d.Validate())
		})
	}
}

func TestSignUp_RegisterSuccessMovesToVerification(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	h.registered(t)

	assert.Equal(t, []models.SignUpData{{
		Email:     "alice@example.com",
		Password:  "password1",
		FirstName: "Alice",
		LastName:  "Liddell",
		Username:  "alice",
	}}, h.api.signUps)
	assert.Len(t, h.notify.successes, 1)
	assert.Contains(t, h.notify.successes[0], "verification code")
	assert.Empty(t, h.nav.Routes())

	otp := h.flow.OTP()
	assert.Equal(t, 0, otp.Focus())
	assert.False(t, h.flow.CanVerify())
}

func TestSignUp_InvalidDraftIsNotSent(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	d := validDraft()
	d.ConfirmPassword = "different"

	err := h.flow.Register(context.Background(), d)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "confirmPassword")
	assert.Empty(t, h.api.signUps)
	assert.Equal(t, StepRegistration, h.flow.Step())

	kept, ok := h.flow.Draft()
	require.True(t, ok)
	assert.Equal(t, d, kept)
}

func TestSignUp_ServerFailureStaysOnRegistration(t *testing.T) {
	h := newSignUp(&fakeAPI{signUpErr: &client.RequestError{Status: 409, Message: "email already registered"}})

	err := h.flow.Register(context.Background(), validDraft())
	require.Error(t, err)
	assert.Equal(t, StepRegistration, h.flow.Step())
	assert.Equal(t, []string{"email already registered"}, h.notify.errors)
}

func TestSignUp_TakenUsernameBlocksRegistration(t *testing.T) {
	api := &fakeAPI{usernameTaken: map[string]bool{"alice": true}}
	checker := NewUsernameChecker(api, time.Millisecond, logging.Nop())
	defer checker.Close()
	h := newSignUp(api, WithUsernameChecker(checker))

	checker.Update("alice")
	require.Eventually(t, func() bool {
		return checker.Current().State == AvailabilityTaken
	}, time.Second, time.Millisecond)

	err := h.flow.Register(context.Background(), validDraft())
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Empty(t, h.api.signUps)

	// a free username unblocks
	checker.Update("alice2")
	require.Eventually(t, func() bool {
		return checker.Current().State == AvailabilityFree
	}, time.Second, time.Millisecond)
	d := validDraft()
	d.Username = "alice2"
	require.NoError(t, h.flow.Register(context.Background(), d))
}

func TestSignUp_VerifySuccess(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	h.registered(t)

	assert.ErrorIs(t, h.flow.Verify(context.Background()), ErrIncompleteOTP)

	h.flow.TypeOTP("123456")
	require.True(t, h.flow.CanVerify())
	require.NoError(t, h.flow.Verify(context.Background()))

	assert.Equal(t, []models.VerifyOTPData{{Email: "alice@example.com", OTP: "123456"}}, h.api.verifies)
	assert.Equal(t, 1, h.session.invalidated.count())
	assert.Equal(t, []string{guard.RouteProfile}, h.nav.Routes())

	_, ok := h.flow.Draft()
	assert.False(t, ok, "draft must be wiped")
	otp := h.flow.OTP()
	assert.Equal(t, "", otp.Code())
	assert.Equal(t, StepRegistration, h.flow.Step())
}

func TestSignUp_VerifyUsesConfiguredRoute(t *testing.T) {
	h := newSignUp(&fakeAPI{}, WithPostVerifyRoute(guard.RouteHome))
	h.registered(t)
	h.flow.TypeOTP("123456")
	require.NoError(t, h.flow.Verify(context.Background()))
	assert.Equal(t, []string{guard.RouteHome}, h.nav.Routes())
}

func TestSignUp_VerifyFailureKeepsCode(t *testing.T) {
	h := newSignUp(&fakeAPI{verifyErr: &client.RequestError{Status: 400, Message: "invalid otp"}})
	h.registered(t)
	h.flow.TypeOTP("654321")

	err := h.flow.Verify(context.Background())
	require.Error(t, err)

	otp := h.flow.OTP()
	assert.Equal(t, "654321", otp.Code())
	assert.Equal(t, StepOTPVerification, h.flow.Step())
	assert.Equal(t, []string{"invalid otp"}, h.notify.errors)
	assert.Equal(t, 0, h.session.invalidated.count())
	assert.Empty(t, h.nav.Routes())
}

func TestSignUp_ResendClearsCode(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	h.registered(t)
	h.flow.TypeOTP("123")

	require.NoError(t, h.flow.ResendOTP(context.Background()))
	assert.Equal(t, []string{"alice@example.com"}, h.api.resends)

	otp := h.flow.OTP()
	assert.Equal(t, make([]string, 6), otp.Slots())
	assert.Equal(t, 0, otp.Focus())
	assert.Equal(t, StepOTPVerification, h.flow.Step())
	assert.Len(t, h.notify.successes, 2)
}

func TestSignUp_ResendFailureKeepsCode(t *testing.T) {
	h := newSignUp(&fakeAPI{resendErr: &client.RequestError{Status: 429, Message: "too many requests"}})
	h.registered(t)
	h.flow.TypeOTP("12")

	require.Error(t, h.flow.ResendOTP(context.Background()))
	otp := h.flow.OTP()
	assert.Equal(t, "12", otp.Code())
	assert.Equal(t, []string{"too many requests"}, h.notify.errors)
}

func TestSignUp_StepGuards(t *testing.T) {
	h := newSignUp(&fakeAPI{})

	assert.ErrorIs(t, h.flow.Verify(context.Background()), ErrWrongStep)
	assert.ErrorIs(t, h.flow.ResendOTP(context.Background()), ErrWrongStep)

	h.registered(t)
	assert.ErrorIs(t, h.flow.Register(context.Background(), validDraft()), ErrWrongStep)
}

func TestSignUp_OTPEditing(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	h.registered(t)

	h.flow.InputOTP(0, "98")
	h.flow.InputOTP(1, "7")
	h.flow.BackspaceOTP(2)

	otp := h.flow.OTP()
	assert.Equal(t, []string{"9", "7", "", "", "", ""}, otp.Slots())
	assert.Equal(t, 1, otp.Focus())
}

func TestSignUp_Abandon(t *testing.T) {
	h := newSignUp(&fakeAPI{})
	h.registered(t)
	h.flow.TypeOTP("123")

	h.flow.Abandon()

	_, ok := h.flow.Draft()
	assert.False(t, ok)
	assert.Equal(t, StepRegistration, h.flow.Step())
	otp := h.flow.OTP()
	assert.Equal(t, "", otp.Code())
}
