// Package common contains shared constants and sentinel errors used across
// Narrate components.
package common

// CSRFHeaderName is the HTTP header carrying the anti-forgery token on
// state-changing requests.
const CSRFHeaderName = "X-CSRF-Token"

// RequestIDHeaderName is the HTTP header used to correlate client requests
// with backend logs.
const RequestIDHeaderName = "X-Request-ID"

// Cookie names shared by the client and the development backend.
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
	CSRFCookieName         = "csrf_secret"
)

// OTPLength is the number of characters in a sign-up verification code.
const OTPLength = 6
