// Package auth drives the authentication flows of the Narrate client:
// sign-in, the two-step sign-up with e-mail OTP verification, the debounced
// username availability check, and sign-out.
//
// The flows do not render anything. They report to the UI through the
// Navigator and Notifier interfaces and keep their own state so a front end
// (the CLI in this repository) can render it.
package auth
