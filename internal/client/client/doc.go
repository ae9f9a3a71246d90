// Package client talks to the Narrate backend.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): CSRF
//     fetch, sign-in/sign-up/OTP, session check, username availability,
//     sign-out, token refresh, profile update, avatar upload, user search.
//  2. A REST implementation (see HTTPClient) that keeps cookies in a jar,
//     attaches the CSRF token to mutating requests, tags each request with an
//     X-Request-ID, and bounds every call with a timeout.
//
// # Error Handling
//
// A response whose status differs from the documented one yields a
// *RequestError carrying the status and the server message. RequestError
// matches ErrUnauthorized for 401/403. Failures without a response wrap
// ErrUnavailable. Use errors.Is / errors.As; Message extracts the server text
// for display.
//
// # Retries
//
// The client never retries on its own account. Two token-maintenance replays
// exist: a CSRF rejection re-fetches the token and replays once, and, when
// enabled with WithAutoRefresh, an expired access token is refreshed and the
// request replayed once.
package client
