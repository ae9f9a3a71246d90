// Package cli provides the interactive Narrate command-line client.
//
// It wires configuration, the persisted cookie jar, the API client, the
// session cache, the route guard and the auth flows behind a small REPL.
// The terminal stands in for the browser: the current route is shown in the
// prompt and every navigation goes through the guard.
//
// Commands:
//   - signin / signup / signout
//   - whoami, refresh
//   - goto <route>
//   - profile, avatar <path>, search <username>
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
