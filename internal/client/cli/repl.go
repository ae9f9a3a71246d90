package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	SignIn(ctx context.Context) error
	SignUp(ctx context.Context) error
	SignOut(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Refresh(ctx context.Context) error
	Goto(ctx context.Context, route string) error
	Profile(ctx context.Context) error
	Avatar(ctx context.Context, path string) error
	Search(ctx context.Context, username string) error
}

// runREPL starts a simple read–eval–print loop for the Narrate CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF, when ctx is done or when the user types "exit"
// or "quit". Commands that prompt read from the same reader.
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Signed out:
//	  - help               - show available commands
//	  - signin             - sign in with email and password
//	  - signup             - create an account and verify it
//	  - goto <route>       - open a route
//	  - search <username>  - look users up
//	  - whoami | refresh   - show or recheck the session
//	  - exit | quit        - leave the program
//
//	Signed in, additionally:
//	  - profile            - edit username, email and bio
//	  - avatar <path>      - upload a profile picture
//	  - signout            - sign out
//
// Any errors returned by command handlers are ignored here; handlers report
// their own failures. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("narrate %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, arg := parts[0], strings.Join(parts[1:], " ")

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, refresh, goto <route>, profile, avatar <path>, search <username>, signout, exit")
			} else {
				printlnFn("Available commands: signin, signup, whoami, refresh, goto <route>, search <username>, exit")
			}

		case "signin", "login":
			_ = a.SignIn(ctx)

		case "signup", "register":
			_ = a.SignUp(ctx)

		case "signout", "logout":
			_ = a.SignOut(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "goto":
			if arg == "" {
				printlnFn("Usage: goto <route>")
				continue
			}
			_ = a.Goto(ctx, arg)

		case "profile":
			_ = a.Profile(ctx)

		case "avatar":
			if arg == "" {
				printlnFn("Usage: avatar <path>")
				continue
			}
			_ = a.Avatar(ctx, arg)

		case "search":
			if arg == "" {
				printlnFn("Usage: search <username>")
				continue
			}
			_ = a.Search(ctx, arg)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
