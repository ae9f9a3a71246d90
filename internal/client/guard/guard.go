// Package guard keeps the user on routes that match the session: signed-in
// users are sent away from sign-in and sign-up, anonymous users are sent to
// sign-in from protected pages.
package guard

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/session"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

// Navigator changes the route shown to the user.
type Navigator interface {
	Navigate(route string)
}

// Session is the part of the session cache the guard observes.
type Session interface {
	Mount(ctx context.Context) session.State
	Snapshot() session.State
	Subscribe() (<-chan session.State, func())
}

// Decision is the outcome of checking a route against a session state.
type Decision struct {
	// Wait is set while the session is still loading; the view renders a
	// neutral placeholder and nothing is redirected.
	Wait bool
	// Redirect is the route to go to, or "" to stay.
	Redirect string
}

func (d Decision) Stay() bool {
	return !d.Wait && d.Redirect == ""
}

// Decide applies the redirect rules to route.
func Decide(st session.State, route string) Decision {
	if st.Loading() {
		return Decision{Wait: true}
	}

	switch ClassOf(route) {
	case ClassAuthOnly:
		if st.Authenticated() {
			return Decision{Redirect: RouteHome}
		}
	case ClassProtected:
		if !st.Authenticated() {
			return Decision{Redirect: RouteSignIn}
		}
	}
	return Decision{}
}

// Guard tracks the current route and redirects it as the session changes.
type Guard struct {
	session Session
	nav     Navigator
	logger  logging.Logger

	mu      sync.Mutex
	current string
}

func New(s Session, nav Navigator, logger logging.Logger) *Guard {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Guard{
		session: s,
		nav:     nav,
		logger:  logger.With("component", "guard"),
		current: RouteHome,
	}
}

// Current returns the route the guard believes is on screen.
func (g *Guard) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Enter is called when the user opens route. The session is mounted, which
// refreshes it under the default policy, and the route is redirected if the
// session does not allow it. It returns the route that ends up on screen.
func (g *Guard) Enter(ctx context.Context, route string) (string, session.State) {
	route = normalize(route)
	g.mu.Lock()
	g.current = route
	g.mu.Unlock()

	st := g.session.Mount(ctx)
	return g.apply(ctx, st), st
}

// Watch redirects the current route on every session change until ctx is
// done.
func (g *Guard) Watch(ctx context.Context) {
	ch, unsubscribe := g.session.Subscribe()
	defer unsubscribe()

	for {
		select {
		case st := <-ch:
			g.apply(ctx, st)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Guard) apply(ctx context.Context, st session.State) string {
	g.mu.Lock()
	from := g.current
	d := Decide(st, from)
	if d.Redirect == "" {
		g.mu.Unlock()
		return from
	}
	g.current = d.Redirect
	g.mu.Unlock()

	g.logger.Info(ctx, "redirecting", "from", from, "to", d.Redirect, "session", string(st.Status))
	g.nav.Navigate(d.Redirect)
	return d.Redirect
}
