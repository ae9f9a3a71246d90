package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/narrate/internal/client/guard"
)

// screen is the terminal stand-in for the browser: it shows the current
// route and prints notifications. It serves as the Navigator of the route
// guard and as the Notifier of every flow.
type screen struct {
	mu    sync.Mutex
	out   io.Writer
	route string
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out, route: guard.RouteHome}
}

// Navigate shows route.
func (s *screen) Navigate(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route == route {
		return
	}
	s.route = route
	fmt.Fprintf(s.out, "-> %s\n", route)
}

func (s *screen) Route() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

func (s *screen) Success(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "ok: %s\n", msg)
}

func (s *screen) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "error: %s\n", msg)
}

func (s *screen) Println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, a...)
}

// router sends flow navigations through the guard, so a route a flow asks
// for is still subject to the session.
type router struct {
	ctx    context.Context
	guard  *guard.Guard
	screen *screen
}

func (r *router) Navigate(route string) {
	landed, _ := r.guard.Enter(r.ctx, route)
	r.screen.Navigate(landed)
}
