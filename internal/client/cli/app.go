package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/auth"
	"github.com/dmitrijs2005/narrate/internal/client/client"
	"github.com/dmitrijs2005/narrate/internal/client/config"
	"github.com/dmitrijs2005/narrate/internal/client/cookiejar"
	"github.com/dmitrijs2005/narrate/internal/client/guard"
	"github.com/dmitrijs2005/narrate/internal/client/services"
	"github.com/dmitrijs2005/narrate/internal/client/session"
	"github.com/dmitrijs2005/narrate/internal/client/store"
	"github.com/dmitrijs2005/narrate/internal/filex"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

const (
	janitorInterval = time.Minute
	lastEmailKey    = "last_email"
)

type App struct {
	config *config.Config
	logger logging.Logger

	store   *store.Store
	jar     *cookiejar.Jar
	api     *client.HTTPClient
	session *session.Cache
	guard   *guard.Guard
	screen  *screen
	router  *router

	usernames *auth.UsernameChecker
	signIn    *auth.SignInFlow
	signUp    *auth.SignUpFlow
	signOut   *auth.SignOutFlow
	profile   services.ProfileService

	reader  *bufio.Reader
	closers []io.Closer
}

// NewApp wires the client from c. Output goes to stdout and input is read
// from stdin.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, os.Stdin, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (app *App, err error) {
	a := &App{config: c, reader: bufio.NewReader(in), screen: newScreen(out)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	logOut := io.Writer(os.Stderr)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		logOut = f
	}
	a.logger = logging.New(logOut, c.LogLevel, false)

	dir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	a.store, err = store.Open(ctx, dir)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)

	a.jar, err = cookiejar.New(a.store.DB, a.logger)
	if err != nil {
		return nil, err
	}
	if err := a.jar.Load(ctx); err != nil {
		return nil, err
	}

	a.api, err = client.NewHTTPClient(c.BaseURL,
		client.WithCookieJar(a.jar),
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(a.logger),
		client.WithAutoRefresh(c.AutoRefreshTokens),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.api)

	opts := session.DefaultOptions()
	opts.StaleTime = c.SessionStaleTime
	opts.GCTime = c.SessionGCTime
	opts.Retry = c.SessionRetry
	a.session = session.New(a.api, opts, a.logger)

	a.guard = guard.New(a.session, a.screen, a.logger)
	a.router = &router{ctx: ctx, guard: a.guard, screen: a.screen}

	a.usernames = auth.NewUsernameChecker(a.api, c.UsernameDebounce, a.logger)
	a.signIn = auth.NewSignInFlow(a.api, a.session, a.router, a.screen, a.logger)
	a.signUp = auth.NewSignUpFlow(a.api, a.session, a.router, a.screen, a.logger,
		auth.WithUsernameChecker(a.usernames),
		auth.WithPostVerifyRoute(c.PostVerifyRoute),
	)
	a.signOut = auth.NewSignOutFlow(a.api, a.session, a.api.CSRF(), a.jar, a.router, a.screen, a.logger)
	a.profile = services.NewProfileService(a.api, a.session, a.logger)

	return a, nil
}

// Run shows the home route, starts the background session work and blocks in
// the REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.router.ctx = ctx

	go a.guard.Watch(ctx)
	go a.session.StartJanitor(ctx, janitorInterval)

	a.screen.Println("Narrate CLI. Type 'help' for commands.")
	a.router.Navigate(guard.RouteHome)

	runREPL(ctx, a, a.status, a.reader)
	return nil
}

// Close stops the username checker and releases the client, the log file and
// the database.
func (a *App) Close() {
	if a.usernames != nil {
		a.usernames.Close()
		a.usernames = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

func (a *App) isLoggedIn() bool {
	return a.session.Snapshot().Authenticated()
}

// status is the prompt prefix: the route on screen and who is signed in.
func (a *App) status() string {
	st := a.session.Snapshot()
	switch {
	case st.Authenticated():
		return fmt.Sprintf("%s @%s", a.screen.Route(), st.User.Username)
	case st.Loading():
		return a.screen.Route() + " ..."
	default:
		return a.screen.Route()
	}
}

func (a *App) lastEmail(ctx context.Context) string {
	v, err := a.store.Metadata.Get(ctx, lastEmailKey)
	if err != nil {
		a.logger.Warn(ctx, "failed to read last email", "error", err)
		return ""
	}
	return string(v)
}

func (a *App) rememberEmail(ctx context.Context, email string) {
	if err := a.store.Metadata.Set(ctx, lastEmailKey, []byte(email)); err != nil {
		a.logger.Warn(ctx, "failed to remember email", "error", err)
	}
}
