package auth

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/narrate/internal/logging"
)

// UsernameAPI is the backend call used by UsernameChecker.
type UsernameAPI interface {
	CheckUsername(ctx context.Context, username string) (bool, error)
}

const (
	DefaultUsernameDebounce = 500 * time.Millisecond
	MinUsernameLength       = 3

	// verdicts are reused for this long before the backend is asked again
	usernameVerdictTTL = 30 * time.Second
	usernameTimeout    = 10 * time.Second
)

type AvailabilityState string

const (
	// AvailabilityIdle means no check applies: the draft is too short.
	AvailabilityIdle     AvailabilityState = "idle"
	AvailabilityChecking AvailabilityState = "checking"
	AvailabilityFree     AvailabilityState = "available"
	AvailabilityTaken    AvailabilityState = "taken"
	AvailabilityUnknown  AvailabilityState = "unknown"
)

// Availability is the verdict for one username draft.
type Availability struct {
	Username string
	State    AvailabilityState
	Err      error
}

type verdict struct {
	exists bool
	at     time.Time
}

// UsernameChecker checks username availability while the user types. Each
// Update restarts the debounce timer and abandons any check in flight, so
// Current only ever describes the latest draft.
type UsernameChecker struct {
	api      UsernameAPI
	delay    time.Duration
	logger   logging.Logger
	now      func() time.Time
	onChange func(Availability)

	mu       sync.Mutex
	draft    string
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	current  Availability
	verdicts map[string]verdict
	closed   bool
}

func NewUsernameChecker(api UsernameAPI, delay time.Duration, logger logging.Logger) *UsernameChecker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &UsernameChecker{
		api:      api,
		delay:    delay,
		logger:   logger.With("component", "username-check"),
		now:      time.Now,
		current:  Availability{State: AvailabilityIdle},
		verdicts: make(map[string]verdict),
	}
}

// OnChange registers fn to be called with every new verdict. It must be
// set before the first Update.
func (c *UsernameChecker) OnChange(fn func(Availability)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Update records a new draft value and schedules its check.
func (c *UsernameChecker) Update(username string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.gen++
	c.stopLocked()
	c.draft = username

	switch v, ok := c.verdicts[username]; {
	case utf8.RuneCountInString(username) < MinUsernameLength:
		c.current = Availability{Username: username, State: AvailabilityIdle}
	case ok && c.now().Sub(v.at) < usernameVerdictTTL:
		c.current = verdictOf(username, v.exists)
	default:
		c.current = Availability{Username: username, State: AvailabilityChecking}
		gen := c.gen
		c.timer = time.AfterFunc(c.delay, func() { c.check(gen, username) })
	}
	av, fn := c.current, c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(av)
	}
}

// Current returns the verdict for the latest draft.
func (c *UsernameChecker) Current() Availability {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Taken reports whether username is known to be taken. Unknown and pending
// verdicts do not count.
func (c *UsernameChecker) Taken(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Username == username && c.current.State == AvailabilityTaken
}

// Close stops pending work. Later Updates are ignored.
func (c *UsernameChecker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopLocked()
	c.closed = true
}

func (c *UsernameChecker) check(gen uint64, username string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), usernameTimeout)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	exists, err := c.api.CheckUsername(ctx, username)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug(ctx, "stale username check discarded", "username", username)
		return
	}
	c.cancel = nil
	if err != nil {
		c.current = Availability{Username: username, State: AvailabilityUnknown, Err: err}
	} else {
		c.verdicts[username] = verdict{exists: exists, at: c.now()}
		c.current = verdictOf(username, exists)
	}
	av, fn := c.current, c.onChange
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn(ctx, "username check failed", "username", username, "error", err)
	}
	if fn != nil {
		fn(av)
	}
}

func (c *UsernameChecker) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func verdictOf(username string, exists bool) Availability {
	if exists {
		return Availability{Username: username, State: AvailabilityTaken}
	}
	return Availability{Username: username, State: AvailabilityFree}
}
