// Package session keeps the client's view of "who is the current user".
//
// The Cache fetches the identity lazily from the backend session endpoint and
// serves it from memory while it is fresh. Its policy mirrors a query cache:
// a staleness window after which the next read refetches, a retention window
// after which the value is dropped, one retry on transient failure, and
// per-trigger refetch switches (mount, focus, reconnect).
//
// A failed check never surfaces as an error return: it resolves to the
// unauthenticated or error state so observers always have something to act on.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/client"
	"github.com/dmitrijs2005/narrate/internal/client/models"
	"github.com/dmitrijs2005/narrate/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the subset of the API client the cache needs.
type Fetcher interface {
	SessionCheck(ctx context.Context) (*models.User, error)
}

type Cache struct {
	fetcher Fetcher
	opts    Options
	logger  logging.Logger
	now     func() time.Time

	mu          sync.Mutex
	state       State
	hasData     bool
	invalidated bool
	generation  uint64
	// invalidations counts Invalidate calls; fetched is the count a stored
	// result was requested under
	invalidations uint64
	fetched       uint64
	subs        map[int]chan State
	nextSub     int

	group singleflight.Group
}

// New creates a cache over f. Zero-valued fields of opts are not replaced by
// defaults; start from DefaultOptions.
func New(f Fetcher, opts Options, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Cache{
		fetcher: f,
		opts:    opts,
		logger:  logger.With("component", "session"),
		now:     time.Now,
		state:   State{Status: StatusLoading},
		subs:    make(map[int]chan State),
	}
}

// Snapshot returns the cached state without touching the network.
func (c *Cache) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return c.state.clone()
}

// Get returns the cached state, refetching first when nothing is cached, the
// value was invalidated, or it is older than the staleness window.
func (c *Cache) Get(ctx context.Context) State {
	c.mu.Lock()
	c.sweepLocked()
	if !c.needsFetchLocked() {
		st := c.state.clone()
		c.mu.Unlock()
		return st
	}
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Mount is called when a consumer newly subscribes to the session (a view
// is entered). With RefetchOnMount set to MountAlways it refreshes
// regardless of staleness.
func (c *Cache) Mount(ctx context.Context) State {
	switch c.opts.RefetchOnMount {
	case MountAlways:
		return c.Refresh(ctx)
	case MountNever:
		c.mu.Lock()
		c.sweepLocked()
		if c.hasData {
			st := c.state.clone()
			c.mu.Unlock()
			return st
		}
		c.mu.Unlock()
		return c.Get(ctx)
	default:
		return c.Get(ctx)
	}
}

// OnFocus handles the application regaining focus.
func (c *Cache) OnFocus(ctx context.Context) State {
	if !c.opts.RefetchOnFocus {
		return c.Snapshot()
	}
	return c.Get(ctx)
}

// OnReconnect handles network connectivity coming back.
func (c *Cache) OnReconnect(ctx context.Context) State {
	if !c.opts.RefetchOnReconnect {
		return c.Snapshot()
	}
	return c.Get(ctx)
}

// Invalidate marks the cached value stale so the next Get refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.invalidations++
	c.mu.Unlock()
	c.logger.Debug(context.Background(), "session invalidated")
}

// Clear drops the cached value. Fetches already in flight finish, but their
// results are discarded. Clearing an empty cache is a no-op beyond that.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.hasData = false
	c.invalidated = false
	c.state = State{Status: StatusLoading}
	c.notifyLocked()
}

// Refresh fetches the session now, sharing the request with concurrent
// callers. If ctx ends before the fetch completes, the result is discarded
// and the current snapshot is returned. A fetch that started before an
// Invalidate is not shared with later callers and leaves the value stale.
//
// A transient failure does not evict a signed-in user: the last known
// identity is kept with Err set and the next Get checks again.
func (c *Cache) Refresh(ctx context.Context) State {
	c.mu.Lock()
	gen, inv := c.generation, c.invalidations
	if !c.hasData && c.state.Status != StatusLoading {
		c.state = State{Status: StatusLoading}
		c.notifyLocked()
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("session-%d-%d", gen, inv), func() (any, error) {
		return c.fetch(ctx)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || gen != c.generation || inv < c.fetched {
		c.logger.Debug(ctx, "session fetch result discarded", "error", err)
		return c.state.clone()
	}
	c.fetched = inv

	st := v.(State)
	if st.Status == StatusError && c.hasData && c.state.Authenticated() {
		c.logger.Warn(ctx, "session check failed, keeping last known user", "error", st.Err)
		c.state.Err = st.Err
		c.invalidated = true
		c.notifyLocked()
		return c.state.clone()
	}

	c.state = st
	c.hasData = st.Status != StatusError
	c.invalidated = inv != c.invalidations
	c.notifyLocked()

	return c.state.clone()
}

// fetch performs the session check with the configured number of retries.
// The only error it returns is the context's; every other failure becomes a
// state.
func (c *Cache) fetch(ctx context.Context) (State, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retry; attempt++ {
		if attempt > 0 {
			c.logger.Info(ctx, "retrying session check", "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, c.opts.RetryDelay); err != nil {
				return State{}, err
			}
		}

		user, err := c.fetcher.SessionCheck(ctx)
		if err == nil {
			if user == nil {
				return State{Status: StatusUnauthenticated, UpdatedAt: c.now()}, nil
			}
			c.logger.Info(ctx, "session loaded", "user_id", user.ID)
			return State{Status: StatusAuthenticated, User: user.Clone(), UpdatedAt: c.now()}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return State{}, ctxErr
		}
		if errors.Is(err, client.ErrUnauthorized) {
			c.logger.Info(ctx, "no active session")
			return State{Status: StatusUnauthenticated, Err: err, UpdatedAt: c.now()}, nil
		}
		lastErr = err
	}

	c.logger.Warn(ctx, "session check failed", "error", lastErr)
	return State{Status: StatusError, Err: lastErr, UpdatedAt: c.now()}, nil
}

func (c *Cache) needsFetchLocked() bool {
	return !c.hasData || c.invalidated || c.now().Sub(c.state.UpdatedAt) >= c.opts.StaleTime
}

// Sweep drops the cached value once it is older than the retention window.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
}

func (c *Cache) sweepLocked() {
	if !c.hasData || c.now().Sub(c.state.UpdatedAt) < c.opts.GCTime {
		return
	}
	c.logger.Debug(context.Background(), "session dropped after retention window")
	c.hasData = false
	c.invalidated = false
	c.state = State{Status: StatusLoading}
	c.notifyLocked()
}

// StartJanitor sweeps the cache every interval until ctx is done.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe returns a channel that receives the latest state after every
// change, and a function that ends the subscription. Slow readers only
// miss intermediate states, never the latest one.
func (c *Cache) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) notifyLocked() {
	for _, ch := range c.subs {
		st := c.state.clone()
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
