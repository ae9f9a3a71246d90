// Package cookiejar provides an http.CookieJar that survives restarts of the
// CLI. Cookies live in an in-memory net/http/cookiejar.Jar for request
// matching and are mirrored into the local metadata table, one record per
// origin.
package cookiejar

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	stdjar "net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/narrate/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/narrate/internal/dbx"
	"github.com/dmitrijs2005/narrate/internal/logging"
)

const keyPrefix = "cookies:"

// record is the stored form of one cookie.
type record struct {
	Name     string        `json:"name"`
	Value    string        `json:"value"`
	Path     string        `json:"path,omitempty"`
	Domain   string        `json:"domain,omitempty"`
	Expires  time.Time     `json:"expires,omitzero"`
	Secure   bool          `json:"secure,omitempty"`
	HttpOnly bool          `json:"httpOnly,omitempty"`
	SameSite http.SameSite `json:"sameSite,omitempty"`
}

func (r record) key() string {
	return r.Name + "|" + r.Domain + "|" + r.Path
}

func (r record) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     r.Name,
		Value:    r.Value,
		Path:     r.Path,
		Domain:   r.Domain,
		Expires:  r.Expires,
		Secure:   r.Secure,
		HttpOnly: r.HttpOnly,
		SameSite: r.SameSite,
	}
}

// Jar is a persistent http.CookieJar. It is safe for concurrent use.
type Jar struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time

	// saveMu orders database writes so an older snapshot never overwrites a
	// newer one
	saveMu sync.Mutex

	mu      sync.RWMutex
	mem     *stdjar.Jar
	origins map[string]map[string]record
}

var _ http.CookieJar = (*Jar)(nil)

// New creates an empty jar writing to db. Call Load to restore the cookies
// saved by a previous run.
func New(db *sql.DB, logger logging.Logger) (*Jar, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	mem, err := stdjar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Jar{
		db:      db,
		logger:  logger.With("component", "cookiejar"),
		now:     time.Now,
		mem:     mem,
		origins: make(map[string]map[string]record),
	}, nil
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.mem.Cookies(u)
}

// SetCookies implements http.CookieJar. Cookies are stored in memory at once
// and written to the database synchronously; a failed write is logged since
// the interface cannot report it.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	origin := originOf(u)

	j.saveMu.Lock()
	defer j.saveMu.Unlock()

	j.mu.Lock()
	j.mem.SetCookies(u, cookies)

	recs := j.origins[origin]
	if recs == nil {
		recs = make(map[string]record)
		j.origins[origin] = recs
	}
	now := j.now()
	for _, c := range cookies {
		r := toRecord(c, now)
		if c.MaxAge < 0 || (!r.Expires.IsZero() && !r.Expires.After(now)) {
			delete(recs, r.key())
			continue
		}
		recs[r.key()] = r
	}
	snapshot := sortedRecords(recs)
	j.mu.Unlock()

	if err := j.save(context.Background(), origin, snapshot); err != nil {
		j.logger.Error(context.Background(), "failed to persist cookies", "origin", origin, "error", err)
	}
}

// Load restores saved cookies into memory, dropping the expired ones.
func (j *Jar) Load(ctx context.Context) error {
	stored, err := metadata.NewSQLiteRepository(j.db).ListPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	loaded := 0
	for key, raw := range stored {
		origin := strings.TrimPrefix(key, keyPrefix)
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			j.logger.Warn(ctx, "skipping malformed cookie origin", "origin", origin)
			continue
		}

		var recs []record
		if err := json.Unmarshal(raw, &recs); err != nil {
			j.logger.Warn(ctx, "skipping unreadable cookies", "origin", origin, "error", err)
			continue
		}

		live := make(map[string]record, len(recs))
		cookies := make([]*http.Cookie, 0, len(recs))
		for _, r := range recs {
			if !r.Expires.IsZero() && !r.Expires.After(now) {
				continue
			}
			live[r.key()] = r
			cookies = append(cookies, r.cookie())
		}
		j.origins[origin] = live
		j.mem.SetCookies(u, cookies)
		loaded += len(cookies)
	}

	j.logger.Debug(ctx, "cookies loaded", "count", loaded)
	return nil
}

// Clear forgets every cookie, in memory and on disk.
func (j *Jar) Clear(ctx context.Context) error {
	mem, err := stdjar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}

	j.saveMu.Lock()
	defer j.saveMu.Unlock()

	j.mu.Lock()
	j.mem = mem
	j.origins = make(map[string]map[string]record)
	j.mu.Unlock()

	if err := metadata.NewSQLiteRepository(j.db).DeletePrefix(ctx, keyPrefix); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

func (j *Jar) save(ctx context.Context, origin string, recs []record) error {
	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if len(recs) == 0 {
			return repo.Delete(ctx, keyPrefix+origin)
		}
		raw, err := json.Marshal(recs)
		if err != nil {
			return err
		}
		return repo.Set(ctx, keyPrefix+origin, raw)
	})
}

func originOf(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// toRecord converts a response cookie. Max-Age wins over Expires, as in
// RFC 6265; cookies without either are kept until cleared.
func toRecord(c *http.Cookie, now time.Time) record {
	r := record{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		SameSite: c.SameSite,
	}
	switch {
	case c.MaxAge > 0:
		r.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		r.Expires = c.Expires
	}
	return r
}

func sortedRecords(m map[string]record) []record {
	out := make([]record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].key() < out[b].key() })
	return out
}
