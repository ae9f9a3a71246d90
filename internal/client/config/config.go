package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the Narrate CLI.
//
// Fields:
//   - BaseURL: root URL of the Narrate API (scheme, host, port).
//   - RequestTimeout: client-side limit for a single HTTP request.
//   - DataDir: directory holding the local database (persisted cookies).
//   - LogLevel: debug, info, warn or error.
//   - LogFile: file receiving logs; empty means stderr.
//   - SessionStaleTime: age after which the cached session is refetched.
//   - SessionGCTime: age after which the cached session is dropped.
//   - SessionRetry: retries of a failed session check.
//   - UsernameDebounce: pause in typing before a username is checked.
//   - PostVerifyRoute: route shown after a successful sign-up verification.
//   - AutoRefreshTokens: renew an expired access token once and replay.
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	DataDir           string
	LogLevel          string
	LogFile           string
	SessionStaleTime  time.Duration
	SessionGCTime     time.Duration
	SessionRetry      int
	UsernameDebounce  time.Duration
	PostVerifyRoute   string
	AutoRefreshTokens bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 15 * time.Second
	c.DataDir = defaultDataDir()
	c.LogLevel = "warn"
	c.LogFile = ""
	c.SessionStaleTime = time.Hour
	c.SessionGCTime = 24 * time.Hour
	c.SessionRetry = 1
	c.UsernameDebounce = 500 * time.Millisecond
	c.PostVerifyRoute = "/profile"
	c.AutoRefreshTokens = false
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".narrate"
	}
	return filepath.Join(home, ".narrate")
}
