// Package config handles configuration for the development backend,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/narrate/internal/common"
)

// Config holds runtime settings for the Narrate development backend.
//
// Fields:
//   - EndpointAddr: bind address of the HTTP listener.
//   - SecretKey: HMAC secret for JWTs (HS256) and CSRF tokens. Do not reuse outside development.
//   - AccessTokenValidityDuration / RefreshTokenValidityDuration: token lifetimes.
//   - OTPLength / OTPValidityDuration: sign-up verification codes.
//   - AllowedOrigins: browser origins allowed to send credentialed requests.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	EndpointAddr                 string
	SecretKey                    string
	AccessTokenValidityDuration  time.Duration
	RefreshTokenValidityDuration time.Duration
	OTPLength                    int
	OTPValidityDuration          time.Duration
	AllowedOrigins               []string
	LogLevel                     string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8080"
	c.SecretKey = "secretKey"
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 7 * 24 * time.Hour
	c.OTPLength = common.OTPLength
	c.OTPValidityDuration = 10 * time.Minute
	c.AllowedOrigins = []string{"http://localhost:5173"}
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
