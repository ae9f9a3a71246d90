package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/narrate/internal/flagx"
	"github.com/dmitrijs2005/narrate/internal/timex"
)

// JsonConfig is the JSON form of Config. Durations use timex.Duration, so
// both "15m" and integer nanoseconds are accepted. Pointer fields tell an
// absent key from an explicit zero.
type JsonConfig struct {
	EndpointAddr                 string          `json:"endpoint_addr"`
	SecretKey                    string          `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	OTPLength                    *int            `json:"otp_length"`
	OTPValidityDuration          *timex.Duration `json:"otp_validity_duration"`
	AllowedOrigins               []string        `json:"allowed_origins"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config, if any. Only keys present in the file override config. Read and
// unmarshal errors panic.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != "" {
		config.EndpointAddr = c.EndpointAddr
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.OTPLength != nil {
		config.OTPLength = *c.OTPLength
	}
	if c.OTPValidityDuration != nil {
		config.OTPValidityDuration = c.OTPValidityDuration.Duration
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}
