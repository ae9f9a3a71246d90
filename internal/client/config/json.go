package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/narrate/internal/flagx"
	"github.com/dmitrijs2005/narrate/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "3s" or as integer nanoseconds. Pointer fields distinguish
// "absent" from an explicit zero.
type JsonConfig struct {
	BaseURL           string          `json:"base_url"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	DataDir           string          `json:"data_dir"`
	LogLevel          string          `json:"log_level"`
	LogFile           string          `json:"log_file"`
	SessionStaleTime  *timex.Duration `json:"session_stale_time"`
	SessionGCTime     *timex.Duration `json:"session_gc_time"`
	SessionRetry      *int            `json:"session_retry"`
	UsernameDebounce  *timex.Duration `json:"username_debounce"`
	PostVerifyRoute   string          `json:"post_verify_route"`
	AutoRefreshTokens *bool           `json:"auto_refresh_tokens"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file is named by -c or -config on the command line; without either,
// nothing is loaded. Only keys present in the file override cfg, so the
// file may be partial. Read and unmarshal errors panic (caller should
// recover if desired).
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFile, jc.LogFile)
	setString(&cfg.PostVerifyRoute, jc.PostVerifyRoute)

	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SessionStaleTime != nil {
		cfg.SessionStaleTime = jc.SessionStaleTime.Duration
	}
	if jc.SessionGCTime != nil {
		cfg.SessionGCTime = jc.SessionGCTime.Duration
	}
	if jc.SessionRetry != nil {
		cfg.SessionRetry = *jc.SessionRetry
	}
	if jc.UsernameDebounce != nil {
		cfg.UsernameDebounce = jc.UsernameDebounce.Duration
	}
	if jc.AutoRefreshTokens != nil {
		cfg.AutoRefreshTokens = *jc.AutoRefreshTokens
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
