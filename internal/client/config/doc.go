// Package config loads runtime configuration for the Narrate CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the Narrate API
//	-t int      request timeout (seconds)
//	-d string   data directory
//	-l string   log level
//	-f string   log file (stderr when empty)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds. Every key is optional:
//
//	{
//	  "base_url": "https://api.narrate.example",
//	  "request_timeout": "15s",
//	  "data_dir": "/home/me/.narrate",
//	  "log_level": "info",
//	  "log_file": "/home/me/.narrate/narrate.log",
//	  "session_stale_time": "1h",
//	  "session_gc_time": "24h",
//	  "session_retry": 1,
//	  "username_debounce": "500ms",
//	  "post_verify_route": "/profile",
//	  "auto_refresh_tokens": false
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
