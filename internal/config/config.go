// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for elvis-go. Values are resolved through
// a four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
}

// ServiceConfig identifies the Elvis server, the account used to log in, and
// where the shared login response is cached.
type ServiceConfig struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	SessionCache   string `toml:"session_cache"`
	SessionBackend string `toml:"session_backend"`
	RedisURL       string `toml:"redis_url"`
	RedisKey       string `toml:"redis_key"`
	SessionTTL     string `toml:"session_ttl"`
}

// NetworkConfig controls HTTP client behavior: timeouts, retries, request
// rate, and user agent.
type NetworkConfig struct {
	RequestTimeout    string  `toml:"request_timeout"`
	ConnectTimeout    string  `toml:"connect_timeout"`
	MaxRetries        int     `toml:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath   string  // --config flag (empty = use default)
	URL          *string // --url flag
	Username     *string // --username flag
	SessionCache *string // --session-cache flag
}

// Resolved is the effective configuration after all override layers are
// applied and durations are parsed. It is what the CLI builds clients from.
type Resolved struct {
	ConfigPath string

	URL            string
	Username       string
	Password       string
	SessionCache   string
	SessionBackend string
	RedisURL       string
	RedisKey       string
	SessionTTL     time.Duration

	RequestTimeout    time.Duration
	ConnectTimeout    time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	UserAgent         string

	LogLevel  string
	LogFormat string
}
