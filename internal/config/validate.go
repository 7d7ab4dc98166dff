package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minRequestTimeout = 1 * time.Second
	minConnectTimeout = 1 * time.Second
	maxRetries        = 10
	maxRequestsPerSec = 1000
)

var validBackends = map[string]bool{
	BackendFile:  true,
	BackendRedis: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense once every
// override layer has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.URL == "" {
		errs = append(errs, fmt.Errorf("url: required (set [service] url or %s)", EnvURL))
	}

	if r.SessionBackend == BackendRedis && r.RedisURL == "" {
		errs = append(errs, errors.New("redis_url: required when session_backend is \"redis\""))
	}

	return errors.Join(errs...)
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("url: must be an absolute http(s) URL, got %q", s.URL))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("url: scheme must be http or https, got %q", u.Scheme))
		}
	}

	if !validBackends[s.SessionBackend] {
		errs = append(errs, fmt.Errorf("session_backend: must be \"file\" or \"redis\", got %q", s.SessionBackend))
	}

	if s.SessionBackend == BackendRedis && s.RedisKey == "" {
		errs = append(errs, errors.New("redis_key: must not be empty"))
	}

	if err := validateDuration("session_ttl", s.SessionTTL, 0); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDuration("request_timeout", n.RequestTimeout, minRequestTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if n.MaxRetries < -1 || n.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between -1 and %d, got %d", maxRetries, n.MaxRetries))
	}

	if n.RequestsPerSecond < 0 || n.RequestsPerSecond > maxRequestsPerSec {
		errs = append(errs, fmt.Errorf("requests_per_second: must be between 0 and %d, got %g",
			maxRequestsPerSec, n.RequestsPerSecond))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

// validateDuration checks that s parses as a Go duration of at least
// minimum. "0" is accepted only when minimum is zero.
func validateDuration(field, s string, minimum time.Duration) error {
	if s == "0" && minimum == 0 {
		return nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", field, minimum, s)
	}

	return nil
}
