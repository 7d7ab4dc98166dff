package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the validated effective configuration.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	applyEnv(&cfg.Service, env)

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.URL != nil {
		cfg.Service.URL = *cli.URL
	}

	if cli.Username != nil {
		cfg.Service.Username = *cli.Username
	}

	if cli.SessionCache != nil {
		cfg.Service.SessionCache = *cli.SessionCache
	}

	// 5. Validate the merged result and parse durations
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := buildResolved(cfg)
	resolved.ConfigPath = cfgPath

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

func applyEnv(s *ServiceConfig, env EnvOverrides) {
	if env.URL != "" {
		s.URL = env.URL
	}

	if env.Username != "" {
		s.Username = env.Username
	}

	if env.Password != "" {
		s.Password = env.Password
	}

	if env.SessionCache != "" {
		s.SessionCache = env.SessionCache
	}
}

// buildResolved converts a validated Config. Durations were checked by
// Validate, so parse errors cannot occur here.
func buildResolved(cfg *Config) *Resolved {
	cache := expandTilde(cfg.Service.SessionCache)
	if cache == "" {
		cache = DefaultSessionCachePath()
	}

	return &Resolved{
		URL:               cfg.Service.URL,
		Username:          cfg.Service.Username,
		Password:          cfg.Service.Password,
		SessionCache:      cache,
		SessionBackend:    cfg.Service.SessionBackend,
		RedisURL:          cfg.Service.RedisURL,
		RedisKey:          cfg.Service.RedisKey,
		SessionTTL:        mustDuration(cfg.Service.SessionTTL),
		RequestTimeout:    mustDuration(cfg.Network.RequestTimeout),
		ConnectTimeout:    mustDuration(cfg.Network.ConnectTimeout),
		MaxRetries:        cfg.Network.MaxRetries,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
		UserAgent:         cfg.Network.UserAgent,
		LogLevel:          cfg.Logging.LogLevel,
		LogFormat:         cfg.Logging.LogFormat,
	}
}

// mustDuration parses a validated duration. "0" and "" mean zero.
func mustDuration(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
