package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "ELVIS_GO_CONFIG"
	EnvURL          = "ELVIS_GO_URL"
	EnvUsername     = "ELVIS_GO_USERNAME"
	EnvPassword     = "ELVIS_GO_PASSWORD"
	EnvSessionCache = "ELVIS_GO_SESSION_CACHE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // ELVIS_GO_CONFIG: override config file path
	URL          string // ELVIS_GO_URL: server base URL
	Username     string // ELVIS_GO_USERNAME
	Password     string // ELVIS_GO_PASSWORD
	SessionCache string // ELVIS_GO_SESSION_CACHE: session cache file path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		URL:          os.Getenv(EnvURL),
		Username:     os.Getenv(EnvUsername),
		Password:     os.Getenv(EnvPassword),
		SessionCache: os.Getenv(EnvSessionCache),
	}
}
