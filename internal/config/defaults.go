package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultSessionBackend = BackendFile
	defaultRedisKey       = "elvis:session"
	defaultSessionTTL     = "0"
	defaultRequestTimeout = "60s"
	defaultConnectTimeout = "10s"
	defaultMaxRetries     = 3
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// Session cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// DefaultConfig returns a Config populated with all default values. It is the
// starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			SessionBackend: defaultSessionBackend,
			RedisKey:       defaultRedisKey,
			SessionTTL:     defaultSessionTTL,
		},
		Network: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
			ConnectTimeout: defaultConnectTimeout,
			MaxRetries:     defaultMaxRetries,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
