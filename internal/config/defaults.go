package config

// Default values for configuration options. These represent the "layer 0"
// of the defaults-then-file-then-env-then-CLI override chain and are chosen
// to be safe, reasonable starting points that work without any config file.
const (
	defaultConflictPolicy   = ConflictPolicyRemoteWins
	defaultMaxRunDuration   = "0"
	defaultLockWaitDuration = "8s"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogRetentionDays = 30
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ConflictPolicy:   defaultConflictPolicy,
		MaxRunDuration:   defaultMaxRunDuration,
		LockWaitDuration: defaultLockWaitDuration,
		Logging:          defaultLoggingConfig(),
		Network:          defaultNetworkConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		LogRetentionDays: defaultLogRetentionDays,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}
