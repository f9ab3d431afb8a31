package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	minLogRetention   = 1
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateCore(cfg)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateCore(cfg *Config) []error {
	var errs []error

	if cfg.RootPath == "" {
		errs = append(errs, errors.New("root_path must be set"))
	}

	switch cfg.ConflictPolicy {
	case ConflictPolicyRemoteWins, ConflictPolicyLocalWins:
	default:
		errs = append(errs, fmt.Errorf(
			"conflict_policy must be %q or %q, got %q",
			ConflictPolicyRemoteWins, ConflictPolicyLocalWins, cfg.ConflictPolicy))
	}

	if cfg.MaxRunDuration != "" && cfg.MaxRunDuration != "0" {
		if _, err := time.ParseDuration(cfg.MaxRunDuration); err != nil {
			errs = append(errs, fmt.Errorf("max_run_duration: %w", err))
		}
	}

	if cfg.LockWaitDuration != "" {
		d, err := time.ParseDuration(cfg.LockWaitDuration)
		if err != nil {
			errs = append(errs, fmt.Errorf("lock_wait_duration: %w", err))
		} else if d <= 0 {
			errs = append(errs, errors.New("lock_wait_duration must be positive"))
		}
	}

	for _, id := range cfg.DatabaseAllowList {
		if id == "" {
			errs = append(errs, errors.New("database_allow_list contains an empty entry"))
		}
	}

	for _, id := range cfg.DatabaseDenyList {
		if id == "" {
			errs = append(errs, errors.New("database_deny_list contains an empty entry"))
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) []error {
	var errs []error

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: unrecognized level %q", cfg.LogLevel))
	}

	switch cfg.LogFormat {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: unrecognized format %q", cfg.LogFormat))
	}

	if cfg.LogRetentionDays != 0 && cfg.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days must be >= %d", minLogRetention))
	}

	return errs
}

func validateNetwork(cfg *NetworkConfig) []error {
	var errs []error

	if cfg.ConnectTimeout != "" {
		d, err := time.ParseDuration(cfg.ConnectTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("connect_timeout: %w", err))
		} else if d < minConnectTimeout {
			errs = append(errs, fmt.Errorf("connect_timeout must be >= %s", minConnectTimeout))
		}
	}

	if cfg.DataTimeout != "" {
		d, err := time.ParseDuration(cfg.DataTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("data_timeout: %w", err))
		} else if d < minDataTimeout {
			errs = append(errs, fmt.Errorf("data_timeout must be >= %s", minDataTimeout))
		}
	}

	return errs
}
