package config

import "github.com/tonimelisma/cloudexplorer/internal/walk"

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultLogLevel       = "warn"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultUserAgent      = "cloudexplorer/dev"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{LogLevel: defaultLogLevel},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
		Walk: WalkConfig{ParallelListings: walk.DefaultParallelism},
	}
}
