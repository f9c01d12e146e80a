package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "CLOUDEXPLORER_CONFIG"
	EnvAccount  = "CLOUDEXPLORER_ACCOUNT"
	EnvLogLevel = "CLOUDEXPLORER_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // CLOUDEXPLORER_CONFIG: config file path
	Account    string // CLOUDEXPLORER_ACCOUNT: active account name
	LogLevel   string // CLOUDEXPLORER_LOG_LEVEL: log level
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Account:    os.Getenv(EnvAccount),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
