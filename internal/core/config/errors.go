package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a required credential or setting that is missing.
type ConfigurationError struct {
	Key  string
	Path Path
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s is required for %s (set %s)", e.Key, e.Path, EnvName(e.Key))
}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return envPrefix + strings.ToUpper(key)
}
