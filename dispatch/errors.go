package dispatch

import "fmt"

// ConfigError reports invalid run configuration. It is always raised before
// any process is spawned; a run that fails with it has no side effects.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
