package models

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every ConfigError
var ErrConfig = errors.New("invalid configuration")

// ConfigError reports an invalid GameConfig or arena setting. It is fatal
// to the auction instance being constructed and nothing else.
type ConfigError struct {
	Reason string
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}
