package proxy

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every *ConfigError via errors.Is.
var ErrConfig = errors.New("proxy config error")

// ConfigError reports an empty or malformed proxy source. It is fatal to a
// run and is never retried.
type ConfigError struct {
	// Source names the file or reader the records came from.
	Source string

	// Line is the 1-based line number of the offending record (0 if the
	// error is about the source as a whole).
	Line int

	// Reason describes what is wrong. Credentials are never included.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("proxy source %s line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("proxy source %s: %s", e.Source, e.Reason)
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
