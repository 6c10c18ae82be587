package convogen

import (
	"errors"
	"fmt"
)

// ConfigurationError reports invalid generator configuration: bad turn
// bounds, an empty weighted catalog, missing seed data. It is raised
// before any generation starts and is never recovered mid-conversation.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Msg
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// GenerationError wraps a failed language-model round trip (transport
// error, timeout, or unusable output where structure was required).
// The conversation loop catches it at its boundary; it never propagates
// past a single conversation.
type GenerationError struct {
	Op  string // which call failed, e.g. "opening user message"
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func generationErr(op string, err error) error {
	return &GenerationError{Op: op, Err: err}
}
