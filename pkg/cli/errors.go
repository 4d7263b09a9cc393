package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitUnhealthy = 3
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	// Field is the configuration path, empty for file level errors
	Field string

	// Message describes the problem
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UnhealthyError reports services without a healthy endpoint after a check.
type UnhealthyError struct {
	// Unhealthy is the number of services that failed
	Unhealthy int

	// Total is the number of services probed
	Total int
}

func (e *UnhealthyError) Error() string {
	return fmt.Sprintf("%d of %d services unavailable", e.Unhealthy, e.Total)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var (
		configErr    *ConfigError
		unhealthyErr *UnhealthyError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &unhealthyErr):
		return ExitUnhealthy
	default:
		return ExitFailure
	}
}
