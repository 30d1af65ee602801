package cli

import (
	"errors"
	"fmt"

	"mercator-hq/throttle/pkg/config"
)

// Exit codes returned by the throttle command.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfigError = 2
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
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

// ExitCode maps an error returned by a command to a process exit code.
// Configuration problems, including validation failures, exit with
// ExitConfigError.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cfgErr *ConfigError
	var valErr config.ValidationError
	if errors.As(err, &cfgErr) || errors.As(err, &valErr) {
		return ExitConfigError
	}
	return ExitError
}
