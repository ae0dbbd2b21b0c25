package core

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrConflictingCommand is returned when a base command that takes
	// options would also carry subcommands, or a subcommand collides with a group.
	ErrConflictingCommand = errors.New("command conflicts with an existing command tree")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrSyncInProgress     = errors.New("command sync already in progress")
	ErrNotSynced          = errors.New("command has no registry id yet")
)

// CommandError is returned by handlers to show a message to the invoking user.
type CommandError struct {
	Message   string
	Ephemeral bool
	Code      string
}

func (e *CommandError) Error() string {
	return e.Message
}

// NewCommandError creates a CommandError.
func NewCommandError(message string, ephemeral bool) *CommandError {
	return &CommandError{
		Message:   message,
		Ephemeral: ephemeral,
	}
}

// SyncError identifies the remote mutation that stopped a sync.
type SyncError struct {
	Scope   string
	Command string
	Op      string
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %s %q: %v", e.Scope, e.Op, e.Command, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
