package interaction

import "errors"

var (
	// ErrNotSupported is returned for actions the interaction kind does not
	// allow (defer or respond on autocomplete, choices on a command).
	ErrNotSupported = errors.New("interaction: action not supported for this interaction kind")
	// ErrEphemeralDeletion is returned when a hidden message is asked to be deleted.
	ErrEphemeralDeletion = errors.New("interaction: hidden messages cannot be deleted")
	ErrAlreadyResponded  = errors.New("interaction: already responded")
	ErrNotResponded      = errors.New("interaction: no response to act on yet")
)
