package resolve

import (
	"errors"
	"fmt"

	"github.com/small-frappuccino/discordui/pkg/discord/commands/model"
)

var (
	// ErrCouldNotParse matches every *ParseError.
	ErrCouldNotParse = errors.New("could not parse option")

	errNotResolved = errors.New("value not present in resolved data")
	errNotCached   = errors.New("value not cached")
	errNoGuild     = errors.New("interaction has no guild")
	errNotFound    = errors.New("entity not found")
)

// ParseError reports a required option whose value could not be turned into
// a usable object.
type ParseError struct {
	Option string
	Value  any
	Type   model.OptionType
	Method Method
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("could not parse option %q (value %v, type %s, method %s)", e.Option, e.Value, e.Type, e.Method)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Is(target error) bool { return target == ErrCouldNotParse }

func (e *ParseError) Unwrap() error { return e.Err }
