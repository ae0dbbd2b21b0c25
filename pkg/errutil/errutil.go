package errutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/discordui/pkg/logging"
)

// HandleDiscordError executes fn and logs any error that occurs as a Discord-related error.
// It returns whatever error fn returns (unmodified), after logging it.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}

	err := fn()
	if err == nil {
		return nil
	}

	logging.Global().Slog().Debug("Discord operation failed",
		"operation", operation,
		"status", StatusCode(err),
		"error", err,
	)
	return err
}

// HandleConfigError executes fn and wraps any error with the operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}

	err := fn()
	if err == nil {
		return nil
	}

	logging.Global().Slog().Error("Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}

// StatusCode extracts the HTTP status of a discordgo REST error, or 0.
func StatusCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

// IsForbidden reports whether err is a 403 from the Discord API
// (missing access to a guild's command scope, for instance).
func IsForbidden(err error) bool {
	if StatusCode(err) == http.StatusForbidden {
		return true
	}
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeMissingAccess
}

// IsNotFound reports whether err is a 404 from the Discord API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
