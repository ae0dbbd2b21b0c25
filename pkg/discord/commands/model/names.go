package model

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength        = 32
	MaxDescriptionLength = 100
	MaxChoices           = 25
	MaxOptions           = 25
)

// FormatName normalizes a chat-input command or base name: trimmed, lowercased,
// spaces replaced by hyphens. It is idempotent.
func FormatName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// FormatOptionName normalizes an option name: trimmed, lowercased, spaces replaced by underscores.
func FormatOptionName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func checkLength(field, value string, min, max int) error {
	if n := utf8.RuneCountInString(value); n < min || n > max {
		return invalidLength(field, value, min, max)
	}
	return nil
}

func validateName(field, name string) error {
	return checkLength(field, name, 1, MaxNameLength)
}

func validateDescription(desc string) error {
	return checkLength("description", desc, 1, MaxDescriptionLength)
}
