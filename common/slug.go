package common

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyKeyName = errors.New("key name cannot be empty")
	nonKeyChars     = regexp.MustCompile(`[^a-z0-9]+`)
)

// KeyName derives a stable snake_case identifier from a display name, e.g.
// "Escalate P1 bugs!" becomes "escalate_p1_bugs". The fallback is used when
// input has no usable characters.
func KeyName(input, fallback string) (string, error) {
	key := keyName(input)
	if key == "" {
		key = keyName(fallback)
	}
	if key == "" {
		return "", ErrEmptyKeyName
	}
	return key, nil
}

func keyName(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	key := nonKeyChars.ReplaceAllString(lower, "_")
	return strings.Trim(key, "_")
}
