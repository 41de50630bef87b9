package session

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// reservedNames are directory names the daemon uses inside the base dir and
// can therefore never be sessions.
var reservedNames = map[string]bool{
	"sessions": true,
	"logs":     true,
}

// ValidateName checks that name is usable as a session: lowercase
// alphanumerics, underscores and dashes, up to 64 chars, not starting with
// a dash (flag-lookalike) or underscore, and not a reserved directory name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: want 1-64 chars of [a-z0-9_-], starting with a letter or digit", name)
	}
	if reservedNames[name] {
		return fmt.Errorf("invalid session name %q: reserved", name)
	}
	return nil
}
