// Package normalize trims and canonicalizes user input before it is
// compared or stored.
package normalize

import (
	"strings"

	"github.com/dalemusser/waffle/pantry/text"
)

// Email trims and lowercases an email address. The result is the key used
// for case-insensitive uniqueness.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims and collapses internal runs of whitespace. Case is preserved.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NameCI returns the folded (lowercase, diacritics-stripped) form of a name.
func NameCI(s string) string {
	return text.Fold(Name(s))
}

// Role trims and lowercases a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryParam trims a query string value; case is preserved.
func QueryParam(s string) string {
	return strings.TrimSpace(s)
}
