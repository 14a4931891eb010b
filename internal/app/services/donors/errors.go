package donorsvc

import (
	"errors"
	"sort"
	"strings"

	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
)

var (
	// ErrUnauthenticated is returned when a mutation has no actor id. It is
	// checked before any store access.
	ErrUnauthenticated = errors.New("you must be signed in to do that")
	// ErrNotFound is returned when the referenced donor (or document) is absent.
	ErrNotFound = donorstore.ErrNotFound
	// ErrDuplicateEmail is returned when another donor already uses the email.
	ErrDuplicateEmail = donorstore.ErrDuplicateEmail
	// ErrNoStorage is returned by document operations when no object store is
	// configured.
	ErrNoStorage = errors.New("document storage is not configured")
)

// ValidationError carries one message per offending form field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid donor: " + strings.Join(parts, "; ")
}
