// Package formutil decodes API request bodies and writes JSON responses.
//
// Handlers accept a single JSON object per request. Unknown fields are
// rejected so typos in field names surface as 400s instead of silently
// dropped input.
package formutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes caps a JSON request body.
const MaxBodyBytes = 1 << 20

// ErrBody is returned for an unreadable, oversized or malformed body.
var ErrBody = errors.New("request body must be a single JSON object")

// Decode reads one JSON object from r into dst.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", ErrBody)
	}
	return nil
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
