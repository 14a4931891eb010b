// internal/app/features/errors/render.go
package errors

import (
	"encoding/json"
	"net/http"
)

type body struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, b body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(b)
}

// RenderValidation responds 422 with one message per field.
func RenderValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, body{Error: "Please correct the highlighted fields.", Fields: fields})
}

// RenderBadRequest responds 400.
func RenderBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, body{Error: orDefault(msg, "Bad request.")})
}

// RenderUnauthorized responds 401.
func RenderUnauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, body{Error: orDefault(msg, "Please sign in to continue.")})
}

// RenderForbidden responds 403.
func RenderForbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, body{Error: orDefault(msg, "You don't have permission to do that.")})
}

// RenderNotFound responds 404.
func RenderNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, body{Error: orDefault(msg, "Not found.")})
}

// RenderTooManyRequests responds 429.
func RenderTooManyRequests(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusTooManyRequests, body{Error: orDefault(msg, "Too many attempts. Please wait and try again.")})
}

// RenderServerError responds 500. Callers log first; msg is shown as-is.
func RenderServerError(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusInternalServerError, body{Error: orDefault(msg, "Something went wrong.")})
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
