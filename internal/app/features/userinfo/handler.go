// internal/app/features/userinfo/handler.go
package userinfo

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/donorhub/internal/app/system/auth"
)

// Handler serves the current session principal.
type Handler struct{}

// NewHandler creates a new userinfo handler.
func NewHandler() *Handler {
	return &Handler{}
}

// ServeUserInfo returns the principal restored by LoadSessionUser.
//
// Response format:
//
//	{ "is_authenticated": bool, "user": { "id", "name", "email", "role" } | null }
//
// A session that was force-signed-out on this request (profile unavailable)
// reads as unauthenticated.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	user, ok := auth.CurrentUser(r)
	if !ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_authenticated": false,
			"user":             nil,
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"is_authenticated": true,
		"user":             user,
	})
}
