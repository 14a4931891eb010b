// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes is mounted at /login. All routes are public.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.ServeLogin)
	r.Post("/reset", h.ServeResetRequest)
	r.Post("/reset/confirm", h.ServeResetConfirm)
	return r
}
