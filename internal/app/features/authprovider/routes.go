// internal/app/features/authprovider/routes.go
package authprovider

import "github.com/go-chi/chi/v5"

// Routes is mounted at /auth. These routes are public.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// GET /auth/{provider} - start the flow
	r.Get("/{provider}", h.ServeStart)

	// Apple posts its callback (response_mode=form_post); the others redirect.
	r.Get("/{provider}/callback", h.ServeCallback)
	r.Post("/{provider}/callback", h.ServeCallback)

	return r
}
