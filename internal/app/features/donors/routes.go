// internal/app/features/donors/routes.go
package donors

import (
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the donor API under /donors. Any signed-in staff member may
// read and edit donors; hard deletes are limited to admins and managers.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ServeList)
	r.Post("/", h.ServeCreate)
	r.Get("/search", h.ServeSearch)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.ServeGet)
		r.Patch("/", h.ServeUpdate)
		r.With(sm.RequireRole(models.RoleAdmin, models.RoleManager)).Delete("/", h.ServeDelete)
		r.Post("/deactivate", h.ServeDeactivate)
		r.Post("/reactivate", h.ServeReactivate)

		r.Post("/documents", h.ServeAttachDocument)
		r.Get("/documents/{docID}", h.ServeDocument)
		r.Delete("/documents/{docID}", h.ServeRemoveDocument)
	})
	return r
}
