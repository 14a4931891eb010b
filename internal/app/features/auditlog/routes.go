// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit log routes (typically at "/audit").
//
// The full log is admin-only. A donor's history is readable by any signed-in
// staff member, since it only covers records they can already see.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/donors/{id}", h.ServeDonorHistory)

		pr.With(sm.RequireRole(models.RoleAdmin)).Get("/", h.ServeList)
	})

	return r
}
