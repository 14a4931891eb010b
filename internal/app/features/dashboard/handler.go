// internal/app/features/dashboard/handler.go
package dashboard

import (
	"net/http"

	uierrors "github.com/dalemusser/donorhub/internal/app/features/errors"
	donorsvc "github.com/dalemusser/donorhub/internal/app/services/donors"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/formutil"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"go.uber.org/zap"
)

// RecentCount is how many of the newest donors the dashboard lists.
const RecentCount = 5

type Handler struct {
	Donors *donorsvc.Service
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

func NewHandler(svc *donorsvc.Service, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Donors: svc,
		Log:    logger,
		ErrLog: errLog,
	}
}

type dashboardData struct {
	User    *auth.SessionUser `json:"user"`
	Summary donorsvc.Summary  `json:"summary"`
	Recent  []models.Donor    `json:"recent"`
}

// ServeDashboard handles GET /dashboard: donor counts plus the newest
// donors. Both come from the query cache.
func (h *Handler) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	ctx := r.Context()

	sum, err := h.Donors.Summary(ctx)
	if err != nil {
		h.ErrLog.Respond(w, r, "dashboard summary", err)
		return
	}
	all, err := h.Donors.List(ctx, false)
	if err != nil {
		h.ErrLog.Respond(w, r, "dashboard recent donors", err)
		return
	}
	recent := make([]models.Donor, 0, RecentCount)
	for i := 0; i < len(all) && i < RecentCount; i++ {
		recent = append(recent, all[i])
	}

	formutil.WriteJSON(w, http.StatusOK, dashboardData{User: u, Summary: sum, Recent: recent})
}
