// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
	AuditLog   *auditlog.Logger
}

func NewHandler(sessionMgr *auth.SessionManager, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
		AuditLog:   audit,
	}
}

// ServeLogout handles POST /logout. It always clears the cookie, even when
// the session could not be decoded, and answers 204.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	uid := h.SessionMgr.UID(r)

	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}
	if uid != "" {
		h.AuditLog.Logout(r.Context(), r, uid)
	}
	w.WriteHeader(http.StatusNoContent)
}
