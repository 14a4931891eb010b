// internal/app/features/signup/handler.go
package signup

import (
	"net/http"

	uierrors "github.com/dalemusser/donorhub/internal/app/features/errors"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/formutil"
	"github.com/dalemusser/donorhub/internal/app/system/identity"
	"github.com/dalemusser/donorhub/internal/app/system/ratelimit"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"go.uber.org/zap"
)

type Handler struct {
	Identity   *identity.Service
	SessionMgr *auth.SessionManager
	Limiter    *ratelimit.LoginLimiter
	Log        *zap.Logger
	ErrLog     *uierrors.ErrorLogger
	AuditLog   *auditlog.Logger
}

func NewHandler(ids *identity.Service, sessionMgr *auth.SessionManager, limiter *ratelimit.LoginLimiter,
	errLog *uierrors.ErrorLogger, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Identity:   ids,
		SessionMgr: sessionMgr,
		Limiter:    limiter,
		Log:        logger,
		ErrLog:     errLog,
		AuditLog:   audit,
	}
}

// ServeSignUp handles POST /signup. The new account is signed in right away
// and the created profile is returned.
func (h *Handler) ServeSignUp(w http.ResponseWriter, r *http.Request) {
	var in identity.SignUpInput
	if err := formutil.Decode(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode sign-up", err, "Invalid sign-up request.")
		return
	}
	ctx := r.Context()
	if ok, msg := h.Limiter.Check(r, in.Email); !ok {
		h.AuditLog.LoginRateLimited(ctx, r, in.Email)
		uierrors.RenderTooManyRequests(w, msg)
		return
	}

	u, err := h.Identity.SignUp(ctx, in)
	if err != nil {
		h.ErrLog.Respond(w, r, "sign up", err)
		return
	}
	h.AuditLog.SignUp(ctx, r, u.ID, u.Email, models.ProviderPassword)

	if err := h.SessionMgr.SignIn(w, r, u.ID); err != nil {
		// The account exists; the client can still sign in normally.
		h.Log.Error("save session after sign-up", zap.String("uid", u.ID), zap.Error(err))
	}
	formutil.WriteJSON(w, http.StatusCreated, u)
}
