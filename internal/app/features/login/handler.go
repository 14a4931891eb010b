// internal/app/features/login/handler.go
package login

import (
	"errors"
	"net/http"

	uierrors "github.com/dalemusser/donorhub/internal/app/features/errors"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/formutil"
	"github.com/dalemusser/donorhub/internal/app/system/identity"
	"github.com/dalemusser/donorhub/internal/app/system/inputval"
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

func NewHandler(
	ids *identity.Service,
	sessionMgr *auth.SessionManager,
	limiter *ratelimit.LoginLimiter,
	errLog *uierrors.ErrorLogger,
	audit *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Identity:   ids,
		SessionMgr: sessionMgr,
		Limiter:    limiter,
		Log:        logger,
		ErrLog:     errLog,
		AuditLog:   audit,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signedIn is the body returned after any successful sign-in. The SPA
// fetches the full principal from /me.
type signedIn struct {
	ID string `json:"id"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := formutil.Decode(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode login", err, "Invalid sign-in request.")
		return
	}
	ctx := r.Context()

	if ok, msg := h.Limiter.Check(r, in.Email); !ok {
		h.AuditLog.LoginRateLimited(ctx, r, in.Email)
		uierrors.RenderTooManyRequests(w, msg)
		return
	}

	uid, err := h.Identity.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.AuditLog.LoginFailed(ctx, r, in.Email, "invalid credentials")
		}
		h.ErrLog.Respond(w, r, "sign in", err)
		return
	}

	if err := h.SessionMgr.SignIn(w, r, uid); err != nil {
		h.ErrLog.LogServerError(w, r, "save session", err, "Unable to sign you in. Please try again.")
		return
	}
	h.Limiter.ResetEmail(ctx, in.Email)
	h.AuditLog.LoginSuccess(ctx, r, uid, models.ProviderPassword)
	formutil.WriteJSON(w, http.StatusOK, signedIn{ID: uid})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login/reset                                                            |
| Always answers 202 for a well-formed email so the response does not reveal   |
| whether an account exists.                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

const resetSentMessage = "If an account exists for that email, a reset link is on its way."

func (h *Handler) ServeResetRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := formutil.Decode(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode reset request", err, "Invalid reset request.")
		return
	}
	if !inputval.IsValidEmail(in.Email) {
		uierrors.RenderValidation(w, map[string]string{"email": "Enter a valid email address."})
		return
	}
	ctx := r.Context()
	if ok, msg := h.Limiter.Check(r, in.Email); !ok {
		h.AuditLog.LoginRateLimited(ctx, r, in.Email)
		uierrors.RenderTooManyRequests(w, msg)
		return
	}

	found, err := h.Identity.SendPasswordReset(ctx, in.Email)
	if err != nil {
		h.Log.Error("send password reset failed", zap.Bool("found", found), zap.Error(err))
	}
	h.AuditLog.PasswordResetRequested(ctx, r, in.Email, found && err == nil)
	formutil.WriteJSON(w, http.StatusAccepted, map[string]string{"message": resetSentMessage})
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /login/reset/confirm                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeResetConfirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := formutil.Decode(w, r, &in); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode reset confirm", err, "Invalid reset request.")
		return
	}
	uid, err := h.Identity.ConfirmPasswordReset(r.Context(), in.Token, in.Password)
	if err != nil {
		h.ErrLog.Respond(w, r, "confirm password reset", err)
		return
	}
	h.AuditLog.PasswordResetCompleted(r.Context(), r, uid)
	w.WriteHeader(http.StatusNoContent)
}
