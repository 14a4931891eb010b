// internal/app/features/authprovider/handler.go
package authprovider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/donorhub/internal/app/store/oauthstate"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/identity"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// StateStore parks one-time OAuth2 state tokens. *oauthstate.Store and
// *oauthstate.MemStore implement it.
type StateStore interface {
	Save(ctx context.Context, st oauthstate.State) error
	Consume(ctx context.Context, provider, state string) (oauthstate.State, bool, error)
}

// Handler runs the third-party sign-in flows for every configured provider.
type Handler struct {
	Providers  map[string]*identity.Provider
	Identity   *identity.Service
	States     StateStore
	SessionMgr *auth.SessionManager
	Log        *zap.Logger
	AuditLog   *auditlog.Logger

	// LoginURL receives failed flows as ?error=<code>.
	LoginURL string
	// DefaultReturn is used when the flow did not carry a safe return URL.
	DefaultReturn string
	StateTTL      time.Duration
}

func NewHandler(
	providers map[string]*identity.Provider,
	ids *identity.Service,
	states StateStore,
	sessionMgr *auth.SessionManager,
	audit *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Providers:     providers,
		Identity:      ids,
		States:        states,
		SessionMgr:    sessionMgr,
		Log:           logger,
		AuditLog:      audit,
		LoginURL:      "/login",
		DefaultReturn: "/dashboard",
		StateTTL:      10 * time.Minute,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /auth/{provider}                                                         |
| Redirects to the provider's consent screen.                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.Providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	state := generateState()
	if state == "" {
		h.Log.Error("failed to generate OAuth state")
		h.fail(w, r, "internal")
		return
	}
	var verifier string
	if p.PKCE {
		verifier = oauth2.GenerateVerifier()
	}
	returnURL := urlutil.SafeReturn(query.Get(r, "return"), "", h.DefaultReturn)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	now := time.Now().UTC()
	if err := h.States.Save(ctx, oauthstate.State{
		State:     state,
		Provider:  name,
		Verifier:  verifier,
		ReturnURL: returnURL,
		ExpiresAt: now.Add(h.StateTTL),
		CreatedAt: now,
	}); err != nil {
		h.Log.Error("failed to save OAuth state", zap.String("provider", name), zap.Error(err))
		h.fail(w, r, "internal")
		return
	}

	h.Log.Debug("initiating OAuth flow",
		zap.String("provider", name),
		zap.String("return_url", returnURL))
	http.Redirect(w, r, p.AuthCodeURL(state, verifier), http.StatusTemporaryRedirect)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET|POST /auth/{provider}/callback                                           |
| Exchanges the code, reads the identity, signs in (creating the profile on    |
| first sign-in) and redirects to the saved return URL.                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	p, ok := h.Providers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()

	// FormValue covers both query callbacks and Apple's form_post.
	if errParam := r.FormValue("error"); errParam != "" {
		h.Log.Warn("OAuth provider returned error",
			zap.String("provider", name),
			zap.String("error", errParam),
			zap.String("description", r.FormValue("error_description")))
		h.AuditLog.ProviderLoginFailed(ctx, r, name, "denied: "+errParam)
		h.fail(w, r, "denied")
		return
	}

	state := r.FormValue("state")
	if state == "" {
		h.fail(w, r, "invalid_state")
		return
	}
	sctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	st, valid, err := h.States.Consume(sctx, name, state)
	cancel()
	if err != nil {
		h.Log.Error("failed to consume OAuth state", zap.Error(err))
		h.fail(w, r, "internal")
		return
	}
	if !valid {
		h.Log.Warn("invalid or expired OAuth state", zap.String("provider", name))
		h.fail(w, r, "invalid_state")
		return
	}

	code := r.FormValue("code")
	if code == "" {
		h.fail(w, r, "invalid_code")
		return
	}

	xctx, cancel := context.WithTimeout(ctx, timeouts.Medium())
	defer cancel()
	tok, err := p.Exchange(xctx, code, st.Verifier)
	if err != nil {
		h.Log.Error("failed to exchange OAuth code", zap.String("provider", name), zap.Error(err))
		h.AuditLog.ProviderLoginFailed(ctx, r, name, "token exchange failed")
		h.fail(w, r, "token_exchange")
		return
	}
	id, err := p.Identify(xctx, tok, r.PostForm)
	if err != nil {
		h.Log.Error("failed to read OAuth identity", zap.String("provider", name), zap.Error(err))
		h.AuditLog.ProviderLoginFailed(ctx, r, name, "user info failed")
		h.fail(w, r, "user_info")
		return
	}

	uid, created, err := h.Identity.SignInWithIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrAccountExistsWithDifferentCredential) {
			h.AuditLog.ProviderLoginFailed(ctx, r, name, "email bound to another credential")
			h.fail(w, r, "account_exists")
			return
		}
		h.Log.Error("provider sign-in failed", zap.String("provider", name), zap.Error(err))
		h.fail(w, r, "internal")
		return
	}

	if err := h.SessionMgr.SignIn(w, r, uid); err != nil {
		h.Log.Error("save session", zap.Error(err))
		h.fail(w, r, "internal")
		return
	}
	if created {
		h.AuditLog.SignUp(ctx, r, uid, id.Email, name)
	}
	h.AuditLog.LoginSuccess(ctx, r, uid, name)

	ret := st.ReturnURL
	if ret == "" {
		ret = h.DefaultReturn
	}
	http.Redirect(w, r, ret, http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.LoginURL+"?error="+url.QueryEscape(code), http.StatusSeeOther)
}

func generateState() string {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
