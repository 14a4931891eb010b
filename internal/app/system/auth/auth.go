package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                          |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	// DefaultSessionName is the cookie name used when none is configured.
	DefaultSessionName = "donorhub-session"

	uidKey        = "uid"
	signedInAtKey = "signed_in_at"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is the resolved session principal injected into r.Context().
type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// WithTestUser injects u into the request context, bypassing the cookie.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store and the per-request session restore.
// The cookie carries only the credential uid; the principal is re-resolved
// from the store on every request.
type SessionManager struct {
	store    *sessions.CookieStore
	name     string
	resolver *Resolver
	logger   *zap.Logger

	onForcedSignOut func(r *http.Request, uid string, cause error)
}

// NewSessionManager builds the cookie store. In production (secure=true)
// cookies are Secure + SameSite=None so the SPA front end can send them
// cross-site; in local dev over http, use secure=false (SameSite=Lax).
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	}
	store.Options = opts

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain),
		zap.Duration("max_age", maxAge))

	return &SessionManager{store: store, name: name, logger: logger}, nil
}

// SetResolver wires profile resolution. Without a resolver no session is
// ever restored.
func (sm *SessionManager) SetResolver(r *Resolver) { sm.resolver = r }

// OnForcedSignOut registers a hook (audit logging) called when a restored
// session is ended by the state machine.
func (sm *SessionManager) OnForcedSignOut(fn func(r *http.Request, uid string, cause error)) {
	sm.onForcedSignOut = fn
}

// Store exposes the cookie store.
func (sm *SessionManager) Store() *sessions.CookieStore { return sm.store }

// GetSession returns the named session. A cookie that fails to decode yields
// a fresh session and the decode error.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SignIn binds the credential uid to the browser session.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, uid string) error {
	sess, _ := sm.GetSession(r)
	sess.Values[uidKey] = uid
	sess.Values[signedInAtKey] = time.Now().UTC().Unix()
	return sess.Save(r, w)
}

// SignOut clears the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.GetSession(r)
	for k := range sess.Values {
		delete(sess.Values, k)
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// UID returns the credential uid stored in the cookie, if any.
func (sm *SessionManager) UID(r *http.Request) string {
	sess, err := sm.GetSession(r)
	if err != nil {
		return ""
	}
	uid, _ := sess.Values[uidKey].(string)
	return uid
}

// LoadSessionUser restores the principal for requests carrying a session
// cookie. It runs the session state machine: an unresolvable profile or a
// revoked credential force-signs the session out and clears the cookie.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := sm.UID(r)
		if uid == "" || sm.resolver == nil {
			next.ServeHTTP(w, r)
			return
		}

		s := NewSession(sm.resolver)
		u, err := s.CredentialEstablished(r.Context(), uid)
		switch {
		case err == nil:
			r = WithTestUser(r, u)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Caller went away; leave the cookie alone.
		default:
			sm.logger.Info("forced sign-out",
				zap.String("uid", uid),
				zap.String("state", s.State().String()),
				zap.Error(err))
			if serr := sm.SignOut(w, r); serr != nil {
				sm.logger.Warn("clear session cookie failed", zap.Error(serr))
			}
			if sm.onForcedSignOut != nil {
				sm.onForcedSignOut(r, uid, err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by LoadSessionUser).
// If not signed in:
//   - HTML: 303 redirect to /login?return=...
//   - API:  401 with a JSON error body.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w, r)
	})
}

// RequireRole ensures there is a user with one of the allowed roles.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				unauthorized(w, r)
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				if wantsHTML(r) {
					http.Redirect(w, r, "/forbidden", http.StatusSeeOther)
					return
				}
				writeJSONError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// helpers

func unauthorized(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		ret := url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
		return
	}
	writeJSONError(w, http.StatusUnauthorized, "unauthenticated")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
