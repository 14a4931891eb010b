// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dalemusser/donorhub/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destinations for a category of events.
const (
	ModeAll = "all" // MongoDB + zap
	ModeDB  = "db"  // MongoDB only
	ModeLog = "log" // zap only
	ModeOff = "off"
)

// Config holds audit logging configuration, one mode per category.
type Config struct {
	Auth  string
	Donor string
}

// EventStore persists audit events. *audit.Store implements it.
type EventStore interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger records audit events to the store and to structured logs.
type Logger struct {
	store  EventStore
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil when every category is
// "log" or "off".
func New(store EventStore, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

// ClientIP extracts the client IP, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.TargetID != "" {
		fields = append(fields, zap.String("target_id", event.TargetID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event according to its category's mode. A nil Logger
// is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var mode string
	switch event.Category {
	case audit.CategoryAuth:
		mode = l.config.Auth
	case audit.CategoryDonor:
		mode = l.config.Donor
	}
	if mode == "" {
		mode = ModeAll
	}
	if mode == ModeOff {
		return
	}

	if mode == ModeAll || mode == ModeLog {
		l.logToZap(event)
	}
	if (mode == ModeAll || mode == ModeDB) && l.store != nil {
		// The audit write outlives a cancelled request.
		if err := l.store.Log(context.WithoutCancel(ctx), event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType))
		}
	}
}

func fromRequest(r *http.Request, category, eventType string) audit.Event {
	e := audit.Event{Category: category, EventType: eventType}
	if r != nil {
		e.IP = ClientIP(r)
		e.UserAgent = r.UserAgent()
	}
	return e
}

// --- Authentication events ---

// SignUp logs a new account (credential plus profile).
func (l *Logger) SignUp(ctx context.Context, r *http.Request, uid, email, provider string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventSignUp)
	e.ActorID, e.TargetID, e.Success = uid, uid, true
	e.Details = map[string]string{"email": email, "provider": provider}
	l.Log(ctx, e)
}

// LoginSuccess logs a successful sign-in with any provider.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, uid, provider string) {
	typ := audit.EventLoginSuccess
	if provider != "" && provider != "password" {
		typ = audit.EventProviderLogin
	}
	e := fromRequest(r, audit.CategoryAuth, typ)
	e.ActorID, e.TargetID, e.Success = uid, uid, true
	e.Details = map[string]string{"provider": provider}
	l.Log(ctx, e)
}

// LoginFailed logs a rejected sign-in. attempted is the submitted email or
// the provider name.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, attempted, reason string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginFailed)
	e.FailureReason = reason
	e.Details = map[string]string{"attempted": attempted}
	l.Log(ctx, e)
}

// ProviderLoginFailed logs a failed third-party sign-in.
func (l *Logger) ProviderLoginFailed(ctx context.Context, r *http.Request, provider, reason string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventProviderLoginFailed)
	e.FailureReason = reason
	e.Details = map[string]string{"provider": provider}
	l.Log(ctx, e)
}

// LoginRateLimited logs a sign-in blocked by the rate limiter.
func (l *Logger) LoginRateLimited(ctx context.Context, r *http.Request, attempted string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginFailedRateLimit)
	e.FailureReason = "rate limited"
	e.Details = map[string]string{"attempted": attempted}
	l.Log(ctx, e)
}

// Logout logs an explicit sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, uid string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLogout)
	e.ActorID, e.TargetID, e.Success = uid, uid, true
	l.Log(ctx, e)
}

// ForcedSignOut logs a session ended because its profile could not be
// resolved or its credential was revoked.
func (l *Logger) ForcedSignOut(ctx context.Context, r *http.Request, uid, reason string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventForcedSignOut)
	e.TargetID = uid
	e.FailureReason = reason
	l.Log(ctx, e)
}

// PasswordResetRequested logs a reset request. It is recorded even for
// unknown emails; found says whether a credential matched.
func (l *Logger) PasswordResetRequested(ctx context.Context, r *http.Request, email string, found bool) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventPasswordResetRequested)
	e.Success = found
	e.Details = map[string]string{"email": email}
	l.Log(ctx, e)
}

// PasswordResetCompleted logs a password changed through a reset link.
func (l *Logger) PasswordResetCompleted(ctx context.Context, r *http.Request, uid string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventPasswordResetCompleted)
	e.ActorID, e.TargetID, e.Success = uid, uid, true
	l.Log(ctx, e)
}

// --- Donor events ---

// Donor logs a successful donor mutation.
func (l *Logger) Donor(ctx context.Context, r *http.Request, eventType, actorID, donorID string, details map[string]string) {
	e := fromRequest(r, audit.CategoryDonor, eventType)
	e.ActorID, e.TargetID, e.Success = actorID, donorID, true
	e.Details = details
	l.Log(ctx, e)
}
