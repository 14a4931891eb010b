// internal/app/features/errors/errorlog.go
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	donorsvc "github.com/dalemusser/donorhub/internal/app/services/donors"
	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/identity"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures and writes the JSON error response.
// Every feature handler holds one.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger wraps logger. A nil logger discards.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{Log: logger}
}

// LogServerError logs err at error level and responds 500 with userMsg.
func (e *ErrorLogger) LogServerError(w http.ResponseWriter, r *http.Request, logMsg string, err error, userMsg string) {
	e.Log.Error(logMsg, append(requestFields(r), zap.Error(err))...)
	RenderServerError(w, userMsg)
}

// LogBadRequest logs err at warn level and responds 400 with userMsg.
func (e *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, logMsg string, err error, userMsg string) {
	e.Log.Warn(logMsg, append(requestFields(r), zap.Error(err))...)
	RenderBadRequest(w, userMsg)
}

// Respond maps a service error onto a status code. op names the failed
// operation in logs. Anything unrecognized is logged and answered with 500.
func (e *ErrorLogger) Respond(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		donorVal *donorsvc.ValidationError
		idVal    *identity.ValidationError
	)
	switch {
	case stderrors.As(err, &donorVal):
		RenderValidation(w, donorVal.Fields)
	case stderrors.As(err, &idVal):
		RenderValidation(w, idVal.Fields)

	case stderrors.Is(err, donorsvc.ErrUnauthenticated),
		stderrors.Is(err, auth.ErrProfileUnavailable),
		stderrors.Is(err, identity.ErrInvalidCredentials):
		RenderUnauthorized(w, err.Error())

	case stderrors.Is(err, donorsvc.ErrDuplicateEmail),
		stderrors.Is(err, identity.ErrEmailInUse),
		stderrors.Is(err, identity.ErrAccountExistsWithDifferentCredential):
		writeJSON(w, http.StatusConflict, body{Error: err.Error()})

	case stderrors.Is(err, donorsvc.ErrNotFound):
		RenderNotFound(w, err.Error())

	case stderrors.Is(err, identity.ErrResetTokenInvalid):
		RenderBadRequest(w, err.Error())

	case stderrors.Is(err, donorsvc.ErrNoStorage):
		e.Log.Warn(op+" failed", append(requestFields(r), zap.Error(err))...)
		writeJSON(w, http.StatusServiceUnavailable, body{Error: err.Error()})

	case stderrors.Is(err, context.DeadlineExceeded):
		e.Log.Error(op+" timed out", append(requestFields(r), zap.Error(err))...)
		writeJSON(w, http.StatusGatewayTimeout, body{Error: "The request took too long. Please try again."})

	case stderrors.Is(err, context.Canceled):
		// Client went away; nobody is listening.
		e.Log.Debug(op+" canceled", requestFields(r)...)

	case stderrors.Is(err, donorstore.ErrMalformed):
		e.LogServerError(w, r, op+": malformed donor record", err, "A stored record could not be read.")

	default:
		e.LogServerError(w, r, op+" failed", err, "Something went wrong. Please try again.")
	}
}

func requestFields(r *http.Request) []zap.Field {
	if r == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if u, ok := auth.CurrentUser(r); ok {
		fields = append(fields, zap.String("uid", u.ID))
	}
	return fields
}
