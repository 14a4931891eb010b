package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/metrics"
	"go.uber.org/zap"
)

var (
	// ErrProfileUnavailable means the profile never became readable within
	// the retry budget. The session is force-signed-out; whether the cause
	// was "not found" or a fetch error is not distinguished.
	ErrProfileUnavailable = errors.New("profile unavailable")
	// ErrProfileInactive means the profile exists but is disabled.
	ErrProfileInactive = errors.New("profile inactive")
	// ErrCredentialCleared means the credential no longer exists.
	ErrCredentialCleared = errors.New("credential cleared")

	errProfileEmpty = errors.New("profile not found")
)

// TransientProfileFetchError wraps a failed attempt that will be retried.
type TransientProfileFetchError struct {
	Attempt int
	Err     error
}

func (e *TransientProfileFetchError) Error() string {
	return fmt.Sprintf("profile fetch attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransientProfileFetchError) Unwrap() error { return e.Err }

// ProfileFetcher loads the profile for a credential uid. (nil, nil) means the
// profile is not readable yet.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, uid string) (*SessionUser, error)
}

// CredentialChecker reports whether a credential still exists.
type CredentialChecker interface {
	Exists(ctx context.Context, uid string) (bool, error)
}

// RetryPolicy bounds profile resolution. The first attempt is followed by up
// to MaxRetries retries; retry n waits BaseDelay * Factor^(n-1).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
}

// DefaultRetryPolicy waits 500ms, 1s and 2s between four attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, Factor: 2}
}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	f := p.Factor
	if f < 1 {
		f = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(f, float64(n-1)))
}

// Delays lists every wait the policy can incur, in order.
func (p RetryPolicy) Delays() []time.Duration {
	out := make([]time.Duration, 0, p.MaxRetries)
	for n := 1; n <= p.MaxRetries; n++ {
		out = append(out, p.Delay(n))
	}
	return out
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resolver turns a credential uid into a confirmed session principal.
type Resolver struct {
	profiles ProfileFetcher
	creds    CredentialChecker
	policy   RetryPolicy
	sleep    SleepFunc
	logger   *zap.Logger
}

// NewResolver builds a Resolver. creds may be nil, in which case credential
// revocation is not detected.
func NewResolver(profiles ProfileFetcher, creds CredentialChecker, policy RetryPolicy, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		profiles: profiles,
		creds:    creds,
		policy:   policy,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// SetSleep replaces the wait between attempts. Tests use it to record delays.
func (r *Resolver) SetSleep(fn SleepFunc) { r.sleep = fn }

// Policy returns the retry policy in use.
func (r *Resolver) Policy() RetryPolicy { return r.policy }

// Resolve fetches the profile for uid, retrying empty results and fetch
// errors per the policy. It returns ErrCredentialCleared or
// ErrProfileInactive without retrying, ErrProfileUnavailable after the budget
// is spent, and ctx.Err() if the caller goes away.
func (r *Resolver) Resolve(ctx context.Context, uid string) (*SessionUser, error) {
	var lastErr error
	attempts := r.policy.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.policy.Delay(attempt-1)); err != nil {
				metrics.ProfileResolutions.WithLabelValues("abandoned").Inc()
				return nil, err
			}
		}

		u, err := r.attempt(ctx, uid)
		switch {
		case err == nil:
			metrics.ProfileResolutions.WithLabelValues("authenticated").Inc()
			metrics.ProfileResolutionAttempts.Observe(float64(attempt))
			if attempt > 1 {
				r.logger.Info("profile resolved after retry",
					zap.String("uid", uid),
					zap.Int("attempts", attempt))
			}
			return u, nil
		case errors.Is(err, ErrCredentialCleared):
			metrics.ProfileResolutions.WithLabelValues("credential_cleared").Inc()
			return nil, err
		case errors.Is(err, ErrProfileInactive):
			metrics.ProfileResolutions.WithLabelValues("inactive").Inc()
			return nil, err
		case ctx.Err() != nil:
			metrics.ProfileResolutions.WithLabelValues("abandoned").Inc()
			return nil, ctx.Err()
		}

		lastErr = &TransientProfileFetchError{Attempt: attempt, Err: err}
		r.logger.Debug("profile fetch failed",
			zap.String("uid", uid),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	metrics.ProfileResolutions.WithLabelValues("unavailable").Inc()
	r.logger.Warn("profile unavailable after retries",
		zap.String("uid", uid),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, lastErr)
}

func (r *Resolver) attempt(ctx context.Context, uid string) (*SessionUser, error) {
	if r.creds != nil {
		ok, err := r.creds.Exists(ctx, uid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCredentialCleared
		}
	}
	u, err := r.profiles.FetchProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errProfileEmpty
	}
	return u, nil
}
