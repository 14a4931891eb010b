// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of periodic housekeeping.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type stateCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type resetTokenCleaner interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// OAuthStateCleanupJob creates a job that removes expired OAuth state tokens.
// This is a backup for when MongoDB's TTL index cleanup is delayed.
func OAuthStateCleanupJob(states stateCleaner, logger *zap.Logger) Job {
	return Job{
		Name:     "oauth-state-cleanup",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			count, err := states.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Debug("cleaned up expired OAuth states", zap.Int64("count", count))
			}
			return nil
		},
	}
}

// ResetTokenCleanupJob creates a job that drops expired password reset
// tokens from credentials.
func ResetTokenCleanupJob(creds resetTokenCleaner, logger *zap.Logger) Job {
	return Job{
		Name:     "reset-token-cleanup",
		Interval: 15 * time.Minute,
		Run: func(ctx context.Context) error {
			count, err := creds.ClearExpiredResetTokens(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("cleared expired reset tokens", zap.Int64("count", count))
			}
			return nil
		},
	}
}
