// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	userstore "github.com/dalemusser/donorhub/internal/app/store/users"
	"github.com/dalemusser/donorhub/internal/app/system/indexes"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ConnectDB opens the MongoDB client and, when configured, the Redis client.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	cctx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}
	pctx, pcancel := context.WithTimeout(ctx, timeouts.Ping())
	defer pcancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool", appCfg.MongoMaxPoolSize))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}

	if appCfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
		})
		rctx, rcancel := context.WithTimeout(ctx, timeouts.Ping())
		defer rcancel()
		if err := rdb.Ping(rctx).Err(); err != nil {
			// The login limiter fails open without Redis; the redis cache
			// backend cannot, so that combination aborts startup.
			if appCfg.CacheBackend == "redis" {
				_ = rdb.Close()
				_ = client.Disconnect(context.Background())
				return DBDeps{}, fmt.Errorf("redis ping: %w", err)
			}
			logger.Warn("redis unreachable at startup", zap.String("addr", appCfg.RedisAddr), zap.Error(err))
		} else {
			logger.Info("connected to Redis", zap.String("addr", appCfg.RedisAddr))
		}
		deps.Redis = rdb
	}

	return deps, nil
}

// EnsureSchema creates the collection indexes and applies the admin bootstrap.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	ictx, cancel := context.WithTimeout(ctx, timeouts.Long())
	defer cancel()
	if err := indexes.EnsureAll(ictx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}

	if appCfg.AdminEmail != "" {
		actx, acancel := context.WithTimeout(ctx, timeouts.Short())
		defer acancel()
		if err := ensureAdmin(actx, userstore.New(deps.MongoDatabase), appCfg.AdminEmail, logger); err != nil {
			return err
		}
	}
	return nil
}

type roleStore interface {
	GetByEmail(ctx context.Context, email string) (models.User, error)
	SetRole(ctx context.Context, uid, role string, at time.Time) error
}

// ensureAdmin promotes the profile with email to admin. Profiles are only
// created through sign-up, so a missing profile is logged and left for the
// next start.
func ensureAdmin(ctx context.Context, users roleStore, email string, logger *zap.Logger) error {
	u, err := users.GetByEmail(ctx, email)
	if errors.Is(err, userstore.ErrNotFound) {
		logger.Warn("admin_email has no profile yet; sign up first", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up admin %s: %w", email, err)
	}
	if u.Role == models.RoleAdmin {
		return nil
	}
	if err := users.SetRole(ctx, u.ID, models.RoleAdmin, time.Now().UTC()); err != nil {
		return fmt.Errorf("promote admin %s: %w", email, err)
	}
	logger.Info("promoted user to admin", zap.String("uid", u.ID), zap.String("previous_role", u.Role))
	return nil
}
