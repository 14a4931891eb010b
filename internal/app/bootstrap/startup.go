// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	donorsvc "github.com/dalemusser/donorhub/internal/app/services/donors"
	"github.com/dalemusser/donorhub/internal/app/store/audit"
	credentialstore "github.com/dalemusser/donorhub/internal/app/store/credentials"
	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
	"github.com/dalemusser/donorhub/internal/app/store/oauthstate"
	userstore "github.com/dalemusser/donorhub/internal/app/store/users"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/identity"
	"github.com/dalemusser/donorhub/internal/app/system/mailer"
	"github.com/dalemusser/donorhub/internal/app/system/querycache"
	"github.com/dalemusser/donorhub/internal/app/system/ratelimit"
	"github.com/dalemusser/donorhub/internal/app/system/tasks"
	"github.com/dalemusser/donorhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.uber.org/zap"
)

// components are the long-lived services shared by the handlers. Startup
// builds them; BuildHandler mounts them; Shutdown stops their goroutines.
type components struct {
	files     storage.Store
	local     *storage.Local // nil unless storage_type=local
	cache     *querycache.Cache
	donors    *donorsvc.Service
	identity  *identity.Service
	providers map[string]*identity.Provider
	states    *oauthstate.Store
	limiter   *ratelimit.LoginLimiter
	audit     *auditlog.Logger
	events    *audit.Store
	sessions  *auth.SessionManager
	jobs      *workers.Runner
}

var (
	builtMu sync.Mutex
	built   *components
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the storage backend, caches, identity services and background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	c, err := buildComponents(ctx, coreCfg.Env, appCfg, deps, logger)
	if err != nil {
		return err
	}
	c.jobs.Start()

	builtMu.Lock()
	built = c
	builtMu.Unlock()
	return nil
}

func currentComponents() (*components, error) {
	builtMu.Lock()
	defer builtMu.Unlock()
	if built == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}
	return built, nil
}

func buildComponents(ctx context.Context, env string, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*components, error) {
	db := deps.MongoDatabase
	c := &components{}

	files, local, err := newFileStore(ctx, appCfg)
	if err != nil {
		logger.Error("document storage init failed", zap.String("type", appCfg.StorageType), zap.Error(err))
		return nil, err
	}
	c.files, c.local = files, local
	logger.Info("document storage ready", zap.String("type", appCfg.StorageType))

	// Query cache
	var backend querycache.Backend
	if appCfg.CacheBackend == "redis" && deps.Redis != nil {
		backend = querycache.NewRedis(deps.Redis, "donorhub:qc")
	} else {
		backend = querycache.NewLRU(appCfg.CacheSize, appCfg.CacheTTL)
	}
	c.cache = querycache.New(backend, appCfg.CacheTTL, logger)
	logger.Info("query cache ready", zap.String("backend", appCfg.CacheBackend), zap.Duration("ttl", appCfg.CacheTTL))

	c.donors = donorsvc.New(donorstore.New(db).WithLogger(logger), c.cache, c.files, logger)

	// Audit
	c.events = audit.New(db)
	c.audit = auditlog.New(c.events, logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Donor: appCfg.AuditLogDonor,
	})

	// Identity
	creds := credentialstore.New(db)
	users := userstore.New(db)
	mail := mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	}, logger)
	c.identity = identity.New(creds, users, mail, identity.Config{
		BcryptCost: appCfg.BcryptCost,
		ResetTTL:   appCfg.ResetTTL,
		BaseURL:    appCfg.BaseURL,
	}, logger)

	appleKey := ""
	if appCfg.AppleKeyPath != "" {
		b, err := os.ReadFile(appCfg.AppleKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read apple key: %w", err)
		}
		appleKey = string(b)
	}
	providers, err := identity.NewProviders(identity.ProvidersConfig{
		BaseURL:  appCfg.BaseURL,
		Google:   identity.OAuthClient{ClientID: appCfg.GoogleClientID, ClientSecret: appCfg.GoogleClientSecret},
		Facebook: identity.OAuthClient{ClientID: appCfg.FacebookClientID, ClientSecret: appCfg.FacebookClientSecret},
		Twitter:  identity.OAuthClient{ClientID: appCfg.TwitterClientID, ClientSecret: appCfg.TwitterClientSecret},
		Apple: identity.AppleClient{
			ClientID:      appCfg.AppleClientID,
			TeamID:        appCfg.AppleTeamID,
			KeyID:         appCfg.AppleKeyID,
			PrivateKeyPEM: appleKey,
		},
	})
	if err != nil {
		logger.Error("provider setup failed", zap.Error(err))
		return nil, err
	}
	c.providers = providers
	for name := range providers {
		logger.Info("sign-in provider enabled", zap.String("provider", name))
	}
	c.states = oauthstate.New(db)

	// Login throttling is shared through Redis when it is configured. Limits
	// match the in-process defaults.
	if deps.Redis != nil {
		c.limiter = ratelimit.NewLoginLimiterWith(
			ratelimit.NewRedis(deps.Redis, "donorhub:rl:ip", 10, time.Minute, logger),
			ratelimit.NewRedis(deps.Redis, "donorhub:rl:email", 5, 5*time.Minute, logger),
		)
	} else {
		c.limiter = ratelimit.NewLoginLimiter()
	}

	// Sessions: cookie carries the credential uid; the resolver loads the
	// profile with retry and signs out when it stays unavailable.
	sm, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, env == "prod", logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	sm.SetResolver(auth.NewResolver(userstore.NewFetcher(users), creds, auth.DefaultRetryPolicy(), logger))
	auditLog := c.audit
	sm.OnForcedSignOut(func(r *http.Request, uid string, cause error) {
		auditLog.ForcedSignOut(r.Context(), r, uid, cause.Error())
	})
	c.sessions = sm

	c.jobs = workers.NewRunner(logger,
		tasks.OAuthStateCleanupJob(c.states, logger),
		tasks.ResetTokenCleanupJob(creds, logger),
	)

	return c, nil
}

// newFileStore builds the document backend. local is nil for S3.
func newFileStore(ctx context.Context, appCfg AppConfig) (storage.Store, *storage.Local, error) {
	if appCfg.StorageType == "s3" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:                   appCfg.StorageS3Region,
			Bucket:                   appCfg.StorageS3Bucket,
			Prefix:                   appCfg.StorageS3Prefix,
			CloudFrontURL:            appCfg.StorageCFURL,
			CloudFrontKeyPairID:      appCfg.StorageCFKeyPairID,
			CloudFrontPrivateKeyPath: appCfg.StorageCFKeyPath,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		return s3, nil, nil
	}
	local, err := storage.NewLocal(storage.LocalConfig{BasePath: appCfg.StorageLocalPath, BaseURL: appCfg.StorageLocalURL})
	if err != nil {
		return nil, nil, fmt.Errorf("local storage: %w", err)
	}
	return local, local, nil
}

// stop ends background goroutines owned by the components.
func (c *components) stop() {
	if c.jobs != nil {
		c.jobs.Stop()
	}
	if c.limiter != nil {
		c.limiter.Stop()
	}
}
