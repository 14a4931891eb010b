// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/donorhub/internal/app/features/auditlog"
	authproviderfeature "github.com/dalemusser/donorhub/internal/app/features/authprovider"
	dashboardfeature "github.com/dalemusser/donorhub/internal/app/features/dashboard"
	donorsfeature "github.com/dalemusser/donorhub/internal/app/features/donors"
	errorsfeature "github.com/dalemusser/donorhub/internal/app/features/errors"
	healthfeature "github.com/dalemusser/donorhub/internal/app/features/health"
	loginfeature "github.com/dalemusser/donorhub/internal/app/features/login"
	logoutfeature "github.com/dalemusser/donorhub/internal/app/features/logout"
	signupfeature "github.com/dalemusser/donorhub/internal/app/features/signup"
	userinfofeature "github.com/dalemusser/donorhub/internal/app/features/userinfo"
	"github.com/dalemusser/donorhub/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. DonorHub serves a JSON API to its SPA
// front end: CORS with credentials, session restore on every request, and
// one router per feature.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	c, err := currentComponents()
	if err != nil {
		return nil, err
	}
	return newRouter(appCfg, deps, c, logger), nil
}

func newRouter(appCfg AppConfig, deps DBDeps, c *components, logger *zap.Logger) chi.Router {
	sessionMgr := c.sessions
	errLog := errorsfeature.NewErrorLogger(logger)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appCfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global auth middleware: restores the session principal if the cookie
	// carries a uid. Handlers read it via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", metrics.Handler())

	// Authentication
	signupHandler := signupfeature.NewHandler(c.identity, sessionMgr, c.limiter, errLog, c.audit, logger)
	r.Mount("/signup", signupfeature.Routes(signupHandler))

	loginHandler := loginfeature.NewHandler(c.identity, sessionMgr, c.limiter, errLog, c.audit, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, c.audit, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	providerHandler := authproviderfeature.NewHandler(c.providers, c.identity, c.states, sessionMgr, c.audit, logger)
	r.Mount("/auth", authproviderfeature.Routes(providerHandler))

	userinfofeature.MountRoutes(r, userinfofeature.NewHandler())

	// Donors
	donorsHandler := donorsfeature.NewHandler(c.donors, errLog, c.audit, logger)
	r.Mount("/donors", donorsfeature.Routes(donorsHandler, sessionMgr))

	dashboardHandler := dashboardfeature.NewHandler(c.donors, errLog, logger)
	r.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, sessionMgr))

	auditHandler := auditlogfeature.NewHandler(c.events, errLog, logger)
	r.Mount("/audit", auditlogfeature.Routes(auditHandler, sessionMgr))

	// Local document storage is served directly; S3 documents are reached
	// through presigned redirects from /donors/{id}/documents/{docID}.
	if c.local != nil && appCfg.StorageLocalURL != "" {
		files := fileserver.Handler(appCfg.StorageLocalURL, appCfg.StorageLocalPath)
		r.With(sessionMgr.RequireSignedIn).Handle(appCfg.StorageLocalURL+"/*", files)
	}

	return r
}
