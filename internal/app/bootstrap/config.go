// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// appConfigKeys defines the configuration keys for DonorHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: DONORHUB_MONGO_URI, DONORHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "donorhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "donorhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	// Query cache
	{Name: "cache_backend", Default: "lru", Desc: "Query cache backend: 'lru' (in-process) or 'redis'"},
	{Name: "cache_ttl", Default: "5m", Desc: "Query cache entry lifetime"},
	{Name: "cache_size", Default: 1024, Desc: "Max entries in the in-process query cache"},

	// Redis
	{Name: "redis_addr", Default: "", Desc: "Redis address host:port (blank disables Redis)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	// Document storage
	{Name: "storage_type", Default: "local", Desc: "Storage backend: 'local' or 's3'"},
	{Name: "storage_local_path", Default: "./uploads/donors", Desc: "Local storage path for donor documents"},
	{Name: "storage_local_url", Default: "/files/donors", Desc: "URL prefix for serving local files"},
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "donors/", Desc: "S3 key prefix"},
	{Name: "storage_cf_url", Default: "", Desc: "CloudFront distribution URL"},
	{Name: "storage_cf_keypair_id", Default: "", Desc: "CloudFront key pair ID"},
	{Name: "storage_cf_key_path", Default: "", Desc: "Path to CloudFront private key file"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@donorhub.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "DonorHub", Desc: "From display name"},

	// Base URL for email links and OAuth callbacks
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Public base URL"},

	// Passwords
	{Name: "bcrypt_cost", Default: bcrypt.DefaultCost, Desc: "bcrypt cost for password hashes"},
	{Name: "reset_ttl", Default: "1h", Desc: "Password reset link lifetime"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_donor", Default: "all", Desc: "Donor event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Provider sign-in
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "facebook_client_id", Default: "", Desc: "Facebook app ID"},
	{Name: "facebook_client_secret", Default: "", Desc: "Facebook app secret"},
	{Name: "twitter_client_id", Default: "", Desc: "Twitter (X) OAuth2 client ID"},
	{Name: "twitter_client_secret", Default: "", Desc: "Twitter (X) OAuth2 client secret"},
	{Name: "apple_client_id", Default: "", Desc: "Sign in with Apple Services ID"},
	{Name: "apple_team_id", Default: "", Desc: "Apple developer team ID"},
	{Name: "apple_key_id", Default: "", Desc: "Apple Sign in key ID"},
	{Name: "apple_key_path", Default: "", Desc: "Path to the Apple Sign in private key (.p8)"},

	// SPA front end
	{Name: "cors_origins", Default: "http://localhost:5173", Desc: "Comma-separated origins allowed to call the API"},

	{Name: "admin_email", Default: "", Desc: "Email of a user to promote to admin on startup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, DONORHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "DONORHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 30*24*time.Hour),

		CacheBackend: strings.ToLower(strings.TrimSpace(appValues.String("cache_backend"))),
		CacheTTL:     appValues.Duration("cache_ttl", 5*time.Minute),
		CacheSize:    appValues.Int("cache_size"),

		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),

		StorageType:        strings.ToLower(strings.TrimSpace(appValues.String("storage_type"))),
		StorageLocalPath:   appValues.String("storage_local_path"),
		StorageLocalURL:    appValues.String("storage_local_url"),
		StorageS3Region:    appValues.String("storage_s3_region"),
		StorageS3Bucket:    appValues.String("storage_s3_bucket"),
		StorageS3Prefix:    appValues.String("storage_s3_prefix"),
		StorageCFURL:       appValues.String("storage_cf_url"),
		StorageCFKeyPairID: appValues.String("storage_cf_keypair_id"),
		StorageCFKeyPath:   appValues.String("storage_cf_key_path"),

		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		BaseURL: strings.TrimRight(appValues.String("base_url"), "/"),

		BcryptCost: appValues.Int("bcrypt_cost"),
		ResetTTL:   appValues.Duration("reset_ttl", time.Hour),

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogDonor: appValues.String("audit_log_donor"),

		GoogleClientID:       appValues.String("google_client_id"),
		GoogleClientSecret:   appValues.String("google_client_secret"),
		FacebookClientID:     appValues.String("facebook_client_id"),
		FacebookClientSecret: appValues.String("facebook_client_secret"),
		TwitterClientID:      appValues.String("twitter_client_id"),
		TwitterClientSecret:  appValues.String("twitter_client_secret"),
		AppleClientID:        appValues.String("apple_client_id"),
		AppleTeamID:          appValues.String("apple_team_id"),
		AppleKeyID:           appValues.String("apple_key_id"),
		AppleKeyPath:         appValues.String("apple_key_path"),

		CORSOrigins: splitList(appValues.String("cors_origins")),

		AdminEmail: normalize.Email(appValues.String("admin_email")),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// DonorHub checks the MongoDB URI format before attempting to connect, and
// rejects backend selections that cannot work with the other settings.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(coreCfg.Env, appCfg)
}

// validateApp holds the checks that do not depend on WAFFLE, so they can be
// tested directly.
func validateApp(env string, appCfg AppConfig) error {
	var errs []error

	if len(appCfg.SessionKey) < 32 {
		errs = append(errs, errors.New("session_key must be at least 32 characters"))
	}
	if env == "prod" && strings.HasPrefix(appCfg.SessionKey, "dev-only") {
		errs = append(errs, errors.New("session_key must be changed from the development default in prod"))
	}

	switch appCfg.CacheBackend {
	case "lru":
		if appCfg.CacheSize <= 0 {
			errs = append(errs, errors.New("cache_size must be positive"))
		}
	case "redis":
		if appCfg.RedisAddr == "" {
			errs = append(errs, errors.New("cache_backend=redis requires redis_addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache_backend must be 'lru' or 'redis', got %q", appCfg.CacheBackend))
	}

	switch appCfg.StorageType {
	case "local":
		if appCfg.StorageLocalPath == "" {
			errs = append(errs, errors.New("storage_type=local requires storage_local_path"))
		}
	case "s3":
		if appCfg.StorageS3Bucket == "" {
			errs = append(errs, errors.New("storage_type=s3 requires storage_s3_bucket"))
		}
		if appCfg.StorageCFURL != "" && (appCfg.StorageCFKeyPairID == "" || appCfg.StorageCFKeyPath == "") {
			errs = append(errs, errors.New("storage_cf_url requires storage_cf_keypair_id and storage_cf_key_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage_type must be 'local' or 's3', got %q", appCfg.StorageType))
	}

	for name, mode := range map[string]string{"audit_log_auth": appCfg.AuditLogAuth, "audit_log_donor": appCfg.AuditLogDonor} {
		switch mode {
		case auditlog.ModeAll, auditlog.ModeDB, auditlog.ModeLog, auditlog.ModeOff:
		default:
			errs = append(errs, fmt.Errorf("%s must be one of all, db, log, off; got %q", name, mode))
		}
	}

	if appCfg.BcryptCost < bcrypt.MinCost || appCfg.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
