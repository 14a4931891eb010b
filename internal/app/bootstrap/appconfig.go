// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for DonorHub.
//
// These values come from environment variables, config files, or command-line
// flags (loaded in LoadConfig). They represent app-level config, not WAFFLE
// core config.
type AppConfig struct {
	// MongoDB
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie
	SessionKey    string
	SessionName   string
	SessionDomain string
	SessionMaxAge time.Duration

	// Query cache: "lru" (in-process) or "redis"
	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int

	// Redis, used by the redis cache backend and the login limiter.
	// Blank means no Redis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Document storage: "local" or "s3"
	StorageType      string
	StorageLocalPath string
	StorageLocalURL  string

	StorageS3Region    string
	StorageS3Bucket    string
	StorageS3Prefix    string
	StorageCFURL       string // CloudFront distribution URL for signed downloads
	StorageCFKeyPairID string
	StorageCFKeyPath   string

	// Outgoing mail (password reset)
	MailSMTPHost string
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	// BaseURL is used for reset links and OAuth callbacks.
	BaseURL string

	BcryptCost int
	ResetTTL   time.Duration

	// Audit logging modes: all | db | log | off
	AuditLogAuth  string
	AuditLogDonor string

	// Provider sign-in. A provider is enabled when its client settings are set.
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
	TwitterClientID      string
	TwitterClientSecret  string
	AppleClientID        string
	AppleTeamID          string
	AppleKeyID           string
	AppleKeyPath         string

	// CORS origins allowed to call the API with credentials (SPA front end).
	CORSOrigins []string

	// AdminEmail, when set, is promoted to the admin role on startup.
	AdminEmail string
}
