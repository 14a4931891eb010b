package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	userstore "github.com/dalemusser/donorhub/internal/app/store/users"
	"github.com/dalemusser/donorhub/internal/app/system/indexes"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/donorhub/internal/testutil"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		SessionKey:       "test-session-key-for-testing-only-32",
		SessionName:      "donorhub-test",
		SessionMaxAge:    time.Hour,
		CacheBackend:     "lru",
		CacheTTL:         time.Minute,
		CacheSize:        128,
		StorageType:      "local",
		StorageLocalPath: "./uploads",
		StorageLocalURL:  "/files/donors",
		AuditLogAuth:     "all",
		AuditLogDonor:    "db",
		BcryptCost:       bcrypt.MinCost,
		BaseURL:          "http://localhost:3000",
	}
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "short session key", mutate: func(c *AppConfig) { c.SessionKey = "short" }, wantErr: "session_key"},
		{name: "dev key in prod", env: "prod", mutate: func(c *AppConfig) {
			c.SessionKey = "dev-only-change-me-please-0123456789ABCDEF"
		}, wantErr: "development default"},
		{name: "redis cache without addr", mutate: func(c *AppConfig) { c.CacheBackend = "redis" }, wantErr: "redis_addr"},
		{name: "redis cache with addr", mutate: func(c *AppConfig) { c.CacheBackend = "redis"; c.RedisAddr = "localhost:6379" }},
		{name: "unknown cache", mutate: func(c *AppConfig) { c.CacheBackend = "memcached" }, wantErr: "cache_backend"},
		{name: "zero cache size", mutate: func(c *AppConfig) { c.CacheSize = 0 }, wantErr: "cache_size"},
		{name: "s3 without bucket", mutate: func(c *AppConfig) { c.StorageType = "s3" }, wantErr: "storage_s3_bucket"},
		{name: "cloudfront without key", mutate: func(c *AppConfig) {
			c.StorageType = "s3"
			c.StorageS3Bucket = "donor-docs"
			c.StorageCFURL = "https://d1234.cloudfront.net"
		}, wantErr: "storage_cf_keypair_id"},
		{name: "unknown storage", mutate: func(c *AppConfig) { c.StorageType = "ftp" }, wantErr: "storage_type"},
		{name: "bad audit mode", mutate: func(c *AppConfig) { c.AuditLogDonor = "sometimes" }, wantErr: "audit_log_donor"},
		{name: "bcrypt cost too high", mutate: func(c *AppConfig) { c.BcryptCost = 40 }, wantErr: "bcrypt_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := validateApp(tt.env, cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://app.example.org, ,http://localhost:5173 ")
	if len(got) != 2 || got[0] != "https://app.example.org" || got[1] != "http://localhost:5173" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Errorf("empty list should be nil")
	}
}

func TestEnsureAdmin(t *testing.T) {
	ctx := t.Context()
	users := userstore.NewMemStore()
	if _, err := users.Create(ctx, models.User{ID: "uid-1", Email: "rachid@example.org", Role: models.RoleAccountant, IsActive: true}); err != nil {
		t.Fatal(err)
	}

	if err := ensureAdmin(ctx, users, "rachid@example.org", testLogger()); err != nil {
		t.Fatalf("ensureAdmin: %v", err)
	}
	u, _ := users.Get(ctx, "uid-1")
	if u.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want admin", u.Role)
	}

	// Already admin and unknown email are both no-ops.
	if err := ensureAdmin(ctx, users, "rachid@example.org", testLogger()); err != nil {
		t.Errorf("second run: %v", err)
	}
	if err := ensureAdmin(ctx, users, "nobody@example.org", testLogger()); err != nil {
		t.Errorf("unknown email: %v", err)
	}
}

// TestRouter_EndToEnd builds the real components against a test database and
// drives sign-up, a donor create and the dashboard through the router.
func TestRouter_EndToEnd(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	cfg := validConfig()
	cfg.StorageLocalPath = t.TempDir()
	cfg.CORSOrigins = []string{"http://localhost:5173"}
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}

	c, err := buildComponents(ctx, "test", cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	defer c.stop()
	router := newRouter(cfg, deps, c, testLogger())

	var cookies []*http.Cookie
	do := func(req *http.Request) *testutil.ResponseRecorder {
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		if set := rec.Result().Cookies(); len(set) > 0 {
			cookies = set
		}
		return rec
	}

	do(testutil.NewRequest(http.MethodGet, "/health")).AssertStatus(t, http.StatusOK)
	do(testutil.NewRequest(http.MethodGet, "/donors")).AssertStatus(t, http.StatusUnauthorized)

	rec := do(testutil.NewJSONRequest(http.MethodPost, "/signup", map[string]string{
		"email":      "hanane@example.org",
		"password":   "correct horse battery",
		"first_name": "Hanane",
		"last_name":  "Berrada",
	}))
	rec.AssertStatus(t, http.StatusCreated)

	var me struct {
		IsAuthenticated bool `json:"is_authenticated"`
		User            struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	rec = do(testutil.NewRequest(http.MethodGet, "/me"))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &me)
	if !me.IsAuthenticated || me.User.Email != "hanane@example.org" || me.User.Role != models.RoleManager {
		t.Fatalf("/me = %+v", me)
	}

	rec = do(testutil.NewJSONRequest(http.MethodPost, "/donors", map[string]any{
		"full_name":                 "Omar Tazi",
		"email":                     "omar@example.org",
		"phone_number":              "+212612345678",
		"address":                   "12 Rue Atlas, Rabat",
		"donor_type":                "general",
		"communication_preferences": []string{"email"},
	}))
	rec.AssertStatus(t, http.StatusCreated)

	rec = do(testutil.NewRequest(http.MethodGet, "/donors/search?q=oma"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Omar Tazi")

	rec = do(testutil.NewRequest(http.MethodGet, "/dashboard"))
	rec.AssertStatus(t, http.StatusOK)

	// Preflight from the configured SPA origin.
	pre := httptest.NewRequest(http.MethodOptions, "/donors", nil)
	pre.Header.Set("Origin", "http://localhost:5173")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = do(pre)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	do(testutil.NewRequest(http.MethodPost, "/logout")).AssertStatus(t, http.StatusNoContent)
}

func TestRouter_ServesLocalFilesToSignedInUsers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validConfig()
	cfg.StorageLocalPath = t.TempDir()
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	c, err := buildComponents(ctx, "test", cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	defer c.stop()
	if err := c.files.Put(ctx, "d1/receipt.txt", strings.NewReader("thanks"), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	router := newRouter(cfg, deps, c, testLogger())

	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/files/donors/d1/receipt.txt"))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestNewFileStore_Local(t *testing.T) {
	cfg := validConfig()
	cfg.StorageLocalPath = t.TempDir()

	files, local, err := newFileStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newFileStore: %v", err)
	}
	if local == nil || files == nil {
		t.Fatalf("local backend expected, got files=%T local=%v", files, local)
	}
	if err := files.Put(t.Context(), "d1/pledge.txt", strings.NewReader("500"), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := local.GetFullPath("d1/pledge.txt"); err != nil {
		t.Errorf("GetFullPath: %v", err)
	}
}
