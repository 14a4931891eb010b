package credentialstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	credentialstore "github.com/dalemusser/donorhub/internal/app/store/credentials"
	"github.com/dalemusser/donorhub/internal/app/system/indexes"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/donorhub/internal/testutil"
)

type store interface {
	Create(ctx context.Context, c models.Credential) (models.Credential, error)
	Get(ctx context.Context, uid string) (models.Credential, error)
	Exists(ctx context.Context, uid string) (bool, error)
	GetByEmail(ctx context.Context, email string) (models.Credential, error)
	GetByProvider(ctx context.Context, provider, subject string) (models.Credential, error)
	SetResetToken(ctx context.Context, uid, tokenHash string, expires time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (models.Credential, error)
	SetPasswordHash(ctx context.Context, uid, hash string, at time.Time) error
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
	Delete(ctx context.Context, uid string) error
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("memory", func(t *testing.T) { fn(t, credentialstore.NewMemStore()) })
	t.Run("mongo", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		ctx, cancel := testutil.TestContext()
		defer cancel()
		if err := indexes.EnsureAll(ctx, db); err != nil {
			t.Fatalf("EnsureAll: %v", err)
		}
		fn(t, credentialstore.New(db))
	})
}

func TestCreate_IssuesUIDAndNormalizes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		c, err := s.Create(ctx, models.Credential{Email: "Nadia@Example.com", PasswordHash: "h"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if c.ID == "" {
			t.Fatal("expected a uid")
		}
		if c.Provider != models.ProviderPassword || c.EmailCI != "nadia@example.com" {
			t.Errorf("unexpected credential: %+v", c)
		}

		got, err := s.GetByEmail(ctx, "NADIA@example.com")
		if err != nil || got.ID != c.ID {
			t.Errorf("GetByEmail = %+v, %v", got, err)
		}
		ok, err := s.Exists(ctx, c.ID)
		if err != nil || !ok {
			t.Errorf("Exists = %v, %v; want true", ok, err)
		}
	})
}

func TestCreate_Duplicates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		if _, err := s.Create(ctx, models.Credential{Email: "same@example.com"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := s.Create(ctx, models.Credential{Email: "SAME@example.com", Provider: "google", ProviderSubject: "g-1"})
		if !errors.Is(err, credentialstore.ErrDuplicate) {
			t.Errorf("email: err = %v, want ErrDuplicate", err)
		}

		if _, err := s.Create(ctx, models.Credential{Provider: "twitter", ProviderSubject: "t-1"}); err != nil {
			t.Fatalf("Create twitter: %v", err)
		}
		// A second credential without email must not collide on the email index.
		if _, err := s.Create(ctx, models.Credential{Provider: "twitter", ProviderSubject: "t-2"}); err != nil {
			t.Fatalf("Create second twitter: %v", err)
		}
		_, err = s.Create(ctx, models.Credential{Provider: "twitter", ProviderSubject: "t-1"})
		if !errors.Is(err, credentialstore.ErrDuplicate) {
			t.Errorf("subject: err = %v, want ErrDuplicate", err)
		}

		got, err := s.GetByProvider(ctx, "twitter", "t-2")
		if err != nil || got.ProviderSubject != "t-2" {
			t.Errorf("GetByProvider = %+v, %v", got, err)
		}
	})
}

func TestResetToken(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		c, _ := s.Create(ctx, models.Credential{Email: "reset@example.com", PasswordHash: "old"})
		now := time.Now().UTC()

		if err := s.SetResetToken(ctx, c.ID, "hash-1", now.Add(time.Hour)); err != nil {
			t.Fatalf("SetResetToken: %v", err)
		}
		got, err := s.ConsumeResetToken(ctx, "hash-1", now)
		if err != nil || got.ID != c.ID {
			t.Fatalf("ConsumeResetToken = %+v, %v", got, err)
		}
		if _, err := s.ConsumeResetToken(ctx, "hash-1", now); !errors.Is(err, credentialstore.ErrNotFound) {
			t.Errorf("second consume: err = %v, want ErrNotFound", err)
		}

		s.SetResetToken(ctx, c.ID, "hash-2", now.Add(-time.Minute))
		if _, err := s.ConsumeResetToken(ctx, "hash-2", now); !errors.Is(err, credentialstore.ErrNotFound) {
			t.Errorf("expired: err = %v, want ErrNotFound", err)
		}

		if err := s.SetPasswordHash(ctx, c.ID, "new", now); err != nil {
			t.Fatalf("SetPasswordHash: %v", err)
		}
		got, _ = s.Get(ctx, c.ID)
		if got.PasswordHash != "new" {
			t.Errorf("PasswordHash = %q", got.PasswordHash)
		}
	})
}

func TestClearExpiredResetTokens(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		now := time.Now().UTC()
		stale, _ := s.Create(ctx, models.Credential{Email: "stale@example.com", PasswordHash: "x"})
		fresh, _ := s.Create(ctx, models.Credential{Email: "fresh@example.com", PasswordHash: "x"})
		s.SetResetToken(ctx, stale.ID, "stale-hash", now.Add(-time.Minute))
		s.SetResetToken(ctx, fresh.ID, "fresh-hash", now.Add(time.Hour))

		n, err := s.ClearExpiredResetTokens(ctx, now)
		if err != nil {
			t.Fatalf("ClearExpiredResetTokens: %v", err)
		}
		if n != 1 {
			t.Errorf("cleared = %d, want 1", n)
		}
		got, _ := s.Get(ctx, stale.ID)
		if got.ResetTokenHash != "" || got.ResetExpiresAt != nil {
			t.Errorf("stale token kept: %+v", got)
		}
		if _, err := s.ConsumeResetToken(ctx, "fresh-hash", now); err != nil {
			t.Errorf("fresh token: %v", err)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		c, _ := s.Create(ctx, models.Credential{Email: "gone@example.com"})
		if err := s.Delete(ctx, c.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		ok, err := s.Exists(ctx, c.ID)
		if err != nil || ok {
			t.Errorf("Exists after delete = %v, %v", ok, err)
		}
		if _, err := s.Get(ctx, c.ID); !errors.Is(err, credentialstore.ErrNotFound) {
			t.Errorf("Get after delete: err = %v", err)
		}
	})
}
