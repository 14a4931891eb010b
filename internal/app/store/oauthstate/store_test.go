package oauthstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/donorhub/internal/app/store/oauthstate"
	"github.com/dalemusser/donorhub/internal/testutil"
)

type store interface {
	Save(ctx context.Context, st oauthstate.State) error
	Consume(ctx context.Context, provider, state string) (oauthstate.State, bool, error)
}

func forEachStore(t *testing.T, fn func(t *testing.T, s store)) {
	t.Run("memory", func(t *testing.T) { fn(t, oauthstate.NewMemStore()) })
	t.Run("mongo", func(t *testing.T) { fn(t, oauthstate.New(testutil.SetupTestDB(t))) })
}

func TestSaveAndConsume(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		err := s.Save(ctx, oauthstate.State{
			State:     "state-1",
			Provider:  "twitter",
			Verifier:  "verifier-1",
			ReturnURL: "/donors",
			ExpiresAt: time.Now().Add(10 * time.Minute),
		})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		st, ok, err := s.Consume(ctx, "twitter", "state-1")
		if err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
		if !ok {
			t.Fatal("expected state to be valid")
		}
		if st.Verifier != "verifier-1" || st.ReturnURL != "/donors" {
			t.Errorf("unexpected state: %+v", st)
		}

		// One-time use.
		if _, ok, _ := s.Consume(ctx, "twitter", "state-1"); ok {
			t.Error("expected consumed state to be invalid")
		}
	})
}

func TestConsume_Rejects(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store) {
		ctx, cancel := testutil.TestContext()
		defer cancel()

		s.Save(ctx, oauthstate.State{State: "expired", Provider: "google", ExpiresAt: time.Now().Add(-time.Minute)})
		s.Save(ctx, oauthstate.State{State: "google-only", Provider: "google", ExpiresAt: time.Now().Add(time.Minute)})

		tests := []struct {
			name     string
			provider string
			state    string
		}{
			{"unknown", "google", "nope"},
			{"expired", "google", "expired"},
			{"wrong provider", "apple", "google-only"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, ok, err := s.Consume(ctx, tt.provider, tt.state)
				if err != nil {
					t.Fatalf("Consume: %v", err)
				}
				if ok {
					t.Error("expected state to be rejected")
				}
			})
		}
	})
}

func TestCleanupExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := oauthstate.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	s.Save(ctx, oauthstate.State{State: "old", Provider: "google", ExpiresAt: time.Now().Add(-time.Hour)})
	s.Save(ctx, oauthstate.State{State: "new", Provider: "google", ExpiresAt: time.Now().Add(time.Hour)})

	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
}
