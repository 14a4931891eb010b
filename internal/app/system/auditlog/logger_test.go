package auditlog_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dalemusser/donorhub/internal/app/store/audit"
	"github.com/dalemusser/donorhub/internal/app/system/auditlog"
	"github.com/dalemusser/donorhub/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (f *fakeStore) Log(_ context.Context, e audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	req := httptest.NewRequest("GET", "/", nil)

	// These should all be no-ops, not panic.
	logger.Log(context.Background(), audit.Event{EventType: "test"})
	logger.LoginSuccess(context.Background(), req, "uid", "password")
	logger.Logout(context.Background(), req, "uid")
}

func TestLogger_Modes(t *testing.T) {
	tests := []struct {
		mode    string
		wantDB  int
		wantLog int
	}{
		{auditlog.ModeAll, 1, 1},
		{auditlog.ModeDB, 1, 0},
		{auditlog.ModeLog, 0, 1},
		{auditlog.ModeOff, 0, 0},
		{"", 1, 1},
	}
	for _, tt := range tests {
		t.Run("mode="+tt.mode, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			store := &fakeStore{}
			l := auditlog.New(store, zap.New(core), auditlog.Config{Auth: tt.mode, Donor: tt.mode})

			l.LoginSuccess(context.Background(), httptest.NewRequest("POST", "/login", nil), "uid-1", "password")

			if len(store.events) != tt.wantDB {
				t.Errorf("stored %d events, want %d", len(store.events), tt.wantDB)
			}
			if logs.FilterMessage("audit event").Len() != tt.wantLog {
				t.Errorf("logged %d events, want %d", logs.FilterMessage("audit event").Len(), tt.wantLog)
			}
		})
	}
}

func TestLogger_CategoriesAreIndependent(t *testing.T) {
	store := &fakeStore{}
	l := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeOff, Donor: auditlog.ModeDB})
	req := httptest.NewRequest("POST", "/donors", nil)

	l.Logout(context.Background(), req, "uid-1")
	l.Donor(context.Background(), req, audit.EventDonorCreated, "uid-1", "d-1", map[string]string{"email": "a@x.com"})

	if len(store.events) != 1 {
		t.Fatalf("stored %d events, want 1", len(store.events))
	}
	e := store.events[0]
	if e.Category != audit.CategoryDonor || e.ActorID != "uid-1" || e.TargetID != "d-1" || !e.Success {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestLogger_EventShapes(t *testing.T) {
	store := &fakeStore{}
	l := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeDB})
	req := httptest.NewRequest("POST", "/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "TestBrowser/1.0")
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l.LoginSuccess(ctx, req, "uid-1", "google")
	l.LoginFailed(ctx, req, "x@example.com", "invalid credentials")
	l.ForcedSignOut(ctx, req, "uid-2", "profile unavailable")
	l.PasswordResetRequested(ctx, req, "nobody@example.com", false)

	want := []struct {
		typ     string
		success bool
	}{
		{audit.EventProviderLogin, true},
		{audit.EventLoginFailed, false},
		{audit.EventForcedSignOut, false},
		{audit.EventPasswordResetRequested, false},
	}
	if len(store.events) != len(want) {
		t.Fatalf("stored %d events, want %d", len(store.events), len(want))
	}
	for i, w := range want {
		e := store.events[i]
		if e.EventType != w.typ || e.Success != w.success {
			t.Errorf("event %d = %s/%v, want %s/%v", i, e.EventType, e.Success, w.typ, w.success)
		}
		if e.IP != "203.0.113.7" || e.UserAgent != "TestBrowser/1.0" {
			t.Errorf("event %d request context = %q %q", i, e.IP, e.UserAgent)
		}
	}
}

func TestLogger_StoreErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	l := auditlog.New(&fakeStore{err: errors.New("boom")}, zap.New(core), auditlog.Config{Auth: auditlog.ModeDB})

	l.Logout(context.Background(), httptest.NewRequest("POST", "/logout", nil), "uid-1")

	if logs.FilterMessage("failed to store audit event").Len() != 1 {
		t.Error("expected store failure to be logged")
	}
}

func TestLogger_WithMongoStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l := auditlog.New(store, zap.NewNop(), auditlog.Config{Auth: auditlog.ModeDB, Donor: auditlog.ModeDB})
	l.Donor(ctx, httptest.NewRequest("DELETE", "/donors/x", nil), audit.EventDonorDeleted, "uid-1", "d-9", nil)

	events, err := store.GetByTarget(ctx, "d-9", 10)
	if err != nil {
		t.Fatalf("GetByTarget failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != audit.EventDonorDeleted {
		t.Errorf("unexpected events: %+v", events)
	}
}
