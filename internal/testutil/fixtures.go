package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	credentialstore "github.com/dalemusser/donorhub/internal/app/store/credentials"
	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
	userstore "github.com/dalemusser/donorhub/internal/app/store/users"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that call a handler method without a router.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a password credential and its profile. The password is
// hashed at bcrypt.MinCost.
func (f *Fixtures) CreateUser(ctx context.Context, firstName, lastName, email, password, role string) models.User {
	f.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		f.t.Fatalf("hash password: %v", err)
	}
	cred, err := credentialstore.New(f.db).Create(ctx, models.Credential{
		Email:        email,
		Provider:     models.ProviderPassword,
		PasswordHash: string(hash),
	})
	if err != nil {
		f.t.Fatalf("create credential %s: %v", email, err)
	}
	u, err := userstore.New(f.db).Create(ctx, models.User{
		ID:        cred.ID,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
		IsActive:  true,
	})
	if err != nil {
		f.t.Fatalf("create profile %s: %v", email, err)
	}
	return u
}

// CreateDonor inserts an active general donor created by actorID.
func (f *Fixtures) CreateDonor(ctx context.Context, fullName, email, actorID string) models.Donor {
	f.t.Helper()

	d, err := donorstore.New(f.db).Insert(ctx, models.Donor{
		FullName:                 fullName,
		Email:                    email,
		PhoneNumber:              "+212600000000",
		Address:                  "1 Test Street",
		DonorType:                models.DonorTypeGeneral,
		CommunicationPreferences: []models.CommunicationPreference{models.PrefEmail},
		IsActive:                 true,
		CreatedAt:                time.Now().UTC(),
		CreatedBy:                actorID,
	})
	if err != nil {
		f.t.Fatalf("create donor %s: %v", email, err)
	}
	return d
}
