// internal/app/store/credentials/credentialstore.go
package credentialstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate is returned when the email or the provider subject is
	// already bound to another credential.
	ErrDuplicate = errors.New("credential already exists")
)

// Store holds sign-in credentials. The credential _id is the uid shared with
// the user profile.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("credentials")}
}

// Create inserts a credential, issuing a new uid when c.ID is empty.
func (s *Store) Create(ctx context.Context, c models.Credential) (models.Credential, error) {
	c = prepare(c)
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Credential{}, ErrDuplicate
		}
		return models.Credential{}, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, uid string) (models.Credential, error) {
	return s.findOne(ctx, bson.M{"_id": uid})
}

// Exists reports whether the credential is still present. The session
// restore path uses it to detect external revocation.
func (s *Store) Exists(ctx context.Context, uid string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": uid}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (models.Credential, error) {
	ci := normalize.Email(email)
	if ci == "" {
		return models.Credential{}, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"email_ci": ci})
}

func (s *Store) GetByProvider(ctx context.Context, provider, subject string) (models.Credential, error) {
	return s.findOne(ctx, bson.M{"provider": provider, "provider_subject": subject})
}

// SetResetToken stores the hash of a one-time password reset token.
func (s *Store) SetResetToken(ctx context.Context, uid, tokenHash string, expires time.Time) error {
	return s.updateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"reset_token_hash": tokenHash,
		"reset_expires_at": expires,
		"updated_at":       time.Now().UTC(),
	}})
}

// ConsumeResetToken atomically clears an unexpired reset token and returns
// the credential it belonged to. Unknown or expired tokens give ErrNotFound.
func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (models.Credential, error) {
	var c models.Credential
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"reset_token_hash": tokenHash, "reset_expires_at": bson.M{"$gt": now}},
		bson.M{
			"$unset": bson.M{"reset_token_hash": "", "reset_expires_at": ""},
			"$set":   bson.M{"updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Credential{}, ErrNotFound
	}
	return c, err
}

// ClearExpiredResetTokens drops reset tokens that expired before now.
func (s *Store) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"reset_expires_at": bson.M{"$lte": now}},
		bson.M{"$unset": bson.M{"reset_token_hash": "", "reset_expires_at": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetPasswordHash replaces the bcrypt hash.
func (s *Store) SetPasswordHash(ctx context.Context, uid, hash string, at time.Time) error {
	return s.updateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"password_hash": hash,
		"updated_at":    at,
	}})
}

// Delete revokes the credential. Sessions bound to it are signed out on
// their next request.
func (s *Store) Delete(ctx context.Context, uid string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": uid})
	return err
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Credential, error) {
	var c models.Credential
	if err := s.c.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Credential{}, ErrNotFound
		}
		return models.Credential{}, err
	}
	return c, nil
}

func (s *Store) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func prepare(c models.Credential) models.Credential {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Email = normalize.Email(c.Email)
	c.EmailCI = c.Email
	if c.Provider == "" {
		c.Provider = models.ProviderPassword
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return c
}
