package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when no profile exists for the uid.
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when a profile already exists for the uid.
	ErrExists = errors.New("user already exists")
	// ErrInvalid is returned when a profile fails validation.
	ErrInvalid = errors.New("invalid user")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Get loads the profile keyed by the credential uid.
func (s *Store) Get(ctx context.Context, uid string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": uid}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// Create inserts a new profile. Email is stored normalized and the role
// defaults to manager.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u, err := prepare(u)
	if err != nil {
		return models.User{}, err
	}
	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrExists
		}
		return models.User{}, err
	}
	return u, nil
}

// TouchLastLogin records a successful sign-in.
func (s *Store) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"last_login": at,
		"updated_at": at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive enables or disables a staff profile.
func (s *Store) SetActive(ctx context.Context, uid string, active bool, at time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func prepare(u models.User) (models.User, error) {
	if u.ID == "" {
		return models.User{}, errors.Join(ErrInvalid, errors.New("missing uid"))
	}
	u.Email = normalize.Email(u.Email)
	u.FirstName = normalize.Name(u.FirstName)
	u.LastName = normalize.Name(u.LastName)
	u.Role = normalize.Role(u.Role)
	if u.Role == "" {
		u.Role = models.RoleManager
	}
	if !models.ValidRole(u.Role) {
		return models.User{}, errors.Join(ErrInvalid, errors.New("unknown role "+u.Role))
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return u, nil
}

// GetByEmail loads the profile with the given (normalized) email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// SetRole changes a profile's role.
func (s *Store) SetRole(ctx context.Context, uid, role string, at time.Time) error {
	role = normalize.Role(role)
	if !models.ValidRole(role) {
		return errors.Join(ErrInvalid, errors.New("unknown role "+role))
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, bson.M{"$set": bson.M{
		"role":       role,
		"updated_at": at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
