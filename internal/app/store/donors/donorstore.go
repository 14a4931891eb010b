// internal/app/store/donors/donorstore.go
package donorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store is the MongoDB gateway for the donors collection. It holds no state
// of its own; every document is read back and checked on each call.
type Store struct {
	c   *mongo.Collection
	log *zap.Logger
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("donors"), log: zap.NewNop()}
}

// WithLogger sets the logger that reports documents skipped by list reads.
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	if logger != nil {
		s.log = logger
	}
	return s
}

// Insert writes a new donor, assigning an ID when d has none. A unique-index
// violation on email_ci is reported as ErrDuplicateEmail.
func (s *Store) Insert(ctx context.Context, d models.Donor) (models.Donor, error) {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	prepare(&d)
	if err := checkRecord(d); err != nil {
		return models.Donor{}, err
	}
	if _, err := s.c.InsertOne(ctx, d); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Donor{}, ErrDuplicateEmail
		}
		return models.Donor{}, err
	}
	return d, nil
}

// GetByID loads a donor. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Donor, error) {
	var d models.Donor
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Donor{}, ErrNotFound
		}
		return models.Donor{}, err
	}
	if err := checkRecord(d); err != nil {
		return models.Donor{}, err
	}
	return d, nil
}

// EmailTaken reports whether a donor other than exclude already has email.
// Pass primitive.NilObjectID to check against every donor.
func (s *Store) EmailTaken(ctx context.Context, email string, exclude primitive.ObjectID) (bool, error) {
	filter := bson.M{"email_ci": normalize.Email(email)}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	err := s.c.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return false, nil
	}
	return false, err
}

// List returns donors newest first. activeOnly restricts to is_active=true.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]models.Donor, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	find := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, filter, find)
}

// SearchPrefix runs a prefix-range query on one folded field. It matches
// only values that start with term; it is not a substring search.
func (s *Store) SearchPrefix(ctx context.Context, field SearchField, term string, limit int64) ([]models.Donor, error) {
	folded := field.key(term)
	if folded == "" {
		return nil, nil
	}
	lo, hi := text.PrefixRange(folded)
	filter := bson.M{string(field): bson.M{"$gte": lo, "$lt": hi}}
	find := options.Find().SetSort(bson.D{{Key: string(field), Value: 1}, {Key: "_id", Value: 1}}).SetLimit(limit)
	return s.find(ctx, filter, find)
}

// Update applies a patch and the audit stamp. Returns ErrNotFound when no
// document matched.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, p models.DonorPatch, st Stamp) error {
	set := bson.M{
		"updated_at": st.At,
		"updated_by": st.By,
	}
	if p.FullName != nil {
		set["full_name"] = *p.FullName
		set["full_name_ci"] = normalize.NameCI(*p.FullName)
	}
	if p.Email != nil {
		set["email"] = *p.Email
		set["email_ci"] = normalize.Email(*p.Email)
	}
	if p.PhoneNumber != nil {
		set["phone_number"] = *p.PhoneNumber
	}
	if p.Address != nil {
		set["address"] = *p.Address
	}
	if p.DonorType != nil {
		set["donor_type"] = *p.DonorType
	}
	if p.CommunicationPreferences != nil {
		set["communication_preferences"] = *p.CommunicationPreferences
	}
	if p.Notes != nil {
		set["notes"] = *p.Notes
	}
	return s.updateOne(ctx, id, bson.M{"$set": set})
}

// SetActive flips the soft-delete flag. Setting the current value again is
// not an error.
func (s *Store) SetActive(ctx context.Context, id primitive.ObjectID, active bool, st Stamp) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": st.At,
		"updated_by": st.By,
	}})
}

// AddDocument appends attachment metadata to the donor.
func (s *Store) AddDocument(ctx context.Context, id primitive.ObjectID, doc models.DonorDocument, st Stamp) error {
	return s.updateOne(ctx, id, bson.M{
		"$push": bson.M{"documents": doc},
		"$set":  bson.M{"updated_at": st.At, "updated_by": st.By},
	})
}

// RemoveDocument pulls attachment metadata by document id.
func (s *Store) RemoveDocument(ctx context.Context, id primitive.ObjectID, docID string, st Stamp) error {
	return s.updateOne(ctx, id, bson.M{
		"$pull": bson.M{"documents": bson.M{"id": docID}},
		"$set":  bson.M{"updated_at": st.At, "updated_by": st.By},
	})
}

// Delete removes the donor permanently. Deleting an absent donor is a no-op.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Count returns the number of donors matching f.
func (s *Store) Count(ctx context.Context, f CountFilter) (int64, error) {
	filter := bson.M{}
	if f.Active != nil {
		filter["is_active"] = *f.Active
	}
	if f.DonorType != "" {
		filter["donor_type"] = f.DonorType
	}
	return s.c.CountDocuments(ctx, filter)
}

func (s *Store) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Donor, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Donor
	for cur.Next(ctx) {
		var d models.Donor
		if err := cur.Decode(&d); err != nil {
			s.log.Warn("skipping malformed donor", zap.Error(fmt.Errorf("%w: %v", ErrMalformed, err)))
			continue
		}
		if err := checkRecord(d); err != nil {
			s.log.Warn("skipping malformed donor", zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out, cur.Err()
}
