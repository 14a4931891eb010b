// Package donorsvc is the donor lifecycle service: it validates intents,
// enforces email uniqueness and audit stamps, and keeps the query cache
// consistent with the store.
package donorsvc

import (
	"context"
	"errors"
	"time"

	donorstore "github.com/dalemusser/donorhub/internal/app/store/donors"
	"github.com/dalemusser/donorhub/internal/app/system/metrics"
	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/app/system/querycache"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/donorhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SearchLimit caps each of the two prefix queries behind Search.
const SearchLimit = 20

// Cache key prefixes. Every list, search and summary projection lives under
// listPrefix; single records live under recordPrefix+id.
const (
	listPrefix   = "donors:"
	recordPrefix = "donor:"
)

// Gateway is the donor document store. donorstore.Store and
// donorstore.MemStore both satisfy it.
type Gateway interface {
	Insert(ctx context.Context, d models.Donor) (models.Donor, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Donor, error)
	EmailTaken(ctx context.Context, email string, exclude primitive.ObjectID) (bool, error)
	List(ctx context.Context, activeOnly bool) ([]models.Donor, error)
	SearchPrefix(ctx context.Context, field donorstore.SearchField, term string, limit int64) ([]models.Donor, error)
	Update(ctx context.Context, id primitive.ObjectID, p models.DonorPatch, st donorstore.Stamp) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool, st donorstore.Stamp) error
	AddDocument(ctx context.Context, id primitive.ObjectID, doc models.DonorDocument, st donorstore.Stamp) error
	RemoveDocument(ctx context.Context, id primitive.ObjectID, docID string, st donorstore.Stamp) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	Count(ctx context.Context, f donorstore.CountFilter) (int64, error)
}

// Service is safe for concurrent use.
type Service struct {
	store  Gateway
	cache  *querycache.Cache
	files  storage.Store
	logger *zap.Logger
	now    func() time.Time
}

// New builds a Service. cache and files may be nil: reads then go straight
// to the store and document operations return ErrNoStorage.
func New(store Gateway, cache *querycache.Cache, files storage.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cache:  cache,
		files:  files,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for audit stamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create validates the form, checks that no donor already uses the email and
// inserts a new active donor stamped with actorID.
func (s *Service) Create(ctx context.Context, form models.DonorForm, actorID string) (d models.Donor, err error) {
	defer func() { metrics.Mutation("create", err) }()
	if actorID == "" {
		return models.Donor{}, ErrUnauthenticated
	}
	form, err = validateForm(form)
	if err != nil {
		return models.Donor{}, err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "donor create")
	defer cancel()

	taken, err := s.store.EmailTaken(ctx, form.Email, primitive.NilObjectID)
	if err != nil {
		return models.Donor{}, err
	}
	if taken {
		return models.Donor{}, ErrDuplicateEmail
	}

	now := s.now()
	d = models.Donor{
		FullName:                 form.FullName,
		Email:                    form.Email,
		PhoneNumber:              form.PhoneNumber,
		Address:                  form.Address,
		DonorType:                form.DonorType,
		CommunicationPreferences: form.CommunicationPreferences,
		Notes:                    form.Notes,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                &now,
		CreatedBy:                actorID,
		UpdatedBy:                actorID,
	}
	d, err = s.store.Insert(ctx, d)
	if err != nil {
		return models.Donor{}, err
	}
	s.invalidate(ctx, d.ID)
	return d, nil
}

// Update applies the fields present in patch. When the patch changes the
// email, uniqueness is re-checked against every other donor. The stored
// record is re-read and returned.
func (s *Service) Update(ctx context.Context, id string, patch models.DonorPatch, actorID string) (d models.Donor, err error) {
	defer func() { metrics.Mutation("update", err) }()
	if actorID == "" {
		return models.Donor{}, ErrUnauthenticated
	}
	oid, err := parseID(id)
	if err != nil {
		return models.Donor{}, err
	}
	patch, err = validatePatch(patch)
	if err != nil {
		return models.Donor{}, err
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "donor update")
	defer cancel()

	if patch.Email != nil {
		taken, err := s.store.EmailTaken(ctx, *patch.Email, oid)
		if err != nil {
			return models.Donor{}, err
		}
		if taken {
			return models.Donor{}, ErrDuplicateEmail
		}
	}

	if err := s.store.Update(ctx, oid, patch, s.stamp(actorID)); err != nil {
		return models.Donor{}, err
	}
	s.invalidate(ctx, oid)

	// The record can vanish between the write and this read.
	return s.store.GetByID(ctx, oid)
}

// Deactivate soft-deletes the donor. Deactivating an inactive donor is not an
// error.
func (s *Service) Deactivate(ctx context.Context, id, actorID string) (err error) {
	defer func() { metrics.Mutation("deactivate", err) }()
	return s.setActive(ctx, id, false, actorID)
}

// Reactivate reverses Deactivate. Idempotent.
func (s *Service) Reactivate(ctx context.Context, id, actorID string) (err error) {
	defer func() { metrics.Mutation("reactivate", err) }()
	return s.setActive(ctx, id, true, actorID)
}

func (s *Service) setActive(ctx context.Context, id string, active bool, actorID string) error {
	if actorID == "" {
		return ErrUnauthenticated
	}
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "donor set active")
	defer cancel()

	if err := s.store.SetActive(ctx, oid, active, s.stamp(actorID)); err != nil {
		return err
	}
	s.invalidate(ctx, oid)
	return nil
}

// Delete removes the donor permanently, with its attached document objects.
// Deleting a donor that does not exist is not an error.
func (s *Service) Delete(ctx context.Context, id, actorID string) (err error) {
	defer func() { metrics.Mutation("delete", err) }()
	if actorID == "" {
		return ErrUnauthenticated
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}

	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.logger, "donor delete")
	defer cancel()

	// Best effort: a malformed record can still be deleted, it just keeps its
	// objects.
	var docs []models.DonorDocument
	if d, err := s.store.GetByID(ctx, oid); err == nil {
		docs = d.Documents
	} else if !errors.Is(err, donorstore.ErrNotFound) && !errors.Is(err, donorstore.ErrMalformed) {
		return err
	}

	if err := s.store.Delete(ctx, oid); err != nil {
		return err
	}
	s.invalidate(ctx, oid)

	for _, doc := range docs {
		s.removeObject(ctx, doc.Key)
	}
	return nil
}

// List returns donors newest first; activeOnly drops deactivated donors.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.Donor, error) {
	key := listPrefix + "list:all"
	if activeOnly {
		key = listPrefix + "list:active"
	}
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.Donor, error) {
		ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.logger, "donor list")
		defer cancel()
		return s.store.List(ctx, activeOnly)
	})
}

// Get returns the donor, or nil when no donor has id.
func (s *Service) Get(ctx context.Context, id string) (*models.Donor, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return querycache.Fetch(ctx, s.cache, recordPrefix+oid.Hex(), func(ctx context.Context) (*models.Donor, error) {
		ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Short(), s.logger, "donor get")
		defer cancel()
		d, err := s.store.GetByID(ctx, oid)
		if errors.Is(err, donorstore.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &d, nil
	})
}

// Search runs a name-prefix and an email-prefix query, each capped at
// SearchLimit, and returns their union without duplicates: name matches
// first, then email-only matches. A blank term yields an empty result.
func (s *Service) Search(ctx context.Context, term string) ([]models.Donor, error) {
	if normalize.NameCI(term) == "" {
		return []models.Donor{}, nil
	}
	// Each field folds the term its own way, so the key keeps accents.
	key := normalize.Email(term)
	return querycache.Fetch(ctx, s.cache, listPrefix+"search:"+key, func(ctx context.Context) ([]models.Donor, error) {
		ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.logger, "donor search")
		defer cancel()

		byName, err := s.store.SearchPrefix(ctx, donorstore.FieldFullName, term, SearchLimit)
		if err != nil {
			return nil, err
		}
		byEmail, err := s.store.SearchPrefix(ctx, donorstore.FieldEmail, term, SearchLimit)
		if err != nil {
			return nil, err
		}

		out := make([]models.Donor, 0, len(byName)+len(byEmail))
		seen := make(map[primitive.ObjectID]bool, cap(out))
		for _, group := range [][]models.Donor{byName, byEmail} {
			for _, d := range group {
				if !seen[d.ID] {
					seen[d.ID] = true
					out = append(out, d)
				}
			}
		}
		return out, nil
	})
}

// Summary holds the dashboard counts.
type Summary struct {
	Total       int64 `json:"total"`
	Active      int64 `json:"active"`
	Inactive    int64 `json:"inactive"`
	General     int64 `json:"general"`
	Sponsorship int64 `json:"sponsorship"`
}

// Summary counts donors for the dashboard: total, by active flag and by
// donor type. The result is cached under the list prefix.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return querycache.Fetch(ctx, s.cache, listPrefix+"summary", func(ctx context.Context) (Summary, error) {
		ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Medium(), s.logger, "donor summary")
		defer cancel()

		active, inactive := true, false
		var sum Summary
		for _, q := range []struct {
			dst *int64
			f   donorstore.CountFilter
		}{
			{&sum.Total, donorstore.CountFilter{}},
			{&sum.Active, donorstore.CountFilter{Active: &active}},
			{&sum.Inactive, donorstore.CountFilter{Active: &inactive}},
			{&sum.General, donorstore.CountFilter{DonorType: models.DonorTypeGeneral}},
			{&sum.Sponsorship, donorstore.CountFilter{DonorType: models.DonorTypeSponsorship}},
		} {
			n, err := s.store.Count(ctx, q.f)
			if err != nil {
				return Summary{}, err
			}
			*q.dst = n
		}
		return sum, nil
	})
}

func (s *Service) stamp(actorID string) donorstore.Stamp {
	return donorstore.Stamp{At: s.now(), By: actorID}
}

// invalidate drops every projection that can include the donor. Failures are
// logged; the write already succeeded.
func (s *Service) invalidate(ctx context.Context, id primitive.ObjectID) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), listPrefix, recordPrefix+id.Hex()); err != nil {
		s.logger.Warn("donor cache invalidation failed", zap.String("donor_id", id.Hex()), zap.Error(err))
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}
