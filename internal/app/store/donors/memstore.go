package donorstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dalemusser/donorhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MemStore is an in-process donor gateway with the same contract as Store.
// It backs handler and service tests and the "memory" store driver.
type MemStore struct {
	mu     sync.RWMutex
	donors map[primitive.ObjectID]models.Donor
	log    *zap.Logger
}

func NewMemStore() *MemStore {
	return &MemStore{donors: make(map[primitive.ObjectID]models.Donor), log: zap.NewNop()}
}

// WithLogger sets the logger that reports records skipped by list reads.
func (m *MemStore) WithLogger(logger *zap.Logger) *MemStore {
	if logger != nil {
		m.log = logger
	}
	return m
}

// Put stores d as-is, bypassing validation. Tests use it to seed malformed
// records.
func (m *MemStore) Put(d models.Donor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donors[d.ID] = clone(d)
}

func (m *MemStore) Insert(_ context.Context, d models.Donor) (models.Donor, error) {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	prepare(&d)
	if err := checkRecord(d); err != nil {
		return models.Donor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emailTakenLocked(d.EmailCI, primitive.NilObjectID) {
		return models.Donor{}, ErrDuplicateEmail
	}
	m.donors[d.ID] = clone(d)
	return clone(d), nil
}

func (m *MemStore) GetByID(_ context.Context, id primitive.ObjectID) (models.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.donors[id]
	if !ok {
		return models.Donor{}, ErrNotFound
	}
	if err := checkRecord(d); err != nil {
		return models.Donor{}, err
	}
	return clone(d), nil
}

func (m *MemStore) EmailTaken(_ context.Context, email string, exclude primitive.ObjectID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emailTakenLocked(strings.ToLower(strings.TrimSpace(email)), exclude), nil
}

func (m *MemStore) List(_ context.Context, activeOnly bool) ([]models.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Donor, 0, len(m.donors))
	for _, d := range m.donors {
		if activeOnly && !d.IsActive {
			continue
		}
		if err := checkRecord(d); err != nil {
			m.log.Warn("skipping malformed donor", zap.Error(err))
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (m *MemStore) SearchPrefix(_ context.Context, field SearchField, term string, limit int64) ([]models.Donor, error) {
	folded := field.key(term)
	if folded == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Donor
	for _, d := range m.donors {
		v := d.FullNameCI
		if field == FieldEmail {
			v = d.EmailCI
		}
		if !strings.HasPrefix(v, folded) {
			continue
		}
		if err := checkRecord(d); err != nil {
			m.log.Warn("skipping malformed donor", zap.Error(err))
			continue
		}
		out = append(out, clone(d))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := sortKey(out[i], field), sortKey(out[j], field)
		if a != b {
			return a < b
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Update(_ context.Context, id primitive.ObjectID, p models.DonorPatch, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donors[id]
	if !ok {
		return ErrNotFound
	}
	applyPatch(&d, p, st)
	if p.Email != nil && m.emailTakenLocked(d.EmailCI, id) {
		return ErrDuplicateEmail
	}
	m.donors[id] = d
	return nil
}

func (m *MemStore) SetActive(_ context.Context, id primitive.ObjectID, active bool, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donors[id]
	if !ok {
		return ErrNotFound
	}
	d.IsActive = active
	stamp(&d, st)
	m.donors[id] = d
	return nil
}

func (m *MemStore) AddDocument(_ context.Context, id primitive.ObjectID, doc models.DonorDocument, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donors[id]
	if !ok {
		return ErrNotFound
	}
	d.Documents = append(append([]models.DonorDocument(nil), d.Documents...), doc)
	stamp(&d, st)
	m.donors[id] = d
	return nil
}

func (m *MemStore) RemoveDocument(_ context.Context, id primitive.ObjectID, docID string, st Stamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.donors[id]
	if !ok {
		return ErrNotFound
	}
	kept := make([]models.DonorDocument, 0, len(d.Documents))
	for _, doc := range d.Documents {
		if doc.ID != docID {
			kept = append(kept, doc)
		}
	}
	d.Documents = kept
	stamp(&d, st)
	m.donors[id] = d
	return nil
}

func (m *MemStore) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.donors, id)
	return nil
}

func (m *MemStore) Count(_ context.Context, f CountFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, d := range m.donors {
		if f.matches(d) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) emailTakenLocked(emailCI string, exclude primitive.ObjectID) bool {
	for id, d := range m.donors {
		if id != exclude && d.EmailCI == emailCI {
			return true
		}
	}
	return false
}

func sortKey(d models.Donor, field SearchField) string {
	if field == FieldEmail {
		return d.EmailCI
	}
	return d.FullNameCI
}

func clone(d models.Donor) models.Donor {
	d.CommunicationPreferences = append([]models.CommunicationPreference(nil), d.CommunicationPreferences...)
	if d.Documents != nil {
		d.Documents = append([]models.DonorDocument(nil), d.Documents...)
	}
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		d.UpdatedAt = &t
	}
	return d
}
