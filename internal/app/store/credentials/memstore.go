package credentialstore

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
)

// MemStore is an in-process credential store with the same uniqueness rules
// as the MongoDB indexes.
type MemStore struct {
	mu    sync.RWMutex
	creds map[string]models.Credential
}

func NewMemStore() *MemStore {
	return &MemStore{creds: make(map[string]models.Credential)}
}

func (m *MemStore) Create(_ context.Context, c models.Credential) (models.Credential, error) {
	c = prepare(c)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[c.ID]; ok {
		return models.Credential{}, ErrDuplicate
	}
	for _, ex := range m.creds {
		if c.EmailCI != "" && ex.EmailCI == c.EmailCI {
			return models.Credential{}, ErrDuplicate
		}
		if c.ProviderSubject != "" && ex.Provider == c.Provider && ex.ProviderSubject == c.ProviderSubject {
			return models.Credential{}, ErrDuplicate
		}
	}
	m.creds[c.ID] = c
	return c, nil
}

func (m *MemStore) Get(_ context.Context, uid string) (models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[uid]
	if !ok {
		return models.Credential{}, ErrNotFound
	}
	return c, nil
}

func (m *MemStore) Exists(_ context.Context, uid string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.creds[uid]
	return ok, nil
}

func (m *MemStore) GetByEmail(_ context.Context, email string) (models.Credential, error) {
	ci := normalize.Email(email)
	return m.find(func(c models.Credential) bool { return ci != "" && c.EmailCI == ci })
}

func (m *MemStore) GetByProvider(_ context.Context, provider, subject string) (models.Credential, error) {
	return m.find(func(c models.Credential) bool {
		return c.Provider == provider && c.ProviderSubject == subject
	})
}

func (m *MemStore) SetResetToken(_ context.Context, uid, tokenHash string, expires time.Time) error {
	return m.update(uid, func(c *models.Credential) {
		c.ResetTokenHash = tokenHash
		c.ResetExpiresAt = &expires
	})
}

func (m *MemStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.creds {
		if c.ResetTokenHash == "" || c.ResetTokenHash != tokenHash {
			continue
		}
		if c.ResetExpiresAt == nil || !c.ResetExpiresAt.After(now) {
			return models.Credential{}, ErrNotFound
		}
		c.ResetTokenHash = ""
		c.ResetExpiresAt = nil
		c.UpdatedAt = &now
		m.creds[id] = c
		return c, nil
	}
	return models.Credential{}, ErrNotFound
}

func (m *MemStore) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.creds {
		if c.ResetExpiresAt != nil && !c.ResetExpiresAt.After(now) {
			c.ResetTokenHash = ""
			c.ResetExpiresAt = nil
			m.creds[id] = c
			n++
		}
	}
	return n, nil
}

func (m *MemStore) SetPasswordHash(_ context.Context, uid, hash string, at time.Time) error {
	return m.update(uid, func(c *models.Credential) {
		c.PasswordHash = hash
		c.UpdatedAt = &at
	})
}

func (m *MemStore) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, uid)
	return nil
}

func (m *MemStore) find(match func(models.Credential) bool) (models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.creds {
		if match(c) {
			return c, nil
		}
	}
	return models.Credential{}, ErrNotFound
}

func (m *MemStore) update(uid string, fn func(*models.Credential)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[uid]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	m.creds[uid] = c
	return nil
}
