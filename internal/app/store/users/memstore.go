package userstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/donorhub/internal/app/system/normalize"
	"github.com/dalemusser/donorhub/internal/domain/models"
)

// MemStore keeps profiles in process. Tests use it to simulate a profile
// that is written after its credential.
type MemStore struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemStore() *MemStore {
	return &MemStore{users: make(map[string]models.User)}
}

func (m *MemStore) Get(_ context.Context, uid string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemStore) Create(_ context.Context, u models.User) (models.User, error) {
	u, err := prepare(u)
	if err != nil {
		return models.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return models.User{}, ErrExists
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemStore) TouchLastLogin(_ context.Context, uid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	u.UpdatedAt = &at
	m.users[uid] = u
	return nil
}

func (m *MemStore) SetActive(_ context.Context, uid string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = &at
	m.users[uid] = u
	return nil
}

func (m *MemStore) GetByEmail(_ context.Context, email string) (models.User, error) {
	email = normalize.Email(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MemStore) SetRole(_ context.Context, uid, role string, at time.Time) error {
	role = normalize.Role(role)
	if !models.ValidRole(role) {
		return errors.Join(ErrInvalid, errors.New("unknown role "+role))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = &at
	m.users[uid] = u
	return nil
}
