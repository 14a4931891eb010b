package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/donorhub/internal/app/system/auth"
	"github.com/dalemusser/donorhub/internal/app/system/timeouts"
	"github.com/dalemusser/donorhub/internal/domain/models"
)

type getter interface {
	Get(ctx context.Context, uid string) (models.User, error)
}

// Fetcher implements auth.ProfileFetcher on top of a user store.
type Fetcher struct {
	users getter
}

// NewFetcher creates a ProfileFetcher backed by users (a *Store or *MemStore).
func NewFetcher(users getter) *Fetcher {
	return &Fetcher{users: users}
}

// FetchProfile returns (nil, nil) when the profile is not readable yet, so the
// resolver can retry. Disabled profiles return auth.ErrProfileInactive.
func (f *Fetcher) FetchProfile(ctx context.Context, uid string) (*auth.SessionUser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.users.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, auth.ErrProfileInactive
	}
	return &auth.SessionUser{
		ID:    u.ID,
		Name:  u.FullName(),
		Email: u.Email,
		Role:  u.Role,
	}, nil
}
