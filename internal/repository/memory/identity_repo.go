package memory

import (
	"context"
	"sync"

	"trpgscheduler/internal/domain"
)

// PrincipalRepository is an in-memory domain.PrincipalRepository.
type PrincipalRepository struct {
	mu         sync.RWMutex
	principals map[string]*domain.Principal
}

func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{principals: make(map[string]*domain.Principal)}
}

func (r *PrincipalRepository) Create(ctx context.Context, p *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.principals[p.ID] = &cp
	return nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ProfileRepository is an in-memory domain.ProfileRepository.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.UserProfile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]*domain.UserProfile)}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *profile
	r.profiles[profile.ID] = &cp
	return nil
}
