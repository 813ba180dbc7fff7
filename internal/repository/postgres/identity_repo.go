package postgres

import (
	"context"
	"database/sql"
	"errors"

	"trpgscheduler/internal/domain"
)

type principalRepository struct {
	DB *sql.DB
}

func NewPrincipalRepository(db *sql.DB) domain.PrincipalRepository {
	return &principalRepository{DB: db}
}

func (r *principalRepository) Create(ctx context.Context, p *domain.Principal) error {
	query := `
		INSERT INTO principals (id, secret_hash, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.DB.ExecContext(ctx, query, p.ID, p.SecretHash, p.CreatedAt)
	return err
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	query := `
		SELECT id, secret_hash, created_at
		FROM principals
		WHERE id = $1
	`
	p := &domain.Principal{}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.SecretHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

type profileRepository struct {
	DB *sql.DB
}

func NewProfileRepository(db *sql.DB) domain.ProfileRepository {
	return &profileRepository{DB: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	query := `
		SELECT id, username, updated_at
		FROM user_profiles
		WHERE id = $1
	`
	p := &domain.UserProfile{}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Username, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *profileRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	query := `
		INSERT INTO user_profiles (id, username, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, query, profile.ID, profile.Username, profile.UpdatedAt)
	return err
}
