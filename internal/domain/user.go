package domain

import (
	"context"
	"time"
)

// Principal is an anonymously issued identity. There is no signup: the
// client requests a principal once and renews its token with the secret it
// was handed at creation.
type Principal struct {
	ID         string    `json:"id"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProfile holds the display name a member picked for themselves.
// swagger:model UserProfile
type UserProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PrincipalRepository defines storage for anonymous principals.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
}

// ProfileRepository defines storage for user display names.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*UserProfile, error)
	Upsert(ctx context.Context, profile *UserProfile) error
}

// SecretHasher hashes and verifies principal renewal secrets.
// Implementations may use bcrypt, argon2, etc.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) error
}

// TokenIssuer issues tokens (e.g. JWT) for a principal.
type TokenIssuer interface {
	Issue(principalID string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns the authenticated principal ID.
type TokenVerifier interface {
	Verify(token string) (principalID string, err error)
}

// IdentityService issues anonymous principals and renews their tokens.
type IdentityService interface {
	// CreatePrincipal mints a new anonymous principal and returns its id,
	// the one-time renewal secret, and a signed token.
	CreatePrincipal(ctx context.Context) (principalID, secret, token string, err error)
	// Renew verifies the renewal secret and issues a fresh token.
	Renew(ctx context.Context, principalID, secret string) (token string, err error)

	GetProfile(ctx context.Context, principalID string) (*UserProfile, error)
	SetUsername(ctx context.Context, principalID, username string) (*UserProfile, error)
}
