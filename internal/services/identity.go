package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"trpgscheduler/internal/domain"
)

const maxUsernameLength = 30

type identityService struct {
	principalRepo  domain.PrincipalRepository
	profileRepo    domain.ProfileRepository
	hasher         domain.SecretHasher
	tokens         domain.TokenIssuer
	tokenTTL       time.Duration
	contextTimeout time.Duration
}

// NewIdentityService creates the IdentityService. Principals are anonymous:
// creation needs no credentials and hands back a renewal secret whose hash
// is the only thing stored.
func NewIdentityService(
	principalRepo domain.PrincipalRepository,
	profileRepo domain.ProfileRepository,
	hasher domain.SecretHasher,
	tokens domain.TokenIssuer,
	tokenTTL time.Duration,
	timeout time.Duration,
) domain.IdentityService {
	return &identityService{
		principalRepo:  principalRepo,
		profileRepo:    profileRepo,
		hasher:         hasher,
		tokens:         tokens,
		tokenTTL:       tokenTTL,
		contextTimeout: timeout,
	}
}

func (s *identityService) CreatePrincipal(ctx context.Context) (string, string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	id, err := randomHex(16)
	if err != nil {
		return "", "", "", fmt.Errorf("generate principal id: %w", err)
	}
	secret, err := randomHex(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate renewal secret: %w", err)
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", "", "", fmt.Errorf("hash renewal secret: %w", err)
	}

	principal := &domain.Principal{
		ID:         id,
		SecretHash: hash,
		CreatedAt:  time.Now(),
	}
	if err := s.principalRepo.Create(ctx, principal); err != nil {
		return "", "", "", fmt.Errorf("create principal: %w", err)
	}

	token, err := s.tokens.Issue(id, s.tokenTTL)
	if err != nil {
		return "", "", "", fmt.Errorf("issue token: %w", err)
	}
	return id, secret, token, nil
}

func (s *identityService) Renew(ctx context.Context, principalID, secret string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	principal, err := s.principalRepo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("get principal: %w", err)
	}
	if err := s.hasher.Compare(principal.SecretHash, secret); err != nil {
		return "", domain.ErrUnauthorized
	}

	token, err := s.tokens.Issue(principal.ID, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (s *identityService) GetProfile(ctx context.Context, principalID string) (*domain.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	profile, err := s.profileRepo.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *identityService) SetUsername(ctx context.Context, principalID, username string) (*domain.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be at most %d characters", domain.ErrInvalidInput, maxUsernameLength)
	}

	profile := &domain.UserProfile{
		ID:        principalID,
		Username:  username,
		UpdatedAt: time.Now(),
	}
	if err := s.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
