package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	h "trpgscheduler/internal/delivery/http/helpers"
	"trpgscheduler/internal/delivery/http/middleware"
	"trpgscheduler/internal/domain"
)

// CredentialsResponse is the response body for POST /auth/anonymous. The
// renewal secret is returned exactly once; only its hash is stored.
type CredentialsResponse struct {
	PrincipalID string `json:"principal_id"`
	Secret      string `json:"secret"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
}

// RenewRequest is the request body for POST /auth/renew
type RenewRequest struct {
	PrincipalID string `json:"principal_id"`
	Secret      string `json:"secret"`
}

// Validate implements Validator.
func (r RenewRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(r.PrincipalID) == "" {
		errs = append(errs, "principal_id is required")
	}
	if r.Secret == "" {
		errs = append(errs, "secret is required")
	}
	return errs
}

// TokenResponse is the response body for POST /auth/renew
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// UpdateProfileRequest is the request body for PUT /users/me
type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// Validate implements Validator.
func (u UpdateProfileRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(u.Username) == "" {
		errs = append(errs, "username is required")
	}
	return errs
}

// IdentityController handles anonymous sign-in and profile endpoints.
type IdentityController struct {
	Logger  *slog.Logger
	Service domain.IdentityService
}

func NewIdentityController(logger *slog.Logger, svc domain.IdentityService) *IdentityController {
	return &IdentityController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateAnonymous godoc
// @Summary Create an anonymous principal
// @Description Mint a new anonymous identity. Returns the principal id, a one-time renewal secret, and a Bearer token. Store the secret client-side; it cannot be recovered.
// @Tags auth
// @Produce json
// @Success 201 {object} helpers.APIResponse "data contains principal_id, secret, token, token_type"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /auth/anonymous [post]
func (c *IdentityController) CreateAnonymous(w http.ResponseWriter, r *http.Request) {
	id, secret, token, err := c.Service.CreatePrincipal(r.Context())
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusCreated, CredentialsResponse{
		PrincipalID: id,
		Secret:      secret,
		Token:       token,
		TokenType:   "Bearer",
	})
}

// Renew godoc
// @Summary Renew a token
// @Description Exchange the principal id and renewal secret for a fresh Bearer token.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body RenewRequest true "Renewal credentials"
// @Success 200 {object} helpers.APIResponse "data contains token and token_type"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /auth/renew [post]
func (c *IdentityController) Renew(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	token, err := c.Service.Renew(r.Context(), strings.TrimSpace(req.PrincipalID), req.Secret)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer"})
}

// GetMe godoc
// @Summary Get current profile
// @Description Returns the authenticated principal's profile. 404 until a username has been set. Requires Bearer token.
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data contains the profile"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /users/me [get]
func (c *IdentityController) GetMe(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	profile, err := c.Service.GetProfile(r.Context(), principalID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, profile)
}

// UpdateMe godoc
// @Summary Set display name
// @Description Set or replace the authenticated principal's username (at most 30 characters). Requires Bearer token.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body UpdateProfileRequest true "New username"
// @Success 200 {object} helpers.APIResponse "data contains the updated profile"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /users/me [put]
func (c *IdentityController) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req UpdateProfileRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	profile, err := c.Service.SetUsername(r.Context(), principalID, req.Username)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, profile)
}
