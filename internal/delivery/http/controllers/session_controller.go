package controllers

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	h "trpgscheduler/internal/delivery/http/helpers"
	"trpgscheduler/internal/delivery/http/middleware"
	"trpgscheduler/internal/domain"
)

// CreateSessionRequest is the request body for POST /sessions
type CreateSessionRequest struct {
	TRPGType          string `json:"trpg_type"`
	ScenarioName      string `json:"scenario_name"`
	Description       string `json:"description"`
	MinPlayers        int    `json:"min_players"`
	MaxPlayers        int    `json:"max_players"`
	NotificationEmail string `json:"notification_email"`
}

// Validate implements Validator.
func (s CreateSessionRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(s.ScenarioName) == "" {
		errs = append(errs, "scenario_name is required")
	}
	if s.MinPlayers < 1 {
		errs = append(errs, "min_players must be at least 1")
	}
	if s.MaxPlayers < s.MinPlayers {
		errs = append(errs, "max_players must be at least min_players")
	}
	if s.NotificationEmail != "" {
		if _, err := mail.ParseAddress(s.NotificationEmail); err != nil {
			errs = append(errs, "invalid notification_email")
		}
	}
	return errs
}

// SubmitAvailabilityRequest is the request body for PUT /sessions/{sessionID}/availability.
// Days replaces the member's previous submission wholesale; an empty list
// withdraws it.
type SubmitAvailabilityRequest struct {
	Days []string `json:"days"`
}

// ConfirmDateRequest is the request body for POST /sessions/{sessionID}/confirm
type ConfirmDateRequest struct {
	Date string `json:"date"`
}

// Validate implements Validator.
func (c ConfirmDateRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Date) == "" {
		errs = append(errs, "date is required")
	}
	return errs
}

// JoinResponse is the response body for POST /sessions/{sessionID}/join
type JoinResponse struct {
	Joined  bool             `json:"joined"`
	Session *SessionResponse `json:"session"`
}

// LeaveResponse is the response body for POST /sessions/{sessionID}/leave
type LeaveResponse struct {
	Left    bool             `json:"left"`
	Session *SessionResponse `json:"session"`
}

// DeleteResponse is the response body for DELETE /sessions/{sessionID}
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// SessionResponse is a session with its derived display status. A full
// recruiting session reads as "closed" without ever being stored that way.
type SessionResponse struct {
	*domain.Session
	DisplayStatus string `json:"display_status"`
}

func newSessionResponse(s *domain.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{Session: s, DisplayStatus: s.DisplayStatus()}
}

// SessionController handles recruitment and date-scheduling endpoints.
type SessionController struct {
	Logger  *slog.Logger
	Service domain.SchedulerService
}

func NewSessionController(logger *slog.Logger, svc domain.SchedulerService) *SessionController {
	return &SessionController{
		Logger:  logger,
		Service: svc,
	}
}

// Create godoc
// @Summary Create a session
// @Description Open recruitment for a new tabletop session. The authenticated principal becomes the GM. Requires Bearer token.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateSessionRequest true "Session data"
// @Success 201 {object} helpers.APIResponse "data contains the created session"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions [post]
func (c *SessionController) Create(w http.ResponseWriter, r *http.Request) {
	gmID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req CreateSessionRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	session, err := domain.NewSession(
		gmID,
		strings.TrimSpace(req.TRPGType),
		strings.TrimSpace(req.ScenarioName),
		strings.TrimSpace(req.Description),
		strings.TrimSpace(req.NotificationEmail),
		req.MinPlayers,
		req.MaxPlayers,
		time.Now(),
	)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	if err := c.Service.CreateSession(r.Context(), session); err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusCreated, newSessionResponse(session))
}

// List godoc
// @Summary List sessions
// @Description List all sessions, newest first. Public.
// @Tags sessions
// @Produce json
// @Success 200 {object} helpers.APIResponse "data contains the session list"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions [get]
func (c *SessionController) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := c.Service.ListSessions(r.Context())
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionResponse(s))
	}
	h.WriteJSONSuccess(w, http.StatusOK, out)
}

// Get godoc
// @Summary Get a session
// @Description Get one session by id. Public.
// @Tags sessions
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains the session"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID} [get]
func (c *SessionController) Get(w http.ResponseWriter, r *http.Request) {
	session, err := c.Service.GetSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, newSessionResponse(session))
}

// Delete godoc
// @Summary Delete a session
// @Description Delete a session in any status. GM only. Requires Bearer token.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains deleted: true"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID} [delete]
func (c *SessionController) Delete(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Service.DeleteSession(r.Context(), r.PathValue("sessionID"), principalID); err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, DeleteResponse{Deleted: true})
}

// Join godoc
// @Summary Join a session
// @Description Join the roster of a recruiting session. Joining a full, non-recruiting, or already-joined session returns joined: false without error. Requires Bearer token.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains joined and the session"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: precondition_failed or conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/join [post]
func (c *SessionController) Join(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	sessionID := r.PathValue("sessionID")
	joined, err := c.Service.JoinSession(r.Context(), sessionID, principalID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	session, err := c.Service.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, JoinResponse{Joined: joined, Session: newSessionResponse(session)})
}

// Leave godoc
// @Summary Leave a session
// @Description Leave the roster. The member's availability is withdrawn with them. Leaving a session you are not on returns left: false without error. Requires Bearer token.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains left and the session"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: precondition_failed or conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/leave [post]
func (c *SessionController) Leave(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	sessionID := r.PathValue("sessionID")
	left, err := c.Service.LeaveSession(r.Context(), sessionID, principalID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	session, err := c.Service.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, LeaveResponse{Left: left, Session: newSessionResponse(session)})
}

// SubmitAvailability godoc
// @Summary Submit candidate days
// @Description Replace the caller's candidate days for the session. Days are YYYY-MM-DD; duplicates are dropped. An empty list withdraws the submission. Members only, until the date is confirmed. Requires Bearer token.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Param body body SubmitAvailabilityRequest true "Candidate days"
// @Success 200 {object} helpers.APIResponse "data contains the scheduling board"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: precondition_failed or conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/availability [put]
func (c *SessionController) SubmitAvailability(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req SubmitAvailabilityRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	days := make([]domain.Day, 0, len(req.Days))
	for _, d := range req.Days {
		days = append(days, domain.Day(d))
	}
	sessionID := r.PathValue("sessionID")
	if err := c.Service.SubmitAvailability(r.Context(), sessionID, principalID, days); err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	view, err := c.Service.GetSchedule(r.Context(), sessionID, principalID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, view)
}

// Confirm godoc
// @Summary Confirm the final date
// @Description Fix the session date to one of the common candidate days. GM only, scheduling status only. Fails with stale_confirmation when availability changed under the GM. Requires Bearer token.
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Param body body ConfirmDateRequest true "Final date"
// @Success 200 {object} helpers.APIResponse "data contains the confirmed session"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: stale_confirmation, precondition_failed, or conflict"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/confirm [post]
func (c *SessionController) Confirm(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req ConfirmDateRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}
	day, err := domain.ParseDay(strings.TrimSpace(req.Date))
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	sessionID := r.PathValue("sessionID")
	if err := c.Service.ConfirmDate(r.Context(), sessionID, principalID, day); err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	session, err := c.Service.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, newSessionResponse(session))
}

// GetSchedule godoc
// @Summary Get the scheduling board
// @Description Per-member submissions plus the computed common days. Members at any status; non-members only once confirmed. Requires Bearer token.
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionID path string true "Session ID"
// @Success 200 {object} helpers.APIResponse "data contains the scheduling board"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/schedule [get]
func (c *SessionController) GetSchedule(w http.ResponseWriter, r *http.Request) {
	principalID, ok := middleware.PrincipalIDFromContext(r.Context())
	if !ok {
		h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
		return
	}
	view, err := c.Service.GetSchedule(r.Context(), r.PathValue("sessionID"), principalID)
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	h.WriteJSONSuccess(w, http.StatusOK, view)
}
