package domain

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// SessionStatus is the stored lifecycle state of a session.
type SessionStatus string

const (
	// StatusRecruiting accepts joins up to capacity.
	StatusRecruiting SessionStatus = "recruiting"
	// StatusScheduling means the roster reached min_players and members are
	// submitting candidate days.
	StatusScheduling SessionStatus = "scheduling"
	// StatusConfirmed is terminal: the final date is fixed and the roster
	// frozen. Only deletion remains possible.
	StatusConfirmed SessionStatus = "confirmed"
)

// DisplayStatusClosed is the label shown for a session that is still stored
// as recruiting but has a full roster. It is never persisted.
const DisplayStatusClosed = "closed"

// Session is a tabletop game session being recruited and scheduled.
// swagger:model Session
type Session struct {
	ID                string           `json:"id"`
	GMID              string           `json:"gm_id"`
	TRPGType          string           `json:"trpg_type"`
	ScenarioName      string           `json:"scenario_name"`
	Description       string           `json:"description"`
	MinPlayers        int              `json:"min_players"`
	MaxPlayers        int              `json:"max_players"`
	NotificationEmail string           `json:"notification_email"`
	Participants      []string         `json:"participants"`
	Status            SessionStatus    `json:"status"`
	Availabilities    map[string][]Day `json:"availabilities"`
	FinalDate         Day              `json:"final_date,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewSession returns a validated session owned by gmID with status
// recruiting and an empty roster. ID is set by the store on create.
func NewSession(gmID, trpgType, scenarioName, description, notificationEmail string, minPlayers, maxPlayers int, now time.Time) (*Session, error) {
	if gmID == "" {
		return nil, fmt.Errorf("%w: gm id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(scenarioName) == "" {
		return nil, fmt.Errorf("%w: scenario name is required", ErrInvalidInput)
	}
	if minPlayers < 1 {
		return nil, fmt.Errorf("%w: min_players must be at least 1", ErrInvalidInput)
	}
	if maxPlayers < minPlayers {
		return nil, fmt.Errorf("%w: min_players exceeds max_players", ErrInvalidInput)
	}
	if notificationEmail != "" {
		if _, err := mail.ParseAddress(notificationEmail); err != nil {
			return nil, fmt.Errorf("%w: notification email is not a valid address", ErrInvalidInput)
		}
	}
	return &Session{
		GMID:              gmID,
		TRPGType:          trpgType,
		ScenarioName:      scenarioName,
		Description:       description,
		MinPlayers:        minPlayers,
		MaxPlayers:        maxPlayers,
		NotificationEmail: notificationEmail,
		Participants:      []string{},
		Status:            StatusRecruiting,
		Availabilities:    map[string][]Day{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// AllMembers returns the participants plus the GM, sorted ascending. This is
// the universe over which availability intersection is computed.
func (s *Session) AllMembers() []string {
	members := make([]string, 0, len(s.Participants)+1)
	seen := map[string]struct{}{}
	for _, id := range append(append([]string{}, s.Participants...), s.GMID) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// HasParticipant reports whether memberID is in the participant list
// (the GM is not a participant of their own session).
func (s *Session) HasParticipant(memberID string) bool {
	for _, id := range s.Participants {
		if id == memberID {
			return true
		}
	}
	return false
}

// IsMember reports whether memberID is a participant or the GM.
func (s *Session) IsMember(memberID string) bool {
	return memberID == s.GMID || s.HasParticipant(memberID)
}

// IsFull reports whether the roster has reached max_players.
func (s *Session) IsFull() bool {
	return len(s.Participants) >= s.MaxPlayers
}

// DisplayStatus returns the stored status, except that a full recruiting
// session is shown as "closed". Leaving a full recruiting session needs no
// status transition because recruiting was never actually left.
func (s *Session) DisplayStatus() string {
	if s.Status == StatusRecruiting && s.IsFull() {
		return DisplayStatusClosed
	}
	return string(s.Status)
}

// Clone returns a deep copy. Stores hand out clones so that read snapshots
// and transaction drafts never alias live state.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Participants = append([]string{}, s.Participants...)
	cp.Availabilities = make(map[string][]Day, len(s.Availabilities))
	for id, days := range s.Availabilities {
		cp.Availabilities[id] = append([]Day{}, days...)
	}
	return &cp
}

// SessionStore defines the storage contract for sessions. All mutations of
// an existing session go through Transact, which must apply fn to a fresh
// read of the record and commit atomically, returning ErrConflict when a
// concurrent write invalidated the read.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	// Transact runs fn against a fresh copy of the session and commits the
	// mutated copy. Returns ErrNotFound if the session is gone and
	// ErrConflict if a concurrent write raced the commit. An error from fn
	// aborts the transaction with no mutation.
	Transact(ctx context.Context, id string, fn func(session *Session) error) error
}

// SessionWatcher streams session snapshots on every committed change. Used
// only for display refresh, never for correctness.
type SessionWatcher interface {
	// Watch emits the current snapshot followed by one snapshot per commit
	// until ctx is done or stop is called. A nil snapshot means the session
	// was deleted.
	Watch(ctx context.Context, id string) (updates <-chan *Session, stop func(), err error)
}

// SchedulerService defines the session lifecycle operations: recruitment,
// membership, availability submission and date confirmation.
type SchedulerService interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	// DeleteSession removes the session unconditionally. Only the GM may
	// delete; any status is deletable.
	DeleteSession(ctx context.Context, sessionID, requesterID string) error

	// JoinSession adds memberID to the roster. Returns joined=false with a
	// nil error when the session is full, not recruiting, or the member is
	// already on the roster: concurrent UI races are tolerated silently.
	JoinSession(ctx context.Context, sessionID, memberID string) (joined bool, err error)
	// LeaveSession removes memberID from the roster along with their
	// availability entry. Returns left=false with a nil error when the
	// member was not on the roster.
	LeaveSession(ctx context.Context, sessionID, memberID string) (left bool, err error)

	// SubmitAvailability overwrites the member's candidate days wholesale.
	SubmitAvailability(ctx context.Context, sessionID, memberID string, days []Day) error
	// ConfirmDate fixes the final date. Fails with ErrStaleConfirmation if
	// day is no longer in the common availability at commit time.
	ConfirmDate(ctx context.Context, sessionID, requesterID string, day Day) error

	// GetSchedule returns the scheduling board for the session. Members see
	// it at any status; non-members only once the session is confirmed.
	GetSchedule(ctx context.Context, sessionID, requesterID string) (*ScheduleView, error)
}
