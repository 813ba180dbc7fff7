package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trpgscheduler/internal/domain"
)

type schedulerService struct {
	store          domain.SessionStore
	profileRepo    domain.ProfileRepository
	notifier       domain.Notifier
	logger         *slog.Logger
	maxRetries     int
	contextTimeout time.Duration
}

// NewSchedulerService creates the SchedulerService. maxRetries bounds the
// optimistic-transaction retry loop; notifier may be nil to disable
// notifications.
func NewSchedulerService(
	store domain.SessionStore,
	profileRepo domain.ProfileRepository,
	notifier domain.Notifier,
	logger *slog.Logger,
	maxRetries int,
	timeout time.Duration,
) domain.SchedulerService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &schedulerService{
		store:          store,
		profileRepo:    profileRepo,
		notifier:       notifier,
		logger:         logger,
		maxRetries:     maxRetries,
		contextTimeout: timeout,
	}
}

// inTx runs fn as an optimistic transaction, retrying on ErrConflict up to
// maxRetries times. fn may run more than once and must be idempotent: it is
// always handed a fresh read of the session.
func (s *schedulerService) inTx(ctx context.Context, sessionID string, fn func(session *domain.Session) error) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.store.Transact(ctx, sessionID, fn)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		return err
	}
	return domain.ErrConflictExhausted
}

func (s *schedulerService) CreateSession(ctx context.Context, session *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if session == nil || session.GMID == "" {
		return fmt.Errorf("%w: session gm is required", domain.ErrInvalidInput)
	}
	if session.MinPlayers < 1 || session.MaxPlayers < session.MinPlayers {
		return fmt.Errorf("%w: player bounds are invalid", domain.ErrInvalidInput)
	}

	session.Status = domain.StatusRecruiting
	if session.Participants == nil {
		session.Participants = []string{}
	}
	if session.Availabilities == nil {
		session.Availabilities = map[string][]domain.Day{}
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = session.CreatedAt

	if err := s.store.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *schedulerService) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *schedulerService) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return sessions, nil
}

func (s *schedulerService) DeleteSession(ctx context.Context, sessionID, requesterID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("get session: %w", err)
	}
	if session.GMID != requesterID {
		return domain.ErrForbidden
	}
	// Deletion is unconditional for the GM, regardless of status.
	if err := s.store.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *schedulerService) JoinSession(ctx context.Context, sessionID, memberID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if memberID == "" {
		return false, fmt.Errorf("%w: member id is required", domain.ErrInvalidInput)
	}

	var (
		joined   bool
		started  bool
		snapshot *domain.Session
	)
	err := s.inTx(ctx, sessionID, func(session *domain.Session) error {
		joined, started, snapshot = false, false, nil

		if session.Status == domain.StatusConfirmed {
			return domain.ErrPreconditionNotMet
		}
		// Full, not recruiting, or already on the roster: tolerate the UI
		// race silently. Re-running a retried join is a no-op the second
		// time for the same reason.
		if session.Status != domain.StatusRecruiting || session.IsFull() || session.IsMember(memberID) {
			return nil
		}

		session.Participants = append(session.Participants, memberID)
		joined = true
		if len(session.Participants) >= session.MinPlayers {
			session.Status = domain.StatusScheduling
			started = true
		}
		session.UpdatedAt = time.Now()
		snapshot = session.Clone()
		return nil
	})
	if err != nil {
		return false, err
	}
	if started {
		s.notify(ctx, &domain.Notification{
			Kind:       domain.NotificationSchedulingStarted,
			SessionID:  snapshot.ID,
			Recipients: snapshot.AllMembers(),
			Message:    fmt.Sprintf("Session %q reached its minimum player count; date scheduling has started.", snapshot.ScenarioName),
		})
	}
	return joined, nil
}

func (s *schedulerService) LeaveSession(ctx context.Context, sessionID, memberID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var (
		left     bool
		reopened bool
		snapshot *domain.Session
	)
	err := s.inTx(ctx, sessionID, func(session *domain.Session) error {
		left, reopened, snapshot = false, false, nil

		if session.Status == domain.StatusConfirmed {
			// A confirmed session's roster is frozen.
			return domain.ErrPreconditionNotMet
		}
		if !session.HasParticipant(memberID) {
			return nil
		}

		remaining := make([]string, 0, len(session.Participants))
		for _, id := range session.Participants {
			if id != memberID {
				remaining = append(remaining, id)
			}
		}
		session.Participants = remaining
		delete(session.Availabilities, memberID)
		left = true

		if session.Status == domain.StatusScheduling && len(session.Participants) < session.MinPlayers {
			session.Status = domain.StatusRecruiting
			reopened = true
		}
		session.UpdatedAt = time.Now()
		snapshot = session.Clone()
		return nil
	})
	if err != nil {
		return false, err
	}
	if reopened {
		s.notify(ctx, &domain.Notification{
			Kind:       domain.NotificationRecruitingReopened,
			SessionID:  snapshot.ID,
			Recipients: []string{snapshot.GMID},
			Message:    fmt.Sprintf("Session %q dropped below its minimum player count; recruiting has reopened.", snapshot.ScenarioName),
		})
	}
	return left, nil
}

func (s *schedulerService) SubmitAvailability(ctx context.Context, sessionID, memberID string, days []domain.Day) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if memberID == "" {
		return fmt.Errorf("%w: member id is required", domain.ErrInvalidInput)
	}
	for _, d := range days {
		if _, err := domain.ParseDay(d.String()); err != nil {
			return err
		}
	}
	normalized := domain.NormalizeDays(days)

	return s.inTx(ctx, sessionID, func(session *domain.Session) error {
		if session.Status == domain.StatusConfirmed {
			return domain.ErrPreconditionNotMet
		}
		if !session.IsMember(memberID) {
			return domain.ErrPreconditionNotMet
		}
		// Submissions overwrite wholesale; an empty set withdraws the
		// member's submission entirely.
		if len(normalized) == 0 {
			delete(session.Availabilities, memberID)
		} else {
			session.Availabilities[memberID] = append([]domain.Day{}, normalized...)
		}
		session.UpdatedAt = time.Now()
		return nil
	})
}

func (s *schedulerService) ConfirmDate(ctx context.Context, sessionID, requesterID string, day domain.Day) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := domain.ParseDay(day.String()); err != nil {
		return err
	}

	var snapshot *domain.Session
	err := s.inTx(ctx, sessionID, func(session *domain.Session) error {
		snapshot = nil

		if session.GMID != requesterID {
			return domain.ErrPreconditionNotMet
		}
		if session.Status != domain.StatusScheduling {
			return domain.ErrPreconditionNotMet
		}

		// Validate against the intersection of the state being committed,
		// not whatever the caller last saw: a concurrent leave or
		// resubmission may have invalidated the chosen day.
		intersection := domain.ComputeIntersection(session.AllMembers(), session.Availabilities)
		if !intersection.Complete || !containsDay(intersection.CommonDays, day) {
			return domain.ErrStaleConfirmation
		}

		session.FinalDate = day
		session.Status = domain.StatusConfirmed
		session.UpdatedAt = time.Now()
		snapshot = session.Clone()
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(ctx, &domain.Notification{
		Kind:       domain.NotificationDateConfirmed,
		SessionID:  snapshot.ID,
		Recipients: snapshot.AllMembers(),
		Message:    fmt.Sprintf("Session %q is confirmed for %s.", snapshot.ScenarioName, day.Display()),
	})
	return nil
}

func (s *schedulerService) GetSchedule(ctx context.Context, sessionID, requesterID string) (*domain.ScheduleView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !session.IsMember(requesterID) && session.Status != domain.StatusConfirmed {
		return nil, domain.ErrForbidden
	}

	members := session.AllMembers()
	view := &domain.ScheduleView{
		Session:      session,
		Members:      make([]domain.MemberSubmission, 0, len(members)),
		Intersection: domain.ComputeIntersection(members, session.Availabilities),
	}
	for _, id := range members {
		sub := domain.MemberSubmission{
			MemberID:  id,
			IsGM:      id == session.GMID,
			Days:      append([]domain.Day{}, session.Availabilities[id]...),
			Submitted: len(session.Availabilities[id]) > 0,
		}
		if sub.Days == nil {
			sub.Days = []domain.Day{}
		}
		if s.profileRepo != nil {
			if profile, err := s.profileRepo.GetByID(ctx, id); err == nil {
				sub.Username = profile.Username
			} else if !errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "profile lookup failed", "member_id", id, "err", err)
			}
		}
		view.Members = append(view.Members, sub)
	}
	return view, nil
}

// notify emits fire and forget: delivery failures are logged, never
// propagated into the session operation that triggered them.
func (s *schedulerService) notify(ctx context.Context, n *domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			"kind", string(n.Kind),
			"session_id", n.SessionID,
			"err", err,
		)
	}
}

func containsDay(days []domain.Day, day domain.Day) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
