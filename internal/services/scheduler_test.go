package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpgscheduler/internal/domain"
	"trpgscheduler/internal/repository/memory"
)

type mockNotifier struct {
	mu     sync.Mutex
	events []*domain.Notification
	err    error
}

func (m *mockNotifier) Notify(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, n)
	return nil
}

func (m *mockNotifier) kinds() []domain.NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]domain.NotificationKind, 0, len(m.events))
	for _, e := range m.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type mockProfileRepository struct {
	profiles map[string]*domain.UserProfile
}

func (m *mockProfileRepository) GetByID(ctx context.Context, id string) (*domain.UserProfile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockProfileRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	m.profiles[profile.ID] = profile
	return nil
}

// conflictStore always reports a write conflict, to exercise the bounded
// retry loop.
type conflictStore struct {
	memory.SessionStore
	calls int
}

func (c *conflictStore) Transact(ctx context.Context, id string, fn func(*domain.Session) error) error {
	c.calls++
	return domain.ErrConflict
}

func newTestScheduler(t *testing.T) (domain.SchedulerService, *memory.SessionStore, *mockNotifier) {
	t.Helper()
	store := memory.NewSessionStore()
	notifier := &mockNotifier{}
	profiles := &mockProfileRepository{profiles: map[string]*domain.UserProfile{
		"gm-1": {ID: "gm-1", Username: "Dungeon Meister"},
	}}
	svc := NewSchedulerService(store, profiles, notifier, slog.Default(), 50, 5*time.Second)
	return svc, store, notifier
}

func createSession(t *testing.T, svc domain.SchedulerService, minPlayers, maxPlayers int) *domain.Session {
	t.Helper()
	s, err := domain.NewSession("gm-1", "CoC", "The Haunting", "one-shot", "gm@example.com", minPlayers, maxPlayers, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.CreateSession(context.Background(), s))
	return s
}

func TestSchedulerService_CreateSession(t *testing.T) {
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 2, 4)
	require.NotEmpty(t, s.ID)

	stored, err := store.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRecruiting, stored.Status)
	require.Empty(t, stored.Participants)
}

func TestSchedulerService_CreateSession_Invalid(t *testing.T) {
	svc, _, _ := newTestScheduler(t)
	err := svc.CreateSession(context.Background(), &domain.Session{GMID: "gm-1", MinPlayers: 3, MaxPlayers: 2})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.CreateSession(context.Background(), &domain.Session{MinPlayers: 1, MaxPlayers: 2})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSchedulerService_JoinLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestScheduler(t)
	s := createSession(t, svc, 2, 4)

	// First join stays below min_players: still recruiting, no notification.
	joined, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.True(t, joined)
	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRecruiting, got.Status)
	require.Empty(t, notifier.kinds())

	// Second join reaches min_players: scheduling starts and everyone is
	// notified.
	joined, err = svc.JoinSession(ctx, s.ID, "bob")
	require.NoError(t, err)
	require.True(t, joined)
	got, err = store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusScheduling, got.Status)
	require.Equal(t, []domain.NotificationKind{domain.NotificationSchedulingStarted}, notifier.kinds())
	require.ElementsMatch(t, []string{"alice", "bob", "gm-1"}, notifier.events[0].Recipients)

	// A leave dropping below min_players reverts to recruiting and notifies
	// the GM.
	left, err := svc.LeaveSession(ctx, s.ID, "bob")
	require.NoError(t, err)
	require.True(t, left)
	got, err = store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRecruiting, got.Status)
	require.Equal(t, []domain.NotificationKind{
		domain.NotificationSchedulingStarted,
		domain.NotificationRecruitingReopened,
	}, notifier.kinds())
	require.Equal(t, []string{"gm-1"}, notifier.events[1].Recipients)
}

func TestSchedulerService_Join_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 3, 4)

	joined, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.True(t, joined)

	// A retried join is a silent no-op, not a double-add.
	joined, err = svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.False(t, joined)

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, got.Participants)
}

func TestSchedulerService_Join_CapacityInvariant(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 2)

	for _, member := range []string{"alice", "bob"} {
		joined, err := svc.JoinSession(ctx, s.ID, member)
		require.NoError(t, err)
		require.True(t, joined)
	}

	// Full roster: further joins are silent no-ops.
	joined, err := svc.JoinSession(ctx, s.ID, "carol")
	require.NoError(t, err)
	require.False(t, joined)

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 2)
}

func TestSchedulerService_Join_GMAndConfirmed(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	// The GM is already a member of their own session.
	joined, err := svc.JoinSession(ctx, s.ID, "gm-1")
	require.NoError(t, err)
	require.False(t, joined)

	confirmTestSession(t, svc, s.ID, "alice")
	_, err = svc.JoinSession(ctx, s.ID, "dave")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)
}

func TestSchedulerService_ConcurrentJoins_RespectCapacity(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 2, 3)

	members := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}
	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(member string) {
			defer wg.Done()
			_, err := svc.JoinSession(ctx, s.ID, member)
			assert.NoError(t, err)
		}(m)
	}
	wg.Wait()

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Participants, 3)
	require.Equal(t, domain.StatusScheduling, got.Status)
}

func TestSchedulerService_Leave_RemovesAvailability(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	_, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-01"}))

	left, err := svc.LeaveSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.True(t, left)

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Empty(t, got.Participants)
	require.NotContains(t, got.Availabilities, "alice")
}

func TestSchedulerService_Leave_NonParticipantNoOp(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 2, 4)

	left, err := svc.LeaveSession(ctx, s.ID, "stranger")
	require.NoError(t, err)
	require.False(t, left)

	// The GM cannot leave their own session either.
	left, err = svc.LeaveSession(ctx, s.ID, "gm-1")
	require.NoError(t, err)
	require.False(t, left)
}

func TestSchedulerService_SubmitAvailability(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)
	_, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)

	// Duplicates and ordering are normalized on write.
	err = svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-02", "2024-06-01", "2024-06-02"})
	require.NoError(t, err)
	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Day{"2024-06-01", "2024-06-02"}, got.Availabilities["alice"])

	// Resubmission overwrites wholesale, never merges.
	err = svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-07-01"})
	require.NoError(t, err)
	got, err = store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Day{"2024-07-01"}, got.Availabilities["alice"])

	// An empty submission withdraws the entry.
	err = svc.SubmitAvailability(ctx, s.ID, "alice", nil)
	require.NoError(t, err)
	got, err = store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotContains(t, got.Availabilities, "alice")
}

func TestSchedulerService_SubmitAvailability_Preconditions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	err := svc.SubmitAvailability(ctx, s.ID, "stranger", []domain.Day{"2024-06-01"})
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)

	err = svc.SubmitAvailability(ctx, s.ID, "gm-1", []domain.Day{"not-a-day"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.SubmitAvailability(ctx, "missing", "gm-1", []domain.Day{"2024-06-01"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// confirmTestSession drives the session to confirmed: member joins, everyone
// submits 2024-06-01, the GM confirms it.
func confirmTestSession(t *testing.T, svc domain.SchedulerService, sessionID, member string) {
	t.Helper()
	ctx := context.Background()
	joined, err := svc.JoinSession(ctx, sessionID, member)
	require.NoError(t, err)
	require.True(t, joined)
	require.NoError(t, svc.SubmitAvailability(ctx, sessionID, member, []domain.Day{"2024-06-01"}))
	require.NoError(t, svc.SubmitAvailability(ctx, sessionID, "gm-1", []domain.Day{"2024-06-01", "2024-06-08"}))
	require.NoError(t, svc.ConfirmDate(ctx, sessionID, "gm-1", "2024-06-01"))
}

func TestSchedulerService_ConfirmDate(t *testing.T) {
	ctx := context.Background()
	svc, store, notifier := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	confirmTestSession(t, svc, s.ID, "alice")

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, got.Status)
	require.Equal(t, domain.Day("2024-06-01"), got.FinalDate)

	kinds := notifier.kinds()
	require.Equal(t, domain.NotificationDateConfirmed, kinds[len(kinds)-1])
	last := notifier.events[len(notifier.events)-1]
	require.ElementsMatch(t, []string{"alice", "gm-1"}, last.Recipients)
	require.Contains(t, last.Message, "Sat, Jun 1, 2024")
}

func TestSchedulerService_ConfirmDate_Preconditions(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	// Not scheduling yet.
	err := svc.ConfirmDate(ctx, s.ID, "gm-1", "2024-06-01")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)

	_, err = svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-01"}))
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "gm-1", []domain.Day{"2024-06-01"}))

	// Only the GM may confirm.
	err = svc.ConfirmDate(ctx, s.ID, "alice", "2024-06-01")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)

	err = svc.ConfirmDate(ctx, s.ID, "gm-1", "bogus")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSchedulerService_ConfirmDate_Stale(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	_, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-01"}))
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "gm-1", []domain.Day{"2024-06-01", "2024-06-08"}))

	// The GM saw 2024-06-01 as common, but alice withdraws it before the
	// confirmation commits.
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-08"}))

	err = svc.ConfirmDate(ctx, s.ID, "gm-1", "2024-06-01")
	require.ErrorIs(t, err, domain.ErrStaleConfirmation)

	got, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusScheduling, got.Status)
	require.Empty(t, got.FinalDate)
}

func TestSchedulerService_ConfirmDate_IncompleteIsStale(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	_, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	// Only the GM submitted: a concurrent leave-and-rejoin can produce this.
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "gm-1", []domain.Day{"2024-06-01"}))

	err = svc.ConfirmDate(ctx, s.ID, "gm-1", "2024-06-01")
	require.ErrorIs(t, err, domain.ErrStaleConfirmation)
}

func TestSchedulerService_TerminalImmutability(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)
	confirmTestSession(t, svc, s.ID, "alice")

	before, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)

	_, err = svc.JoinSession(ctx, s.ID, "dave")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	_, err = svc.LeaveSession(ctx, s.ID, "alice")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	err = svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-08"})
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	err = svc.ConfirmDate(ctx, s.ID, "gm-1", "2024-06-01")
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)

	after, err := store.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, before.Participants, after.Participants)
	require.Equal(t, before.FinalDate, after.FinalDate)
	require.Equal(t, before.Availabilities, after.Availabilities)
}

func TestSchedulerService_DeleteSession(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	err := svc.DeleteSession(ctx, s.ID, "alice")
	require.ErrorIs(t, err, domain.ErrForbidden)

	// The GM may delete at any status, even confirmed.
	confirmTestSession(t, svc, s.ID, "alice")
	require.NoError(t, svc.DeleteSession(ctx, s.ID, "gm-1"))

	_, err = store.GetByID(ctx, s.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.DeleteSession(ctx, s.ID, "gm-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSchedulerService_GetSchedule(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestScheduler(t)
	s := createSession(t, svc, 1, 4)

	_, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "gm-1", []domain.Day{"2024-06-01"}))

	// Non-members cannot view an unconfirmed schedule.
	_, err = svc.GetSchedule(ctx, s.ID, "stranger")
	require.ErrorIs(t, err, domain.ErrForbidden)

	view, err := svc.GetSchedule(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.False(t, view.Intersection.Complete)
	require.Equal(t, 1, view.Intersection.Submitted)
	require.Equal(t, 2, view.Intersection.Total)
	require.Len(t, view.Members, 2)

	// Members are listed in ascending id order with profile names resolved.
	require.Equal(t, "alice", view.Members[0].MemberID)
	require.False(t, view.Members[0].Submitted)
	require.Equal(t, "gm-1", view.Members[1].MemberID)
	require.True(t, view.Members[1].IsGM)
	require.Equal(t, "Dungeon Meister", view.Members[1].Username)

	// Once confirmed the schedule is public.
	require.NoError(t, svc.SubmitAvailability(ctx, s.ID, "alice", []domain.Day{"2024-06-01"}))
	require.NoError(t, svc.ConfirmDate(ctx, s.ID, "gm-1", "2024-06-01"))
	view, err = svc.GetSchedule(ctx, s.ID, "stranger")
	require.NoError(t, err)
	require.Equal(t, domain.Day("2024-06-01"), view.Session.FinalDate)
}

func TestSchedulerService_ConflictExhausted(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{}
	svc := NewSchedulerService(store, nil, nil, slog.Default(), 3, 5*time.Second)

	_, err := svc.JoinSession(ctx, "any", "alice")
	require.ErrorIs(t, err, domain.ErrConflictExhausted)
	require.Equal(t, 3, store.calls)
}

func TestSchedulerService_NotifierFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	notifier := &mockNotifier{err: assert.AnError}
	svc := NewSchedulerService(store, nil, notifier, slog.Default(), 5, 5*time.Second)

	s, err := domain.NewSession("gm-1", "CoC", "The Haunting", "", "", 1, 2, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.CreateSession(ctx, s))

	joined, err := svc.JoinSession(ctx, s.ID, "alice")
	require.NoError(t, err)
	require.True(t, joined)
}
