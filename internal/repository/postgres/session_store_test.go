package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"trpgscheduler/internal/domain"
)

func testStoreLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

var sessionColumns = []string{
	"id", "gm_id", "trpg_type", "scenario_name", "description",
	"min_players", "max_players", "notification_email",
	"participants", "status", "availabilities", "final_date",
	"created_at", "updated_at", "version",
}

func sessionRow(createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		"sess-uuid-1", "gm-1", "CoC", "The Haunting", "one-shot",
		2, 4, "gm@example.com",
		"{alice,bob}", "scheduling", []byte(`{"alice":["2024-06-01"]}`), nil,
		createdAt, createdAt, int64(3),
	)
}

func TestSessionStore_Create(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr bool
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO sessions`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-uuid-1"))
			},
			wantID: "sess-uuid-1",
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO sessions`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			store := NewSessionStore(db, testStoreLogger())
			session, err := domain.NewSession("gm-1", "CoC", "The Haunting", "one-shot", "gm@example.com", 2, 4, createdAt)
			require.NoError(t, err)

			err = store.Create(ctx, session)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, session.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionStore_GetByID(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))

	store := NewSessionStore(db, testStoreLogger())
	session, err := store.GetByID(ctx, "sess-uuid-1")
	require.NoError(t, err)
	require.Equal(t, "gm-1", session.GMID)
	require.Equal(t, []string{"alice", "bob"}, session.Participants)
	require.Equal(t, domain.StatusScheduling, session.Status)
	require.Equal(t, []domain.Day{"2024-06-01"}, session.Availabilities["alice"])
	require.Empty(t, session.FinalDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	store := NewSessionStore(db, testStoreLogger())
	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Transact(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))
	mock.ExpectExec(`UPDATE sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(sessionUpdatesChannel, "sess-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSessionStore(db, testStoreLogger())
	err = store.Transact(ctx, "sess-uuid-1", func(session *domain.Session) error {
		session.Participants = append(session.Participants, "carol")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Transact_NotifyFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))
	mock.ExpectExec(`UPDATE sessions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The update already committed, so a lost notification must not turn a
	// successful mutation into an error.
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(sessionUpdatesChannel, "sess-uuid-1").
		WillReturnError(errors.New("connection reset"))

	store := NewSessionStore(db, testStoreLogger())
	err = store.Transact(ctx, "sess-uuid-1", func(session *domain.Session) error {
		session.Participants = append(session.Participants, "carol")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Transact_Conflict(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))
	// A concurrent write bumped the version: the optimistic update matches
	// zero rows, but the row still exists.
	mock.ExpectExec(`UPDATE sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))

	store := NewSessionStore(db, testStoreLogger())
	err = store.Transact(ctx, "sess-uuid-1", func(session *domain.Session) error { return nil })
	require.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Transact_DeletedConcurrently(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))
	mock.ExpectExec(`UPDATE sessions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	store := NewSessionStore(db, testStoreLogger())
	err = store.Transact(ctx, "sess-uuid-1", func(session *domain.Session) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Transact_FnErrorAborts(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnRows(sessionRow(createdAt))

	store := NewSessionStore(db, testStoreLogger())
	err = store.Transact(ctx, "sess-uuid-1", func(session *domain.Session) error {
		return domain.ErrPreconditionNotMet
	})
	require.ErrorIs(t, err, domain.ErrPreconditionNotMet)
	// No UPDATE was expected or executed.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(sessionUpdatesChannel, "sess-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSessionStore(db, testStoreLogger())
	require.NoError(t, store.Delete(ctx, "sess-uuid-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Delete_NotifyFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("sess-uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT pg_notify`).
		WithArgs(sessionUpdatesChannel, "sess-uuid-1").
		WillReturnError(errors.New("connection reset"))

	store := NewSessionStore(db, testStoreLogger())
	require.NoError(t, store.Delete(ctx, "sess-uuid-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Delete_NotFound(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM sessions`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSessionStore(db, testStoreLogger())
	require.ErrorIs(t, store.Delete(ctx, "missing"), domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_List(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sessions`).
		WillReturnRows(sessionRow(createdAt))

	store := NewSessionStore(db, testStoreLogger())
	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "The Haunting", sessions[0].ScenarioName)
	require.NoError(t, mock.ExpectationsWereMet())
}
