package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"trpgscheduler/internal/domain"
)

// sessionUpdatesChannel is the NOTIFY channel commits are announced on.
const sessionUpdatesChannel = "session_updates"

type sessionStore struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewSessionStore returns a domain.SessionStore backed by Postgres. Every
// session row carries a version column; Transact re-reads the row, applies
// the mutation, and commits with an optimistic
// UPDATE ... WHERE id = $n AND version = $m, mapping a zero-row update to
// domain.ErrConflict.
func NewSessionStore(db *sql.DB, logger *slog.Logger) domain.SessionStore {
	return &sessionStore{DB: db, logger: logger}
}

func (r *sessionStore) Create(ctx context.Context, session *domain.Session) error {
	availabilities, err := json.Marshal(session.Availabilities)
	if err != nil {
		return fmt.Errorf("marshal availabilities: %w", err)
	}
	query := `
		INSERT INTO sessions (
			gm_id, trpg_type, scenario_name, description,
			min_players, max_players, notification_email,
			participants, status, availabilities, final_date,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		session.GMID, session.TRPGType, session.ScenarioName, session.Description,
		session.MinPlayers, session.MaxPlayers, session.NotificationEmail,
		pq.Array(session.Participants), string(session.Status), availabilities,
		nullableDay(session.FinalDate), session.CreatedAt, session.UpdatedAt,
	).Scan(&session.ID)
}

func (r *sessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	session, _, err := r.getWithVersion(ctx, id)
	return session, err
}

func (r *sessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	query := selectColumns + `
		FROM sessions
		ORDER BY created_at DESC, id
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, _, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	return sessions, nil
}

func (r *sessionStore) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	r.notify(ctx, id)
	return nil
}

// notify announces a committed change on the NOTIFY channel. The mutation is
// already durable at this point, so a failed announcement is logged, not
// surfaced: watchers catch up on the next commit or reconnect.
func (r *sessionStore) notify(ctx context.Context, id string) {
	if _, err := r.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, sessionUpdatesChannel, id); err != nil {
		r.logger.WarnContext(ctx, "session change notify failed", "session_id", id, "err", err)
	}
}

func (r *sessionStore) Transact(ctx context.Context, id string, fn func(session *domain.Session) error) error {
	session, version, err := r.getWithVersion(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(session); err != nil {
		return err
	}

	availabilities, err := json.Marshal(session.Availabilities)
	if err != nil {
		return fmt.Errorf("marshal availabilities: %w", err)
	}
	query := `
		UPDATE sessions
		SET participants = $1,
		    status = $2,
		    availabilities = $3,
		    final_date = $4,
		    updated_at = $5,
		    version = version + 1
		WHERE id = $6 AND version = $7
	`
	res, err := r.DB.ExecContext(ctx, query,
		pq.Array(session.Participants), string(session.Status), availabilities,
		nullableDay(session.FinalDate), session.UpdatedAt, id, version,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either a concurrent write bumped the version or the row is gone.
		if _, _, err := r.getWithVersion(ctx, id); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	r.notify(ctx, id)
	return nil
}

const selectColumns = `
		SELECT id, gm_id, trpg_type, scenario_name, description,
		       min_players, max_players, notification_email,
		       participants, status, availabilities, final_date,
		       created_at, updated_at, version`

func (r *sessionStore) getWithVersion(ctx context.Context, id string) (*domain.Session, int64, error) {
	query := selectColumns + `
		FROM sessions
		WHERE id = $1
	`
	session, version, err := scanSession(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, err
	}
	return session, version, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, int64, error) {
	var (
		session        domain.Session
		participants   pq.StringArray
		status         string
		availabilities []byte
		finalDate      sql.NullString
		version        int64
	)
	err := row.Scan(
		&session.ID, &session.GMID, &session.TRPGType, &session.ScenarioName, &session.Description,
		&session.MinPlayers, &session.MaxPlayers, &session.NotificationEmail,
		&participants, &status, &availabilities, &finalDate,
		&session.CreatedAt, &session.UpdatedAt, &version,
	)
	if err != nil {
		return nil, 0, err
	}
	session.Participants = []string(participants)
	if session.Participants == nil {
		session.Participants = []string{}
	}
	session.Status = domain.SessionStatus(status)
	session.Availabilities = map[string][]domain.Day{}
	if len(availabilities) > 0 {
		if err := json.Unmarshal(availabilities, &session.Availabilities); err != nil {
			return nil, 0, fmt.Errorf("unmarshal availabilities: %w", err)
		}
	}
	if finalDate.Valid {
		session.FinalDate = domain.Day(finalDate.String)
	}
	return &session, version, nil
}

func nullableDay(d domain.Day) sql.NullString {
	if d == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
