package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"trpgscheduler/internal/domain"
)

type sessionEntry struct {
	session *domain.Session
	version uint64
}

// SessionStore is an in-memory implementation of domain.SessionStore and
// domain.SessionWatcher with per-session optimistic versioning. It is the
// default backend in development and the store the service tests run
// against: Transact exhibits the same conflict semantics as the durable
// postgres store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	watchers map[string]map[int]chan *domain.Session
	nextID   int
}

// NewSessionStore returns an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		watchers: make(map[string]map[int]chan *domain.Session),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	id, err := newID()
	if err != nil {
		return fmt.Errorf("generate session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = id
	s.sessions[id] = &sessionEntry{session: session.Clone(), version: 1}
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entry.session.Clone(), nil
}

func (s *SessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*domain.Session, 0, len(s.sessions))
	for _, entry := range s.sessions {
		sessions = append(sessions, entry.session.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sessions, id)
	s.broadcastLocked(id, nil)
	return nil
}

// Transact reads a fresh copy of the session, applies fn to it, and commits
// only if no concurrent write happened since the read. The caller retries on
// domain.ErrConflict.
func (s *SessionStore) Transact(ctx context.Context, id string, fn func(session *domain.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	entry, ok := s.sessions[id]
	if !ok {
		s.mu.RUnlock()
		return domain.ErrNotFound
	}
	draft := entry.session.Clone()
	readVersion := entry.version
	s.mu.RUnlock()

	if err := fn(draft); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if entry.version != readVersion {
		return domain.ErrConflict
	}
	entry.session = draft.Clone()
	entry.version++
	s.broadcastLocked(id, entry.session)
	return nil
}

// Watch emits the current snapshot and then one snapshot per commit. A nil
// snapshot means the session was deleted. Slow consumers miss intermediate
// snapshots rather than blocking writers.
func (s *SessionStore) Watch(ctx context.Context, id string) (<-chan *domain.Session, func(), error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrNotFound
	}

	ch := make(chan *domain.Session, 16)
	ch <- entry.session.Clone()
	watcherID := s.nextID
	s.nextID++
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[int]chan *domain.Session)
	}
	s.watchers[id][watcherID] = ch
	s.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			if m, ok := s.watchers[id]; ok {
				delete(m, watcherID)
				if len(m) == 0 {
					delete(s.watchers, id)
				}
			}
			s.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	return ch, stop, nil
}

func (s *SessionStore) broadcastLocked(id string, snapshot *domain.Session) {
	for _, ch := range s.watchers[id] {
		var cp *domain.Session
		if snapshot != nil {
			cp = snapshot.Clone()
		}
		select {
		case ch <- cp:
		default:
		}
	}
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
