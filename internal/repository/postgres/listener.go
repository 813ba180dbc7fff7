package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"trpgscheduler/internal/domain"
)

// SessionListener implements domain.SessionWatcher on top of Postgres
// LISTEN/NOTIFY. Commits announce the session id on the session_updates
// channel; the listener re-reads the row and fans the snapshot out to every
// watcher of that session.
type SessionListener struct {
	store    domain.SessionStore
	listener *pq.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	watchers map[string]map[int]chan *domain.Session
	nextID   int
	closed   bool
}

// NewSessionListener connects a LISTEN session to the database and starts
// dispatching change notifications. Close releases the connection.
func NewSessionListener(dsn string, store domain.SessionStore, logger *slog.Logger) (*SessionListener, error) {
	l := &SessionListener{
		store:    store,
		logger:   logger,
		watchers: make(map[string]map[int]chan *domain.Session),
	}
	l.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("session listener event", "event", int(event), "err", err)
		}
	})
	if err := l.listener.Listen(sessionUpdatesChannel); err != nil {
		_ = l.listener.Close()
		return nil, err
	}
	go l.run()
	return l, nil
}

// Close stops dispatching and closes every watcher channel.
func (l *SessionListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, m := range l.watchers {
		for _, ch := range m {
			close(ch)
		}
	}
	l.watchers = make(map[string]map[int]chan *domain.Session)
	l.mu.Unlock()
	return l.listener.Close()
}

// Watch emits the current snapshot and then one snapshot per commit. A nil
// snapshot means the session was deleted. Slow consumers miss intermediate
// snapshots rather than blocking the dispatcher.
func (l *SessionListener) Watch(ctx context.Context, id string) (<-chan *domain.Session, func(), error) {
	ch := make(chan *domain.Session, 16)

	// Register before reading the snapshot so a commit that lands between the
	// read and the registration is not lost.
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, nil, errors.New("session listener is closed")
	}
	watcherID := l.nextID
	l.nextID++
	if l.watchers[id] == nil {
		l.watchers[id] = make(map[int]chan *domain.Session)
	}
	l.watchers[id][watcherID] = ch
	l.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			l.mu.Lock()
			if m, ok := l.watchers[id]; ok {
				delete(m, watcherID)
				if len(m) == 0 {
					delete(l.watchers, id)
				}
				close(ch)
			}
			l.mu.Unlock()
		})
	}

	snapshot, err := l.store.GetByID(ctx, id)
	if err != nil {
		stop()
		return nil, nil, err
	}
	// Non-blocking: a dispatch may already have filled the buffer with a
	// fresher snapshot than the one we just read.
	select {
	case ch <- snapshot:
	default:
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	return ch, stop, nil
}

func (l *SessionListener) run() {
	for notification := range l.listener.Notify {
		if notification == nil {
			// Reconnect marker: the connection dropped and notifications may
			// have been missed. Refresh every watched session.
			l.refreshAll()
			continue
		}
		l.dispatch(notification.Extra)
	}
}

func (l *SessionListener) refreshAll() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.watchers))
	for id := range l.watchers {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	for _, id := range ids {
		l.dispatch(id)
	}
}

func (l *SessionListener) dispatch(id string) {
	l.mu.Lock()
	watched := len(l.watchers[id]) > 0
	l.mu.Unlock()
	if !watched {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	snapshot, err := l.store.GetByID(ctx, id)
	cancel()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		l.logger.Warn("session refresh failed", "session_id", id, "err", err)
		return
	}

	l.mu.Lock()
	for _, ch := range l.watchers[id] {
		var cp *domain.Session
		if snapshot != nil {
			cp = snapshot.Clone()
		}
		select {
		case ch <- cp:
		default:
		}
	}
	l.mu.Unlock()
}
