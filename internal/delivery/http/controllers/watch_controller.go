package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trpgscheduler/internal/domain"
)

// WatchController streams session snapshots over server-sent events so the
// recruitment and scheduling screens refresh without polling.
type WatchController struct {
	Logger  *slog.Logger
	Watcher domain.SessionWatcher
}

func NewWatchController(logger *slog.Logger, watcher domain.SessionWatcher) *WatchController {
	return &WatchController{
		Logger:  logger,
		Watcher: watcher,
	}
}

// Watch godoc
// @Summary Watch a session
// @Description Server-sent event stream of session snapshots: the current state immediately, then one event per committed change. A "deleted" event ends the stream. Public.
// @Tags sessions
// @Produce text/event-stream
// @Param sessionID path string true "Session ID"
// @Success 200 {string} string "SSE stream of session events"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /sessions/{sessionID}/watch [get]
func (c *WatchController) Watch(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// The server's write deadline would sever the stream mid-watch; the
	// stream lives until the client goes away or the session is deleted.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		c.Logger.WarnContext(r.Context(), "clear write deadline", "err", err)
	}

	updates, stop, err := c.Watcher.Watch(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeDomainError(c.Logger, w, r, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		c.Logger.ErrorContext(r.Context(), "flush event stream", "err", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case session, open := <-updates:
			if !open {
				return
			}
			if session == nil {
				fmt.Fprint(w, "event: deleted\ndata: null\n\n")
				_ = rc.Flush()
				return
			}
			payload, err := json.Marshal(SessionResponse{Session: session, DisplayStatus: session.DisplayStatus()})
			if err != nil {
				c.Logger.ErrorContext(r.Context(), "marshal session event", "err", err)
				return
			}
			fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
