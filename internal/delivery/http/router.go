package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"trpgscheduler/internal/delivery/http/controllers"
	"trpgscheduler/internal/delivery/http/middleware"
	"trpgscheduler/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	sessionController *controllers.SessionController,
	identityController *controllers.IdentityController,
	watchController *controllers.WatchController,
	verifier domain.TokenVerifier,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)

	// Auth
	mux.HandleFunc("POST /auth/anonymous", identityController.CreateAnonymous)
	mux.HandleFunc("POST /auth/renew", identityController.Renew)

	// Profile
	mux.HandleFunc("GET /users/me", auth(identityController.GetMe))
	mux.HandleFunc("PUT /users/me", auth(identityController.UpdateMe))

	// Sessions: browsing is public, everything else needs a principal.
	mux.HandleFunc("POST /sessions", auth(sessionController.Create))
	mux.HandleFunc("GET /sessions", sessionController.List)
	mux.HandleFunc("GET /sessions/{sessionID}", sessionController.Get)
	mux.HandleFunc("DELETE /sessions/{sessionID}", auth(sessionController.Delete))
	mux.HandleFunc("POST /sessions/{sessionID}/join", auth(sessionController.Join))
	mux.HandleFunc("POST /sessions/{sessionID}/leave", auth(sessionController.Leave))
	mux.HandleFunc("PUT /sessions/{sessionID}/availability", auth(sessionController.SubmitAvailability))
	mux.HandleFunc("POST /sessions/{sessionID}/confirm", auth(sessionController.Confirm))
	mux.HandleFunc("GET /sessions/{sessionID}/schedule", auth(sessionController.GetSchedule))
	mux.HandleFunc("GET /sessions/{sessionID}/watch", watchController.Watch)

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
