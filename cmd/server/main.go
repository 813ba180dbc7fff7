package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"trpgscheduler/config"
	_ "trpgscheduler/docs"
	"trpgscheduler/internal/adapters/auth"
	"trpgscheduler/internal/adapters/email"
	delivery "trpgscheduler/internal/delivery/http"
	"trpgscheduler/internal/delivery/http/controllers"
	"trpgscheduler/internal/delivery/http/middleware"
	"trpgscheduler/internal/domain"
	"trpgscheduler/internal/repository/memory"
	"trpgscheduler/internal/repository/postgres"
	"trpgscheduler/internal/services"
)

const (
	serviceTimeout = 10 * time.Second
	tokenTTL       = 24 * time.Hour
)

// @title TRPG Scheduler API
// @version 1.0
// @description Tabletop session recruitment and date scheduling.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}
	logger := config.NewLogger()

	var (
		store         domain.SessionStore
		watcher       domain.SessionWatcher
		principalRepo domain.PrincipalRepository
		profileRepo   domain.ProfileRepository
	)
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			logger.Error("open database", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Error("ping database", "err", err)
			os.Exit(1)
		}
		store = postgres.NewSessionStore(db, logger)
		listener, err := postgres.NewSessionListener(cfg.DBUrl, store, logger)
		if err != nil {
			logger.Error("start session listener", "err", err)
			os.Exit(1)
		}
		defer listener.Close()
		watcher = listener
		principalRepo = postgres.NewPrincipalRepository(db)
		profileRepo = postgres.NewProfileRepository(db)
	default:
		memStore := memory.NewSessionStore()
		store = memStore
		watcher = memStore
		principalRepo = memory.NewPrincipalRepository()
		profileRepo = memory.NewProfileRepository()
	}
	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.MailerProvider,
		FromAddress: cfg.MailFromAddress,
		FromName:    cfg.MailFromName,
		SES: email.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
		},
	})
	if err != nil {
		logger.Error("create mailer", "err", err)
		os.Exit(1)
	}

	issuer, verifier := auth.NewJWTTokens(cfg.JWTSecret)
	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)

	notifier := services.NewEmailNotifier(store, profileRepo, mailer, email.NewTemplateRenderer(), logger)
	scheduler := services.NewSchedulerService(store, profileRepo, notifier, logger, cfg.TxMaxRetries, serviceTimeout)
	identity := services.NewIdentityService(principalRepo, profileRepo, hasher, issuer, tokenTTL, serviceTimeout)

	mux := delivery.NewRouter(
		controllers.NewSessionController(logger, scheduler),
		controllers.NewIdentityController(logger, identity),
		controllers.NewWatchController(logger, watcher),
		verifier,
		logger,
	)
	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.CORSAllowedOrigins, mux))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.Environment, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
