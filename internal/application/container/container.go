// Package container provides dependency injection for all singleton services
package container

import (
	"errors"

	"github.com/MichaelMishaev/signals-sub003/internal/application/engine"
	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/domain/gating"
	"github.com/MichaelMishaev/signals-sub003/internal/domain/verification"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/caching/cleanup"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clientstate"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/clock"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/email"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/messaging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/performance"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/database"
	persistence "github.com/MichaelMishaev/signals-sub003/internal/infrastructure/persistence/verification"
	"github.com/MichaelMishaev/signals-sub003/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Config *config.Config
	Policy gating.Policy

	// Application services
	VerificationService *services.VerificationService
	VisitorService      *services.VisitorService

	// Infrastructure
	Logger        *logging.ChanneledLogger
	PerfTracker   *performance.Tracker
	Clock         clock.Clock
	DB            *database.DB
	StateBackend  clientstate.Backend
	Hub           *messaging.Hub
	CleanupWorker *cleanup.Worker
}

// NewContainer creates and wires all singleton services. db may be nil, in
// which case verification reports itself unavailable and client state
// falls back to memory.
func NewContainer(cfg *config.Config, policy gating.Policy, db *database.DB, logger *logging.ChanneledLogger) *Container {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}

	var mailer email.Mailer
	resend, err := email.NewResendClient(email.Config{
		APIKey:    cfg.ResendAPIKey,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		BrandName: cfg.BrandName,
	}, logger)
	switch {
	case err == nil:
		mailer = resend
	case errors.Is(err, email.ErrNotConfigured):
		logger.Startup().Warn("RESEND_API_KEY not set, verification mail disabled")
	default:
		logger.Startup().Error("Failed to create mail client", "error", err.Error())
	}

	return NewContainerWithMailer(cfg, policy, db, mailer, logger)
}

// NewContainerWithMailer wires the container around an explicit mailer.
// A nil mailer leaves code and link requests unavailable.
func NewContainerWithMailer(cfg *config.Config, policy gating.Policy, db *database.DB, mailer email.Mailer, logger *logging.ChanneledLogger) *Container {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	clk := clock.Real()
	perfTracker := performance.NewTracker(nil)

	var repo verification.Repository
	if db != nil {
		repo = persistence.NewSQLRepository(db, logger)
	}

	var backend clientstate.Backend
	var statePurger cleanup.StatePurger
	if cfg.StateBackend == config.StateBackendDatabase && db != nil {
		sqlBackend := clientstate.NewSQLBackend(db, clk, cfg.VerifyTimeout, logger)
		backend = sqlBackend
		statePurger = sqlBackend
	} else {
		backend = clientstate.NewMemoryBackend()
	}

	verifier := services.NewVerificationService(repo, mailer, clk, services.VerificationConfig{
		CodeTTL:          cfg.CodeTTL,
		MagicLinkTTL:     cfg.MagicLinkTTL,
		MagicLinkBaseURL: cfg.MagicLinkURL(),
		RequestTimeout:   cfg.VerifyTimeout,
		MaxCodeAttempts:  cfg.MaxCodeAttempts,
	}, logger, perfTracker)

	visitors := services.NewVisitorService(backend, policy, clk, verifier, services.VisitorConfig{
		MarkerSecret: cfg.JWTSecret,
		MarkerTTL:    cfg.MarkerTTL,
	}, logger, perfTracker)

	hub := messaging.NewHub(logger)
	visitors.SetListener(func(ev engine.Event) {
		hub.Publish(ev.VisitorID, ev)
	})

	worker := cleanup.NewWorker(visitors, verifier, statePurger, clk, &cleanup.Config{
		CleanupInterval:  cfg.CleanupInterval,
		VerboseReporting: cfg.CleanupVerbose,
		VisitorIdleTTL:   cfg.VisitorIdleTTL,
		StateRetention:   cfg.StateRetention,
	}, logger)

	return &Container{
		Config:              cfg,
		Policy:              policy,
		VerificationService: verifier,
		VisitorService:      visitors,
		Logger:              logger,
		PerfTracker:         perfTracker,
		Clock:               clk,
		DB:                  db,
		StateBackend:        backend,
		Hub:                 hub,
		CleanupWorker:       worker,
	}
}

// Close stops every engine and drops websocket clients. The database is
// owned by the caller.
func (c *Container) Close() {
	c.VisitorService.Close()
	c.Hub.Close()
}
