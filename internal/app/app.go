package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"guardian-recovery/internal/config"
	"guardian-recovery/internal/event"
	"guardian-recovery/internal/handler"
	"guardian-recovery/internal/metrics"
	"guardian-recovery/internal/middleware"
	"guardian-recovery/internal/recovery"
	"guardian-recovery/internal/revoke"
	"guardian-recovery/internal/router"
	"guardian-recovery/internal/service"
	"guardian-recovery/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	server *http.Server
	hub    *websocket.Hub
	store  *Store
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	appHandler, hub, err := Build(ctx, cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appHandler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{server: server, hub: hub, store: store}, nil
}

// Build wires services and handlers on top of an open store. The returned
// hub must be run for the event stream to deliver anything.
func Build(ctx context.Context, cfg *config.Config, store *Store) (http.Handler, *websocket.Hub, error) {
	recorder := metrics.New()
	bus := event.NewBus()
	hub := websocket.NewHub(bus)

	auditService, err := service.NewAuditService(cfg.AuditLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	seeds := make([]service.GuardianSeed, 0, len(cfg.InitialGuardians))
	for _, seed := range cfg.InitialGuardians {
		seeds = append(seeds, service.GuardianSeed{Identity: seed.Identity, Weight: seed.Weight})
	}

	recoveryService, err := service.NewRecoveryService(ctx, store.State, service.RecoveryOptions{
		Bootstrap: recovery.Config{
			Owner:          cfg.Owner,
			Signer:         cfg.Signer,
			RequiredWeight: cfg.RequiredWeight,
			Delay:          cfg.RecoveryDelay,
		},
		InitialGuardians: seeds,
		Bus:              bus,
		Audit:            auditService,
		Metrics:          recorder,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize recovery service: %w", err)
	}

	authService, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.AuthChallengeTTL, recoveryService)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	// Approvals are revoked against the in-process ledger; the emergency
	// marker is reserved for the account owner.
	helper, err := revoke.NewHelper(revoke.NewMemoryLedger(), cfg.Owner, revoke.WithMaxBatch(cfg.RevokeMaxBatch))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize revoke helper: %w", err)
	}
	revokeService := service.NewRevokeService(helper, bus, auditService, recorder)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Guardian: handler.NewGuardianHandler(recoveryService),
		Recovery: handler.NewRecoveryHandler(recoveryService),
		Approval: handler.NewApprovalHandler(revokeService),
		Audit:    handler.NewAuditHandler(auditService),
		Events:   handler.NewEventsHandler(websocket.NewUpgrader(hub, cfg.CORSOrigins)),
		Metrics:  recorder.Handler(),
		Health:   healthHandler(store),
	})

	return appRouter, hub, nil
}

func healthHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok", "store": store.Driver}
		if err := store.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["error"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}
