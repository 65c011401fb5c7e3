// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/wizarr/internal/api"
	"github.com/tomtom215/wizarr/internal/auth"
	"github.com/tomtom215/wizarr/internal/cache"
	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/invite"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/notify"
	"github.com/tomtom215/wizarr/internal/requests"
	"github.com/tomtom215/wizarr/internal/supervisor"
	"github.com/tomtom215/wizarr/internal/supervisor/services"
	wsync "github.com/tomtom215/wizarr/internal/sync"
)

//nolint:gocyclo // sequential wiring of the process
func main() {
	issueToken := flag.String("issue-token", "", "print an admin bearer token for `username` and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret, 0)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	if *issueToken != "" {
		token, err := jwtManager.GenerateToken(*issueToken, auth.RoleAdmin)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(token)
		return
	}

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Wizarr with supervisor tree")

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.JWTSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Legacy.Configured() {
		if err := seedLegacyServer(ctx, db, encryptor, cfg.Legacy); err != nil {
			logging.Error().Err(err).Msg("Failed to seed legacy server settings")
		}
	}

	auditLog, closeAudit := openAuditLog(ctx, db.Conn(), cfg.Audit)
	defer closeAudit()

	deps := mediaDeps(cfg.Media)
	resolver := mediaclient.NewResolver(db, encryptor, deps, cfg.Media.ClientIdentifier, cfg.Media.ProductName)

	notifier, err := notify.FromURLs(cfg.Notify.WebhookURLs, cfg.Notify.WebhookHeaders, cfg.Notify.Timeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure notification webhooks")
	}

	dispatcher, err := requests.NewDispatcher(cfg.Requests, cfg.Media.HTTPTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure request manager integrations")
	}
	if dispatcher.Len() > 0 {
		logging.Info().Int("count", dispatcher.Len()).Msg("Request manager integrations enabled")
	}

	redeemer := invite.NewRedeemer(db, resolver,
		invite.WithNotifier(notifier),
		invite.WithHandoff(dispatcher),
	)
	reconciler := wsync.NewReconciler(db, resolver)
	remover := wsync.NewRemover(db, resolver, notifier)
	sweeper := wsync.NewExpirySweeper(db, remover)
	syncManager := wsync.NewManager(db, reconciler, sweeper, wsync.ManagerConfig{
		ReconcileInterval:  cfg.Sync.Interval,
		SweepInterval:      cfg.ExpirySweepInterval(),
		ReconcileOnStartup: cfg.Sync.ReconcileOnStartup,
	})

	if len(cfg.Security.CORSOrigins) == 1 && cfg.Security.CORSOrigins[0] == "*" && cfg.Server.IsProduction() {
		logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); set explicit origins in production")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	router := api.NewRouter(api.Dependencies{
		Store:      db,
		Redeemer:   redeemer,
		Reconciler: reconciler,
		Users:      remover,
		Sweeper:    syncManager,
		Clients:    resolver,
		NewClient: func(c mediaclient.Config) (mediaclient.MediaClient, error) {
			c.ClientID = cfg.Media.ClientIdentifier
			c.ProductName = cfg.Media.ProductName
			return mediaclient.New(c, deps)
		},
		Encrypter: encryptor,
		JWT:       jwtManager,
		Audit:     auditLog,
	}, api.MiddlewareConfig{
		CORSAllowedOrigins:    cfg.Security.CORSOrigins,
		RateLimitRequests:     cfg.Security.RateLimitReqs,
		RateLimitWindow:       cfg.Security.RateLimitWindow,
		RateLimitDisabled:     cfg.Security.RateLimitDisabled,
		JoinRateLimitRequests: cfg.Security.JoinRateLimitReqs,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	tree.AddWorkerService(services.NewSyncService(syncManager))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	logging.Info().Msg("Application stopped gracefully")
}

// mediaDeps builds the collaborators shared by every adapter.
func mediaDeps(c config.MediaConfig) mediaclient.Deps {
	deps := mediaclient.Deps{
		HTTPClient:   &http.Client{Timeout: c.HTTPTimeout},
		KavitaTokens: cache.NewTokenCache(c.KavitaTokenTTL, c.KavitaTokenBuffer),
		PlexCache:    cache.NewTTLCache[any](c.PlexCacheSize, c.PlexCacheTTL),
	}
	if c.RequestsPerSecond > 0 {
		burst := c.Burst
		if burst <= 0 {
			burst = 1
		}
		deps.Limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
	}
	return deps
}
