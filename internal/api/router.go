// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/auth"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/invite"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/middleware"
	"github.com/tomtom215/wizarr/internal/models"
	wsync "github.com/tomtom215/wizarr/internal/sync"
)

// Store is the persistence the handlers read and write directly.
type Store interface {
	Ping(ctx context.Context) error
	CreateMediaServer(ctx context.Context, server *models.MediaServer) error
	GetMediaServer(ctx context.Context, id string) (*models.MediaServer, error)
	ListMediaServers(ctx context.Context, enabledOnly bool) ([]models.MediaServer, error)
	UpsertLibraries(ctx context.Context, serverID string, scanned map[string]string) error
	ListLibraries(ctx context.Context, serverID string) ([]models.Library, error)
	GetUserByToken(ctx context.Context, serverID, token string) (*models.User, error)
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	ListInvitations(ctx context.Context, serverID string) ([]models.Invitation, error)
	DeleteInvitation(ctx context.Context, code string) error
}

// Redeemer runs invitation redemptions.
type Redeemer interface {
	Redeem(ctx context.Context, req models.JoinRequest) invite.Result
	RedeemPlex(ctx context.Context, req models.PlexJoinRequest) invite.Result
}

// Reconciler reconciles one server on demand.
type Reconciler interface {
	Reconcile(ctx context.Context, serverID string) ([]models.User, wsync.Result, error)
}

// UserManager removes and toggles users remotely and locally.
type UserManager interface {
	Remove(ctx context.Context, userID int64) error
	SetEnabled(ctx context.Context, userID int64, enabled bool) (bool, error)
}

// Sweeper runs an expiry sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) ([]int64, error)
}

// ClientSource resolves the adapter of a saved server.
type ClientSource interface {
	ClientFor(ctx context.Context, serverID string) (mediaclient.MediaClient, error)
}

// Encrypter seals API keys before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Auditor records admin actions and reads them back.
type Auditor interface {
	Log(event *audit.Event)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// ClientFactory builds an adapter for unsaved credentials.
type ClientFactory func(cfg mediaclient.Config) (mediaclient.MediaClient, error)

// Dependencies are everything the handlers need.
type Dependencies struct {
	Store      Store
	Redeemer   Redeemer
	Reconciler Reconciler
	Users      UserManager
	Sweeper    Sweeper
	Clients    ClientSource
	NewClient  ClientFactory
	Encrypter  Encrypter
	JWT        *auth.JWTManager
	// Audit is optional; nil disables the activity trail.
	Audit Auditor
}

var (
	_ Store        = (*database.DB)(nil)
	_ Redeemer     = (*invite.Redeemer)(nil)
	_ Reconciler   = (*wsync.Reconciler)(nil)
	_ UserManager  = (*wsync.Remover)(nil)
	_ Sweeper      = (*wsync.Manager)(nil)
	_ ClientSource = (*mediaclient.Resolver)(nil)
	_ Auditor      = (*audit.Logger)(nil)
)

// Handler serves the API.
type Handler struct {
	deps Dependencies
}

// NewRouter builds the chi router.
func NewRouter(deps Dependencies, cfg MiddlewareConfig) http.Handler {
	cfg = cfg.withDefaults()
	h := &Handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(cfg))
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.SecurityHeaders)

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(cfg, cfg.JoinRateLimitRequests))
			r.Post("/join", h.Join)
			r.Post("/join/plex", h.JoinPlex)
		})

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(cfg, cfg.RateLimitRequests))
			r.Use(auth.RequireAdmin(deps.JWT, h.rejectAuth))

			r.Route("/servers", func(r chi.Router) {
				r.Get("/", h.ListServers)
				r.Post("/", h.CreateServer)
				r.Post("/scan-libraries", h.ScanLibraries)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/libraries", h.ServerLibraries)
					r.Post("/sync", h.SyncServer)
					r.Get("/statistics", h.ServerStatistics)
					r.Get("/now-playing", h.NowPlaying)
					r.Get("/users/{token}", h.ServerUser)
				})
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", h.ListInvitations)
				r.Post("/", h.CreateInvitation)
				r.Delete("/{code}", h.DeleteInvitation)
			})

			r.Route("/users/{id}", func(r chi.Router) {
				r.Delete("/", h.DeleteUser)
				r.Post("/enable", h.EnableUser)
				r.Post("/disable", h.DisableUser)
			})

			r.Post("/expiry/sweep", h.ExpirySweep)
			r.Get("/audit", h.ListAudit)
		})
	})

	return r
}

func (h *Handler) rejectAuth(w http.ResponseWriter, r *http.Request, status int, message string) {
	code := ErrCodeUnauthorized
	if status == http.StatusForbidden {
		code = ErrCodeForbidden
	}
	event := audit.FromRequest(r, audit.EventAuthFailure, "anonymous").
		WithMetadata(map[string]any{"status": status, "path": r.URL.Path})
	event.Outcome = audit.OutcomeFailure
	event.Description = message
	h.logAudit(event)
	NewResponseWriter(w, r).Error(status, code, message)
}
