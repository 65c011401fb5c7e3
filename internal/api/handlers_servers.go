// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
)

// ListServers lists configured servers.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	servers, err := h.deps.Store.ListMediaServers(r.Context(), false)
	if err != nil {
		respondStoreError(rw, err)
		return
	}
	rw.Success(servers)
}

// CreateServer saves a server after checking its credentials with a
// library scan, then stores the scanned libraries.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.CreateServerRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}
	ctx := r.Context()

	client, err := h.newClient(mediaclient.Config{
		ServerType: req.ServerType,
		URL:        req.URL,
		Token:      req.APIKey,
		Username:   req.Username,
	})
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	scanned, err := client.ScanLibraries(ctx, "", "")
	if err != nil {
		respondClientError(rw, req.ServerType, err)
		return
	}

	sealed, err := h.deps.Encrypter.Encrypt(req.APIKey)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to encrypt API key")
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Could not store credentials")
		return
	}
	server := &models.MediaServer{
		Name:                      req.Name,
		ServerType:                req.ServerType,
		URL:                       strings.TrimRight(req.URL, "/"),
		ExternalURL:               req.ExternalURL,
		Username:                  req.Username,
		APIKeyEncrypted:           sealed,
		DefaultAllowDownloads:     req.DefaultAllowDownloads,
		DefaultAllowLiveTV:        req.DefaultAllowLiveTV,
		DefaultAllowMobileUploads: req.DefaultAllowMobileUploads,
		Enabled:                   true,
	}
	if err := h.deps.Store.CreateMediaServer(ctx, server); err != nil {
		respondStoreError(rw, err)
		return
	}

	byID := make(map[string]string, len(scanned))
	for name, id := range scanned {
		byID[id] = name
	}
	if err := h.deps.Store.UpsertLibraries(ctx, server.ID, byID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("server_id", server.ID).Msg("Server saved but library scan not stored")
	}

	logging.Ctx(ctx).Info().Str("server_id", server.ID).Str("server_type", server.ServerType).
		Int("libraries", len(byID)).Msg("Media server added")
	h.logAudit(h.record(r, audit.EventServerCreated, "server", server.ID, "Added "+server.ServerType+" server "+server.Name).
		WithMetadata(map[string]any{"url": server.URL, "libraries": len(byID)}))
	rw.Created(server)
}

// ScanLibraries tests unsaved credentials and returns name -> external id.
func (h *Handler) ScanLibraries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.ScanLibrariesRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}
	client, err := h.newClient(mediaclient.Config{
		ServerType: req.ServerType,
		URL:        req.URL,
		Token:      req.APIKey,
		Username:   req.Username,
	})
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	libs, err := client.ScanLibraries(r.Context(), req.URL, req.APIKey)
	if err != nil {
		respondClientError(rw, req.ServerType, err)
		return
	}
	rw.Success(libs)
}

func (h *Handler) newClient(cfg mediaclient.Config) (mediaclient.MediaClient, error) {
	if h.deps.NewClient != nil {
		return h.deps.NewClient(cfg)
	}
	return mediaclient.New(cfg, mediaclient.Deps{})
}

// ServerLibraries refreshes the library table from the server and returns
// it. When the server is unreachable the stored libraries are returned.
func (h *Handler) ServerLibraries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	serverID := chi.URLParam(r, "id")

	client, err := h.deps.Clients.ClientFor(ctx, serverID)
	if err != nil {
		respondClientError(rw, "", err)
		return
	}
	if fetched, err := client.Libraries(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("server_id", serverID).Msg("Library refresh failed, serving stored libraries")
	} else if err := h.deps.Store.UpsertLibraries(ctx, serverID, fetched); err != nil {
		respondStoreError(rw, err)
		return
	}

	libs, err := h.deps.Store.ListLibraries(ctx, serverID)
	if err != nil {
		respondStoreError(rw, err)
		return
	}
	rw.Success(libs)
}

// SyncServer reconciles the local users of one server.
func (h *Handler) SyncServer(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	serverID := chi.URLParam(r, "id")
	users, res, err := h.deps.Reconciler.Reconcile(r.Context(), serverID)
	if err != nil {
		respondClientError(rw, "", err)
		return
	}
	h.logAudit(h.record(r, audit.EventSyncRequested, "server", serverID, "Manual user sync").
		WithMetadata(res))
	if users == nil {
		users = []models.User{}
	}
	rw.Success(models.SyncResponse{
		Users:    users,
		Inserted: res.Inserted,
		Deleted:  res.Deleted,
		Updated:  res.Updated,
		Adopted:  res.Adopted,
	})
}

// ServerStatistics returns the server summary. readonly=true skips the
// roster fetch.
func (h *Handler) ServerStatistics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	readonly := false
	if v := r.URL.Query().Get("readonly"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			rw.BadRequest("readonly must be true or false")
			return
		}
		readonly = parsed
	}

	ctx := r.Context()
	client, err := h.deps.Clients.ClientFor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondClientError(rw, "", err)
		return
	}
	var stats media.Statistics
	if readonly {
		stats, err = client.ReadonlyStatistics(ctx)
	} else {
		stats, err = client.Statistics(ctx)
	}
	if err != nil {
		respondClientError(rw, client.ServerType(), err)
		return
	}
	rw.Success(stats)
}

// NowPlaying lists active sessions.
func (h *Handler) NowPlaying(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	client, err := h.deps.Clients.ClientFor(ctx, chi.URLParam(r, "id"))
	if err != nil {
		respondClientError(rw, "", err)
		return
	}
	sessions, err := client.NowPlaying(ctx)
	if err != nil {
		respondClientError(rw, client.ServerType(), err)
		return
	}
	if sessions == nil {
		sessions = []media.Session{}
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].UserName < sessions[j].UserName })
	rw.Success(sessions)
}

// serverUserResponse pairs the local row with the normalized remote view.
type serverUserResponse struct {
	Local  *models.User            `json:"local"`
	Remote *media.MediaUserDetails `json:"remote"`
}

// ServerUser returns one user by token from both sides.
func (h *Handler) ServerUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	serverID, token := chi.URLParam(r, "id"), chi.URLParam(r, "token")

	local, err := h.deps.Store.GetUserByToken(ctx, serverID, token)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		respondStoreError(rw, err)
		return
	}

	client, err := h.deps.Clients.ClientFor(ctx, serverID)
	if err != nil {
		respondClientError(rw, "", err)
		return
	}
	details, err := client.GetUserDetails(ctx, token)
	if err != nil {
		if mediaclient.IsNotFound(err) && local != nil {
			rw.Success(serverUserResponse{Local: local})
			return
		}
		respondClientError(rw, client.ServerType(), err)
		return
	}
	rw.Success(serverUserResponse{Local: local, Remote: &details})
}
