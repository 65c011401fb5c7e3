// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/models"
)

// ListInvitations lists invitations, optionally for one server_id.
func (h *Handler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	invs, err := h.deps.Store.ListInvitations(r.Context(), r.URL.Query().Get("server_id"))
	if err != nil {
		respondStoreError(rw, err)
		return
	}
	if invs == nil {
		invs = []models.Invitation{}
	}
	rw.Success(invs)
}

// CreateInvitation creates an invite code for one server.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.CreateInvitationRequest
	if !decodeAndValidate(rw, r, &req) {
		return
	}
	ctx := r.Context()

	if _, err := h.deps.Store.GetMediaServer(ctx, req.ServerID); err != nil {
		respondStoreError(rw, err)
		return
	}
	if req.Expires != nil && !req.Expires.After(time.Now()) {
		rw.BadRequest("expires must be in the future")
		return
	}

	libs, err := h.selectLibraries(r, req.ServerID, req.LibraryIDs)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	inv := &models.Invitation{
		Code:               req.Code,
		ServerID:           req.ServerID,
		Unlimited:          req.Unlimited,
		Expires:            req.Expires,
		DurationDays:       req.DurationDays,
		AllowDownloads:     req.AllowDownloads,
		AllowLiveTV:        req.AllowLiveTV,
		AllowMobileUploads: req.AllowMobileUploads,
		PlexHome:           req.PlexHome,
		Libraries:          libs,
	}
	if inv.Expires != nil {
		utc := inv.Expires.UTC()
		inv.Expires = &utc
	}
	if err := h.deps.Store.CreateInvitation(ctx, inv); err != nil {
		respondStoreError(rw, err)
		return
	}
	logging.Ctx(ctx).Info().Str("code", inv.Code).Str("server_id", inv.ServerID).
		Int("libraries", len(libs)).Msg("Invitation created")
	h.logAudit(h.record(r, audit.EventInvitationCreated, "invitation", inv.Code, "Created invitation for server "+inv.ServerID).
		WithMetadata(map[string]any{
			"unlimited":     inv.Unlimited,
			"duration_days": inv.DurationDays,
			"libraries":     len(libs),
		}))
	rw.Created(inv)
}

// selectLibraries resolves local library ids against the server's table.
func (h *Handler) selectLibraries(r *http.Request, serverID string, ids []int64) ([]models.Library, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	all, err := h.deps.Store.ListLibraries(r.Context(), serverID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Library, len(all))
	for _, lib := range all {
		byID[lib.ID] = lib
	}
	selected := make([]models.Library, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		lib, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("library %d does not belong to server %s", id, serverID)
		}
		seen[id] = true
		selected = append(selected, lib)
	}
	return selected, nil
}

// DeleteInvitation removes an invite code.
func (h *Handler) DeleteInvitation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	code := chi.URLParam(r, "code")
	if err := h.deps.Store.DeleteInvitation(r.Context(), code); err != nil {
		respondStoreError(rw, err)
		return
	}
	h.logAudit(h.record(r, audit.EventInvitationDeleted, "invitation", code, "Deleted invitation"))
	w.WriteHeader(http.StatusNoContent)
}
