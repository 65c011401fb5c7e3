// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/models"
)

// DeleteUser removes a user from its media server and then locally.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, ok := int64Param(r, "id")
	if !ok {
		rw.BadRequest("user id must be an integer")
		return
	}
	if err := h.deps.Users.Remove(r.Context(), id); err != nil {
		respondUserError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().Int64("user_id", id).Msg("User deleted")
	h.logAudit(h.record(r, audit.EventUserDeleted, "user", strconv.FormatInt(id, 10), "Deleted user"))
	w.WriteHeader(http.StatusNoContent)
}

// EnableUser re-enables a disabled account.
func (h *Handler) EnableUser(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableUser disables an account without deleting it.
func (h *Handler) DisableUser(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rw := NewResponseWriter(w, r)
	id, ok := int64Param(r, "id")
	if !ok {
		rw.BadRequest("user id must be an integer")
		return
	}
	applied, err := h.deps.Users.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		respondUserError(rw, err)
		return
	}
	eventType, verb := audit.EventUserDisabled, "Disabled user"
	if enabled {
		eventType, verb = audit.EventUserEnabled, "Enabled user"
	}
	h.logAudit(h.record(r, eventType, "user", strconv.FormatInt(id, 10), verb).
		WithMetadata(map[string]bool{"applied": applied}))
	rw.Success(models.ToggleResponse{Applied: applied})
}

// ExpirySweep runs the expiry sweep now and returns the deleted user ids.
func (h *Handler) ExpirySweep(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	deleted, err := h.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		respondStoreError(rw, err)
		return
	}
	if deleted == nil {
		deleted = []int64{}
	}
	h.logAudit(h.record(r, audit.EventExpirySwept, "", "", "Manual expiry sweep").
		WithMetadata(map[string]any{"deleted": deleted}))
	rw.Success(models.SweepResponse{Deleted: deleted})
}

// respondUserError separates a missing local user from remote failures.
func respondUserError(rw *ResponseWriter, err error) {
	if errors.Is(err, database.ErrUserNotFound) {
		rw.NotFound("User not found")
		return
	}
	respondClientError(rw, "", err)
}
