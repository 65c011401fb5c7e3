// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wizarr/internal/invite"
	"github.com/tomtom215/wizarr/internal/models"
)

// Join redeems an invitation with a username and password. Field
// validation happens inside the redemption so every rejection carries the
// invitee-facing message.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.JoinRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	respondRedemption(rw, h.deps.Redeemer.Redeem(r.Context(), req))
}

// JoinPlex redeems an invitation for a Plex account.
func (h *Handler) JoinPlex(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req models.PlexJoinRequest
	if !decodeJSON(rw, r, &req) {
		return
	}
	respondRedemption(rw, h.deps.Redeemer.RedeemPlex(r.Context(), req))
}

func decodeJSON(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || json.Unmarshal(body, dst) != nil {
		rw.BadRequest("Request body must be valid JSON")
		return false
	}
	return true
}

func respondRedemption(rw *ResponseWriter, res invite.Result) {
	if res.Success {
		rw.Created(models.JoinResponse{Success: true, Message: res.Message, UserID: res.UserID})
		return
	}
	details := map[string]string{"failed_in": string(res.FailedIn)}
	rw.ErrorWithDetails(redemptionStatus(res), ErrCodeInvitationRejected, res.Message, details)
}

func redemptionStatus(res invite.Result) int {
	switch {
	case res.Message == invite.MsgUserExists || res.Message == invite.MsgAlreadyUsed:
		return http.StatusConflict
	case res.Message == invite.MsgExpired:
		return http.StatusGone
	case res.FailedIn == invite.StatePending || res.FailedIn == invite.StateValidating:
		return http.StatusBadRequest
	case res.FailedIn == invite.StatePersistingLocal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
