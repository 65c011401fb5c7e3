// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/auth"
)

func (h *Handler) logAudit(event *audit.Event) {
	if h.deps.Audit != nil {
		h.deps.Audit.Log(event)
	}
}

// record logs a successful admin action by the authenticated caller.
func (h *Handler) record(r *http.Request, eventType audit.EventType, targetType, targetID, description string) *audit.Event {
	actor := "unknown"
	if claims := auth.GetClaims(r.Context()); claims != nil {
		actor = claims.Username
	}
	event := audit.FromRequest(r, eventType, actor).WithTarget(targetType, targetID)
	event.Description = description
	return event
}

// ListAudit returns the admin activity trail, newest first.
//
// Query parameters: type (repeatable or comma-separated), actor,
// target_type, target_id, since and until (RFC 3339), limit, offset.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Audit == nil {
		rw.Error(http.StatusNotImplemented, ErrCodeNotSupported, "Audit logging is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		Actor:      q.Get("actor"),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
	}
	for _, raw := range q["type"] {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, audit.EventType(t))
			}
		}
	}
	for name, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			rw.BadRequest(name + " must be an RFC 3339 timestamp")
			return
		}
		*dst = &ts
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			rw.BadRequest(name + " must be a non-negative integer")
			return
		}
		*dst = n
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(events)
}
