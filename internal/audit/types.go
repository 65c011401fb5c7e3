// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	EventServerCreated     EventType = "server.created"
	EventInvitationCreated EventType = "invitation.created"
	EventInvitationDeleted EventType = "invitation.deleted"
	EventUserDeleted       EventType = "user.deleted"
	EventUserEnabled       EventType = "user.enabled"
	EventUserDisabled      EventType = "user.disabled"
	EventSyncRequested     EventType = "sync.requested"
	EventExpirySwept       EventType = "expiry.swept"
	EventAuthFailure       EventType = "auth.failure"
)

// Outcome indicates whether an action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one recorded admin action.
type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Type        EventType       `json:"type"`
	Outcome     Outcome         `json:"outcome"`
	Actor       string          `json:"actor"`
	TargetType  string          `json:"target_type,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	SourceIP    string          `json:"source_ip,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
}

// Store persists events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter selects events. Zero fields do not filter.
type QueryFilter struct {
	Types      []EventType
	Actor      string
	TargetType string
	TargetID   string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

// maxQueryLimit caps a single page.
const maxQueryLimit = 500

func (f QueryFilter) limit() uint64 {
	switch {
	case f.Limit <= 0:
		return 100
	case f.Limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return uint64(f.Limit)
	}
}
