// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package notify delivers user lifecycle events to external receivers.
//
// Delivery is best effort: failures are logged and counted, and never fail
// the operation that produced the event.
package notify

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/metrics"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventUserInvited EventType = "user_invited"
	EventUserDeleted EventType = "user_deleted"
	EventUserExpired EventType = "user_expired"
)

// Event is one notification.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent stamps an event with a ULID and the current time.
func NewEvent(eventType EventType, payload map[string]any) Event {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Type:      eventType,
		Timestamp: now,
		Payload:   payload,
	}
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send delivers event through n and logs a failure instead of returning it.
// A nil notifier is a no-op.
func Send(ctx context.Context, n Notifier, event Event) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, event); err != nil {
		metrics.NotificationsSent.WithLabelValues(string(event.Type), "failure").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("event", string(event.Type)).Str("event_id", event.ID).
			Msg("Notification delivery failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues(string(event.Type), "success").Inc()
}
