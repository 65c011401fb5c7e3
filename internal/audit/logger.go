// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/tomtom215/wizarr/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
	BufferSize      int
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      256,
	}
}

// Logger queues events and writes them in the background.
type Logger struct {
	config    Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewLogger starts the writer goroutine. Close stops it after draining.
func NewLogger(store Store, config Config) *Logger {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
	l.wg.Add(1)
	go l.asyncWriter()
	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log queues an event. It never blocks.
func (l *Logger) Log(event *Event) {
	if l == nil || !l.config.Enabled || event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_type", string(event.Type)).Msg("Audit event buffer full, dropping event")
	}
}

// Query reads back stored events.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Close stops the writer after the queued events are saved.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Cleanup deletes events past the retention window.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.config.RetentionDays)
	return l.store.Delete(ctx, cutoff)
}

// StartCleanupRoutine runs Cleanup every CleanupInterval until ctx ends.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := l.Cleanup(ctx)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// FromRequest starts an event with the request's source address and id.
// RealIP middleware has already rewritten RemoteAddr.
func FromRequest(r *http.Request, eventType EventType, actor string) *Event {
	return &Event{
		Type:      eventType,
		Actor:     actor,
		SourceIP:  r.RemoteAddr,
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// WithTarget sets the affected object.
func (e *Event) WithTarget(targetType, targetID string) *Event {
	e.TargetType, e.TargetID = targetType, targetID
	return e
}

// WithMetadata attaches a JSON object. Marshal failures drop the metadata.
func (e *Event) WithMetadata(v any) *Event {
	if data, err := json.Marshal(v); err == nil {
		e.Metadata = data
	}
	return e
}
