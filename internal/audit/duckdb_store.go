// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var errNilEvent = errors.New("audit event cannot be nil")

// DuckDBStore keeps events in the audit_events table of the main database.
type DuckDBStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

// NewDuckDBStore wraps an open connection. Call CreateTable before use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id VARCHAR PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		type VARCHAR NOT NULL,
		outcome VARCHAR NOT NULL,
		actor VARCHAR NOT NULL,
		target_type VARCHAR,
		target_id VARCHAR,
		description VARCHAR NOT NULL,
		metadata VARCHAR,
		source_ip VARCHAR,
		request_id VARCHAR
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
}

// CreateTable creates the audit_events table and its indexes.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit schema: %w", err)
		}
	}
	return nil
}

// Save inserts one event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return errNilEvent
	}
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		metadata = sql.NullString{String: string(event.Metadata), Valid: true}
	}
	query, args, err := s.builder.Insert("audit_events").
		Columns("id", "timestamp", "type", "outcome", "actor", "target_type", "target_id",
			"description", "metadata", "source_ip", "request_id").
		Values(event.ID, event.Timestamp.UTC(), string(event.Type), string(event.Outcome), event.Actor,
			nullable(event.TargetType), nullable(event.TargetID), event.Description, metadata,
			nullable(event.SourceIP), nullable(event.RequestID)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	q := s.builder.Select("id", "timestamp", "type", "outcome", "actor",
		"COALESCE(target_type, '')", "COALESCE(target_id, '')", "description",
		"COALESCE(metadata, '')", "COALESCE(source_ip, '')", "COALESCE(request_id, '')").
		From("audit_events")

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q = q.Where(sq.Eq{"type": types})
	}
	if filter.Actor != "" {
		q = q.Where(sq.Eq{"actor": filter.Actor})
	}
	if filter.TargetType != "" {
		q = q.Where(sq.Eq{"target_type": filter.TargetType})
	}
	if filter.TargetID != "" {
		q = q.Where(sq.Eq{"target_id": filter.TargetID})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"timestamp": filter.Since.UTC()})
	}
	if filter.Until != nil {
		q = q.Where(sq.Lt{"timestamp": filter.Until.UTC()})
	}
	q = q.OrderBy("timestamp DESC", "id DESC").Limit(filter.limit())
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e                 Event
			eventType, result string
			metadata          string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &result, &e.Actor, &e.TargetType,
			&e.TargetID, &e.Description, &metadata, &e.SourceIP, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.Outcome = Outcome(result)
		if metadata != "" {
			e.Metadata = []byte(metadata)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes events older than the cutoff.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	return res.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
