// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/tomtom215/wizarr/internal/models"
)

// UpsertLibraries replaces the library set of a server with the scanned
// externalID -> name map. Existing rows keep their id and enabled flag;
// rows that disappeared remotely are removed together with their
// invitation links.
func (db *DB) UpsertLibraries(ctx context.Context, serverID string, scanned map[string]string) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("upsert", "libraries", start, err) }()

	ids := make([]string, 0, len(scanned))
	for id := range scanned {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.ExecContext(ctx, `INSERT INTO libraries (external_id, name, server_id, enabled)
				VALUES (?, ?, ?, true)
				ON CONFLICT (server_id, external_id) DO UPDATE SET name = excluded.name`,
				id, scanned[id], serverID)
			if err != nil {
				return fmt.Errorf("failed to upsert library %s: %w", id, err)
			}
		}

		stale := db.builder.Select("id").From("libraries").Where(sq.Eq{"server_id": serverID})
		if len(ids) > 0 {
			stale = stale.Where(sq.NotEq{"external_id": ids})
		}
		staleSQL, staleArgs, err := stale.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM invitation_libraries WHERE library_id IN (`+staleSQL+`)`, staleArgs...); err != nil {
			return fmt.Errorf("failed to unlink stale libraries: %w", err)
		}

		del := db.builder.Delete("libraries").Where(sq.Eq{"server_id": serverID})
		if len(ids) > 0 {
			del = del.Where(sq.NotEq{"external_id": ids})
		}
		delSQL, delArgs, err := del.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
			return fmt.Errorf("failed to delete stale libraries: %w", err)
		}
		return nil
	})
}

// ListLibraries returns the persisted libraries of a server ordered by name.
func (db *DB) ListLibraries(ctx context.Context, serverID string) ([]models.Library, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, external_id, name, server_id, enabled
		FROM libraries WHERE server_id = ? ORDER BY name, external_id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()
	return scanLibraries(rows)
}

// ListEnabledLibraries returns only libraries the admin offers in invitations.
func (db *DB) ListEnabledLibraries(ctx context.Context, serverID string) ([]models.Library, error) {
	all, err := db.ListLibraries(ctx, serverID)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, lib := range all {
		if lib.Enabled {
			enabled = append(enabled, lib)
		}
	}
	return enabled, nil
}

// SetLibraryEnabled toggles whether a library may be offered in invitations.
func (db *DB) SetLibraryEnabled(ctx context.Context, id int64, enabled bool) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `UPDATE libraries SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update library: %w", err)
	}
	return requireAffected(result, ErrLibraryNotFound)
}

func scanLibraries(rows *sql.Rows) ([]models.Library, error) {
	libs := make([]models.Library, 0)
	for rows.Next() {
		var lib models.Library
		if err := rows.Scan(&lib.ID, &lib.ExternalID, &lib.Name, &lib.ServerID, &lib.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating libraries: %w", err)
	}
	return libs, nil
}
