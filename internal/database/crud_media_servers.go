// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/wizarr/internal/models"
)

const mediaServerColumns = `id, name, server_type, url, external_url, username, api_key_encrypted,
	default_allow_downloads, default_allow_live_tv, default_allow_mobile_uploads,
	enabled, created_at`

// CreateMediaServer stores a new server. The API key must already be sealed.
func (db *DB) CreateMediaServer(ctx context.Context, server *models.MediaServer) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "media_servers", start, err) }()

	if server.ID == "" {
		server.ID = uuid.New().String()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO media_servers (` + mediaServerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.ExecContext(ctx, query,
		server.ID, server.Name, server.ServerType, server.URL,
		nullString(server.ExternalURL), nullString(server.Username), nullString(server.APIKeyEncrypted),
		server.DefaultAllowDownloads, server.DefaultAllowLiveTV, server.DefaultAllowMobileUploads,
		server.Enabled, server.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create media server: %w", err)
	}
	return nil
}

// GetMediaServer retrieves a media server by ID.
func (db *DB) GetMediaServer(ctx context.Context, id string) (*models.MediaServer, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+mediaServerColumns+` FROM media_servers WHERE id = ?`, id)
	server, err := scanMediaServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media server: %w", err)
	}
	return server, nil
}

// ListMediaServers retrieves all media servers in creation order.
func (db *DB) ListMediaServers(ctx context.Context, enabledOnly bool) ([]models.MediaServer, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := db.builder.Select(mediaServerColumns).From("media_servers").OrderBy("created_at", "id")
	if enabledOnly {
		query = query.Where("enabled = true")
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list media servers: %w", err)
	}
	defer rows.Close()

	servers := make([]models.MediaServer, 0)
	for rows.Next() {
		server, err := scanMediaServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media server: %w", err)
		}
		servers = append(servers, *server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media servers: %w", err)
	}
	return servers, nil
}

// UpdateMediaServer replaces the mutable columns of an existing server.
func (db *DB) UpdateMediaServer(ctx context.Context, server *models.MediaServer) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `UPDATE media_servers SET
		name = ?, server_type = ?, url = ?, external_url = ?, username = ?, api_key_encrypted = ?,
		default_allow_downloads = ?, default_allow_live_tv = ?, default_allow_mobile_uploads = ?,
		enabled = ?
	WHERE id = ?`,
		server.Name, server.ServerType, server.URL,
		nullString(server.ExternalURL), nullString(server.Username), nullString(server.APIKeyEncrypted),
		server.DefaultAllowDownloads, server.DefaultAllowLiveTV, server.DefaultAllowMobileUploads,
		server.Enabled, server.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update media server: %w", err)
	}
	return requireAffected(result, ErrServerNotFound)
}

// DeleteMediaServer removes a server along with its libraries, users,
// invitations and intents.
func (db *DB) DeleteMediaServer(ctx context.Context, id string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		cleanup := []string{
			`DELETE FROM invitation_libraries WHERE invitation_id IN (SELECT id FROM invitations WHERE server_id = ?)`,
			`DELETE FROM invitations WHERE server_id = ?`,
			`DELETE FROM libraries WHERE server_id = ?`,
			`DELETE FROM users WHERE server_id = ?`,
			`DELETE FROM provision_intents WHERE server_id = ?`,
		}
		for _, stmt := range cleanup {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("failed to delete server children: %w", err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM media_servers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete media server: %w", err)
		}
		return requireAffected(result, ErrServerNotFound)
	})
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMediaServer(row rowScanner) (*models.MediaServer, error) {
	var s models.MediaServer
	var externalURL, username, apiKey sql.NullString
	err := row.Scan(
		&s.ID, &s.Name, &s.ServerType, &s.URL, &externalURL, &username, &apiKey,
		&s.DefaultAllowDownloads, &s.DefaultAllowLiveTV, &s.DefaultAllowMobileUploads,
		&s.Enabled, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ExternalURL = externalURL.String
	s.Username = username.String
	s.APIKeyEncrypted = apiKey.String
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// requireAffected maps a zero-row write to notFound.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
