// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
database_schema.go - Database Schema Management

Tables:
  - media_servers: configured servers, API keys sealed with AES-GCM
  - settings: key/value store, including the legacy single-server keys
  - libraries: libraries discovered per server (scan results)
  - users: local mirror of provisioned and synced remote accounts
  - invitations, invitation_libraries: invite codes and their library grants
  - provision_intents: saga records for in-flight redemptions

Constraints:
  - users is unique on (server_id, token): one local row per remote account
  - libraries is unique on (server_id, external_id)
  - invitations.code is unique

Timestamps are stored as TIMESTAMP in UTC so no ICU extension is needed.
Library name lists are JSON text: NULL means full access and "[]" means an
explicit empty grant. Foreign keys are not declared; child rows are removed
explicitly in the same transaction as their parent.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

func getTableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS users_id_seq START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS invitations_id_seq START 1;`,
		`CREATE SEQUENCE IF NOT EXISTS libraries_id_seq START 1;`,

		`CREATE TABLE IF NOT EXISTS media_servers (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			server_type VARCHAR NOT NULL,
			url VARCHAR NOT NULL,
			external_url VARCHAR,
			username VARCHAR,
			api_key_encrypted VARCHAR,
			default_allow_downloads BOOLEAN NOT NULL DEFAULT false,
			default_allow_live_tv BOOLEAN NOT NULL DEFAULT false,
			default_allow_mobile_uploads BOOLEAN NOT NULL DEFAULT false,
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR PRIMARY KEY,
			value VARCHAR
		);`,

		`CREATE TABLE IF NOT EXISTS libraries (
			id BIGINT PRIMARY KEY DEFAULT nextval('libraries_id_seq'),
			external_id VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			server_id VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			UNIQUE (server_id, external_id)
		);`,

		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
			token VARCHAR NOT NULL,
			username VARCHAR NOT NULL,
			email VARCHAR,
			code VARCHAR NOT NULL,
			server_id VARCHAR NOT NULL,
			expires TIMESTAMP,
			is_admin BOOLEAN NOT NULL DEFAULT false,
			is_disabled BOOLEAN NOT NULL DEFAULT false,
			allow_downloads BOOLEAN NOT NULL DEFAULT false,
			allow_live_tv BOOLEAN NOT NULL DEFAULT false,
			allow_camera_upload BOOLEAN NOT NULL DEFAULT false,
			accessible_libraries VARCHAR,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (server_id, token)
		);`,

		`CREATE TABLE IF NOT EXISTS invitations (
			id BIGINT PRIMARY KEY DEFAULT nextval('invitations_id_seq'),
			code VARCHAR NOT NULL UNIQUE,
			server_id VARCHAR NOT NULL,
			used BOOLEAN NOT NULL DEFAULT false,
			used_at TIMESTAMP,
			used_by BIGINT,
			unlimited BOOLEAN NOT NULL DEFAULT false,
			expires TIMESTAMP,
			duration_days INTEGER,
			allow_downloads BOOLEAN,
			allow_live_tv BOOLEAN,
			allow_mobile_uploads BOOLEAN,
			plex_home BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS invitation_libraries (
			invitation_id BIGINT NOT NULL,
			library_id BIGINT NOT NULL,
			PRIMARY KEY (invitation_id, library_id)
		);`,

		`CREATE TABLE IF NOT EXISTS provision_intents (
			id VARCHAR PRIMARY KEY,
			server_id VARCHAR NOT NULL,
			invitation_code VARCHAR NOT NULL,
			username VARCHAR NOT NULL,
			email VARCHAR,
			remote_id VARCHAR,
			state VARCHAR NOT NULL,
			error VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
}
