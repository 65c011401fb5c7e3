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

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/tomtom215/wizarr/internal/models"
)

const intentColumns = `id, server_id, invitation_code, username, email, remote_id, state, error, created_at, updated_at`

// CreateIntent records a redemption before any remote call is made.
func (db *DB) CreateIntent(ctx context.Context, intent *models.ProvisionIntent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if intent.State == "" {
		intent.State = models.IntentPending
	}
	now := time.Now().UTC()
	intent.CreatedAt, intent.UpdatedAt = now, now

	_, err := db.conn.ExecContext(ctx, `INSERT INTO provision_intents (`+intentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intent.ID, intent.ServerID, intent.InvitationCode, intent.Username,
		nullString(intent.Email), nullString(intent.RemoteID), string(intent.State), nullString(intent.Error),
		intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create provision intent: %w", err)
	}
	return nil
}

// GetIntent retrieves an intent by ID.
func (db *DB) GetIntent(ctx context.Context, id string) (*models.ProvisionIntent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	intent, err := scanIntent(db.conn.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM provision_intents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provision intent: %w", err)
	}
	return intent, nil
}

// UpdateIntentState moves an intent to state. Empty remoteID and errMsg
// leave the stored values unchanged.
func (db *DB) UpdateIntentState(ctx context.Context, id string, state models.IntentState, remoteID, errMsg string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return updateIntentState(ctx, db.conn, id, state, remoteID, errMsg)
}

func updateIntentState(ctx context.Context, q execQuerier, id string, state models.IntentState, remoteID, errMsg string) error {
	result, err := q.ExecContext(ctx, `UPDATE provision_intents SET
		state = ?, remote_id = COALESCE(CAST(? AS VARCHAR), remote_id),
		error = COALESCE(CAST(? AS VARCHAR), error), updated_at = ?
	WHERE id = ?`,
		string(state), nullString(remoteID), nullString(errMsg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update provision intent: %w", err)
	}
	return requireAffected(result, ErrIntentNotFound)
}

// ListOpenIntents returns pending and remote_created intents of a server,
// oldest first.
func (db *DB) ListOpenIntents(ctx context.Context, serverID string) ([]models.ProvisionIntent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	sqlStr, args, err := db.builder.Select(intentColumns).From("provision_intents").
		Where(sq.Eq{
			"server_id": serverID,
			"state":     []string{string(models.IntentPending), string(models.IntentRemoteCreated)},
		}).
		OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list provision intents: %w", err)
	}
	defer rows.Close()

	intents := make([]models.ProvisionIntent, 0)
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provision intent: %w", err)
		}
		intents = append(intents, *intent)
	}
	return intents, rows.Err()
}

func scanIntent(row rowScanner) (*models.ProvisionIntent, error) {
	var in models.ProvisionIntent
	var email, remoteID, errMsg sql.NullString
	var state string
	err := row.Scan(&in.ID, &in.ServerID, &in.InvitationCode, &in.Username,
		&email, &remoteID, &state, &errMsg, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.Email = email.String
	in.RemoteID = remoteID.String
	in.Error = errMsg.String
	in.State = models.IntentState(state)
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	return &in, nil
}
