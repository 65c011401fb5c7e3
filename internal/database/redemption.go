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

	"github.com/tomtom215/wizarr/internal/models"
)

// CompleteRedemption persists the outcome of a successful remote
// provisioning: it inserts the user, marks the invitation used and closes
// the intent, all in one transaction.
//
// The invitation is claimed with a conditional update. When another
// redemption consumed a single-use code first, no row matches, the
// transaction rolls back and ErrInvitationUsed is returned.
//
// A reconciliation run may adopt the remote account while the redemption
// is still in flight. When the row already exists with the intent's code
// the redemption is finished against that row instead of failing.
func (db *DB) CompleteRedemption(ctx context.Context, user *models.User, intentID string) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("redeem", "invitations", start, err) }()

	err = db.completeRedemption(ctx, user, intentID)
	if errors.Is(err, ErrUserExists) && intentID != "" {
		return db.completeAdopted(ctx, user, intentID)
	}
	return err
}

func (db *DB) completeRedemption(ctx context.Context, user *models.User, intentID string) error {
	now := time.Now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `UPDATE invitations SET used = true, used_at = ?, used_by = ?
			WHERE code = ? AND (used = false OR unlimited = true)`, now, user.ID, user.Code)
		if err != nil {
			return fmt.Errorf("failed to mark invitation used: %w", err)
		}
		if err := requireAffected(result, ErrInvitationUsed); err != nil {
			user.ID = 0
			return err
		}

		if intentID != "" {
			if err := updateIntentState(ctx, tx, intentID, models.IntentCompleted, user.Token, ""); err != nil {
				return err
			}
		}
		return nil
	})
}

// completeAdopted closes intentID against the row reconciliation already
// inserted for it. Any other existing row keeps ErrUserExists.
func (db *DB) completeAdopted(ctx context.Context, user *models.User, intentID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE server_id = ? AND token = ?`, user.ServerID, user.Token))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserExists
			}
			return fmt.Errorf("failed to load existing user: %w", err)
		}
		if existing.Code != user.Code {
			return ErrUserExists
		}

		var state string
		err = tx.QueryRowContext(ctx, `SELECT state FROM provision_intents WHERE id = ?`, intentID).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrIntentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load provision intent: %w", err)
		}
		if models.IntentState(state) != models.IntentAdopted {
			return ErrUserExists
		}

		if err := updateIntentState(ctx, tx, intentID, models.IntentCompleted, user.Token, ""); err != nil {
			return err
		}
		*user = *existing
		return nil
	})
}
