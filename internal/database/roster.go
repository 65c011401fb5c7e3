// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/wizarr/internal/models"
)

// RosterChanges is the structural diff between the local users of one
// server and its remote roster.
type RosterChanges struct {
	ServerID string
	Delete   []int64
	Insert   []models.User
	Adopt    []Adoption
}

// Adoption ties an unfinished redemption to the inserted row that takes
// over its remote account.
type Adoption struct {
	IntentID string
	// User indexes Insert.
	User int
}

// Empty reports whether applying the changes would be a no-op.
func (c RosterChanges) Empty() bool {
	return len(c.Delete) == 0 && len(c.Insert) == 0 && len(c.Adopt) == 0
}

// ApplyRosterChanges deletes, inserts and adopts in a single transaction.
// Inserted users get their IDs set.
//
// Adopting an intent claims its invitation for the adopted row, so a
// single-use code cannot be redeemed again. A code that was consumed in
// the meantime is left as it is.
func (db *DB) ApplyRosterChanges(ctx context.Context, changes RosterChanges) (err error) {
	if changes.Empty() {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("roster", "users", start, err) }()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range changes.Delete {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM users WHERE id = ? AND server_id = ?`, id, changes.ServerID); err != nil {
				return fmt.Errorf("failed to delete user %d: %w", id, err)
			}
		}
		for i := range changes.Insert {
			user := &changes.Insert[i]
			user.ServerID = changes.ServerID
			if err := insertUser(ctx, tx, user); err != nil {
				return fmt.Errorf("failed to insert user %s: %w", user.Token, err)
			}
		}
		now := time.Now().UTC()
		for _, a := range changes.Adopt {
			if a.User >= 0 && a.User < len(changes.Insert) {
				user := changes.Insert[a.User]
				if _, err := tx.ExecContext(ctx, `UPDATE invitations SET used = true, used_at = ?, used_by = ?
					WHERE code = ? AND (used = false OR unlimited = true)`, now, user.ID, user.Code); err != nil {
					return fmt.Errorf("failed to claim invitation %s: %w", user.Code, err)
				}
			}
			if err := updateIntentState(ctx, tx, a.IntentID, models.IntentAdopted, "", ""); err != nil {
				return fmt.Errorf("failed to adopt intent %s: %w", a.IntentID, err)
			}
		}
		return nil
	})
}

// UpdateUserMetadata writes the normalized permission and library columns
// for every row in one transaction.
func (db *DB) UpdateUserMetadata(ctx context.Context, updates []models.UserMetadata) (err error) {
	if len(updates) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("update", "users", start, err) }()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE users SET
			is_admin = ?, is_disabled = ?, allow_downloads = ?, allow_live_tv = ?, allow_camera_upload = ?,
			accessible_libraries = ?, email = ?
		WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare metadata update: %w", err)
		}
		defer closeQuietly(stmt)

		for _, m := range updates {
			libs, err := encodeLibraryNames(m.AccessibleLibraries)
			if err != nil {
				return fmt.Errorf("failed to encode libraries for user %d: %w", m.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				m.IsAdmin, m.IsDisabled, m.AllowDownloads, m.AllowLiveTV, m.AllowCameraUpload,
				libs, nullString(m.Email), m.ID); err != nil {
				return fmt.Errorf("failed to update user %d: %w", m.ID, err)
			}
		}
		return nil
	})
}
