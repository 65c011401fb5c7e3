// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/tomtom215/wizarr/internal/models"
)

const invitationColumns = `id, code, server_id, used, used_at, used_by, unlimited, expires, duration_days,
	allow_downloads, allow_live_tv, allow_mobile_uploads, plex_home, created_at`

const (
	inviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteCodeLength   = 10
)

// GenerateInviteCode returns a random code without ambiguous characters.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf), nil
}

// CreateInvitation stores an invitation and links its libraries by local ID.
// A blank code is generated.
func (db *DB) CreateInvitation(ctx context.Context, inv *models.Invitation) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "invitations", start, err) }()

	if inv.Code == "" {
		if inv.Code, err = GenerateInviteCode(); err != nil {
			return err
		}
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	var duration sql.NullInt32
	if inv.DurationDays != nil {
		duration = sql.NullInt32{Int32: int32(*inv.DurationDays), Valid: true} //nolint:gosec // days fit in int32
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `INSERT INTO invitations (
			code, server_id, used, unlimited, expires, duration_days,
			allow_downloads, allow_live_tv, allow_mobile_uploads, plex_home, created_at
		) VALUES (?, ?, false, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			inv.Code, inv.ServerID, inv.Unlimited, nullTime(inv.Expires), duration,
			nullBool(inv.AllowDownloads), nullBool(inv.AllowLiveTV), nullBool(inv.AllowMobileUploads),
			inv.PlexHome, inv.CreatedAt.UTC(),
		).Scan(&inv.ID)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrInvitationExists
			}
			return fmt.Errorf("failed to create invitation: %w", err)
		}

		for _, lib := range inv.Libraries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO invitation_libraries (invitation_id, library_id) VALUES (?, ?)`,
				inv.ID, lib.ID); err != nil {
				return fmt.Errorf("failed to link library %d: %w", lib.ID, err)
			}
		}
		return nil
	})
}

// GetInvitationByCode loads an invitation and its libraries.
func (db *DB) GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	inv, err := scanInvitation(db.conn.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if inv.Libraries, err = db.invitationLibraries(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (db *DB) invitationLibraries(ctx context.Context, invitationID int64) ([]models.Library, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT l.id, l.external_id, l.name, l.server_id, l.enabled
		FROM libraries l JOIN invitation_libraries il ON il.library_id = l.id
		WHERE il.invitation_id = ? ORDER BY l.name, l.external_id`, invitationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invitation libraries: %w", err)
	}
	defer rows.Close()
	return scanLibraries(rows)
}

// ListInvitations returns invitations newest first, optionally for one server.
// Libraries are not loaded.
func (db *DB) ListInvitations(ctx context.Context, serverID string) ([]models.Invitation, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := db.builder.Select(invitationColumns).From("invitations").OrderBy("created_at DESC", "id DESC")
	if serverID != "" {
		query = query.Where(sq.Eq{"server_id": serverID})
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]models.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}

// DeleteInvitation removes an invitation and its library links.
func (db *DB) DeleteInvitation(ctx context.Context, code string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM invitation_libraries
			WHERE invitation_id IN (SELECT id FROM invitations WHERE code = ?)`, code); err != nil {
			return fmt.Errorf("failed to unlink invitation libraries: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE code = ?`, code)
		if err != nil {
			return fmt.Errorf("failed to delete invitation: %w", err)
		}
		return requireAffected(result, ErrInvitationNotFound)
	})
}

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	var inv models.Invitation
	var usedAt, expires sql.NullTime
	var usedBy sql.NullInt64
	var duration sql.NullInt32
	var downloads, liveTV, uploads sql.NullBool
	err := row.Scan(
		&inv.ID, &inv.Code, &inv.ServerID, &inv.Used, &usedAt, &usedBy, &inv.Unlimited, &expires, &duration,
		&downloads, &liveTV, &uploads, &inv.PlexHome, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.UsedAt = timePtr(usedAt)
	inv.Expires = timePtr(expires)
	if usedBy.Valid {
		id := usedBy.Int64
		inv.UsedBy = &id
	}
	if duration.Valid {
		days := int(duration.Int32)
		inv.DurationDays = &days
	}
	inv.AllowDownloads = boolPtr(downloads)
	inv.AllowLiveTV = boolPtr(liveTV)
	inv.AllowMobileUploads = boolPtr(uploads)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.Libraries = []models.Library{}
	return &inv, nil
}
