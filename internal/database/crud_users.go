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
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/tomtom215/wizarr/internal/models"
)

const userColumns = `id, token, username, email, code, server_id, expires,
	is_admin, is_disabled, allow_downloads, allow_live_tv, allow_camera_upload,
	accessible_libraries, created_at`

// execQuerier is implemented by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserFilter narrows ListUsers. Zero fields are ignored.
type UserFilter struct {
	ServerID      string
	Code          string
	Username      string // case-insensitive
	Email         string // case-insensitive
	ExpiredBefore *time.Time
	Limit         uint64
}

// CreateUser inserts a local user and sets its ID.
func (db *DB) CreateUser(ctx context.Context, user *models.User) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("insert", "users", start, err) }()

	return insertUser(ctx, db.conn, user)
}

func insertUser(ctx context.Context, q execQuerier, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	libs, err := encodeLibraryNames(user.AccessibleLibraries)
	if err != nil {
		return fmt.Errorf("failed to encode libraries: %w", err)
	}

	err = q.QueryRowContext(ctx, `INSERT INTO users (
		token, username, email, code, server_id, expires,
		is_admin, is_disabled, allow_downloads, allow_live_tv, allow_camera_upload,
		accessible_libraries, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		user.Token, user.Username, nullString(user.Email), user.Code, user.ServerID, nullTime(user.Expires),
		user.IsAdmin, user.IsDisabled, user.AllowDownloads, user.AllowLiveTV, user.AllowCameraUpload,
		libs, user.CreatedAt.UTC(),
	).Scan(&user.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by local ID.
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return getUserRow(row)
}

// GetUserByToken retrieves a user by its vendor-native key on a server.
func (db *DB) GetUserByToken(ctx context.Context, serverID, token string) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE server_id = ? AND token = ?`, serverID, token)
	return getUserRow(row)
}

func getUserRow(row *sql.Row) (*models.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns users matching the filter ordered by ID.
func (db *DB) ListUsers(ctx context.Context, filter UserFilter) ([]models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.listUsers(ctx, db.conn, filter)
}

func (db *DB) listUsers(ctx context.Context, q execQuerier, filter UserFilter) (users []models.User, err error) {
	start := time.Now()
	defer func() { observe("select", "users", start, err) }()

	query := db.builder.Select(userColumns).From("users").OrderBy("id")
	if filter.ServerID != "" {
		query = query.Where(sq.Eq{"server_id": filter.ServerID})
	}
	if filter.Code != "" {
		query = query.Where(sq.Eq{"code": filter.Code})
	}
	if filter.Username != "" {
		query = query.Where(sq.Eq{"lower(username)": strings.ToLower(filter.Username)})
	}
	if filter.Email != "" {
		query = query.Where(sq.Eq{"lower(email)": strings.ToLower(filter.Email)})
	}
	if filter.ExpiredBefore != nil {
		query = query.Where(sq.And{
			sq.NotEq{"expires": nil},
			sq.Lt{"expires": filter.ExpiredBefore.UTC()},
		})
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users = make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// FindUserByUsernameOrEmail returns the first user on the server whose
// username or e-mail matches case-insensitively. An empty email only
// matches on username.
func (db *DB) FindUserByUsernameOrEmail(ctx context.Context, serverID, username, email string) (*models.User, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	match := sq.Or{sq.Eq{"lower(username)": strings.ToLower(username)}}
	if email != "" {
		match = append(match, sq.Eq{"lower(email)": strings.ToLower(email)})
	}
	sqlStr, args, err := db.builder.Select(userColumns).From("users").
		Where(sq.Eq{"server_id": serverID}).Where(match).
		OrderBy("id").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return getUserRow(db.conn.QueryRowContext(ctx, sqlStr, args...))
}

// ExpiredUsers returns users whose membership expired strictly before now.
func (db *DB) ExpiredUsers(ctx context.Context, now time.Time) ([]models.User, error) {
	return db.ListUsers(ctx, UserFilter{ExpiredBefore: &now})
}

// DeleteUser removes a local user.
func (db *DB) DeleteUser(ctx context.Context, id int64) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	start := time.Now()
	defer func() { observe("delete", "users", start, err) }()

	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, ErrUserNotFound)
}

// SetUserDisabled records the remote enabled state locally.
func (db *DB) SetUserDisabled(ctx context.Context, id int64, disabled bool) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx, `UPDATE users SET is_disabled = ? WHERE id = ?`, disabled, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(result, ErrUserNotFound)
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var email, libs sql.NullString
	var expires sql.NullTime
	err := row.Scan(
		&u.ID, &u.Token, &u.Username, &email, &u.Code, &u.ServerID, &expires,
		&u.IsAdmin, &u.IsDisabled, &u.AllowDownloads, &u.AllowLiveTV, &u.AllowCameraUpload,
		&libs, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Expires = timePtr(expires)
	u.AccessibleLibraries = decodeLibraryNames(libs)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
