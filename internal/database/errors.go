// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import "errors"

// Sentinel errors returned by the store. Callers match them with errors.Is.
var (
	ErrServerNotFound     = errors.New("media server not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists on this server")
	ErrLibraryNotFound    = errors.New("library not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationExists   = errors.New("invitation code already exists")
	// ErrInvitationUsed is returned when the conditional mark-used update
	// matched no row: another redemption consumed the code first.
	ErrInvitationUsed  = errors.New("invitation has already been used")
	ErrIntentNotFound  = errors.New("provision intent not found")
	ErrSettingNotFound = errors.New("setting not found")
)
