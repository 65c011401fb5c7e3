// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package models

import "time"

// SyncedUserCode marks users discovered by reconciliation rather than created
// through an invitation.
const SyncedUserCode = "empty"

// User is the local record of a remote media server account.
//
// Token holds the vendor identifier used to reach the account again: the
// native id for most servers, the username for Navidrome, the e-mail for Plex.
// AccessibleLibraries is nil for full access and a (possibly empty) list of
// library names otherwise.
type User struct {
	ID                  int64      `json:"id"`
	Token               string     `json:"token"`
	Username            string     `json:"username"`
	Email               string     `json:"email,omitempty"`
	Code                string     `json:"code"`
	ServerID            string     `json:"server_id"`
	Expires             *time.Time `json:"expires,omitempty"`
	IsAdmin             bool       `json:"is_admin"`
	IsDisabled          bool       `json:"is_disabled"`
	AllowDownloads      bool       `json:"allow_downloads"`
	AllowLiveTV         bool       `json:"allow_live_tv"`
	AllowCameraUpload   bool       `json:"allow_camera_upload"`
	AccessibleLibraries []string   `json:"accessible_libraries"`
	CreatedAt           time.Time  `json:"created_at"`
}

// HasFullAccess reports whether the user is unrestricted.
func (u *User) HasFullAccess() bool {
	return u.AccessibleLibraries == nil
}

// IsExpired reports whether the membership ended before now.
func (u *User) IsExpired(now time.Time) bool {
	return u.Expires != nil && u.Expires.Before(now)
}

// UserMetadata is the normalized per-user state written by the second
// reconciliation commit.
type UserMetadata struct {
	ID                  int64
	IsAdmin             bool
	IsDisabled          bool
	AllowDownloads      bool
	AllowLiveTV         bool
	AllowCameraUpload   bool
	AccessibleLibraries []string
	Email               string
}

// Metadata extracts the columns owned by reconciliation.
func (u *User) Metadata() UserMetadata {
	return UserMetadata{
		ID:                  u.ID,
		IsAdmin:             u.IsAdmin,
		IsDisabled:          u.IsDisabled,
		AllowDownloads:      u.AllowDownloads,
		AllowLiveTV:         u.AllowLiveTV,
		AllowCameraUpload:   u.AllowCameraUpload,
		AccessibleLibraries: u.AccessibleLibraries,
		Email:               u.Email,
	}
}
