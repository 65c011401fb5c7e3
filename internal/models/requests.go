// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package models

import "time"

// JoinRequest is the public join form.
type JoinRequest struct {
	Code            string `json:"code" validate:"required,max=64"`
	Username        string `json:"username" validate:"required,max=64,username"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// PlexJoinRequest is submitted after the Plex OAuth hand-off has resolved the
// invitee's plex.tv e-mail.
type PlexJoinRequest struct {
	Code  string `json:"code" validate:"required,max=64"`
	Email string `json:"email" validate:"required,email"`
}

// ScanLibrariesRequest tests credentials before a server is saved.
type ScanLibrariesRequest struct {
	ServerType string `json:"server_type" validate:"required,oneof=plex jellyfin emby audiobookshelf komga kavita romm navidrome drop"`
	URL        string `json:"url" validate:"required,url"`
	APIKey     string `json:"api_key" validate:"required"`
	Username   string `json:"username"`
}

// JoinResponse is the (success, message) pair shown to the invitee.
type JoinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  int64  `json:"user_id,omitempty"`
}

// ToggleResponse reports whether an enable/disable was applied by the vendor.
type ToggleResponse struct {
	Applied bool `json:"applied"`
}

// CreateServerRequest registers a media server. The API key is sealed
// before it is stored.
type CreateServerRequest struct {
	Name                      string `json:"name" validate:"required,max=100"`
	ServerType                string `json:"server_type" validate:"required,oneof=plex jellyfin emby audiobookshelf komga kavita romm navidrome drop"`
	URL                       string `json:"url" validate:"required,url"`
	ExternalURL               string `json:"external_url" validate:"omitempty,url"`
	APIKey                    string `json:"api_key" validate:"required"`
	Username                  string `json:"username"`
	DefaultAllowDownloads     bool   `json:"default_allow_downloads"`
	DefaultAllowLiveTV        bool   `json:"default_allow_live_tv"`
	DefaultAllowMobileUploads bool   `json:"default_allow_mobile_uploads"`
}

// CreateInvitationRequest creates an invite code. An empty Code is
// generated; empty LibraryIDs grants every library.
type CreateInvitationRequest struct {
	Code               string     `json:"code" validate:"omitempty,min=4,max=64,alphanum"`
	ServerID           string     `json:"server_id" validate:"required"`
	Unlimited          bool       `json:"unlimited"`
	Expires            *time.Time `json:"expires"`
	DurationDays       *int       `json:"duration_days" validate:"omitempty,min=1,max=3650"`
	AllowDownloads     *bool      `json:"allow_downloads"`
	AllowLiveTV        *bool      `json:"allow_live_tv"`
	AllowMobileUploads *bool      `json:"allow_mobile_uploads"`
	PlexHome           bool       `json:"plex_home"`
	LibraryIDs         []int64    `json:"library_ids"`
}

// SyncResponse summarizes one reconciliation.
type SyncResponse struct {
	Users    []User `json:"users"`
	Inserted int    `json:"inserted"`
	Deleted  int    `json:"deleted"`
	Updated  int    `json:"updated"`
	Adopted  int    `json:"adopted"`
}

// SweepResponse lists users removed by an expiry sweep.
type SweepResponse struct {
	Deleted []int64 `json:"deleted"`
}
