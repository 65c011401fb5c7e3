// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package models

// Library is a persisted remote library. ExternalID is the vendor's id
// (Plex section key, Jellyfin folder id, RomM platform id, ...).
type Library struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	ServerID   string `json:"server_id"`
	Enabled    bool   `json:"enabled"`
}
