// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package models provides the persistent records shared by the store,
// the provisioning workflows and the HTTP API.
package models

import "time"

// MediaServer is one configured backend. APIKeyEncrypted is sealed with
// config.CredentialEncryptor and never serialized.
type MediaServer struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ServerType  string `json:"server_type"`
	URL         string `json:"url"`
	ExternalURL string `json:"external_url,omitempty"`
	// Username is the admin account used by servers that authenticate with
	// username + password (Navidrome).
	Username        string `json:"username,omitempty"`
	APIKeyEncrypted string `json:"-"`

	// Defaults applied when an invitation leaves a permission flag unset.
	DefaultAllowDownloads     bool `json:"default_allow_downloads"`
	DefaultAllowLiveTV        bool `json:"default_allow_live_tv"`
	DefaultAllowMobileUploads bool `json:"default_allow_mobile_uploads"`

	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// Setting is a key/value row. The legacy single-server keys live here.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Legacy single-server setting keys.
const (
	SettingServerType = "server_type"
	SettingServerURL  = "server_url"
	SettingAPIKey     = "api_key"
)
