// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package media

import (
	"strconv"
	"strings"
)

// StandardizedPermissions is the vendor-neutral permission set. Capabilities
// a vendor does not model are always false.
type StandardizedPermissions struct {
	ServerType        string `json:"server_type"`
	IsAdmin           bool   `json:"is_admin"`
	AllowDownloads    bool   `json:"allow_downloads"`
	AllowLiveTV       bool   `json:"allow_live_tv"`
	AllowCameraUpload bool   `json:"allow_camera_upload"`
}

// ForJellyfin reads a Jellyfin UserPolicy.
func ForJellyfin(policy map[string]any) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:     "jellyfin",
		IsAdmin:        Bool(policy["IsAdministrator"]),
		AllowDownloads: Bool(policy["EnableContentDownloading"]),
		AllowLiveTV:    Bool(policy["EnableLiveTvAccess"]),
	}
}

// ForEmby reads an Emby UserPolicy, which shares Jellyfin's field names.
func ForEmby(policy map[string]any) StandardizedPermissions {
	p := ForJellyfin(policy)
	p.ServerType = "emby"
	return p
}

// ForPlex reads a merged plex.tv friend / shared server record.
func ForPlex(raw map[string]any) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:        "plex",
		IsAdmin:           Bool(raw["admin"]),
		AllowDownloads:    Bool(raw["allowSync"]),
		AllowLiveTV:       Bool(raw["allowChannels"]),
		AllowCameraUpload: Bool(raw["allowCameraUpload"]),
	}
}

// ForAudiobookshelf reads an Audiobookshelf user. root and admin accounts are
// administrators.
func ForAudiobookshelf(raw map[string]any) StandardizedPermissions {
	userType, _ := raw["type"].(string)
	perms, _ := raw["permissions"].(map[string]any)
	return StandardizedPermissions{
		ServerType:     "audiobookshelf",
		IsAdmin:        userType == "root" || userType == "admin",
		AllowDownloads: Bool(perms["download"]),
	}
}

// ForKomga reads Komga roles.
func ForKomga(roles []string) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:     "komga",
		IsAdmin:        hasRole(roles, "ADMIN"),
		AllowDownloads: hasRole(roles, "FILE_DOWNLOAD"),
	}
}

// ForKavita reads Kavita roles.
func ForKavita(roles []string) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:     "kavita",
		IsAdmin:        hasRole(roles, "Admin"),
		AllowDownloads: hasRole(roles, "Download"),
	}
}

// ForNavidrome reads a Subsonic user element.
func ForNavidrome(raw map[string]any) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:     "navidrome",
		IsAdmin:        Bool(raw["adminRole"]),
		AllowDownloads: Bool(raw["downloadRole"]),
	}
}

// ForBasicServer covers vendors with only admin and download concepts.
func ForBasicServer(serverType string, isAdmin, allowDownloads bool) StandardizedPermissions {
	return StandardizedPermissions{
		ServerType:     serverType,
		IsAdmin:        isAdmin,
		AllowDownloads: allowDownloads,
	}
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}

// Bool interprets loosely typed vendor flags: JSON booleans, 0/1 numbers and
// "true"/"1" strings. Anything else is false.
func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}
