// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import "github.com/tomtom215/wizarr/internal/media"

// Jellyfin rejects policy updates that omit the provider ids.
const (
	jellyfinAuthProvider          = "Jellyfin.Server.Implementations.Users.DefaultAuthenticationProvider"
	jellyfinPasswordResetProvider = "Jellyfin.Server.Implementations.Users.DefaultPasswordResetProvider"
)

func init() {
	Register("jellyfin", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewJellyfinClient(cfg, deps), nil
	})
}

// JellyfinClient manages Jellyfin users.
type JellyfinClient struct {
	*embyLikeClient
}

// NewJellyfinClient creates a Jellyfin adapter authenticating with an API key.
func NewJellyfinClient(cfg Config, deps Deps) *JellyfinClient {
	return &JellyfinClient{newEmbyLike(cfg, deps.withDefaults(), embyFlavor{
		serverType:         "jellyfin",
		librariesPath:      "/Library/MediaFolders",
		createWithPassword: true,
		policyDefaults: map[string]any{
			"AuthenticationProviderId": jellyfinAuthProvider,
			"PasswordResetProviderId":  jellyfinPasswordResetProvider,
		},
		permissions: media.ForJellyfin,
	})}
}
