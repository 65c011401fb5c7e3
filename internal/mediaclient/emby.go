// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import "github.com/tomtom215/wizarr/internal/media"

func init() {
	Register("emby", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewEmbyClient(cfg, deps), nil
	})
}

// EmbyClient manages Emby users. Emby ignores Password on /Users/New, so the
// password is set with a second call.
type EmbyClient struct {
	*embyLikeClient
}

// NewEmbyClient creates an Emby adapter authenticating with an API key.
func NewEmbyClient(cfg Config, deps Deps) *EmbyClient {
	return &EmbyClient{newEmbyLike(cfg, deps.withDefaults(), embyFlavor{
		serverType:    "emby",
		librariesPath: "/Library/SelectableMediaFolders",
		permissions:   media.ForEmby,
	})}
}
