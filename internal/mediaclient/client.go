// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package mediaclient implements one adapter per supported media server behind
a single MediaClient contract.

Adapters:
  - plex: plex.tv friends/home users plus the Plex Media Server API
  - jellyfin, emby: the shared emby-like /Users + /Policy API
  - audiobookshelf, komga, kavita, romm, drop: vendor REST APIs
  - navidrome: the Subsonic API with salted token auth

Adapters register themselves from init() and are built with New or, for a
persisted server, through Resolver.ClientFor, which also wraps the adapter in
a CircuitBreakerClient. All adapters share restClient for authentication
hooks, rate limiting, HTTP 429 retries and vendor error extraction.

Adapters never touch the local database. Roster reconciliation lives in
internal/sync and works purely from ListRemoteUsers and KeyField.
*/
package mediaclient

import (
	"context"
	"errors"

	"github.com/tomtom215/wizarr/internal/media"
)

// ErrUnsupported is returned for operations a vendor has no API for.
var ErrUnsupported = errors.New("operation not supported by this media server")

// MediaClient is the contract every media server adapter implements.
type MediaClient interface {
	// ServerType returns the registry tag, e.g. "jellyfin".
	ServerType() string
	// KeyField names the remote attribute that identifies a user. Local
	// User.Token values hold the same attribute.
	KeyField() media.KeyField

	// Libraries returns external_id -> name for the configured server.
	Libraries(ctx context.Context) (map[string]string, error)
	// ScanLibraries returns name -> external_id. Non-empty url and token
	// replace the configured credentials, for testing a server before it
	// is saved.
	ScanLibraries(ctx context.Context, url, token string) (map[string]string, error)

	// CreateUser creates the remote account and returns the value stored in
	// User.Token for it.
	CreateUser(ctx context.Context, u NewUser) (string, error)
	// GrantAccess applies library access and permission flags.
	GrantAccess(ctx context.Context, id string, grant media.Grant) error
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
	DeleteUser(ctx context.Context, id string) error
	// EnableUser and DisableUser report false when the vendor has no
	// applicable operation.
	EnableUser(ctx context.Context, id string) (bool, error)
	DisableUser(ctx context.Context, id string) (bool, error)

	// GetUser returns the raw vendor record.
	GetUser(ctx context.Context, id string) (map[string]any, error)
	GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error)
	// ListRemoteUsers returns the full remote roster, following pagination.
	ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error)

	NowPlaying(ctx context.Context) ([]media.Session, error)
	// Statistics includes the remote user count.
	Statistics(ctx context.Context) (media.Statistics, error)
	// ReadonlyStatistics never fetches the roster and has no side effects.
	ReadonlyStatistics(ctx context.Context) (media.Statistics, error)
}

// NewUser is the account requested by an invitation redemption.
//
// Grant is consulted at creation time by vendors that attach access to the
// invite itself (Plex shares, Kavita invites, Komga shared libraries).
type NewUser struct {
	Username string
	Email    string
	Password string
	// PlexHome invites the user into the owner's Plex Home instead of
	// sharing as a friend.
	PlexHome bool
	Grant    media.Grant
}

// UserPatch is a partial update. Nil fields are left unchanged.
type UserPatch struct {
	Username    *string
	Password    *string
	Email       *string
	Permissions *media.StandardizedPermissions
	Access      *media.LibraryAccess
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Username == nil && p.Password == nil && p.Email == nil && p.Permissions == nil && p.Access == nil
}

// invertLibraries turns external_id -> name into name -> external_id.
func invertLibraries(libs map[string]string) map[string]string {
	out := make(map[string]string, len(libs))
	for id, name := range libs {
		out[name] = id
	}
	return out
}

// fullStatistics adds the roster count to a readonly snapshot.
func fullStatistics(ctx context.Context, c MediaClient) (media.Statistics, error) {
	stats, err := c.ReadonlyStatistics(ctx)
	if err != nil {
		return stats, err
	}
	users, err := c.ListRemoteUsers(ctx)
	if err != nil {
		stats.AddError("users", err)
		return stats, nil
	}
	stats.ApplyUsers(users)
	return stats, nil
}
