// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"time"

	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
)

// Store is the persistence used by this package. *database.DB implements it.
type Store interface {
	ListUsers(ctx context.Context, filter database.UserFilter) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetUserDisabled(ctx context.Context, id int64, disabled bool) error
	ExpiredUsers(ctx context.Context, now time.Time) ([]models.User, error)

	ListLibraries(ctx context.Context, serverID string) ([]models.Library, error)
	ListOpenIntents(ctx context.Context, serverID string) ([]models.ProvisionIntent, error)
	GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error)
	ListMediaServers(ctx context.Context, enabledOnly bool) ([]models.MediaServer, error)

	ApplyRosterChanges(ctx context.Context, changes database.RosterChanges) error
	UpdateUserMetadata(ctx context.Context, updates []models.UserMetadata) error
}

// ClientSource resolves the adapter for a server. *mediaclient.Resolver
// implements it.
type ClientSource interface {
	ClientFor(ctx context.Context, serverID string) (mediaclient.MediaClient, error)
}

var (
	_ Store        = (*database.DB)(nil)
	_ ClientSource = (*mediaclient.Resolver)(nil)
)
