// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/models"
)

// legacyStore is what seeding writes to.
type legacyStore interface {
	SetSetting(ctx context.Context, key, value string) error
	ListMediaServers(ctx context.Context, enabledOnly bool) ([]models.MediaServer, error)
	CreateMediaServer(ctx context.Context, server *models.MediaServer) error
}

type encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// seedLegacyServer writes the single-server environment into the settings
// table and registers it as a media server when no server with the same
// type and URL exists yet. Running it on every start is safe.
func seedLegacyServer(ctx context.Context, store legacyStore, enc encrypter, legacy config.LegacyServerConfig) error {
	serverURL := strings.TrimRight(legacy.URL, "/")
	serverType := strings.ToLower(legacy.ServerType)

	sealed := ""
	if legacy.APIKey != "" {
		var err error
		if sealed, err = enc.Encrypt(legacy.APIKey); err != nil {
			return fmt.Errorf("encrypt legacy api key: %w", err)
		}
	}

	settings := []struct{ key, value string }{
		{models.SettingServerType, serverType},
		{models.SettingServerURL, serverURL},
		{models.SettingAPIKey, sealed},
	}
	for _, s := range settings {
		if err := store.SetSetting(ctx, s.key, s.value); err != nil {
			return fmt.Errorf("store setting %s: %w", s.key, err)
		}
	}

	servers, err := store.ListMediaServers(ctx, false)
	if err != nil {
		return fmt.Errorf("list media servers: %w", err)
	}
	for _, s := range servers {
		if s.ServerType == serverType && strings.TrimRight(s.URL, "/") == serverURL {
			return nil
		}
	}

	name := legacy.Name
	if name == "" {
		name = "Default"
	}
	server := &models.MediaServer{
		Name:            name,
		ServerType:      serverType,
		URL:             serverURL,
		Username:        legacy.Username,
		APIKeyEncrypted: sealed,
		Enabled:         true,
	}
	if err := store.CreateMediaServer(ctx, server); err != nil {
		return fmt.Errorf("create legacy media server: %w", err)
	}
	logging.Info().Str("server_id", server.ID).Str("server_type", serverType).
		Msg("Registered media server from legacy settings")
	return nil
}
