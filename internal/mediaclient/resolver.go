// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/wizarr/internal/cache"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/models"
)

// ErrNoLegacyServer is returned when no server id is given and the legacy
// single-server settings are incomplete.
var ErrNoLegacyServer = errors.New("no media server configured")

// ServerStore loads media server definitions and legacy settings.
type ServerStore interface {
	GetMediaServer(ctx context.Context, id string) (*models.MediaServer, error)
	GetSetting(ctx context.Context, key string) (string, error)
}

// Decrypter opens stored API keys.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Resolver builds breaker-wrapped clients for persisted servers. Clients are
// cached per server and rebuilt when the stored URL or key changes, so
// breaker state survives across requests.
type Resolver struct {
	store     ServerStore
	decrypter Decrypter
	deps      Deps
	clientID  string
	product   string

	mu      sync.Mutex
	clients map[string]resolvedClient
}

type resolvedClient struct {
	fingerprint string
	client      *CircuitBreakerClient
}

// NewResolver wires the store, key decrypter and shared dependencies.
func NewResolver(store ServerStore, decrypter Decrypter, deps Deps, clientID, product string) *Resolver {
	return &Resolver{
		store:     store,
		decrypter: decrypter,
		deps:      deps.withDefaults(),
		clientID:  clientID,
		product:   product,
		clients:   map[string]resolvedClient{},
	}
}

// ClientFor returns the client for serverID. An empty id selects the legacy
// server from the settings table.
func (r *Resolver) ClientFor(ctx context.Context, serverID string) (MediaClient, error) {
	cfg, err := r.configFor(ctx, serverID)
	if err != nil {
		return nil, err
	}

	fingerprint := cfg.ServerType + "|" + cfg.URL + "|" + cfg.Username + "|" + cache.TokenKey(cfg.URL, cfg.Token)
	key := serverID
	if key == "" {
		key = "legacy"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rc, ok := r.clients[key]; ok && rc.fingerprint == fingerprint {
		return rc.client, nil
	}

	client, err := New(cfg, r.deps)
	if err != nil {
		return nil, err
	}
	wrapped := NewCircuitBreakerClient(client, cfg.ServerType+"-"+key)
	r.clients[key] = resolvedClient{fingerprint: fingerprint, client: wrapped}
	logging.Ctx(ctx).Debug().Str("server_id", key).Str("server_type", cfg.ServerType).Msg("Media client created")
	return wrapped, nil
}

// Invalidate drops the cached client for serverID.
func (r *Resolver) Invalidate(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if serverID == "" {
		serverID = "legacy"
	}
	delete(r.clients, serverID)
}

func (r *Resolver) configFor(ctx context.Context, serverID string) (Config, error) {
	if serverID == "" {
		return r.legacyConfig(ctx)
	}
	srv, err := r.store.GetMediaServer(ctx, serverID)
	if err != nil {
		return Config{}, fmt.Errorf("load media server %s: %w", serverID, err)
	}
	token, err := r.open(srv.APIKeyEncrypted)
	if err != nil {
		return Config{}, fmt.Errorf("media server %s: %w", serverID, err)
	}
	return Config{
		ServerID:    srv.ID,
		ServerType:  srv.ServerType,
		URL:         srv.URL,
		Token:       token,
		Username:    srv.Username,
		ClientID:    r.clientID,
		ProductName: r.product,
	}, nil
}

func (r *Resolver) legacyConfig(ctx context.Context) (Config, error) {
	serverType, err := r.store.GetSetting(ctx, models.SettingServerType)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrNoLegacyServer, err)
	}
	serverURL, err := r.store.GetSetting(ctx, models.SettingServerURL)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrNoLegacyServer, err)
	}
	sealed, err := r.store.GetSetting(ctx, models.SettingAPIKey)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrNoLegacyServer, err)
	}
	if serverType == "" || serverURL == "" {
		return Config{}, ErrNoLegacyServer
	}
	token, err := r.open(sealed)
	if err != nil {
		return Config{}, fmt.Errorf("legacy server: %w", err)
	}
	return Config{
		ServerType:  serverType,
		URL:         serverURL,
		Token:       token,
		ClientID:    r.clientID,
		ProductName: r.product,
	}, nil
}

func (r *Resolver) open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if r.decrypter == nil {
		return sealed, nil
	}
	token, err := r.decrypter.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt api key: %w", err)
	}
	return token, nil
}
