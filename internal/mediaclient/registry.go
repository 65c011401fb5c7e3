// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/wizarr/internal/cache"
)

// ErrUnknownServerType is returned by New for tags nothing registered.
var ErrUnknownServerType = errors.New("unknown media server type")

// Config identifies one media server.
type Config struct {
	ServerID   string
	ServerType string
	URL        string
	// Token is the API key, or for Navidrome the admin password.
	Token string
	// Username is the admin account for username/password vendors.
	Username string
	// ClientID is sent as X-Plex-Client-Identifier and as the Subsonic
	// client name.
	ClientID    string
	ProductName string
}

// Deps are the process-wide collaborators shared by adapters.
type Deps struct {
	HTTPClient *http.Client
	// Limiter throttles outbound calls across all adapters. Nil disables it.
	Limiter      *rate.Limiter
	KavitaTokens *cache.TokenCache
	PlexCache    *cache.TTLCache[any]
}

// withDefaults fills unset dependencies so adapters never nil-check.
func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if d.KavitaTokens == nil {
		d.KavitaTokens = cache.NewTokenCache(time.Hour, 30*time.Second)
	}
	if d.PlexCache == nil {
		d.PlexCache = cache.NewTTLCache[any](256, time.Minute)
	}
	return d
}

// Factory builds an adapter.
type Factory func(cfg Config, deps Deps) (MediaClient, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available under serverType. Registering the same
// tag twice panics.
func Register(serverType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := strings.ToLower(serverType)
	if _, dup := registry[key]; dup {
		panic("mediaclient: duplicate registration for " + key)
	}
	registry[key] = f
}

// Types lists the registered server types in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the adapter registered for cfg.ServerType.
func New(cfg Config, deps Deps) (MediaClient, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(cfg.ServerType)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServerType, cfg.ServerType)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s: server URL is required", cfg.ServerType)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "wizarr"
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "Wizarr"
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return f(cfg, deps.withDefaults())
}
