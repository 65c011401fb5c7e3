// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// knownServerTypes mirrors the registry tags in internal/mediaclient.
var knownServerTypes = map[string]bool{
	"plex": true, "jellyfin": true, "emby": true, "audiobookshelf": true,
	"komga": true, "kavita": true, "romm": true, "navidrome": true, "drop": true,
}

var knownRequestTypes = map[string]bool{
	"overseerr": true, "jellyseerr": true, "ombi": true,
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateRequests(); err != nil {
		return err
	}
	if err := c.validateLegacy(); err != nil {
		return err
	}
	if c.Audit.Enabled && c.Audit.RetentionDays < 1 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must be at least 1, got %d", c.Audit.RetentionDays)
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Server.Environment)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.IsProduction() && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive unless DISABLE_RATE_LIMIT=true")
		}
		if c.Security.RateLimitWindow < time.Second {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
		}
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.HTTPTimeout <= 0 {
		return fmt.Errorf("MEDIA_HTTP_TIMEOUT must be positive")
	}
	if c.Media.KavitaTokenBuffer >= c.Media.KavitaTokenTTL {
		return fmt.Errorf("KAVITA_TOKEN_BUFFER must be shorter than KAVITA_TOKEN_TTL")
	}
	if c.Media.PlexCacheSize < 1 {
		return fmt.Errorf("PLEX_CACHE_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m")
	}
	if c.Sync.ExpiryInterval < 0 {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL cannot be negative")
	}
	return nil
}

func (c *Config) validateNotify() error {
	for _, u := range c.Notify.WebhookURLs {
		if err := validateHTTPURL(u, "NOTIFY_WEBHOOK_URLS", true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRequests() error {
	for i, r := range c.Requests {
		if !knownRequestTypes[strings.ToLower(r.Type)] {
			return fmt.Errorf("requests[%d].type %q is not supported", i, r.Type)
		}
		if r.APIKey == "" {
			return fmt.Errorf("requests[%d].api_key is required", i)
		}
		if err := validateHTTPURL(r.URL, fmt.Sprintf("requests[%d].url", i), false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLegacy() error {
	if c.Legacy.ServerType == "" && c.Legacy.URL == "" {
		return nil
	}
	if !knownServerTypes[c.Legacy.ServerType] {
		return fmt.Errorf("SERVER_TYPE %q is not a supported media server", c.Legacy.ServerType)
	}
	if err := validateHTTPURL(c.Legacy.URL, "SERVER_URL", true); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is invalid", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// validateHTTPURL requires an http(s) scheme and a host. allowPath permits
// servers mounted under a sub-path, e.g. https://example.com/jellyfin.
func validateHTTPURL(rawURL, fieldName string, allowPath bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if !allowPath && u.Path != "" && u.Path != "/" {
		return fmt.Errorf("%s should be base URL only, remove path: %s", fieldName, u.Path)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters", fieldName)
	}
	return nil
}
