// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package config loads Wizarr configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig               `koanf:"server"`
	Database DatabaseConfig             `koanf:"database"`
	Logging  LoggingConfig              `koanf:"logging"`
	Security SecurityConfig             `koanf:"security"`
	Media    MediaConfig                `koanf:"media"`
	Sync     SyncConfig                 `koanf:"sync"`
	Notify   NotifyConfig               `koanf:"notify"`
	Requests []RequestIntegrationConfig `koanf:"requests"`
	Legacy   LegacyServerConfig         `koanf:"legacy"`
	Audit    AuditConfig                `koanf:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction reports whether the process runs with production settings.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == EnvProduction
}

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// LoggingConfig mirrors logging.Config for file and env loading.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig covers admin authentication and request throttling.
type SecurityConfig struct {
	// JWTSecret signs admin bearer tokens and seeds the credential encryption key.
	JWTSecret         string        `koanf:"jwt_secret"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	// JoinRateLimitReqs applies to the public join endpoints per window.
	JoinRateLimitReqs int `koanf:"join_rate_limit_requests"`
}

// MediaConfig tunes the outbound media server clients.
type MediaConfig struct {
	HTTPTimeout       time.Duration `koanf:"http_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	// ClientIdentifier is sent as X-Plex-Client-Identifier and as the Subsonic client name.
	ClientIdentifier string        `koanf:"client_identifier"`
	ProductName      string        `koanf:"product_name"`
	KavitaTokenTTL   time.Duration `koanf:"kavita_token_ttl"`
	// KavitaTokenBuffer expires cached tokens early to avoid using one at the edge of expiry.
	KavitaTokenBuffer time.Duration `koanf:"kavita_token_buffer"`
	PlexCacheSize     int           `koanf:"plex_cache_size"`
	PlexCacheTTL      time.Duration `koanf:"plex_cache_ttl"`
}

// SyncConfig controls background reconciliation and the expiry sweep.
type SyncConfig struct {
	Interval time.Duration `koanf:"interval"`
	// ExpiryInterval overrides the environment-derived sweep interval when non-zero.
	ExpiryInterval     time.Duration `koanf:"expiry_interval"`
	ReconcileOnStartup bool          `koanf:"reconcile_on_startup"`
}

// NotifyConfig configures the webhook notifier.
type NotifyConfig struct {
	WebhookURLs    []string          `koanf:"webhook_urls"`
	WebhookHeaders map[string]string `koanf:"webhook_headers"`
	Timeout        time.Duration     `koanf:"timeout"`
}

// RequestIntegrationConfig connects a media server to a request manager.
type RequestIntegrationConfig struct {
	// Type is overseerr, jellyseerr or ombi.
	Type     string `koanf:"type"`
	URL      string `koanf:"url"`
	APIKey   string `koanf:"api_key"`
	ServerID string `koanf:"server_id"`
}

// AuditConfig controls the admin activity trail.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RetentionDays   int           `koanf:"retention_days"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BufferSize      int           `koanf:"buffer_size"`
}

// LegacyServerConfig seeds a single media server from the pre-multi-server
// settings (server_type, server_url, api_key).
type LegacyServerConfig struct {
	ServerType string `koanf:"server_type"`
	URL        string `koanf:"server_url"`
	APIKey     string `koanf:"api_key"`
	Username   string `koanf:"username"`
	Name       string `koanf:"name"`
}

// Configured reports whether legacy seeding is requested.
func (l LegacyServerConfig) Configured() bool {
	return l.ServerType != "" && l.URL != ""
}

// ExpirySweepInterval returns the sweep period: the override when set,
// otherwise 15 minutes in production and 1 minute elsewhere.
func (c *Config) ExpirySweepInterval() time.Duration {
	if c.Sync.ExpiryInterval > 0 {
		return c.Sync.ExpiryInterval
	}
	if c.Server.IsProduction() {
		return 15 * time.Minute
	}
	return time.Minute
}

// Load reads the layered configuration.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
