// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package requests hands newly provisioned accounts to request managers
// (Overseerr, Jellyseerr, Ombi) so invitees can request media right away.
//
// Hand-offs are best effort: a failing request manager is logged and never
// affects the redemption that triggered it.
package requests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/metrics"
)

// Integration imports one provisioned account into a request manager.
type Integration interface {
	Name() string
	UserProvisioned(ctx context.Context, serverType, remoteUserID string) error
}

// ErrSkipped is returned when the integration has nothing to do for the
// server type.
var ErrSkipped = errors.New("request manager does not import this server type")

const defaultTimeout = 15 * time.Second

// httpPoster is the shared transport for both request managers.
type httpPoster struct {
	name    string
	baseURL string
	header  string
	apiKey  string
	client  *http.Client
}

func newPoster(name, baseURL, header, apiKey string, timeout time.Duration) httpPoster {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return httpPoster{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		header:  header,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p httpPoster) post(ctx context.Context, path string, payload any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal payload: %w", p.name, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(p.header, p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s: %s returned %d: %s", p.name, path, resp.StatusCode, bytes.TrimSpace(detail))
}

// Seerr covers Overseerr and its Jellyseerr fork, which share the import API.
type Seerr struct {
	httpPoster
}

// NewSeerr creates an Overseerr or Jellyseerr integration.
func NewSeerr(name, baseURL, apiKey string, timeout time.Duration) *Seerr {
	return &Seerr{newPoster(name, baseURL, "X-Api-Key", apiKey, timeout)}
}

// Name implements Integration.
func (s *Seerr) Name() string { return s.name }

// UserProvisioned imports Jellyfin and Emby accounts by id. Plex users are
// picked up by the request manager's own plex.tv sync.
func (s *Seerr) UserProvisioned(ctx context.Context, serverType, remoteUserID string) error {
	switch serverType {
	case "jellyfin", "emby":
		return s.post(ctx, "/api/v1/user/import-from-jellyfin", map[string]any{
			"jellyfinUserIds": []string{remoteUserID},
		})
	default:
		return ErrSkipped
	}
}

// Ombi triggers Ombi's user importer job for the server type.
type Ombi struct {
	httpPoster
}

// NewOmbi creates an Ombi integration.
func NewOmbi(baseURL, apiKey string, timeout time.Duration) *Ombi {
	return &Ombi{newPoster("ombi", baseURL, "ApiKey", apiKey, timeout)}
}

// Name implements Integration.
func (o *Ombi) Name() string { return o.name }

// UserProvisioned runs the importer; Ombi imports every new account, so
// the remote id is not sent.
func (o *Ombi) UserProvisioned(ctx context.Context, serverType, _ string) error {
	switch serverType {
	case "jellyfin", "emby", "plex":
		return o.post(ctx, "/api/v1/Job/"+serverType+"userimporter", nil)
	default:
		return ErrSkipped
	}
}

// New builds an integration from config.
func New(cfg config.RequestIntegrationConfig, timeout time.Duration) (Integration, error) {
	switch strings.ToLower(cfg.Type) {
	case "overseerr":
		return NewSeerr("overseerr", cfg.URL, cfg.APIKey, timeout), nil
	case "jellyseerr":
		return NewSeerr("jellyseerr", cfg.URL, cfg.APIKey, timeout), nil
	case "ombi":
		return NewOmbi(cfg.URL, cfg.APIKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown request manager type %q", cfg.Type)
	}
}

// Dispatcher fans a provisioned account out to the integrations
// configured for its server.
type Dispatcher struct {
	byServer map[string][]Integration
}

// NewDispatcher groups integrations by server id.
func NewDispatcher(cfgs []config.RequestIntegrationConfig, timeout time.Duration) (*Dispatcher, error) {
	d := &Dispatcher{byServer: make(map[string][]Integration)}
	for _, c := range cfgs {
		integration, err := New(c, timeout)
		if err != nil {
			return nil, err
		}
		d.Add(c.ServerID, integration)
	}
	return d, nil
}

// Add registers an integration for a server.
func (d *Dispatcher) Add(serverID string, integration Integration) {
	d.byServer[serverID] = append(d.byServer[serverID], integration)
}

// Len returns the number of configured integrations.
func (d *Dispatcher) Len() int {
	n := 0
	for _, list := range d.byServer {
		n += len(list)
	}
	return n
}

// UserProvisioned calls every integration for serverID and logs failures.
func (d *Dispatcher) UserProvisioned(ctx context.Context, serverID, serverType, remoteUserID string) {
	for _, integration := range d.byServer[serverID] {
		err := integration.UserProvisioned(ctx, serverType, remoteUserID)
		logger := logging.Ctx(ctx).With().
			Str("integration", integration.Name()).
			Str("server_id", serverID).
			Str("remote_id", remoteUserID).
			Logger()
		switch {
		case err == nil:
			metrics.RequestHandoffs.WithLabelValues(integration.Name(), "success").Inc()
			logger.Info().Msg("Handed user to request manager")
		case errors.Is(err, ErrSkipped):
			metrics.RequestHandoffs.WithLabelValues(integration.Name(), "skipped").Inc()
			logger.Debug().Str("server_type", serverType).Msg("Request manager skipped server type")
		default:
			metrics.RequestHandoffs.WithLabelValues(integration.Name(), "failure").Inc()
			logger.Warn().Err(err).Msg("Request manager hand-off failed")
		}
	}
}
