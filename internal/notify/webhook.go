// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier POSTs each event as JSON to a fixed URL.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookNotifier validates rawURL and builds a notifier. A zero timeout
// uses 10 seconds.
func NewWebhookNotifier(rawURL string, headers map[string]string, timeout time.Duration) (*WebhookNotifier, error) {
	if err := ValidateWebhookURL(rawURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:     rawURL,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// ValidateWebhookURL accepts absolute http and https URLs.
func ValidateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	return nil
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Wizarr-Webhook/1.0")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
}

// FromURLs builds a Multi of webhook notifiers, or Nop when urls is empty.
func FromURLs(urls []string, headers map[string]string, timeout time.Duration) (Notifier, error) {
	if len(urls) == 0 {
		return Nop{}, nil
	}
	multi := make(Multi, 0, len(urls))
	for _, u := range urls {
		n, err := NewWebhookNotifier(u, headers, timeout)
		if err != nil {
			return nil, err
		}
		multi = append(multi, n)
	}
	return multi, nil
}
