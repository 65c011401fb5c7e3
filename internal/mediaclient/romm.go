// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/wizarr/internal/media"
)

const rommPageSize = 100

func init() {
	Register("romm", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewRommClient(cfg, deps), nil
	})
}

// RommClient manages RomM users. RomM has no per-user library restrictions:
// platforms are listed as libraries but every user sees all of them.
type RommClient struct {
	cfg  Config
	rest *restClient
}

// NewRommClient creates a RomM adapter. cfg.Token is either the stored
// base64 Basic credential or a raw "user:password" pair.
func NewRommClient(cfg Config, deps Deps) *RommClient {
	return &RommClient{
		cfg:  cfg,
		rest: newRESTClient("romm", cfg.URL, deps.withDefaults(), rommAuth(cfg.Token)),
	}
}

func rommAuth(token string) authFunc {
	if strings.Contains(token, ":") {
		token = base64.StdEncoding.EncodeToString([]byte(token))
	}
	return staticHeader("Authorization", "Basic "+token)
}

func (c *RommClient) ServerType() string       { return "romm" }
func (c *RommClient) KeyField() media.KeyField { return media.KeyByID }

func (c *RommClient) platforms(ctx context.Context, rest *restClient) ([]map[string]any, error) {
	var platforms []map[string]any
	if err := rest.get(ctx, "list platforms", "/api/platforms", nil, &platforms); err != nil {
		return nil, err
	}
	return platforms, nil
}

func platformName(p map[string]any) string {
	if n := str(p, "display_name"); n != "" {
		return n
	}
	return str(p, "name")
}

func (c *RommClient) Libraries(ctx context.Context) (map[string]string, error) {
	platforms, err := c.platforms(ctx, c.rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(platforms))
	for _, p := range platforms {
		out[str(p, "id")] = platformName(p)
	}
	return out, nil
}

func (c *RommClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.rest
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		rest = c.rest.withBase(serverURL, rommAuth(token))
	}
	platforms, err := c.platforms(ctx, rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(platforms))
	for _, p := range platforms {
		out[platformName(p)] = str(p, "id")
	}
	return out, nil
}

func (c *RommClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	body := map[string]any{
		"username": u.Username,
		"password": u.Password,
		"email":    u.Email,
		"role":     "viewer",
	}
	var created map[string]any
	if err := c.rest.send(ctx, "create user", http.MethodPost, "/api/users", body, &created); err != nil {
		return "", err
	}
	id := str(created, "id")
	if id == "" {
		return "", &ClientError{Vendor: "romm", Op: "create user", Message: "response did not include a user id"}
	}
	return id, nil
}

// GrantAccess is a no-op: RomM users always see every platform and have no
// download or live TV concept.
func (c *RommClient) GrantAccess(context.Context, string, media.Grant) error { return nil }

func (c *RommClient) put(ctx context.Context, op, id string, body map[string]any) error {
	return c.rest.send(ctx, op, http.MethodPut, "/api/users/"+url.PathEscape(id), body, nil)
}

func (c *RommClient) UpdateUser(ctx context.Context, id string, p UserPatch) error {
	body := map[string]any{}
	if p.Username != nil {
		body["username"] = *p.Username
	}
	if p.Password != nil {
		body["password"] = *p.Password
	}
	if p.Email != nil {
		body["email"] = *p.Email
	}
	if p.Permissions != nil {
		if p.Permissions.IsAdmin {
			body["role"] = "admin"
		} else {
			body["role"] = "viewer"
		}
	}
	if len(body) == 0 {
		return nil
	}
	return c.put(ctx, "update user", id, body)
}

func (c *RommClient) DeleteUser(ctx context.Context, id string) error {
	return c.rest.do(ctx, requestConfig{op: "delete user", method: http.MethodDelete, path: "/api/users/" + url.PathEscape(id)}, nil)
}

func (c *RommClient) EnableUser(ctx context.Context, id string) (bool, error) {
	err := c.put(ctx, "enable user", id, map[string]any{"enabled": true})
	return err == nil, err
}

func (c *RommClient) DisableUser(ctx context.Context, id string) (bool, error) {
	err := c.put(ctx, "disable user", id, map[string]any{"enabled": false})
	return err == nil, err
}

func (c *RommClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var user map[string]any
	if err := c.rest.get(ctx, "get user", "/api/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *RommClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return rommDetails(user), nil
}

// ListRemoteUsers pages with limit/offset. Older RomM releases return a
// bare array, newer ones {items, total}.
func (c *RommClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	var out []media.MediaUserDetails
	seen := map[string]bool{}
	for offset := 0; ; offset += rommPageSize {
		q := url.Values{"limit": {strconv.Itoa(rommPageSize)}, "offset": {strconv.Itoa(offset)}}
		var raw any
		if err := c.rest.get(ctx, "list users", "/api/users", q, &raw); err != nil {
			return nil, err
		}
		var page []any
		total := -1
		switch v := raw.(type) {
		case []any:
			page = v
		case map[string]any:
			page, _ = v["items"].([]any)
			if has(v, "total") {
				total = int(num(v, "total"))
			}
		}
		added := 0
		for _, item := range page {
			u, ok := item.(map[string]any)
			if !ok || seen[str(u, "id")] {
				continue
			}
			seen[str(u, "id")] = true
			out = append(out, rommDetails(u))
			added++
		}
		if len(page) < rommPageSize || added == 0 || (total >= 0 && len(out) >= total) {
			return out, nil
		}
	}
}

func rommDetails(user map[string]any) media.MediaUserDetails {
	isAdmin := strings.EqualFold(str(user, "role"), "admin")
	last := media.ParseISODate(str(user, "last_active"))
	if last == nil {
		last = media.ParseISODate(str(user, "last_login"))
	}
	return media.MediaUserDetails{
		UserID:      str(user, "id"),
		Username:    str(user, "username"),
		Email:       media.StringPtr(str(user, "email")),
		IsAdmin:     isAdmin,
		IsEnabled:   !has(user, "enabled") || media.Bool(user["enabled"]),
		CreatedAt:   media.ParseISODate(str(user, "created_at")),
		LastActive:  last,
		Access:      media.Unrestricted(),
		Permissions: media.ForBasicServer("romm", isAdmin, false),
		RawPolicies: map[string]any{"role": user["role"], "enabled": user["enabled"]},
	}
}

// NowPlaying is always empty: RomM does not track play sessions.
func (c *RommClient) NowPlaying(context.Context) ([]media.Session, error) {
	return []media.Session{}, nil
}

func (c *RommClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *RommClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("romm", time.Now().UTC())

	var heartbeat map[string]any
	if err := c.rest.get(ctx, "heartbeat", "/api/heartbeat", nil, &heartbeat); err != nil {
		stats.AddError("heartbeat", err)
	} else {
		stats.Version = str(obj(heartbeat, "SYSTEM"), "VERSION")
	}

	var counts map[string]any
	if err := c.rest.get(ctx, "stats", "/api/stats", nil, &counts); err != nil {
		stats.AddError("stats", err)
	} else {
		stats.Libraries.Total = int(num(counts, "PLATFORMS"))
		stats.Libraries.Items["roms"] = int(num(counts, "ROMS"))
		stats.Libraries.Items["saves"] = int(num(counts, "SAVES"))
		stats.Libraries.Items["states"] = int(num(counts, "STATES"))
	}
	return stats, ctx.Err()
}
