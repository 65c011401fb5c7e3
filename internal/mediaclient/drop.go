// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/wizarr/internal/media"
)

func init() {
	Register("drop", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewDropClient(cfg, deps), nil
	})
}

// DropClient manages Drop game server accounts. Drop has no libraries and
// no per-user access control; accounts are created by issuing an admin
// invitation and redeeming it through simple sign-up.
type DropClient struct {
	cfg  Config
	rest *restClient
}

// NewDropClient creates a Drop adapter authenticating with an admin token.
func NewDropClient(cfg Config, deps Deps) *DropClient {
	return &DropClient{
		cfg:  cfg,
		rest: newRESTClient("drop", cfg.URL, deps.withDefaults(), bearer(cfg.Token)),
	}
}

func (c *DropClient) ServerType() string       { return "drop" }
func (c *DropClient) KeyField() media.KeyField { return media.KeyByID }

// Libraries is always empty.
func (c *DropClient) Libraries(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// ScanLibraries only verifies the credentials.
func (c *DropClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.rest
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		rest = c.rest.withBase(serverURL, bearer(token))
	}
	if err := rest.get(ctx, "verify credentials", "/api/v1/admin/users", nil, nil); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

func (c *DropClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	var invitation map[string]any
	err := c.rest.send(ctx, "create invitation", http.MethodPost, "/api/v1/admin/auth/invitation", map[string]any{
		"isAdmin":  false,
		"username": u.Username,
		"email":    u.Email,
		"expires":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, &invitation)
	if err != nil {
		return "", err
	}
	invitationID := str(invitation, "id")
	if invitationID == "" {
		return "", &ClientError{Vendor: "drop", Op: "create invitation", Message: "response did not include an invitation id"}
	}

	var user map[string]any
	err = c.rest.send(ctx, "sign up", http.MethodPost, "/api/v1/auth/signup/simple", map[string]any{
		"invitation":  invitationID,
		"username":    u.Username,
		"email":       u.Email,
		"password":    u.Password,
		"displayName": u.Username,
	}, &user)
	if err != nil {
		return "", err
	}
	id := str(user, "id")
	if id == "" {
		return "", &ClientError{Vendor: "drop", Op: "sign up", Message: "response did not include a user id"}
	}
	return id, nil
}

// GrantAccess is a no-op: access is all-or-nothing.
func (c *DropClient) GrantAccess(context.Context, string, media.Grant) error { return nil }

func (c *DropClient) UpdateUser(_ context.Context, _ string, p UserPatch) error {
	if p.IsEmpty() {
		return nil
	}
	return fmt.Errorf("drop user updates: %w", ErrUnsupported)
}

func (c *DropClient) DeleteUser(ctx context.Context, id string) error {
	return c.rest.do(ctx, requestConfig{op: "delete user", method: http.MethodDelete, path: "/api/v1/admin/users/" + url.PathEscape(id)}, nil)
}

func (c *DropClient) EnableUser(context.Context, string) (bool, error)  { return false, nil }
func (c *DropClient) DisableUser(context.Context, string) (bool, error) { return false, nil }

func (c *DropClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var user map[string]any
	if err := c.rest.get(ctx, "get user", "/api/v1/admin/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *DropClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return dropDetails(user), nil
}

func (c *DropClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	var users []map[string]any
	if err := c.rest.get(ctx, "list users", "/api/v1/admin/users", nil, &users); err != nil {
		return nil, err
	}
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, dropDetails(u))
	}
	return out, nil
}

func dropDetails(user map[string]any) media.MediaUserDetails {
	isAdmin := media.Bool(user["admin"])
	return media.MediaUserDetails{
		UserID:      str(user, "id"),
		Username:    str(user, "username"),
		Email:       media.StringPtr(str(user, "email")),
		IsAdmin:     isAdmin,
		IsEnabled:   !has(user, "enabled") || media.Bool(user["enabled"]),
		CreatedAt:   media.ParseISODate(str(user, "created")),
		Access:      media.Unrestricted(),
		Permissions: media.ForBasicServer("drop", isAdmin, false),
		RawPolicies: map[string]any{"admin": user["admin"]},
	}
}

// NowPlaying is always empty.
func (c *DropClient) NowPlaying(context.Context) ([]media.Session, error) {
	return []media.Session{}, nil
}

func (c *DropClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

// ReadonlyStatistics has nothing to collect without touching the roster.
func (c *DropClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	return media.NewStatistics("drop", time.Now().UTC()), ctx.Err()
}
