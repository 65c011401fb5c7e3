// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/wizarr/internal/media"
)

func init() {
	Register("audiobookshelf", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewAudiobookshelfClient(cfg, deps), nil
	})
}

// AudiobookshelfClient manages Audiobookshelf users. Permissions and the
// library list are embedded in the user record; isActive toggles login.
type AudiobookshelfClient struct {
	cfg  Config
	rest *restClient
}

// NewAudiobookshelfClient creates an adapter authenticating with an API token.
func NewAudiobookshelfClient(cfg Config, deps Deps) *AudiobookshelfClient {
	return &AudiobookshelfClient{
		cfg:  cfg,
		rest: newRESTClient("audiobookshelf", cfg.URL, deps.withDefaults(), bearer(cfg.Token)),
	}
}

func (c *AudiobookshelfClient) ServerType() string       { return "audiobookshelf" }
func (c *AudiobookshelfClient) KeyField() media.KeyField { return media.KeyByID }

func (c *AudiobookshelfClient) librariesVia(ctx context.Context, rest *restClient) ([]map[string]any, error) {
	var resp map[string]any
	if err := rest.get(ctx, "list libraries", "/api/libraries", nil, &resp); err != nil {
		return nil, err
	}
	return list(resp, "libraries"), nil
}

func (c *AudiobookshelfClient) Libraries(ctx context.Context) (map[string]string, error) {
	libs, err := c.librariesVia(ctx, c.rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(libs))
	for _, l := range libs {
		out[str(l, "id")] = str(l, "name")
	}
	return out, nil
}

func (c *AudiobookshelfClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
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
	libs, err := c.librariesVia(ctx, rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(libs))
	for _, l := range libs {
		out[str(l, "name")] = str(l, "id")
	}
	return out, nil
}

func absAccessFields(access media.LibraryAccess) (bool, []string) {
	if access.IsUnrestricted() {
		return true, []string{}
	}
	ids := access.IDs()
	if ids == nil {
		ids = []string{}
	}
	return false, ids
}

func (c *AudiobookshelfClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	all, ids := absAccessFields(u.Grant.Access)
	body := map[string]any{
		"username": u.Username,
		"password": u.Password,
		"type":     "user",
		"isActive": true,
		"permissions": map[string]any{
			"download":              u.Grant.Permissions.AllowDownloads,
			"update":                false,
			"delete":                false,
			"upload":                false,
			"accessAllLibraries":    all,
			"accessAllTags":         true,
			"accessExplicitContent": true,
		},
		"librariesAccessible": ids,
	}
	if u.Email != "" {
		body["email"] = u.Email
	}
	var resp map[string]any
	if err := c.rest.send(ctx, "create user", http.MethodPost, "/api/users", body, &resp); err != nil {
		return "", err
	}
	id := str(obj(resp, "user"), "id")
	if id == "" {
		return "", &ClientError{Vendor: "audiobookshelf", Op: "create user", Message: "response did not include a user id"}
	}
	return id, nil
}

func (c *AudiobookshelfClient) patch(ctx context.Context, op, id string, body map[string]any) error {
	return c.rest.send(ctx, op, http.MethodPatch, "/api/users/"+url.PathEscape(id), body, nil)
}

// permissionsBody keeps the existing permission map and overwrites the
// fields Wizarr controls; ABS replaces the whole object on PATCH.
func (c *AudiobookshelfClient) permissionsBody(ctx context.Context, id string) (map[string]any, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	perms := obj(user, "permissions")
	if perms == nil {
		perms = map[string]any{}
	}
	return perms, nil
}

func (c *AudiobookshelfClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	perms, err := c.permissionsBody(ctx, id)
	if err != nil {
		return err
	}
	all, ids := absAccessFields(grant.Access)
	perms["download"] = grant.Permissions.AllowDownloads
	perms["accessAllLibraries"] = all
	return c.patch(ctx, "grant access", id, map[string]any{
		"permissions":         perms,
		"librariesAccessible": ids,
	})
}

func (c *AudiobookshelfClient) UpdateUser(ctx context.Context, id string, p UserPatch) error {
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
	if p.Permissions != nil || p.Access != nil {
		perms, err := c.permissionsBody(ctx, id)
		if err != nil {
			return err
		}
		if p.Permissions != nil {
			perms["download"] = p.Permissions.AllowDownloads
			if p.Permissions.IsAdmin {
				body["type"] = "admin"
			} else {
				body["type"] = "user"
			}
		}
		if p.Access != nil {
			all, ids := absAccessFields(*p.Access)
			perms["accessAllLibraries"] = all
			body["librariesAccessible"] = ids
		}
		body["permissions"] = perms
	}
	if len(body) == 0 {
		return nil
	}
	return c.patch(ctx, "update user", id, body)
}

func (c *AudiobookshelfClient) DeleteUser(ctx context.Context, id string) error {
	return c.rest.do(ctx, requestConfig{op: "delete user", method: http.MethodDelete, path: "/api/users/" + url.PathEscape(id)}, nil)
}

func (c *AudiobookshelfClient) EnableUser(ctx context.Context, id string) (bool, error) {
	if err := c.patch(ctx, "enable user", id, map[string]any{"isActive": true}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *AudiobookshelfClient) DisableUser(ctx context.Context, id string) (bool, error) {
	if err := c.patch(ctx, "disable user", id, map[string]any{"isActive": false}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *AudiobookshelfClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var user map[string]any
	if err := c.rest.get(ctx, "get user", "/api/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *AudiobookshelfClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return absDetails(user, libs), nil
}

func (c *AudiobookshelfClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	var resp map[string]any
	if err := c.rest.get(ctx, "list users", "/api/users", nil, &resp); err != nil {
		return nil, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	users := list(resp, "users")
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, absDetails(u, libs))
	}
	return out, nil
}

// absDetails normalizes an ABS user. Root and admin accounts see every
// library regardless of accessAllLibraries.
func absDetails(user map[string]any, libs map[string]string) media.MediaUserDetails {
	perms := media.ForAudiobookshelf(user)
	access := media.Unrestricted()
	if !perms.IsAdmin && !media.Bool(obj(user, "permissions")["accessAllLibraries"]) {
		access = accessFromIDs(strList(user, "librariesAccessible"), libs)
	}
	return media.MediaUserDetails{
		UserID:      str(user, "id"),
		Username:    str(user, "username"),
		Email:       media.StringPtr(str(user, "email")),
		IsAdmin:     perms.IsAdmin,
		IsEnabled:   media.Bool(user["isActive"]),
		CreatedAt:   media.ParseTimestamp(user["createdAt"]),
		LastActive:  media.ParseTimestamp(user["lastSeen"]),
		Access:      access,
		Permissions: perms,
		RawPolicies: obj(user, "permissions"),
	}
}

func (c *AudiobookshelfClient) NowPlaying(ctx context.Context) ([]media.Session, error) {
	var resp map[string]any
	if err := c.rest.get(ctx, "online users", "/api/users/online", nil, &resp); err != nil {
		return nil, err
	}
	var out []media.Session
	for _, u := range list(resp, "usersOnline") {
		s := obj(u, "session")
		if s == nil {
			continue
		}
		device := obj(s, "deviceInfo")
		out = append(out, media.Session{
			SessionID: str(s, "id"),
			UserID:    str(u, "id"),
			UserName:  str(u, "username"),
			Title:     str(s, "displayTitle"),
			MediaType: str(s, "mediaType"),
			State:     "playing",
			Progress:  media.ProgressPercent(num(s, "currentTime"), num(s, "duration")),
			Client:    str(device, "clientName"),
			Device:    str(device, "deviceName"),
		})
	}
	return out, nil
}

func (c *AudiobookshelfClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *AudiobookshelfClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("audiobookshelf", time.Now().UTC())

	var status map[string]any
	if err := c.rest.get(ctx, "status", "/status", nil, &status); err != nil {
		stats.AddError("status", err)
	} else {
		stats.Version = str(status, "serverVersion")
	}

	libs, err := c.librariesVia(ctx, c.rest)
	if err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(libs)
		for _, l := range libs {
			var ls map[string]any
			if err := c.rest.get(ctx, "library stats", "/api/libraries/"+url.PathEscape(str(l, "id"))+"/stats", nil, &ls); err != nil {
				stats.AddError("library "+str(l, "name"), err)
				continue
			}
			kind := str(l, "mediaType")
			if kind == "" {
				kind = "items"
			}
			stats.Libraries.Items[kind] += int(num(ls, "totalItems"))
		}
	}

	if sessions, err := c.NowPlaying(ctx); err != nil {
		stats.AddError("sessions", err)
	} else {
		stats.ApplySessions(sessions)
	}
	return stats, ctx.Err()
}
