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
	Register("komga", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewKomgaClient(cfg, deps), nil
	})
}

// Komga roles.
const (
	komgaRoleAdmin     = "ADMIN"
	komgaRoleDownload  = "FILE_DOWNLOAD"
	komgaRoleStreaming = "PAGE_STREAMING"
)

// KomgaClient manages Komga users. Komga identifies users by e-mail, which
// doubles as the username, and has no disabled state: DisableUser revokes
// every shared library instead.
type KomgaClient struct {
	cfg  Config
	rest *restClient
}

// NewKomgaClient creates an adapter authenticating with an X-API-Key.
func NewKomgaClient(cfg Config, deps Deps) *KomgaClient {
	return &KomgaClient{
		cfg:  cfg,
		rest: newRESTClient("komga", cfg.URL, deps.withDefaults(), staticHeader("X-API-Key", cfg.Token)),
	}
}

func (c *KomgaClient) ServerType() string       { return "komga" }
func (c *KomgaClient) KeyField() media.KeyField { return media.KeyByID }

func (c *KomgaClient) librariesVia(ctx context.Context, rest *restClient) ([]map[string]any, error) {
	var libs []map[string]any
	if err := rest.get(ctx, "list libraries", "/api/v1/libraries", nil, &libs); err != nil {
		return nil, err
	}
	return libs, nil
}

func (c *KomgaClient) Libraries(ctx context.Context) (map[string]string, error) {
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

func (c *KomgaClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.rest
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		rest = c.rest.withBase(serverURL, staticHeader("X-API-Key", token))
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

func komgaRoles(p media.StandardizedPermissions) []string {
	roles := []string{komgaRoleStreaming}
	if p.AllowDownloads {
		roles = append(roles, komgaRoleDownload)
	}
	if p.IsAdmin {
		roles = append(roles, komgaRoleAdmin)
	}
	return roles
}

func komgaSharedLibraries(access media.LibraryAccess) map[string]any {
	if access.IsUnrestricted() {
		return map[string]any{"all": true, "libraryIds": []string{}}
	}
	ids := access.IDs()
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"all": false, "libraryIds": ids}
}

func (c *KomgaClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	email := u.Email
	if email == "" {
		email = u.Username
	}
	body := map[string]any{
		"email":           email,
		"password":        u.Password,
		"roles":           komgaRoles(u.Grant.Permissions),
		"sharedLibraries": komgaSharedLibraries(u.Grant.Access),
	}
	var created map[string]any
	if err := c.rest.send(ctx, "create user", http.MethodPost, "/api/v2/users", body, &created); err != nil {
		return "", err
	}
	id := str(created, "id")
	if id == "" {
		return "", &ClientError{Vendor: "komga", Op: "create user", Message: "response did not include a user id"}
	}
	return id, nil
}

func (c *KomgaClient) patch(ctx context.Context, op, id string, body map[string]any) error {
	return c.rest.send(ctx, op, http.MethodPatch, "/api/v2/users/"+url.PathEscape(id), body, nil)
}

func (c *KomgaClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	return c.patch(ctx, "grant access", id, map[string]any{
		"roles":           komgaRoles(grant.Permissions),
		"sharedLibraries": komgaSharedLibraries(grant.Access),
	})
}

func (c *KomgaClient) UpdateUser(ctx context.Context, id string, p UserPatch) error {
	if p.Username != nil || p.Email != nil {
		return fmt.Errorf("komga e-mail changes: %w", ErrUnsupported)
	}
	if p.Password != nil {
		body := map[string]any{"password": *p.Password}
		if err := c.rest.send(ctx, "set password", http.MethodPatch, "/api/v2/users/"+url.PathEscape(id)+"/password", body, nil); err != nil {
			return err
		}
	}
	body := map[string]any{}
	if p.Permissions != nil {
		body["roles"] = komgaRoles(*p.Permissions)
	}
	if p.Access != nil {
		body["sharedLibraries"] = komgaSharedLibraries(*p.Access)
	}
	if len(body) == 0 {
		return nil
	}
	return c.patch(ctx, "update user", id, body)
}

func (c *KomgaClient) DeleteUser(ctx context.Context, id string) error {
	return c.rest.do(ctx, requestConfig{op: "delete user", method: http.MethodDelete, path: "/api/v2/users/" + url.PathEscape(id)}, nil)
}

// EnableUser cannot know which libraries to restore.
func (c *KomgaClient) EnableUser(context.Context, string) (bool, error) { return false, nil }

func (c *KomgaClient) DisableUser(ctx context.Context, id string) (bool, error) {
	err := c.patch(ctx, "disable user", id, map[string]any{
		"sharedLibraries": komgaSharedLibraries(media.Restricted(nil)),
	})
	return err == nil, err
}

func (c *KomgaClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var user map[string]any
	if err := c.rest.get(ctx, "get user", "/api/v2/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *KomgaClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return komgaDetails(user, libs), nil
}

func (c *KomgaClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	var users []map[string]any
	if err := c.rest.get(ctx, "list users", "/api/v2/users", nil, &users); err != nil {
		return nil, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, komgaDetails(u, libs))
	}
	return out, nil
}

func komgaDetails(user map[string]any, libs map[string]string) media.MediaUserDetails {
	roles := strList(user, "roles")
	perms := media.ForKomga(roles)
	access := media.Unrestricted()
	if !media.Bool(user["sharedAllLibraries"]) {
		access = accessFromIDs(strList(user, "sharedLibrariesIds"), libs)
	}
	email := str(user, "email")
	return media.MediaUserDetails{
		UserID:      str(user, "id"),
		Username:    email,
		Email:       media.StringPtr(email),
		IsAdmin:     perms.IsAdmin,
		IsEnabled:   true,
		Access:      access,
		Permissions: perms,
		RawPolicies: map[string]any{
			"roles":              user["roles"],
			"sharedAllLibraries": user["sharedAllLibraries"],
			"sharedLibrariesIds": user["sharedLibrariesIds"],
		},
	}
}

// NowPlaying is always empty: Komga does not report reading sessions.
func (c *KomgaClient) NowPlaying(context.Context) ([]media.Session, error) {
	return []media.Session{}, nil
}

func (c *KomgaClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *KomgaClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("komga", time.Now().UTC())

	if libs, err := c.librariesVia(ctx, c.rest); err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(libs)
	}

	for _, kind := range []string{"series", "books"} {
		var page map[string]any
		if err := c.rest.get(ctx, "count "+kind, "/api/v1/"+kind, url.Values{"size": {"0"}}, &page); err != nil {
			stats.AddError(kind, err)
			continue
		}
		stats.Libraries.Items[kind] = int(num(page, "totalElements"))
	}
	return stats, ctx.Err()
}
