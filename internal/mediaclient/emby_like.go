// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
emby_like.go - Shared Jellyfin / Emby adapter

Jellyfin forked from Emby and both still expose the same user model:

  - GET  /Users                 roster with Policy inline
  - POST /Users/New             create
  - POST /Users/{id}/Policy     full policy replace (read-modify-write here)
  - POST /Users/{id}/Password   password change
  - DELETE /Users/{id}

Library access lives in Policy.EnableAllFolders / Policy.EnabledFolders and
disabling sets Policy.IsDisabled. The policy is written back as the raw map
read from the server, so fields this adapter does not model survive.
*/

package mediaclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/wizarr/internal/media"
)

// embyFlavor captures what differs between Jellyfin and Emby.
type embyFlavor struct {
	serverType string
	// librariesPath lists selectable folders.
	librariesPath string
	// createWithPassword sends Password in /Users/New; Emby ignores it and
	// needs a separate password call.
	createWithPassword bool
	// policyDefaults are required policy fields filled when missing.
	policyDefaults map[string]any
	permissions    func(map[string]any) media.StandardizedPermissions
}

type embyLikeClient struct {
	cfg    Config
	flavor embyFlavor
	rest   *restClient
}

func newEmbyLike(cfg Config, deps Deps, flavor embyFlavor) *embyLikeClient {
	return &embyLikeClient{
		cfg:    cfg,
		flavor: flavor,
		rest:   newRESTClient(flavor.serverType, cfg.URL, deps, staticHeader("X-Emby-Token", cfg.Token)),
	}
}

func (c *embyLikeClient) ServerType() string       { return c.flavor.serverType }
func (c *embyLikeClient) KeyField() media.KeyField { return media.KeyByID }

type embyFolder struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	// Guid is present on Emby and is what newer Emby policies reference.
	GUID           string `json:"Guid,omitempty"`
	CollectionType string `json:"CollectionType,omitempty"`
}

func (c *embyLikeClient) fetchFolders(ctx context.Context, rest *restClient) ([]embyFolder, error) {
	var raw any
	if err := rest.get(ctx, "list libraries", c.flavor.librariesPath, nil, &raw); err != nil {
		return nil, err
	}
	// /Library/MediaFolders wraps in {Items: [...]}; SelectableMediaFolders is a bare array.
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v["Items"].([]any)
	}
	folders := make([]embyFolder, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		f := embyFolder{ID: str(m, "Id"), Name: str(m, "Name"), GUID: str(m, "Guid"), CollectionType: str(m, "CollectionType")}
		if f.ID != "" {
			folders = append(folders, f)
		}
	}
	return folders, nil
}

func (c *embyLikeClient) Libraries(ctx context.Context) (map[string]string, error) {
	folders, err := c.fetchFolders(ctx, c.rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(folders))
	for _, f := range folders {
		out[f.ID] = f.Name
	}
	return out, nil
}

func (c *embyLikeClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.rest
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		rest = c.rest.withBase(serverURL, staticHeader("X-Emby-Token", token))
	}
	folders, err := c.fetchFolders(ctx, rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(folders))
	for _, f := range folders {
		out[f.Name] = f.ID
	}
	return out, nil
}

func (c *embyLikeClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	body := map[string]any{"Name": u.Username}
	if c.flavor.createWithPassword {
		body["Password"] = u.Password
	}
	var created struct {
		ID string `json:"Id"`
	}
	if err := c.rest.send(ctx, "create user", http.MethodPost, "/Users/New", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &ClientError{Vendor: c.flavor.serverType, Op: "create user", Message: "response did not include a user id"}
	}
	if !c.flavor.createWithPassword && u.Password != "" {
		if err := c.setPassword(ctx, created.ID, u.Password); err != nil {
			return created.ID, err
		}
	}
	return created.ID, nil
}

func (c *embyLikeClient) setPassword(ctx context.Context, id, password string) error {
	body := map[string]any{"Id": id, "CurrentPw": "", "NewPw": password, "ResetPassword": false}
	return c.rest.send(ctx, "set password", http.MethodPost, "/Users/"+url.PathEscape(id)+"/Password", body, nil)
}

// updatePolicy reads the user's policy, applies mutate and writes it back.
func (c *embyLikeClient) updatePolicy(ctx context.Context, id string, mutate func(policy map[string]any)) error {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}
	policy := obj(user, "Policy")
	if policy == nil {
		policy = map[string]any{}
	}
	for k, v := range c.flavor.policyDefaults {
		if s, _ := policy[k].(string); s == "" {
			policy[k] = v
		}
	}
	mutate(policy)
	return c.rest.send(ctx, "update policy", http.MethodPost, "/Users/"+url.PathEscape(id)+"/Policy", policy, nil)
}

func applyEmbyAccess(policy map[string]any, access media.LibraryAccess) {
	if access.IsUnrestricted() {
		policy["EnableAllFolders"] = true
		policy["EnabledFolders"] = []string{}
		return
	}
	policy["EnableAllFolders"] = false
	ids := access.IDs()
	if ids == nil {
		ids = []string{}
	}
	policy["EnabledFolders"] = ids
}

func applyEmbyPermissions(policy map[string]any, p media.StandardizedPermissions, includeAdmin bool) {
	policy["EnableContentDownloading"] = p.AllowDownloads
	policy["EnableLiveTvAccess"] = p.AllowLiveTV
	if includeAdmin {
		policy["IsAdministrator"] = p.IsAdmin
	}
}

func (c *embyLikeClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	return c.updatePolicy(ctx, id, func(policy map[string]any) {
		applyEmbyAccess(policy, grant.Access)
		applyEmbyPermissions(policy, grant.Permissions, false)
	})
}

func (c *embyLikeClient) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	if patch.Email != nil {
		return fmt.Errorf("%s e-mail: %w", c.flavor.serverType, ErrUnsupported)
	}
	if patch.Username != nil {
		user, err := c.GetUser(ctx, id)
		if err != nil {
			return err
		}
		user["Name"] = *patch.Username
		delete(user, "Policy")
		delete(user, "Configuration")
		if err := c.rest.send(ctx, "rename user", http.MethodPost, "/Users/"+url.PathEscape(id), user, nil); err != nil {
			return err
		}
	}
	if patch.Password != nil {
		if err := c.setPassword(ctx, id, *patch.Password); err != nil {
			return err
		}
	}
	if patch.Access != nil || patch.Permissions != nil {
		return c.updatePolicy(ctx, id, func(policy map[string]any) {
			if patch.Access != nil {
				applyEmbyAccess(policy, *patch.Access)
			}
			if patch.Permissions != nil {
				applyEmbyPermissions(policy, *patch.Permissions, true)
			}
		})
	}
	return nil
}

func (c *embyLikeClient) DeleteUser(ctx context.Context, id string) error {
	return c.rest.do(ctx, requestConfig{op: "delete user", method: http.MethodDelete, path: "/Users/" + url.PathEscape(id)}, nil)
}

func (c *embyLikeClient) setDisabled(ctx context.Context, id string, disabled bool) (bool, error) {
	err := c.updatePolicy(ctx, id, func(policy map[string]any) {
		policy["IsDisabled"] = disabled
	})
	return err == nil, err
}

func (c *embyLikeClient) EnableUser(ctx context.Context, id string) (bool, error) {
	return c.setDisabled(ctx, id, false)
}

func (c *embyLikeClient) DisableUser(ctx context.Context, id string) (bool, error) {
	return c.setDisabled(ctx, id, true)
}

func (c *embyLikeClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	var user map[string]any
	if err := c.rest.get(ctx, "get user", "/Users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *embyLikeClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return c.details(user, libs), nil
}

func (c *embyLikeClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	var users []map[string]any
	if err := c.rest.get(ctx, "list users", "/Users", nil, &users); err != nil {
		return nil, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, c.details(u, libs))
	}
	return out, nil
}

// details normalizes one user. EnableAllFolders wins over EnabledFolders;
// a user with neither sees nothing.
func (c *embyLikeClient) details(user map[string]any, libs map[string]string) media.MediaUserDetails {
	policy := obj(user, "Policy")
	if policy == nil {
		policy = map[string]any{}
	}

	access := media.Unrestricted()
	if !media.Bool(policy["EnableAllFolders"]) {
		access = accessFromIDs(strList(policy, "EnabledFolders"), libs)
	}

	return media.MediaUserDetails{
		UserID:      str(user, "Id"),
		Username:    str(user, "Name"),
		IsAdmin:     media.Bool(policy["IsAdministrator"]),
		IsEnabled:   !media.Bool(policy["IsDisabled"]),
		CreatedAt:   media.ParseISODate(str(user, "DateCreated")),
		LastActive:  media.ParseISODate(str(user, "LastActivityDate")),
		Access:      access,
		Permissions: c.flavor.permissions(policy),
		RawPolicies: policy,
	}
}

func (c *embyLikeClient) NowPlaying(ctx context.Context) ([]media.Session, error) {
	var sessions []map[string]any
	if err := c.rest.get(ctx, "list sessions", "/Sessions", nil, &sessions); err != nil {
		return nil, err
	}
	out := make([]media.Session, 0, len(sessions))
	for _, s := range sessions {
		item := obj(s, "NowPlayingItem")
		if item == nil {
			continue
		}
		play := obj(s, "PlayState")
		title := str(item, "Name")
		if series := str(item, "SeriesName"); series != "" {
			title = series + " - " + title
		}
		state := "playing"
		if media.Bool(play["IsPaused"]) {
			state = "paused"
		}
		out = append(out, media.Session{
			SessionID:   str(s, "Id"),
			UserID:      str(s, "UserId"),
			UserName:    str(s, "UserName"),
			Title:       title,
			MediaType:   str(item, "Type"),
			State:       state,
			Progress:    media.ProgressPercent(num(play, "PositionTicks"), num(item, "RunTimeTicks")),
			Client:      str(s, "Client"),
			Device:      str(s, "DeviceName"),
			Transcoding: str(play, "PlayMethod") == "Transcode",
		})
	}
	return out, nil
}

func (c *embyLikeClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *embyLikeClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics(c.flavor.serverType, time.Now().UTC())

	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.rest.get(ctx, "system info", "/System/Info", nil, &info); err != nil {
		stats.AddError("system", err)
	} else {
		stats.ServerName = info.ServerName
		stats.Version = info.Version
	}

	if libs, err := c.Libraries(ctx); err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(libs)
	}

	var counts map[string]any
	if err := c.rest.get(ctx, "item counts", "/Items/Counts", nil, &counts); err != nil {
		stats.AddError("items", err)
	} else {
		for key, kind := range map[string]string{
			"MovieCount":   "movies",
			"SeriesCount":  "series",
			"EpisodeCount": "episodes",
			"SongCount":    "songs",
			"AlbumCount":   "albums",
			"BookCount":    "books",
		} {
			if n := int(num(counts, key)); n > 0 {
				stats.Libraries.Items[kind] = n
			}
		}
	}

	if sessions, err := c.NowPlaying(ctx); err != nil {
		stats.AddError("sessions", err)
	} else {
		stats.ApplySessions(sessions)
	}
	return stats, ctx.Err()
}
