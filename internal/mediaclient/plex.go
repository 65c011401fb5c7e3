// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
plex.go - Plex adapter

Plex splits user management between two APIs:

  - the Plex Media Server (libraries, sessions, identity)
  - plex.tv (friends, home users, library shares)

Plex users are keyed by e-mail: friends have no stable id on the server and
the invite is addressed to an e-mail. Roster and machine identifier lookups
are cached in the shared TTL cache; any write invalidates the roster entry.

Plex has no per-user enable/disable, so both return false.
See plex_tv.go for the plex.tv roster and share calls.
*/

package mediaclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/wizarr/internal/cache"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
)

// plexTVURL is the public plex.tv API.
const plexTVURL = "https://plex.tv"

func init() {
	Register("plex", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewPlexClient(cfg, deps), nil
	})
}

// PlexClient manages Plex shares and home users.
type PlexClient struct {
	cfg    Config
	server *restClient
	tv     *restClient
	cache  *cache.TTLCache[any]
}

// NewPlexClient creates a Plex adapter. cfg.Token is the owner's Plex token,
// used for both the server and plex.tv.
func NewPlexClient(cfg Config, deps Deps) *PlexClient {
	deps = deps.withDefaults()
	auth := plexAuth(cfg, cfg.Token)
	return &PlexClient{
		cfg:    cfg,
		server: newRESTClient("plex", cfg.URL, deps, auth),
		tv:     newRESTClient("plex", plexTVURL, deps, auth),
		cache:  deps.PlexCache,
	}
}

func plexAuth(cfg Config, token string) authFunc {
	return func(_ context.Context, req *http.Request) error {
		req.Header.Set("X-Plex-Token", token)
		req.Header.Set("X-Plex-Client-Identifier", cfg.ClientID)
		req.Header.Set("X-Plex-Product", cfg.ProductName)
		return nil
	}
}

func (c *PlexClient) ServerType() string       { return "plex" }
func (c *PlexClient) KeyField() media.KeyField { return media.KeyByEmail }

func (c *PlexClient) cacheKey(kind string) string {
	return "plex:" + kind + ":" + c.cfg.URL + ":" + cache.TokenKey(c.cfg.URL, c.cfg.Token)
}

// machineIdentifier identifies the server in plex.tv share calls.
func (c *PlexClient) machineIdentifier(ctx context.Context) (string, error) {
	key := c.cacheKey("identity")
	if v, ok := c.cache.Get(key); ok {
		if id, ok := v.(string); ok {
			return id, nil
		}
	}
	var resp struct {
		MediaContainer struct {
			MachineIdentifier string `json:"machineIdentifier"`
			Version           string `json:"version"`
		} `json:"MediaContainer"`
	}
	if err := c.server.get(ctx, "identity", "/identity", nil, &resp); err != nil {
		return "", err
	}
	id := resp.MediaContainer.MachineIdentifier
	if id == "" {
		return "", &ClientError{Vendor: "plex", Op: "identity", Message: "server returned no machineIdentifier"}
	}
	c.cache.Add(key, id)
	return id, nil
}

type plexSection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

func (c *PlexClient) sections(ctx context.Context, rest *restClient) ([]plexSection, error) {
	var resp struct {
		MediaContainer struct {
			Directory []plexSection `json:"Directory"`
		} `json:"MediaContainer"`
	}
	if err := rest.get(ctx, "list libraries", "/library/sections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Directory, nil
}

func (c *PlexClient) Libraries(ctx context.Context) (map[string]string, error) {
	secs, err := c.sections(ctx, c.server)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(secs))
	for _, s := range secs {
		out[s.Key] = s.Title
	}
	return out, nil
}

func (c *PlexClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.server
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		rest = c.server.withBase(serverURL, plexAuth(c.cfg, token))
	}
	secs, err := c.sections(ctx, rest)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(secs))
	for _, s := range secs {
		out[s.Title] = s.Key
	}
	return out, nil
}

func (c *PlexClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	email := media.KeyByEmail.Normalize(u.Email)
	if email == "" {
		return "", &ClientError{Vendor: "plex", Op: "create user", Message: "an e-mail address is required"}
	}
	defer c.invalidateRoster()

	if u.PlexHome {
		if err := c.inviteHome(ctx, email); err != nil {
			return "", err
		}
	}
	if err := c.share(ctx, email, u.Grant); err != nil {
		return "", err
	}
	logging.Ctx(ctx).Info().Str("email", email).Bool("home", u.PlexHome).Msg("Plex library share sent")
	return email, nil
}

// GrantAccess updates an accepted share. Pending invites already carry the
// access requested at CreateUser, so a missing share is not an error.
func (c *PlexClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	defer c.invalidateRoster()
	shared, err := c.findSharedServer(ctx, id)
	if err != nil {
		return err
	}
	if shared == nil {
		logging.Ctx(ctx).Debug().Str("email", id).Msg("Plex share not accepted yet, access applied with the invite")
		return nil
	}
	return c.updateShare(ctx, shared.ID, grant)
}

func (c *PlexClient) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	if patch.Username != nil || patch.Password != nil || patch.Email != nil {
		return fmt.Errorf("plex account fields are owned by plex.tv: %w", ErrUnsupported)
	}
	if patch.Access == nil && patch.Permissions == nil {
		return nil
	}
	current, err := c.GetUserDetails(ctx, id)
	if err != nil {
		return err
	}
	grant := media.Grant{Access: current.Access, Permissions: current.Permissions}
	if patch.Access != nil {
		grant.Access = *patch.Access
	}
	if patch.Permissions != nil {
		grant.Permissions = *patch.Permissions
	}
	return c.GrantAccess(ctx, id, grant)
}

func (c *PlexClient) DeleteUser(ctx context.Context, id string) error {
	defer c.invalidateRoster()
	entry, err := c.findRosterEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return &ClientError{Vendor: "plex", Op: "delete user", StatusCode: http.StatusNotFound, Message: "no friend or home user with e-mail " + id}
	}
	if entry.pending {
		return c.tv.do(ctx, requestConfig{op: "cancel invite", method: http.MethodDelete, path: "/api/v2/shared_servers/" + url.PathEscape(str(entry.raw, "sharedServerId"))}, nil)
	}
	if entry.home {
		return c.tv.do(ctx, requestConfig{op: "remove home user", method: http.MethodDelete, path: "/api/home/users/" + entry.id}, nil)
	}
	return c.tv.do(ctx, requestConfig{op: "remove friend", method: http.MethodDelete, path: "/api/v2/friends/" + entry.id}, nil)
}

func (c *PlexClient) EnableUser(context.Context, string) (bool, error)  { return false, nil }
func (c *PlexClient) DisableUser(context.Context, string) (bool, error) { return false, nil }

func (c *PlexClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	entry, err := c.findRosterEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &ClientError{Vendor: "plex", Op: "get user", StatusCode: http.StatusNotFound, Message: "user not found"}
	}
	return entry.raw, nil
}

func (c *PlexClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	entry, err := c.findRosterEntry(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	if entry == nil {
		return media.MediaUserDetails{}, &ClientError{Vendor: "plex", Op: "get user", StatusCode: http.StatusNotFound, Message: "user not found"}
	}
	return entry.details, nil
}

func (c *PlexClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	roster, err := c.roster(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]media.MediaUserDetails, 0, len(roster))
	for _, e := range roster {
		out = append(out, e.details)
	}
	return out, nil
}

func (c *PlexClient) NowPlaying(ctx context.Context) ([]media.Session, error) {
	var resp struct {
		MediaContainer struct {
			Metadata []map[string]any `json:"Metadata"`
		} `json:"MediaContainer"`
	}
	if err := c.server.get(ctx, "list sessions", "/status/sessions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]media.Session, 0, len(resp.MediaContainer.Metadata))
	for _, m := range resp.MediaContainer.Metadata {
		user := obj(m, "User")
		player := obj(m, "Player")
		title := str(m, "title")
		if gp := str(m, "grandparentTitle"); gp != "" {
			title = gp + " - " + title
		}
		sessionID := str(obj(m, "Session"), "id")
		if sessionID == "" {
			sessionID = str(m, "sessionKey")
		}
		out = append(out, media.Session{
			SessionID:   sessionID,
			UserID:      str(user, "id"),
			UserName:    str(user, "title"),
			Title:       title,
			MediaType:   str(m, "type"),
			State:       str(player, "state"),
			Progress:    media.ProgressPercent(num(m, "viewOffset"), num(m, "duration")),
			Client:      str(player, "product"),
			Device:      str(player, "title"),
			Transcoding: obj(m, "TranscodeSession") != nil,
		})
	}
	return out, nil
}

func (c *PlexClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

var plexSectionKinds = map[string]string{
	"movie":  "movies",
	"show":   "shows",
	"artist": "music",
	"photo":  "photos",
}

func (c *PlexClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("plex", time.Now().UTC())

	var root struct {
		MediaContainer struct {
			FriendlyName string `json:"friendlyName"`
			Version      string `json:"version"`
		} `json:"MediaContainer"`
	}
	if err := c.server.get(ctx, "server info", "/", nil, &root); err != nil {
		stats.AddError("server", err)
	} else {
		stats.ServerName = root.MediaContainer.FriendlyName
		stats.Version = root.MediaContainer.Version
	}

	if secs, err := c.sections(ctx, c.server); err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(secs)
		for _, s := range secs {
			kind := plexSectionKinds[s.Type]
			if kind == "" {
				kind = strings.ToLower(s.Type)
			}
			stats.Libraries.Items[kind]++
		}
	}

	if sessions, err := c.NowPlaying(ctx); err != nil {
		stats.AddError("sessions", err)
	} else {
		stats.ApplySessions(sessions)
	}
	return stats, ctx.Err()
}
