// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
kavita.go - Kavita adapter

Kavita does not accept API keys on its admin endpoints. The key is exchanged
at /api/Plugin/authenticate for a JWT which is cached process-wide, keyed by
server URL and key. A 401 drops the cached token and retries once.

Accounts are created through the invite flow: /api/Account/invite returns an
e-mail link whose token is immediately confirmed with the chosen username
and password. Kavita has no disabled state; DisableUser removes all libraries.
*/

package mediaclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/wizarr/internal/cache"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/metrics"
)

const (
	kavitaPluginName = "Wizarr"
	kavitaPageSize   = 100
	kavitaRoleAdmin  = "Admin"
	kavitaRoleDL     = "Download"
)

func init() {
	Register("kavita", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewKavitaClient(cfg, deps), nil
	})
}

// KavitaClient manages Kavita users.
type KavitaClient struct {
	cfg    Config
	conn   kavitaConn
	anon   *restClient
	tokens *cache.TokenCache
}

// kavitaConn pairs an authorized transport with its token cache key.
type kavitaConn struct {
	rest     *restClient
	tokenKey string
}

// NewKavitaClient creates an adapter for cfg.Token, a Kavita API key.
func NewKavitaClient(cfg Config, deps Deps) *KavitaClient {
	deps = deps.withDefaults()
	c := &KavitaClient{
		cfg:    cfg,
		anon:   newRESTClient("kavita", cfg.URL, deps, nil),
		tokens: deps.KavitaTokens,
	}
	c.conn = c.connect(newRESTClient("kavita", cfg.URL, deps, nil), cfg.URL, cfg.Token)
	return c
}

func (c *KavitaClient) ServerType() string       { return "kavita" }
func (c *KavitaClient) KeyField() media.KeyField { return media.KeyByID }

// authenticate exchanges apiKey for a bearer token.
func (c *KavitaClient) authenticate(ctx context.Context, serverURL, apiKey string) (string, error) {
	anon := c.anon
	if serverURL != c.cfg.URL {
		anon = c.anon.withBase(serverURL, nil)
	}
	var resp struct {
		Token string `json:"token"`
	}
	err := anon.do(ctx, requestConfig{
		op:     "authenticate",
		method: http.MethodPost,
		path:   "/api/Plugin/authenticate",
		query:  url.Values{"apiKey": {apiKey}, "pluginName": {kavitaPluginName}},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &ClientError{Vendor: "kavita", Op: "authenticate", Message: "no token in response"}
	}
	return resp.Token, nil
}

// connect returns a transport for serverURL whose requests carry a cached
// bearer token for apiKey.
func (c *KavitaClient) connect(base *restClient, serverURL, apiKey string) kavitaConn {
	key := cache.TokenKey(serverURL, apiKey)
	return kavitaConn{rest: base.withBase(serverURL, c.authorize(key, serverURL, apiKey)), tokenKey: key}
}

func (c *KavitaClient) authorize(key, serverURL, apiKey string) authFunc {
	return func(ctx context.Context, req *http.Request) error {
		token, ok := c.tokens.Get(key)
		if ok {
			metrics.TokenCacheRequests.WithLabelValues("kavita", "hit").Inc()
		} else {
			metrics.TokenCacheRequests.WithLabelValues("kavita", "miss").Inc()
			var err error
			token, err = c.authenticate(ctx, serverURL, apiKey)
			if err != nil {
				return err
			}
			c.tokens.Set(key, token)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// do retries once with a fresh token on 401.
func (c *KavitaClient) do(ctx context.Context, conn kavitaConn, cfg requestConfig, result any) error {
	err := conn.rest.do(ctx, cfg, result)
	if StatusCode(err) != http.StatusUnauthorized || cfg.op == "authenticate" {
		return err
	}
	logging.Ctx(ctx).Debug().Str("op", cfg.op).Msg("Kavita token rejected, re-authenticating")
	c.tokens.Invalidate(conn.tokenKey)
	return conn.rest.do(ctx, cfg, result)
}

func (c *KavitaClient) get(ctx context.Context, op, path string, query url.Values, result any) error {
	return c.do(ctx, c.conn, requestConfig{op: op, method: http.MethodGet, path: path, query: query}, result)
}

func (c *KavitaClient) post(ctx context.Context, op, path string, body, result any) error {
	return c.do(ctx, c.conn, requestConfig{op: op, method: http.MethodPost, path: path, body: body}, result)
}

func (c *KavitaClient) librariesVia(ctx context.Context, conn kavitaConn) (map[string]string, error) {
	var libs []map[string]any
	if err := c.do(ctx, conn, requestConfig{op: "list libraries", method: http.MethodGet, path: "/api/Library/libraries"}, &libs); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(libs))
	for _, l := range libs {
		out[str(l, "id")] = str(l, "name")
	}
	return out, nil
}

func (c *KavitaClient) Libraries(ctx context.Context) (map[string]string, error) {
	return c.librariesVia(ctx, c.conn)
}

func (c *KavitaClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	conn := c.conn
	if serverURL != "" || token != "" {
		if serverURL == "" {
			serverURL = c.cfg.URL
		}
		if token == "" {
			token = c.cfg.Token
		}
		conn = c.connect(c.anon, strings.TrimSuffix(serverURL, "/"), token)
	}
	libs, err := c.librariesVia(ctx, conn)
	if err != nil {
		return nil, err
	}
	return invertLibraries(libs), nil
}

func kavitaRoles(p media.StandardizedPermissions) []string {
	roles := []string{"Pleb", "Login", "Change Password"}
	if p.AllowDownloads {
		roles = append(roles, kavitaRoleDL)
	}
	if p.IsAdmin {
		roles = append(roles, kavitaRoleAdmin)
	}
	return roles
}

// kavitaLibraryIDs resolves a grant; Kavita wants integer library ids and
// has no "all libraries" flag.
func (c *KavitaClient) kavitaLibraryIDs(ctx context.Context, access media.LibraryAccess) ([]int, error) {
	var libs map[string]string
	if access.IsUnrestricted() {
		var err error
		if libs, err = c.Libraries(ctx); err != nil {
			return nil, err
		}
	}
	ids := grantIDs(access, libs)
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("kavita library id %q is not numeric", id)
		}
		out = append(out, n)
	}
	return out, nil
}

var kavitaNoAgeRestriction = map[string]any{"ageRating": 0, "includeUnknowns": true}

func (c *KavitaClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	libIDs, err := c.kavitaLibraryIDs(ctx, u.Grant.Access)
	if err != nil {
		return "", err
	}

	var invite struct {
		EmailLink string `json:"emailLink"`
	}
	err = c.post(ctx, "invite user", "/api/Account/invite", map[string]any{
		"email":          u.Email,
		"roles":          kavitaRoles(u.Grant.Permissions),
		"libraries":      libIDs,
		"ageRestriction": kavitaNoAgeRestriction,
	}, &invite)
	if err != nil {
		return "", err
	}

	link, err := url.Parse(invite.EmailLink)
	token := ""
	if err == nil {
		token = link.Query().Get("token")
	}
	if token == "" {
		return "", &ClientError{Vendor: "kavita", Op: "invite user", Message: "invite response carried no confirmation token"}
	}

	err = c.post(ctx, "confirm invite", "/api/Account/confirm-email", map[string]any{
		"email":    u.Email,
		"username": u.Username,
		"password": u.Password,
		"token":    token,
	}, nil)
	if err != nil {
		return "", err
	}

	user, err := c.findUser(ctx, func(m map[string]any) bool { return str(m, "username") == u.Username })
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", &ClientError{Vendor: "kavita", Op: "create user", Message: "confirmed user not found in roster"}
	}
	return str(user, "id"), nil
}

// update posts the full account record; Kavita has no partial update.
func (c *KavitaClient) update(ctx context.Context, user map[string]any, mutate func(body map[string]any)) error {
	libIDs := make([]int, 0)
	for _, l := range list(user, "libraries") {
		if n, err := strconv.Atoi(str(l, "id")); err == nil {
			libIDs = append(libIDs, n)
		}
	}
	age := obj(user, "ageRestriction")
	if age == nil {
		age = kavitaNoAgeRestriction
	}
	body := map[string]any{
		"userId":         user["id"],
		"username":       str(user, "username"),
		"email":          str(user, "email"),
		"roles":          strList(user, "roles"),
		"libraries":      libIDs,
		"ageRestriction": age,
	}
	mutate(body)
	return c.post(ctx, "update user", "/api/Account/update", body, nil)
}

func (c *KavitaClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}
	libIDs, err := c.kavitaLibraryIDs(ctx, grant.Access)
	if err != nil {
		return err
	}
	return c.update(ctx, user, func(body map[string]any) {
		body["libraries"] = libIDs
		body["roles"] = kavitaRoles(media.StandardizedPermissions{
			AllowDownloads: grant.Permissions.AllowDownloads,
			IsAdmin:        hasString(strList(user, "roles"), kavitaRoleAdmin),
		})
	})
}

func (c *KavitaClient) UpdateUser(ctx context.Context, id string, p UserPatch) error {
	if p.IsEmpty() {
		return nil
	}
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if p.Password != nil {
		err := c.post(ctx, "set password", "/api/Account/reset-password", map[string]any{
			"userName":    str(user, "username"),
			"password":    *p.Password,
			"oldPassword": "",
		}, nil)
		if err != nil {
			return err
		}
	}
	if p.Username == nil && p.Email == nil && p.Permissions == nil && p.Access == nil {
		return nil
	}
	var libIDs []int
	if p.Access != nil {
		if libIDs, err = c.kavitaLibraryIDs(ctx, *p.Access); err != nil {
			return err
		}
	}
	return c.update(ctx, user, func(body map[string]any) {
		if p.Username != nil {
			body["username"] = *p.Username
		}
		if p.Email != nil {
			body["email"] = *p.Email
		}
		if p.Permissions != nil {
			body["roles"] = kavitaRoles(*p.Permissions)
		}
		if p.Access != nil {
			body["libraries"] = libIDs
		}
	})
}

func (c *KavitaClient) DeleteUser(ctx context.Context, id string) error {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return c.do(ctx, c.conn, requestConfig{
		op:     "delete user",
		method: http.MethodDelete,
		path:   "/api/Users/delete-user",
		query:  url.Values{"username": {str(user, "username")}},
	}, nil)
}

// EnableUser cannot know which libraries to restore.
func (c *KavitaClient) EnableUser(context.Context, string) (bool, error) { return false, nil }

func (c *KavitaClient) DisableUser(ctx context.Context, id string) (bool, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	err = c.update(ctx, user, func(body map[string]any) {
		body["libraries"] = []int{}
	})
	return err == nil, err
}

// users pages through /api/Users until a short page. Servers that ignore
// the paging parameters return the same page again, which ends the loop.
func (c *KavitaClient) users(ctx context.Context) ([]map[string]any, error) {
	var all []map[string]any
	seen := map[string]bool{}
	for page := 1; ; page++ {
		var batch []map[string]any
		q := url.Values{
			"pageNumber": {strconv.Itoa(page)},
			"pageSize":   {strconv.Itoa(kavitaPageSize)},
		}
		if err := c.get(ctx, "list users", "/api/Users", q, &batch); err != nil {
			return nil, err
		}
		added := 0
		for _, u := range batch {
			id := str(u, "id")
			if seen[id] {
				continue
			}
			seen[id] = true
			all = append(all, u)
			added++
		}
		if len(batch) < kavitaPageSize || added == 0 {
			return all, nil
		}
	}
}

func (c *KavitaClient) findUser(ctx context.Context, match func(map[string]any) bool) (map[string]any, error) {
	users, err := c.users(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return nil, nil
}

func (c *KavitaClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	user, err := c.findUser(ctx, func(m map[string]any) bool { return str(m, "id") == id })
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &ClientError{Vendor: "kavita", Op: "get user", StatusCode: http.StatusNotFound, Message: "user " + id + " not found"}
	}
	return user, nil
}

func (c *KavitaClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return kavitaDetails(user), nil
}

func (c *KavitaClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	users, err := c.users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, kavitaDetails(u))
	}
	return out, nil
}

// kavitaDetails normalizes a Kavita member. Admins implicitly see every
// library; everyone else sees exactly the listed ones.
func kavitaDetails(user map[string]any) media.MediaUserDetails {
	roles := strList(user, "roles")
	perms := media.ForKavita(roles)
	access := media.Unrestricted()
	if !perms.IsAdmin {
		var libs []media.UserLibraryAccess
		for _, l := range list(user, "libraries") {
			libs = append(libs, media.UserLibraryAccess{LibraryID: str(l, "id"), LibraryName: str(l, "name"), HasAccess: true})
		}
		access = media.Restricted(libs)
	}
	return media.MediaUserDetails{
		UserID:      str(user, "id"),
		Username:    str(user, "username"),
		Email:       media.StringPtr(str(user, "email")),
		IsAdmin:     perms.IsAdmin,
		IsEnabled:   !media.Bool(user["isPending"]),
		CreatedAt:   media.ParseISODate(str(user, "created")),
		LastActive:  media.ParseISODate(str(user, "lastActive")),
		Access:      access,
		Permissions: perms,
		RawPolicies: map[string]any{"roles": user["roles"], "ageRestriction": user["ageRestriction"]},
	}
}

// NowPlaying is always empty: Kavita does not expose reading sessions.
func (c *KavitaClient) NowPlaying(context.Context) ([]media.Session, error) {
	return []media.Session{}, nil
}

func (c *KavitaClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *KavitaClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("kavita", time.Now().UTC())

	var info map[string]any
	if err := c.get(ctx, "server info", "/api/Server/server-info", nil, &info); err != nil {
		stats.AddError("server", err)
	} else {
		stats.Version = str(info, "kavitaVersion")
	}

	if libs, err := c.Libraries(ctx); err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(libs)
	}

	var counts map[string]any
	if err := c.get(ctx, "server stats", "/api/Stats/server/stats", nil, &counts); err != nil {
		stats.AddError("items", err)
	} else {
		stats.Libraries.Items["series"] = int(num(counts, "seriesCount"))
		stats.Libraries.Items["volumes"] = int(num(counts, "volumeCount"))
		stats.Libraries.Items["chapters"] = int(num(counts, "chapterCount"))
	}
	return stats, ctx.Err()
}

func hasString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
