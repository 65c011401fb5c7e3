// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
navidrome.go - Navidrome adapter (Subsonic API)

Every call is GET /rest/{method} with token authentication:

	u = admin username
	s = random salt, new for every request
	t = md5(password + s)
	v = API version, c = client name, f = json

Subsonic reports failures with HTTP 200 and status "failed"; those are
mapped to ClientError with an equivalent HTTP status so the circuit breaker
treats bad credentials as a client error. Users are keyed by username.
*/

package mediaclient

import (
	"context"
	"crypto/md5" //nolint:gosec // required by the Subsonic token scheme
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wizarr/internal/media"
)

const subsonicAPIVersion = "1.16.1"

func init() {
	Register("navidrome", func(cfg Config, deps Deps) (MediaClient, error) {
		return NewNavidromeClient(cfg, deps), nil
	})
}

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subsonicEnvelope struct {
	Response struct {
		Status        string         `json:"status"`
		Version       string         `json:"version"`
		ServerVersion string         `json:"serverVersion"`
		Error         *subsonicError `json:"error"`
	} `json:"subsonic-response"`
}

// subsonicStatus maps Subsonic error codes onto HTTP semantics.
func subsonicStatus(code int) int {
	switch code {
	case 10, 20, 30:
		return http.StatusBadRequest
	case 40, 41, 42, 43, 44:
		return http.StatusUnauthorized
	case 50:
		return http.StatusForbidden
	case 70:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// NavidromeClient manages Navidrome users over Subsonic.
type NavidromeClient struct {
	cfg  Config
	rest *restClient
	// salt is replaceable in tests.
	salt func() (string, error)
}

// NewNavidromeClient creates an adapter for admin cfg.Username with
// password cfg.Token.
func NewNavidromeClient(cfg Config, deps Deps) *NavidromeClient {
	return &NavidromeClient{
		cfg:  cfg,
		rest: newRESTClient("navidrome", cfg.URL, deps.withDefaults(), nil),
		salt: randomSalt,
	}
}

func randomSalt() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// subsonicToken returns md5(password + salt) in hex.
func subsonicToken(password, salt string) string {
	sum := md5.Sum([]byte(password + salt)) //nolint:gosec // protocol requirement
	return hex.EncodeToString(sum[:])
}

func (c *NavidromeClient) ServerType() string       { return "navidrome" }
func (c *NavidromeClient) KeyField() media.KeyField { return media.KeyByUsername }

// call invokes a Subsonic method and returns the inner response object.
func (c *NavidromeClient) call(ctx context.Context, rest *restClient, username, password, method string, params url.Values) (map[string]any, error) {
	salt, err := c.salt()
	if err != nil {
		return nil, &ClientError{Vendor: "navidrome", Op: method, Message: "generate salt", Err: err}
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("u", username)
	q.Set("t", subsonicToken(password, salt))
	q.Set("s", salt)
	q.Set("v", subsonicAPIVersion)
	q.Set("c", c.cfg.ClientID)
	q.Set("f", "json")

	body, _, err := rest.doRaw(ctx, requestConfig{op: method, method: http.MethodGet, path: "/rest/" + method, query: q})
	if err != nil {
		return nil, err
	}

	var env subsonicEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ClientError{Vendor: "navidrome", Op: method, Message: "decode response", Err: err}
	}
	if env.Response.Status != "ok" {
		ce := &ClientError{Vendor: "navidrome", Op: method, StatusCode: http.StatusBadGateway, Message: "request failed"}
		if env.Response.Error != nil {
			ce.StatusCode = subsonicStatus(env.Response.Error.Code)
			ce.Message = env.Response.Error.Message
		}
		return nil, ce
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ClientError{Vendor: "navidrome", Op: method, Message: "decode response", Err: err}
	}
	return raw["subsonic-response"], nil
}

func (c *NavidromeClient) admin(ctx context.Context, method string, params url.Values) (map[string]any, error) {
	return c.call(ctx, c.rest, c.cfg.Username, c.cfg.Token, method, params)
}

func folders(resp map[string]any) map[string]string {
	out := map[string]string{}
	for _, f := range list(obj(resp, "musicFolders"), "musicFolder") {
		out[str(f, "id")] = str(f, "name")
	}
	return out
}

func (c *NavidromeClient) Libraries(ctx context.Context) (map[string]string, error) {
	resp, err := c.admin(ctx, "getMusicFolders", nil)
	if err != nil {
		return nil, err
	}
	return folders(resp), nil
}

// ScanLibraries treats token as the admin password; the username is always
// the configured one.
func (c *NavidromeClient) ScanLibraries(ctx context.Context, serverURL, token string) (map[string]string, error) {
	rest := c.rest
	if serverURL != "" {
		rest = c.rest.withBase(serverURL, nil)
	}
	if token == "" {
		token = c.cfg.Token
	}
	resp, err := c.call(ctx, rest, c.cfg.Username, token, "getMusicFolders", nil)
	if err != nil {
		return nil, err
	}
	return invertLibraries(folders(resp)), nil
}

// encodePassword uses the Subsonic "enc:" hex form.
func encodePassword(pw string) string {
	return "enc:" + hex.EncodeToString([]byte(pw))
}

func setFolderParams(q url.Values, ids []string) {
	for _, id := range ids {
		q.Add("musicFolderId", id)
	}
}

func (c *NavidromeClient) grantParams(ctx context.Context, q url.Values, grant media.Grant) error {
	q.Set("downloadRole", strconv.FormatBool(grant.Permissions.AllowDownloads))
	q.Set("streamRole", "true")
	var libs map[string]string
	if grant.Access.IsUnrestricted() {
		var err error
		if libs, err = c.Libraries(ctx); err != nil {
			return err
		}
	}
	setFolderParams(q, grantIDs(grant.Access, libs))
	return nil
}

func (c *NavidromeClient) CreateUser(ctx context.Context, u NewUser) (string, error) {
	q := url.Values{
		"username":  {u.Username},
		"password":  {encodePassword(u.Password)},
		"email":     {u.Email},
		"adminRole": {"false"},
	}
	if err := c.grantParams(ctx, q, u.Grant); err != nil {
		return "", err
	}
	if _, err := c.admin(ctx, "createUser", q); err != nil {
		return "", err
	}
	return u.Username, nil
}

func (c *NavidromeClient) GrantAccess(ctx context.Context, id string, grant media.Grant) error {
	q := url.Values{"username": {id}}
	if err := c.grantParams(ctx, q, grant); err != nil {
		return err
	}
	_, err := c.admin(ctx, "updateUser", q)
	return err
}

// UpdateUser cannot rename: Subsonic identifies the account by username.
func (c *NavidromeClient) UpdateUser(ctx context.Context, id string, p UserPatch) error {
	if p.Username != nil && *p.Username != id {
		return ErrUnsupported
	}
	q := url.Values{"username": {id}}
	if p.Password != nil {
		q.Set("password", encodePassword(*p.Password))
	}
	if p.Email != nil {
		q.Set("email", *p.Email)
	}
	if p.Permissions != nil {
		q.Set("downloadRole", strconv.FormatBool(p.Permissions.AllowDownloads))
		q.Set("adminRole", strconv.FormatBool(p.Permissions.IsAdmin))
	}
	if p.Access != nil {
		var libs map[string]string
		if p.Access.IsUnrestricted() {
			var err error
			if libs, err = c.Libraries(ctx); err != nil {
				return err
			}
		}
		setFolderParams(q, grantIDs(*p.Access, libs))
	}
	if len(q) == 1 {
		return nil
	}
	_, err := c.admin(ctx, "updateUser", q)
	return err
}

func (c *NavidromeClient) DeleteUser(ctx context.Context, id string) error {
	_, err := c.admin(ctx, "deleteUser", url.Values{"username": {id}})
	return err
}

func (c *NavidromeClient) EnableUser(context.Context, string) (bool, error)  { return false, nil }
func (c *NavidromeClient) DisableUser(context.Context, string) (bool, error) { return false, nil }

func (c *NavidromeClient) GetUser(ctx context.Context, id string) (map[string]any, error) {
	resp, err := c.admin(ctx, "getUser", url.Values{"username": {id}})
	if err != nil {
		return nil, err
	}
	return obj(resp, "user"), nil
}

func (c *NavidromeClient) GetUserDetails(ctx context.Context, id string) (media.MediaUserDetails, error) {
	user, err := c.GetUser(ctx, id)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return media.MediaUserDetails{}, err
	}
	return navidromeDetails(user, libs), nil
}

func (c *NavidromeClient) ListRemoteUsers(ctx context.Context) ([]media.MediaUserDetails, error) {
	resp, err := c.admin(ctx, "getUsers", nil)
	if err != nil {
		return nil, err
	}
	libs, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	users := list(obj(resp, "users"), "user")
	out := make([]media.MediaUserDetails, 0, len(users))
	for _, u := range users {
		out = append(out, navidromeDetails(u, libs))
	}
	return out, nil
}

// navidromeDetails treats a folder list covering every music folder (or no
// list at all) as unrestricted.
func navidromeDetails(user map[string]any, libs map[string]string) media.MediaUserDetails {
	perms := media.ForNavidrome(user)
	access := media.Unrestricted()
	if has(user, "folder") && !perms.IsAdmin {
		ids := strList(user, "folder")
		if !coversAll(ids, libs) {
			access = accessFromIDs(ids, libs)
		}
	}
	username := str(user, "username")
	return media.MediaUserDetails{
		UserID:      username,
		Username:    username,
		Email:       media.StringPtr(str(user, "email")),
		IsAdmin:     perms.IsAdmin,
		IsEnabled:   true,
		LastActive:  media.ParseISODate(str(user, "scrobblingLastUpdate")),
		Access:      access,
		Permissions: perms,
		RawPolicies: user,
	}
}

func (c *NavidromeClient) NowPlaying(ctx context.Context) ([]media.Session, error) {
	resp, err := c.admin(ctx, "getNowPlaying", nil)
	if err != nil {
		return nil, err
	}
	entries := list(obj(resp, "nowPlaying"), "entry")
	out := make([]media.Session, 0, len(entries))
	for _, e := range entries {
		title := str(e, "title")
		if artist := str(e, "artist"); artist != "" {
			title = artist + " - " + title
		}
		out = append(out, media.Session{
			SessionID: str(e, "playerId") + ":" + str(e, "id"),
			UserName:  str(e, "username"),
			Title:     title,
			MediaType: "music",
			State:     "playing",
			Client:    str(e, "playerName"),
			Device:    str(e, "playerName"),
		})
	}
	return out, nil
}

func (c *NavidromeClient) Statistics(ctx context.Context) (media.Statistics, error) {
	return fullStatistics(ctx, c)
}

func (c *NavidromeClient) ReadonlyStatistics(ctx context.Context) (media.Statistics, error) {
	stats := media.NewStatistics("navidrome", time.Now().UTC())

	if resp, err := c.admin(ctx, "ping", nil); err != nil {
		stats.AddError("ping", err)
	} else {
		stats.Version = str(resp, "serverVersion")
		if stats.Version == "" {
			stats.Version = str(resp, "version")
		}
	}

	if libs, err := c.Libraries(ctx); err != nil {
		stats.AddError("libraries", err)
	} else {
		stats.Libraries.Total = len(libs)
	}

	if resp, err := c.admin(ctx, "getScanStatus", nil); err != nil {
		stats.AddError("scan status", err)
	} else {
		stats.Libraries.Items["songs"] = int(num(obj(resp, "scanStatus"), "count"))
	}

	if sessions, err := c.NowPlaying(ctx); err != nil {
		stats.AddError("sessions", err)
	} else {
		stats.ApplySessions(sessions)
	}
	return stats, ctx.Err()
}
