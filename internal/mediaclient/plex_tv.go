// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/models"
)

// plexRosterEntry is one friend or home user merged with this server's share.
type plexRosterEntry struct {
	// id is the plex.tv account id used by the removal endpoints. It is
	// empty for pending invites.
	id      string
	home    bool
	pending bool
	raw     map[string]any
	details media.MediaUserDetails
}

// plexSectionLookup serves the live section list to LibraryAccessHelper.
type plexSectionLookup []plexSection

func (l plexSectionLookup) ListLibraries(_ context.Context, serverID string) ([]models.Library, error) {
	out := make([]models.Library, 0, len(l))
	for _, s := range l {
		out = append(out, models.Library{ExternalID: s.Key, Name: s.Title, ServerID: serverID, Enabled: true})
	}
	return out, nil
}

func (c *PlexClient) invalidateRoster() {
	c.cache.Remove(c.cacheKey("roster"))
}

// roster merges plex.tv friends and home users with the shared_servers
// records of this machine. Accounts without an e-mail cannot be keyed and
// are skipped, as is the Home administrator (the owner).
func (c *PlexClient) roster(ctx context.Context) ([]plexRosterEntry, error) {
	key := c.cacheKey("roster")
	if v, ok := c.cache.Get(key); ok {
		if entries, ok := v.([]plexRosterEntry); ok {
			return entries, nil
		}
	}

	machineID, err := c.machineIdentifier(ctx)
	if err != nil {
		return nil, err
	}

	var friends []map[string]any
	if err := c.tv.get(ctx, "list friends", "/api/v2/friends", nil, &friends); err != nil {
		return nil, err
	}

	var sharedResp struct {
		MediaContainer struct {
			SharedServer []map[string]any `json:"SharedServer"`
		} `json:"MediaContainer"`
	}
	if err := c.tv.get(ctx, "list shares", "/api/servers/"+url.PathEscape(machineID)+"/shared_servers", nil, &sharedResp); err != nil {
		return nil, err
	}
	shares := make(map[string]map[string]any, len(sharedResp.MediaContainer.SharedServer))
	var shareOrder []string
	for _, s := range sharedResp.MediaContainer.SharedServer {
		if email := media.KeyByEmail.Normalize(str(s, "email")); email != "" {
			if _, dup := shares[email]; !dup {
				shareOrder = append(shareOrder, email)
			}
			shares[email] = s
		}
	}

	secs, err := c.sections(ctx, c.server)
	if err != nil {
		return nil, err
	}
	helper := media.LibraryAccessHelper{Store: plexSectionLookup(secs)}

	var homeResp struct {
		Users []map[string]any `json:"users"`
	}
	if err := c.tv.get(ctx, "list home users", "/api/home/users", nil, &homeResp); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	entries := make([]plexRosterEntry, 0, len(friends)+len(homeResp.Users)+len(shares))
	add := func(account map[string]any, home, pending bool) error {
		email := media.KeyByEmail.Normalize(str(account, "email"))
		if email == "" || seen[email] {
			return nil
		}
		seen[email] = true
		raw := mergePlexRecord(account, shares[email])
		raw["home"] = home
		raw["pending"] = pending
		details, err := plexDetails(ctx, helper, c.cfg.ServerID, email, raw, shares[email])
		if err != nil {
			return err
		}
		id := str(account, "id")
		if pending {
			id = ""
		}
		entries = append(entries, plexRosterEntry{id: id, home: home, pending: pending, raw: raw, details: details})
		return nil
	}
	for _, f := range friends {
		if err := add(f, media.Bool(f["home"]), false); err != nil {
			return nil, err
		}
	}
	for _, h := range homeResp.Users {
		if media.Bool(h["admin"]) {
			continue
		}
		if err := add(h, true, false); err != nil {
			return nil, err
		}
	}
	// A share whose invitee has not accepted yet has no friend record. It is
	// still a remote account for this server and is keyed by the invited
	// e-mail so the local row survives until acceptance.
	for _, email := range shareOrder {
		if err := add(shares[email], false, true); err != nil {
			return nil, err
		}
	}

	c.cache.Add(key, entries)
	return entries, nil
}

// mergePlexRecord overlays the share flags on the account record.
func mergePlexRecord(account, share map[string]any) map[string]any {
	raw := make(map[string]any, len(account)+6)
	for k, v := range account {
		raw[k] = v
	}
	for _, k := range []string{"allowSync", "allowCameraUpload", "allowChannels", "allLibraries", "acceptedAt", "invitedAt"} {
		if share != nil && has(share, k) {
			raw[k] = share[k]
		}
	}
	if share != nil {
		raw["sharedServerId"] = str(share, "id")
		raw["sections"] = share["Section"]
	}
	raw["admin"] = false
	return raw
}

func plexDetails(ctx context.Context, helper media.LibraryAccessHelper, serverID, email string, raw, share map[string]any) (media.MediaUserDetails, error) {
	username := str(raw, "username")
	if username == "" {
		username = str(raw, "title")
	}
	if username == "" {
		username = email
	}

	access := media.Restricted(nil)
	if share != nil {
		if media.Bool(share["allLibraries"]) {
			access = helper.CreateFullAccess()
		} else {
			var names []string
			for _, s := range list(share, "Section") {
				if media.Bool(s["shared"]) {
					names = append(names, str(s, "title"))
				}
			}
			var err error
			if access, err = helper.CreateFromSections(ctx, names, serverID); err != nil {
				return media.MediaUserDetails{}, err
			}
		}
	}

	created := media.ParseTimestamp(share["acceptedAt"])
	if created == nil {
		created = media.ParseTimestamp(raw["invitedAt"])
	}

	return media.MediaUserDetails{
		UserID:      email,
		Username:    username,
		Email:       media.StringPtr(email),
		IsAdmin:     false,
		IsEnabled:   true,
		CreatedAt:   created,
		Access:      access,
		Permissions: media.ForPlex(raw),
		RawPolicies: raw,
	}, nil
}

func (c *PlexClient) findRosterEntry(ctx context.Context, email string) (*plexRosterEntry, error) {
	roster, err := c.roster(ctx)
	if err != nil {
		return nil, err
	}
	want := media.KeyByEmail.Normalize(email)
	for i := range roster {
		if roster[i].details.UserID == want {
			return &roster[i], nil
		}
	}
	return nil, nil
}

type plexSharedServer struct {
	ID string
}

func (c *PlexClient) findSharedServer(ctx context.Context, email string) (*plexSharedServer, error) {
	entry, err := c.findRosterEntry(ctx, email)
	if err != nil || entry == nil {
		return nil, err
	}
	id := str(entry.raw, "sharedServerId")
	if id == "" {
		return nil, nil
	}
	return &plexSharedServer{ID: id}, nil
}

func (c *PlexClient) shareBody(ctx context.Context, grant media.Grant) (map[string]any, error) {
	libs, err := c.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	ids := grantIDs(grant.Access, libs)
	sectionIDs := make([]int, 0, len(ids))
	for _, id := range ids {
		if n, err := strconv.Atoi(id); err == nil {
			sectionIDs = append(sectionIDs, n)
		}
	}
	return map[string]any{
		"librarySectionIds": sectionIDs,
		"settings": map[string]any{
			"allowSync":         grant.Permissions.AllowDownloads,
			"allowCameraUpload": grant.Permissions.AllowCameraUpload,
			"allowChannels":     grant.Permissions.AllowLiveTV,
		},
	}, nil
}

func (c *PlexClient) share(ctx context.Context, email string, grant media.Grant) error {
	machineID, err := c.machineIdentifier(ctx)
	if err != nil {
		return err
	}
	body, err := c.shareBody(ctx, grant)
	if err != nil {
		return err
	}
	body["machineIdentifier"] = machineID
	body["invitedEmail"] = email
	return c.tv.send(ctx, "share libraries", http.MethodPost, "/api/v2/shared_servers", body, nil)
}

func (c *PlexClient) updateShare(ctx context.Context, sharedServerID string, grant media.Grant) error {
	body, err := c.shareBody(ctx, grant)
	if err != nil {
		return err
	}
	return c.tv.send(ctx, "update share", http.MethodPut, "/api/v2/shared_servers/"+url.PathEscape(sharedServerID), body, nil)
}

func (c *PlexClient) inviteHome(ctx context.Context, email string) error {
	return c.tv.do(ctx, requestConfig{
		op:     "invite home user",
		method: http.MethodPost,
		path:   "/api/home/users",
		query:  url.Values{"invitedEmail": {email}},
	}, nil)
}
