// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/metrics"
	"github.com/tomtom215/wizarr/internal/models"
)

// Reconciler aligns local users with remote rosters.
type Reconciler struct {
	store   Store
	clients ClientSource
	now     func() time.Time

	// locks serializes runs per server; concurrent runs against the same
	// server would compute overlapping diffs.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, clients ClientSource) *Reconciler {
	return &Reconciler{
		store:   store,
		clients: clients,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) serverLock(serverID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[serverID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[serverID] = l
	}
	return l
}

// Result summarizes one reconciliation run.
type Result struct {
	Inserted int
	Deleted  int
	Updated  int
	Adopted  int
}

// ListUsers fetches the remote roster of serverID, reconciles the local
// table against it and returns the resulting local users.
//
// A remote failure aborts the run before anything is written. A failed
// metadata commit is logged and the structurally reconciled rows are
// returned without error.
func (r *Reconciler) ListUsers(ctx context.Context, serverID string) ([]models.User, error) {
	users, _, err := r.Reconcile(ctx, serverID)
	return users, err
}

// Reconcile is ListUsers with run statistics.
func (r *Reconciler) Reconcile(ctx context.Context, serverID string) (users []models.User, res Result, err error) {
	lock := r.serverLock(serverID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	serverType := "unknown"
	defer func() {
		metrics.RecordSync(serverType, serverID, time.Since(start), res.Inserted, res.Deleted, res.Updated, res.Adopted, err)
	}()

	client, err := r.clients.ClientFor(ctx, serverID)
	if err != nil {
		return nil, res, fmt.Errorf("resolve client: %w", err)
	}
	serverType = client.ServerType()
	keyField := client.KeyField()
	logger := logging.ForServer(ctx, serverType, serverID)

	remote, err := client.ListRemoteUsers(ctx)
	if err != nil {
		metrics.SyncErrors.WithLabelValues(serverType, "remote").Inc()
		return nil, res, fmt.Errorf("list remote users: %w", err)
	}
	remoteByKey := indexRemote(keyField, remote)

	local, err := r.store.ListUsers(ctx, database.UserFilter{ServerID: serverID})
	if err != nil {
		return nil, res, fmt.Errorf("list local users: %w", err)
	}

	changes, err := r.diff(ctx, serverID, keyField, remote, remoteByKey, local)
	if err != nil {
		return nil, res, err
	}
	if err := r.store.ApplyRosterChanges(ctx, changes); err != nil {
		metrics.SyncErrors.WithLabelValues(serverType, "structural").Inc()
		return nil, res, fmt.Errorf("apply roster changes: %w", err)
	}
	res.Inserted, res.Deleted, res.Adopted = len(changes.Insert), len(changes.Delete), len(changes.Adopt)

	users, err = r.store.ListUsers(ctx, database.UserFilter{ServerID: serverID})
	if err != nil {
		return nil, res, fmt.Errorf("re-read local users: %w", err)
	}

	libraryNames, err := r.libraryNames(ctx, serverID)
	if err != nil {
		return nil, res, err
	}

	var updates []models.UserMetadata
	refreshed := slices.Clone(users)
	for i := range refreshed {
		details, ok := remoteByKey[keyField.Normalize(refreshed[i].Token)]
		if !ok {
			continue
		}
		meta := normalizedMetadata(refreshed[i], details, libraryNames)
		if metadataEqual(refreshed[i].Metadata(), meta) {
			continue
		}
		updates = append(updates, meta)
		applyMetadata(&refreshed[i], meta)
	}

	if err := r.store.UpdateUserMetadata(ctx, updates); err != nil {
		metrics.SyncErrors.WithLabelValues(serverType, "metadata").Inc()
		logger.Error().Err(err).Int("updates", len(updates)).
			Msg("Metadata update failed, returning structurally reconciled users")
		return users, res, nil
	}
	res.Updated = len(updates)

	if res != (Result{}) {
		logger.Info().
			Int("inserted", res.Inserted).
			Int("deleted", res.Deleted).
			Int("updated", res.Updated).
			Int("adopted", res.Adopted).
			Int("remote", len(remote)).
			Msg("User roster reconciled")
	}
	return refreshed, res, nil
}

// indexRemote maps normalized keys to details. Users without a key cannot
// be matched and are skipped; the first of any duplicate key wins.
func indexRemote(keyField media.KeyField, remote []media.MediaUserDetails) map[string]media.MediaUserDetails {
	byKey := make(map[string]media.MediaUserDetails, len(remote))
	for _, d := range remote {
		key := keyField.Normalize(keyField.RemoteKey(d))
		if key == "" {
			continue
		}
		if _, dup := byKey[key]; !dup {
			byKey[key] = d
		}
	}
	return byKey
}

func (r *Reconciler) diff(
	ctx context.Context,
	serverID string,
	keyField media.KeyField,
	remote []media.MediaUserDetails,
	remoteByKey map[string]media.MediaUserDetails,
	local []models.User,
) (database.RosterChanges, error) {
	changes := database.RosterChanges{ServerID: serverID}

	localKeys := make(map[string]bool, len(local))
	for _, u := range local {
		key := keyField.Normalize(u.Token)
		if _, ok := remoteByKey[key]; !ok || localKeys[key] {
			changes.Delete = append(changes.Delete, u.ID)
			continue
		}
		localKeys[key] = true
	}

	var missing []media.MediaUserDetails
	seen := make(map[string]bool)
	for _, d := range remote {
		key := keyField.Normalize(keyField.RemoteKey(d))
		if key == "" || localKeys[key] || seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return changes, nil
	}

	intents, err := r.store.ListOpenIntents(ctx, serverID)
	if err != nil {
		return changes, fmt.Errorf("list open intents: %w", err)
	}
	now := r.now().UTC()
	for _, d := range missing {
		user := models.User{
			Token:     keyField.RemoteKey(d),
			Username:  d.Username,
			Email:     d.EmailOrEmpty(),
			Code:      models.SyncedUserCode,
			ServerID:  serverID,
			CreatedAt: now,
		}
		if i := matchIntent(intents, d); i >= 0 {
			intent := intents[i]
			intents = slices.Delete(intents, i, i+1)
			user.Code = intent.InvitationCode
			user.Expires = r.adoptedExpiry(ctx, intent)
			changes.Adopt = append(changes.Adopt, database.Adoption{IntentID: intent.ID, User: len(changes.Insert)})
			logging.Ctx(ctx).Info().Str("intent_id", intent.ID).Str("username", d.Username).
				Msg("Adopting remote account from unfinished redemption")
		}
		changes.Insert = append(changes.Insert, user)
	}
	return changes, nil
}

// matchIntent finds the open intent that created d: by remote id when the
// intent recorded one, otherwise by username or e-mail.
func matchIntent(intents []models.ProvisionIntent, d media.MediaUserDetails) int {
	email := strings.ToLower(d.EmailOrEmpty())
	for i, in := range intents {
		switch {
		case in.RemoteID != "" && in.RemoteID == d.UserID:
			return i
		case strings.EqualFold(in.Username, d.Username):
			return i
		case email != "" && strings.EqualFold(in.Email, email):
			return i
		}
	}
	return -1
}

// adoptedExpiry applies the invitation's membership duration, counted from
// when the redemption started.
func (r *Reconciler) adoptedExpiry(ctx context.Context, intent models.ProvisionIntent) *time.Time {
	inv, err := r.store.GetInvitationByCode(ctx, intent.InvitationCode)
	if err != nil {
		if !errors.Is(err, database.ErrInvitationNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Str("code", intent.InvitationCode).Msg("Could not load invitation for adopted user")
		}
		return nil
	}
	return inv.MembershipExpiry(intent.CreatedAt)
}

// libraryNames maps external ids to the persisted display names.
func (r *Reconciler) libraryNames(ctx context.Context, serverID string) (map[string]string, error) {
	libs, err := r.store.ListLibraries(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	names := make(map[string]string, len(libs))
	for _, l := range libs {
		names[l.ExternalID] = l.Name
	}
	return names, nil
}

// normalizedMetadata derives the stored permission and library columns
// from remote details. Vendors without an e-mail field keep the local one.
func normalizedMetadata(u models.User, d media.MediaUserDetails, libraryNames map[string]string) models.UserMetadata {
	email := d.EmailOrEmpty()
	if email == "" {
		email = u.Email
	}
	return models.UserMetadata{
		ID:                  u.ID,
		IsAdmin:             d.IsAdmin || d.Permissions.IsAdmin,
		IsDisabled:          !d.IsEnabled,
		AllowDownloads:      d.Permissions.AllowDownloads,
		AllowLiveTV:         d.Permissions.AllowLiveTV,
		AllowCameraUpload:   d.Permissions.AllowCameraUpload,
		AccessibleLibraries: storedLibraries(d.Access, libraryNames),
		Email:               email,
	}
}

// storedLibraries returns nil for full access, otherwise the granted
// library names sorted case-insensitively. Persisted names win over the
// vendor's so renames made through a scan are reflected.
func storedLibraries(access media.LibraryAccess, libraryNames map[string]string) []string {
	if access.IsUnrestricted() {
		return nil
	}
	names := make([]string, 0)
	seen := make(map[string]bool)
	for _, lib := range access.Libraries() {
		if !lib.HasAccess {
			continue
		}
		name := lib.LibraryName
		if persisted, ok := libraryNames[lib.LibraryID]; ok && lib.LibraryID != "" {
			name = persisted
		}
		if name == "" {
			name = lib.LibraryID
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

func metadataEqual(a, b models.UserMetadata) bool {
	if a.IsAdmin != b.IsAdmin || a.IsDisabled != b.IsDisabled ||
		a.AllowDownloads != b.AllowDownloads || a.AllowLiveTV != b.AllowLiveTV ||
		a.AllowCameraUpload != b.AllowCameraUpload || a.Email != b.Email {
		return false
	}
	if (a.AccessibleLibraries == nil) != (b.AccessibleLibraries == nil) {
		return false
	}
	return slices.Equal(a.AccessibleLibraries, b.AccessibleLibraries)
}

func applyMetadata(u *models.User, m models.UserMetadata) {
	u.IsAdmin = m.IsAdmin
	u.IsDisabled = m.IsDisabled
	u.AllowDownloads = m.AllowDownloads
	u.AllowLiveTV = m.AllowLiveTV
	u.AllowCameraUpload = m.AllowCameraUpload
	u.AccessibleLibraries = m.AccessibleLibraries
	u.Email = m.Email
}
