// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/models"
)

// testDBSemaphore serializes DuckDB usage across tests. Concurrent CGO
// connections under load have been seen to hang in CI.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates an in-memory database that lives for the whole test.
// The semaphore is held until cleanup, not just during creation.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { closeQuietly(db) })
	return db
}

// seedServer inserts an enabled Jellyfin server and returns its id.
func seedServer(t *testing.T, db *DB) string {
	t.Helper()
	server := &models.MediaServer{
		Name:       "Living Room",
		ServerType: "jellyfin",
		URL:        "http://jellyfin:8096",
		Enabled:    true,
	}
	checkNoError(t, db.CreateMediaServer(context.Background(), server))
	return server.ID
}

// ============================================================================
// Schema and migrations
// ============================================================================

func TestNew_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	version, err := db.GetCurrentSchemaVersion(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "schema version", version, len(getMigrations()))

	// Re-running is a no-op.
	checkNoError(t, db.runVersionedMigrations())
	version, err = db.GetCurrentSchemaVersion(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "schema version after rerun", version, len(getMigrations()))

	checkNoError(t, db.Ping(ctx))
}

func TestSettings_LegacyPlaceholders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// The placeholder row exists but holds NULL.
	value, err := db.GetSetting(ctx, models.SettingServerType)
	checkNoError(t, err)
	checkStringEqual(t, "server_type", value, "")

	_, err = db.GetSetting(ctx, "does_not_exist")
	checkErrorIs(t, err, ErrSettingNotFound)

	checkNoError(t, db.SetSetting(ctx, models.SettingServerType, "jellyfin"))
	checkNoError(t, db.SetSetting(ctx, models.SettingServerType, "emby"))
	value, err = db.GetSetting(ctx, models.SettingServerType)
	checkNoError(t, err)
	checkStringEqual(t, "server_type after upsert", value, "emby")

	settings, err := db.ListSettings(ctx)
	checkNoError(t, err)
	checkIntEqual(t, "settings count", len(settings), 3)
}

// ============================================================================
// Media servers
// ============================================================================

func TestMediaServers_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedServer(t, db)
	disabled := &models.MediaServer{Name: "Books", ServerType: "kavita", URL: "http://kavita:5000"}
	checkNoError(t, db.CreateMediaServer(ctx, disabled))

	got, err := db.GetMediaServer(ctx, id)
	checkNoError(t, err)
	checkStringEqual(t, "server type", got.ServerType, "jellyfin")
	checkStringEqual(t, "api key", got.APIKeyEncrypted, "")

	all, err := db.ListMediaServers(ctx, false)
	checkNoError(t, err)
	checkIntEqual(t, "all servers", len(all), 2)
	enabled, err := db.ListMediaServers(ctx, true)
	checkNoError(t, err)
	checkIntEqual(t, "enabled servers", len(enabled), 1)

	got.APIKeyEncrypted = "sealed"
	got.DefaultAllowDownloads = true
	checkNoError(t, db.UpdateMediaServer(ctx, got))
	got, err = db.GetMediaServer(ctx, id)
	checkNoError(t, err)
	checkStringEqual(t, "api key after update", got.APIKeyEncrypted, "sealed")
	checkBool(t, "default downloads", got.DefaultAllowDownloads, true)

	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "u1", Username: "alice", Code: "C", ServerID: id}))
	checkNoError(t, db.DeleteMediaServer(ctx, id))
	_, err = db.GetMediaServer(ctx, id)
	checkErrorIs(t, err, ErrServerNotFound)
	users, err := db.ListUsers(ctx, UserFilter{ServerID: id})
	checkNoError(t, err)
	checkIntEqual(t, "users after server delete", len(users), 0)

	checkErrorIs(t, db.DeleteMediaServer(ctx, "missing"), ErrServerNotFound)
}

// ============================================================================
// Libraries
// ============================================================================

func TestUpsertLibraries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.UpsertLibraries(ctx, serverID, map[string]string{
		"lib-tv":     "TV Shows",
		"lib-movies": "Movies",
	}))
	libs, err := db.ListLibraries(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "libraries", len(libs), 2)
	checkStringEqual(t, "first by name", libs[0].Name, "Movies")
	moviesID := libs[0].ID

	checkNoError(t, db.SetLibraryEnabled(ctx, moviesID, false))
	enabled, err := db.ListEnabledLibraries(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "enabled libraries", len(enabled), 1)

	// Rename movies, drop tv, add music. The movies row keeps id and flag.
	checkNoError(t, db.UpsertLibraries(ctx, serverID, map[string]string{
		"lib-movies": "Films",
		"lib-music":  "Music",
	}))
	libs, err = db.ListLibraries(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "libraries after rescan", len(libs), 2)
	checkStringEqual(t, "renamed", libs[0].Name, "Films")
	if libs[0].ID != moviesID || libs[0].Enabled {
		t.Errorf("rescan should keep id and enabled flag, got %+v", libs[0])
	}

	checkNoError(t, db.UpsertLibraries(ctx, serverID, map[string]string{}))
	libs, err = db.ListLibraries(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "libraries after empty scan", len(libs), 0)

	checkErrorIs(t, db.SetLibraryEnabled(ctx, 9999, true), ErrLibraryNotFound)
}

// ============================================================================
// Users
// ============================================================================

func TestUsers_LibraryListStorage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	full := &models.User{Token: "full", Username: "full", Code: "A", ServerID: serverID}
	none := &models.User{Token: "none", Username: "none", Code: "A", ServerID: serverID, AccessibleLibraries: []string{}}
	some := &models.User{Token: "some", Username: "some", Code: "A", ServerID: serverID,
		AccessibleLibraries: []string{"Movies", "TV Shows"}}
	for _, u := range []*models.User{full, none, some} {
		checkNoError(t, db.CreateUser(ctx, u))
	}

	got, err := db.GetUser(ctx, full.ID)
	checkNoError(t, err)
	checkBool(t, "nil list is full access", got.HasFullAccess(), true)

	got, err = db.GetUserByToken(ctx, serverID, "none")
	checkNoError(t, err)
	checkBool(t, "empty list is restricted", got.HasFullAccess(), false)
	checkIntEqual(t, "empty list length", len(got.AccessibleLibraries), 0)

	got, err = db.GetUser(ctx, some.ID)
	checkNoError(t, err)
	checkStrings(t, "restricted list", got.AccessibleLibraries, []string{"Movies", "TV Shows"})
}

func TestUsers_UniqueTokenPerServer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "t", Username: "a", Code: "A", ServerID: serverID}))
	err := db.CreateUser(ctx, &models.User{Token: "t", Username: "b", Code: "A", ServerID: serverID})
	checkErrorIs(t, err, ErrUserExists)

	// Same token on another server is fine.
	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "t", Username: "a", Code: "A", ServerID: "other"}))
}

func TestUsers_FindAndFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "1", Username: "Alice", Email: "Alice@Example.com",
		Code: "ABC", ServerID: serverID, Expires: &past}))
	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "2", Username: "bob", Code: models.SyncedUserCode,
		ServerID: serverID, Expires: &future}))
	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "3", Username: "carol", Code: "ABC", ServerID: serverID}))

	found, err := db.FindUserByUsernameOrEmail(ctx, serverID, "nobody", "alice@example.COM")
	checkNoError(t, err)
	checkStringEqual(t, "found by email", found.Token, "1")

	found, err = db.FindUserByUsernameOrEmail(ctx, serverID, "BOB", "")
	checkNoError(t, err)
	checkStringEqual(t, "found by username", found.Token, "2")

	_, err = db.FindUserByUsernameOrEmail(ctx, serverID, "dave", "dave@example.com")
	checkErrorIs(t, err, ErrUserNotFound)

	byCode, err := db.ListUsers(ctx, UserFilter{ServerID: serverID, Code: "ABC"})
	checkNoError(t, err)
	checkIntEqual(t, "users with code ABC", len(byCode), 2)

	expired, err := db.ExpiredUsers(ctx, time.Now())
	checkNoError(t, err)
	checkIntEqual(t, "expired users", len(expired), 1)
	checkStringEqual(t, "expired user", expired[0].Username, "Alice")
	if expired[0].Expires == nil || !expired[0].Expires.Equal(past.UTC().Truncate(time.Microsecond)) {
		t.Errorf("expires round trip: got %v, want %v", expired[0].Expires, past.UTC())
	}
}

func TestUsers_DisableAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	u := &models.User{Token: "1", Username: "alice", Code: "A", ServerID: serverID}
	checkNoError(t, db.CreateUser(ctx, u))

	checkNoError(t, db.SetUserDisabled(ctx, u.ID, true))
	got, err := db.GetUser(ctx, u.ID)
	checkNoError(t, err)
	checkBool(t, "disabled", got.IsDisabled, true)

	checkNoError(t, db.DeleteUser(ctx, u.ID))
	checkErrorIs(t, db.DeleteUser(ctx, u.ID), ErrUserNotFound)
	checkErrorIs(t, db.SetUserDisabled(ctx, u.ID, false), ErrUserNotFound)
}

// ============================================================================
// Invitations
// ============================================================================

func TestInvitations_CreateAndLoad(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.UpsertLibraries(ctx, serverID, map[string]string{"lib-movies": "Movies", "lib-tv": "TV Shows"}))
	libs, err := db.ListLibraries(ctx, serverID)
	checkNoError(t, err)

	days := 7
	downloads := true
	inv := &models.Invitation{
		ServerID:       serverID,
		DurationDays:   &days,
		AllowDownloads: &downloads,
		Libraries:      libs[1:],
	}
	checkNoError(t, db.CreateInvitation(ctx, inv))
	if len(inv.Code) != inviteCodeLength {
		t.Fatalf("generated code %q has length %d", inv.Code, len(inv.Code))
	}

	got, err := db.GetInvitationByCode(ctx, inv.Code)
	checkNoError(t, err)
	checkIntEqual(t, "libraries", len(got.Libraries), 1)
	checkStringEqual(t, "library", got.Libraries[0].Name, "TV Shows")
	if got.DurationDays == nil || *got.DurationDays != 7 {
		t.Errorf("DurationDays = %v", got.DurationDays)
	}
	if got.AllowDownloads == nil || !*got.AllowDownloads {
		t.Errorf("AllowDownloads = %v", got.AllowDownloads)
	}
	if got.AllowLiveTV != nil {
		t.Errorf("unset AllowLiveTV should stay nil, got %v", *got.AllowLiveTV)
	}

	dup := &models.Invitation{Code: inv.Code, ServerID: serverID}
	checkErrorIs(t, db.CreateInvitation(ctx, dup), ErrInvitationExists)

	list, err := db.ListInvitations(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "invitations", len(list), 1)

	checkNoError(t, db.DeleteInvitation(ctx, inv.Code))
	_, err = db.GetInvitationByCode(ctx, inv.Code)
	checkErrorIs(t, err, ErrInvitationNotFound)
}

// ============================================================================
// Redemption
// ============================================================================

func TestCompleteRedemption_SingleUse(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "ABC123", ServerID: serverID}))
	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "ABC123", Username: "alice"}
	checkNoError(t, db.CreateIntent(ctx, intent))

	first := &models.User{Token: "remote-1", Username: "alice", Code: "ABC123", ServerID: serverID}
	checkNoError(t, db.CompleteRedemption(ctx, first, intent.ID))

	inv, err := db.GetInvitationByCode(ctx, "ABC123")
	checkNoError(t, err)
	checkBool(t, "used", inv.Used, true)
	if inv.UsedBy == nil || *inv.UsedBy != first.ID {
		t.Errorf("UsedBy = %v, want %d", inv.UsedBy, first.ID)
	}
	stored, err := db.GetIntent(ctx, intent.ID)
	checkNoError(t, err)
	checkStringEqual(t, "intent state", string(stored.State), string(models.IntentCompleted))
	checkStringEqual(t, "intent remote id", stored.RemoteID, "remote-1")

	second := &models.User{Token: "remote-2", Username: "bob", Code: "ABC123", ServerID: serverID}
	checkErrorIs(t, db.CompleteRedemption(ctx, second, ""), ErrInvitationUsed)

	// The rolled back insert left no row behind.
	_, err = db.GetUserByToken(ctx, serverID, "remote-2")
	checkErrorIs(t, err, ErrUserNotFound)
}

func TestCompleteRedemption_Unlimited(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "MANY", ServerID: serverID, Unlimited: true}))
	for _, token := range []string{"r1", "r2", "r3"} {
		u := &models.User{Token: token, Username: token, Code: "MANY", ServerID: serverID}
		checkNoError(t, db.CompleteRedemption(ctx, u, ""))
	}
	users, err := db.ListUsers(ctx, UserFilter{Code: "MANY"})
	checkNoError(t, err)
	checkIntEqual(t, "users from unlimited code", len(users), 3)
}

// ============================================================================
// Roster writes
// ============================================================================

func TestApplyRosterChanges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	stale := &models.User{Token: "gone", Username: "gone", Code: models.SyncedUserCode, ServerID: serverID}
	checkNoError(t, db.CreateUser(ctx, stale))
	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "XYZ", Username: "orphan"}
	checkNoError(t, db.CreateIntent(ctx, intent))
	checkNoError(t, db.UpdateIntentState(ctx, intent.ID, models.IntentRemoteCreated, "orphan-id", ""))

	open, err := db.ListOpenIntents(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "open intents", len(open), 1)

	changes := RosterChanges{
		ServerID: serverID,
		Delete:   []int64{stale.ID},
		Insert: []models.User{
			{Token: "new", Username: "new", Code: models.SyncedUserCode},
			{Token: "orphan-id", Username: "orphan", Code: "XYZ"},
		},
		Adopt: []Adoption{{IntentID: intent.ID, User: 1}},
	}
	checkNoError(t, db.ApplyRosterChanges(ctx, changes))

	users, err := db.ListUsers(ctx, UserFilter{ServerID: serverID})
	checkNoError(t, err)
	checkIntEqual(t, "users after apply", len(users), 2)
	checkStringEqual(t, "adopted code", users[1].Code, "XYZ")

	open, err = db.ListOpenIntents(ctx, serverID)
	checkNoError(t, err)
	checkIntEqual(t, "open intents after adopt", len(open), 0)
	adopted, err := db.GetIntent(ctx, intent.ID)
	checkNoError(t, err)
	checkStringEqual(t, "adopted state", string(adopted.State), string(models.IntentAdopted))
	checkStringEqual(t, "remote id kept", adopted.RemoteID, "orphan-id")
}

func TestApplyRosterChanges_AdoptionClaimsInvitation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "ORPHAN", ServerID: serverID}))
	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "ORPHAN", Username: "carol"}
	checkNoError(t, db.CreateIntent(ctx, intent))
	checkNoError(t, db.UpdateIntentState(ctx, intent.ID, models.IntentRemoteCreated, "carol-id", ""))

	changes := RosterChanges{
		ServerID: serverID,
		Insert:   []models.User{{Token: "carol-id", Username: "carol", Code: "ORPHAN"}},
		Adopt:    []Adoption{{IntentID: intent.ID, User: 0}},
	}
	checkNoError(t, db.ApplyRosterChanges(ctx, changes))

	inv, err := db.GetInvitationByCode(ctx, "ORPHAN")
	checkNoError(t, err)
	checkBool(t, "used after adoption", inv.Used, true)
	if inv.UsedBy == nil || *inv.UsedBy != changes.Insert[0].ID {
		t.Errorf("UsedBy = %v, want %d", inv.UsedBy, changes.Insert[0].ID)
	}

	// The claimed code cannot be redeemed by someone else.
	dave := &models.User{Token: "dave-id", Username: "dave", Code: "ORPHAN", ServerID: serverID}
	checkErrorIs(t, db.CompleteRedemption(ctx, dave, ""), ErrInvitationUsed)
}

func TestApplyRosterChanges_AdoptionKeepsConsumedInvitation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "TAKEN", ServerID: serverID}))
	first := &models.User{Token: "first", Username: "first", Code: "TAKEN", ServerID: serverID}
	checkNoError(t, db.CompleteRedemption(ctx, first, ""))

	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "TAKEN", Username: "late"}
	checkNoError(t, db.CreateIntent(ctx, intent))
	checkNoError(t, db.ApplyRosterChanges(ctx, RosterChanges{
		ServerID: serverID,
		Insert:   []models.User{{Token: "late", Username: "late", Code: "TAKEN"}},
		Adopt:    []Adoption{{IntentID: intent.ID, User: 0}},
	}))

	inv, err := db.GetInvitationByCode(ctx, "TAKEN")
	checkNoError(t, err)
	if inv.UsedBy == nil || *inv.UsedBy != first.ID {
		t.Errorf("UsedBy = %v, want first redeemer %d", inv.UsedBy, first.ID)
	}
}

func TestCompleteRedemption_AfterAdoption(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "RACE", ServerID: serverID}))
	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "RACE", Username: "erin"}
	checkNoError(t, db.CreateIntent(ctx, intent))
	checkNoError(t, db.UpdateIntentState(ctx, intent.ID, models.IntentRemoteCreated, "erin-id", ""))

	// A sync adopts the account before the redemption commits.
	changes := RosterChanges{
		ServerID: serverID,
		Insert:   []models.User{{Token: "erin-id", Username: "erin", Code: "RACE"}},
		Adopt:    []Adoption{{IntentID: intent.ID, User: 0}},
	}
	checkNoError(t, db.ApplyRosterChanges(ctx, changes))

	erin := &models.User{Token: "erin-id", Username: "erin", Code: "RACE", ServerID: serverID}
	checkNoError(t, db.CompleteRedemption(ctx, erin, intent.ID))
	if erin.ID != changes.Insert[0].ID {
		t.Errorf("user id = %d, want adopted row %d", erin.ID, changes.Insert[0].ID)
	}

	stored, err := db.GetIntent(ctx, intent.ID)
	checkNoError(t, err)
	checkStringEqual(t, "intent state", string(stored.State), string(models.IntentCompleted))

	users, err := db.ListUsers(ctx, UserFilter{ServerID: serverID})
	checkNoError(t, err)
	checkIntEqual(t, "users", len(users), 1)
}

func TestCompleteRedemption_ExistingUserNotAdopted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	checkNoError(t, db.CreateInvitation(ctx, &models.Invitation{Code: "DUPE", ServerID: serverID}))
	checkNoError(t, db.CreateUser(ctx, &models.User{Token: "frank-id", Username: "frank", Code: models.SyncedUserCode, ServerID: serverID}))
	intent := &models.ProvisionIntent{ServerID: serverID, InvitationCode: "DUPE", Username: "frank"}
	checkNoError(t, db.CreateIntent(ctx, intent))

	frank := &models.User{Token: "frank-id", Username: "frank", Code: "DUPE", ServerID: serverID}
	checkErrorIs(t, db.CompleteRedemption(ctx, frank, intent.ID), ErrUserExists)

	inv, err := db.GetInvitationByCode(ctx, "DUPE")
	checkNoError(t, err)
	checkBool(t, "used", inv.Used, false)
}

func TestApplyRosterChanges_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	keep := &models.User{Token: "keep", Username: "keep", Code: models.SyncedUserCode, ServerID: serverID}
	checkNoError(t, db.CreateUser(ctx, keep))

	err := db.ApplyRosterChanges(ctx, RosterChanges{
		ServerID: serverID,
		Delete:   []int64{keep.ID},
		Adopt:    []Adoption{{IntentID: "no-such-intent"}},
	})
	if !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
	_, err = db.GetUser(ctx, keep.ID)
	checkNoError(t, err)
}

func TestUpdateUserMetadata(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	serverID := seedServer(t, db)

	u := &models.User{Token: "1", Username: "alice", Code: "A", ServerID: serverID}
	checkNoError(t, db.CreateUser(ctx, u))

	checkNoError(t, db.UpdateUserMetadata(ctx, []models.UserMetadata{{
		ID:                  u.ID,
		IsAdmin:             true,
		AllowDownloads:      true,
		AccessibleLibraries: []string{"Movies"},
		Email:               "alice@example.com",
	}}))

	got, err := db.GetUser(ctx, u.ID)
	checkNoError(t, err)
	checkBool(t, "admin", got.IsAdmin, true)
	checkBool(t, "downloads", got.AllowDownloads, true)
	checkBool(t, "live tv", got.AllowLiveTV, false)
	checkStrings(t, "libraries", got.AccessibleLibraries, []string{"Movies"})
	checkStringEqual(t, "email", got.Email, "alice@example.com")
}

// ============================================================================
// Helpers
// ============================================================================

func TestLibraryNameEncoding(t *testing.T) {
	tests := []struct {
		name  string
		in    []string
		valid bool
		text  string
	}{
		{"nil is NULL", nil, false, ""},
		{"empty is []", []string{}, true, "[]"},
		{"names", []string{"A", "B"}, true, `["A","B"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeLibraryNames(tt.in)
			checkNoError(t, err)
			checkBool(t, "valid", got.Valid, tt.valid)
			checkStringEqual(t, "text", got.String, tt.text)
		})
	}

	if decodeLibraryNames(sql.NullString{}) != nil {
		t.Error("NULL should decode to nil")
	}
	if got := decodeLibraryNames(sql.NullString{String: "not json", Valid: true}); got == nil || len(got) != 0 {
		t.Errorf("garbage should decode to an empty restriction, got %v", got)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	checkBool(t, "nil", isUniqueConstraintError(nil), false)
	checkBool(t, "duplicate key", isUniqueConstraintError(errors.New("Constraint Error: Duplicate key \"code: X\"")), true)
	checkBool(t, "other", isUniqueConstraintError(errors.New("syntax error")), false)
}
