// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/tomtom215/wizarr/internal/media"
)

func komgaFixture(t *testing.T) (*fakeServer, *KomgaClient) {
	t.Helper()
	fs := newFakeServer(t)
	fs.respond("GET /api/v1/libraries", http.StatusOK, []map[string]any{
		{"id": "L1", "name": "Comics"},
		{"id": "L2", "name": "Manga"},
	})
	return fs, NewKomgaClient(testConfig("komga", fs.URL()), Deps{})
}

// ============================================================================
// Roster
// ============================================================================

func TestKomga_ListRemoteUsers(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("GET /api/v2/users", http.StatusOK, []map[string]any{
		{"id": "k1", "email": "admin@example.com", "roles": []string{"ADMIN", "FILE_DOWNLOAD"}, "sharedAllLibraries": true},
		{"id": "k2", "email": "reader@example.com", "roles": []string{"PAGE_STREAMING"}, "sharedAllLibraries": false, "sharedLibrariesIds": []string{"L2"}},
		{"id": "k3", "email": "none@example.com", "sharedAllLibraries": false, "sharedLibrariesIds": []string{}},
	})

	users, err := c.ListRemoteUsers(context.Background())
	checkNoError(t, err)
	checkSliceLen(t, "users", len(users), 3)

	admin := users[0]
	checkStringEqual(t, "UserID", admin.UserID, "k1")
	checkStringEqual(t, "username is e-mail", admin.Username, "admin@example.com")
	checkStringPtrEqual(t, "email", admin.Email, "admin@example.com")
	checkTrue(t, "admin", admin.IsAdmin)
	checkTrue(t, "downloads", admin.Permissions.AllowDownloads)
	checkTrue(t, "komga users are always enabled", admin.IsEnabled)
	checkTrue(t, "all libraries", admin.Access.IsUnrestricted())

	reader := users[1]
	checkFalse(t, "reader admin", reader.IsAdmin)
	checkFalse(t, "reader downloads", reader.Permissions.AllowDownloads)
	names := reader.Access.Names()
	checkSliceLen(t, "reader libraries", len(names), 1)
	checkStringEqual(t, "reader library", names[0], "Manga")

	checkFalse(t, "empty share is not unrestricted", users[2].Access.IsUnrestricted())
	checkSliceLen(t, "empty share libraries", len(users[2].Access.Names()), 0)
}

// ============================================================================
// Create and grant
// ============================================================================

func TestKomga_CreateUser_SharedLibraries(t *testing.T) {
	tests := []struct {
		name    string
		access  media.LibraryAccess
		wantAll bool
		wantIDs int
	}{
		{"unrestricted", media.Unrestricted(), true, 0},
		{"restricted", media.RestrictedToIDs([]string{"L1", "L2"}), false, 2},
		{"nothing", media.Restricted(nil), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, c := komgaFixture(t)
			fs.respond("POST /api/v2/users", http.StatusCreated, map[string]any{"id": "new-1"})

			id, err := c.CreateUser(context.Background(), NewUser{
				Username: "reader",
				Email:    "reader@example.com",
				Password: "secret",
				Grant:    media.Grant{Access: tt.access, Permissions: media.StandardizedPermissions{AllowDownloads: true}},
			})
			checkNoError(t, err)
			checkStringEqual(t, "id", id, "new-1")

			posts := fs.requests(http.MethodPost, "/api/v2/users")
			checkSliceLen(t, "creates", len(posts), 1)
			body := posts[0].Body
			checkStringEqual(t, "email", body["email"].(string), "reader@example.com")
			shared, _ := body["sharedLibraries"].(map[string]any)
			if shared["all"] != tt.wantAll {
				t.Errorf("sharedLibraries.all = %v, want %v", shared["all"], tt.wantAll)
			}
			ids, ok := shared["libraryIds"].([]any)
			if !ok {
				t.Fatalf("libraryIds must be a list, got %T", shared["libraryIds"])
			}
			checkSliceLen(t, "libraryIds", len(ids), tt.wantIDs)

			roles, _ := body["roles"].([]any)
			if len(roles) != 2 || roles[0] != komgaRoleStreaming || roles[1] != komgaRoleDownload {
				t.Errorf("roles = %v, want streaming and download", roles)
			}
		})
	}
}

func TestKomga_CreateUser_UsernameAsEmail(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("POST /api/v2/users", http.StatusCreated, map[string]any{"id": "new-2"})

	_, err := c.CreateUser(context.Background(), NewUser{Username: "only@example.com", Password: "pw", Grant: media.Grant{Access: media.Unrestricted()}})
	checkNoError(t, err)
	body := fs.requests(http.MethodPost, "/api/v2/users")[0].Body
	checkStringEqual(t, "email fallback", body["email"].(string), "only@example.com")
}

func TestKomga_CreateUser_MissingID(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("POST /api/v2/users", http.StatusCreated, map[string]any{})

	_, err := c.CreateUser(context.Background(), NewUser{Email: "x@example.com", Grant: media.Grant{Access: media.Unrestricted()}})
	checkErrorContains(t, err, "user id")
}

func TestKomga_GrantAccess(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("PATCH /api/v2/users/k2", http.StatusNoContent, nil)

	err := c.GrantAccess(context.Background(), "k2", media.Grant{
		Access:      media.RestrictedToIDs([]string{"L1"}),
		Permissions: media.StandardizedPermissions{IsAdmin: true},
	})
	checkNoError(t, err)

	patches := fs.requests(http.MethodPatch, "/api/v2/users/k2")
	checkSliceLen(t, "patches", len(patches), 1)
	shared, _ := patches[0].Body["sharedLibraries"].(map[string]any)
	ids, _ := shared["libraryIds"].([]any)
	if shared["all"] != false || len(ids) != 1 || ids[0] != "L1" {
		t.Errorf("sharedLibraries = %v", shared)
	}
	roles, _ := patches[0].Body["roles"].([]any)
	if len(roles) != 2 || roles[1] != komgaRoleAdmin {
		t.Errorf("roles = %v, want streaming and admin", roles)
	}
}

func TestKomga_UpdateUser(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("PATCH /api/v2/users/k2/password", http.StatusNoContent, nil)
	fs.respond("PATCH /api/v2/users/k2", http.StatusNoContent, nil)

	pw := "new-secret"
	checkNoError(t, c.UpdateUser(context.Background(), "k2", UserPatch{Password: &pw}))
	checkSliceLen(t, "password patches", len(fs.requests(http.MethodPatch, "/api/v2/users/k2/password")), 1)
	checkSliceLen(t, "empty body skipped", len(fs.requests(http.MethodPatch, "/api/v2/users/k2")), 0)

	email := "other@example.com"
	err := c.UpdateUser(context.Background(), "k2", UserPatch{Email: &email})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("e-mail change err = %v, want ErrUnsupported", err)
	}
}

// ============================================================================
// Enable, disable and delete
// ============================================================================

func TestKomga_DisableRevokesLibraries(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("PATCH /api/v2/users/k2", http.StatusNoContent, nil)

	applied, err := c.DisableUser(context.Background(), "k2")
	checkNoError(t, err)
	checkTrue(t, "disable applied", applied)

	patches := fs.requests(http.MethodPatch, "/api/v2/users/k2")
	checkSliceLen(t, "patches", len(patches), 1)
	shared, _ := patches[0].Body["sharedLibraries"].(map[string]any)
	ids, _ := shared["libraryIds"].([]any)
	if shared["all"] != false || len(ids) != 0 {
		t.Errorf("disable should revoke every library, got %v", shared)
	}
	if _, ok := patches[0].Body["roles"]; ok {
		t.Error("disable must not touch roles")
	}
}

func TestKomga_DisableFailureReportsNotApplied(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("PATCH /api/v2/users/k2", http.StatusInternalServerError, map[string]any{"message": "boom"})

	applied, err := c.DisableUser(context.Background(), "k2")
	if err == nil {
		t.Fatal("expected error")
	}
	checkFalse(t, "applied", applied)
}

func TestKomga_EnableIsNotApplicable(t *testing.T) {
	fs, c := komgaFixture(t)

	applied, err := c.EnableUser(context.Background(), "k2")
	checkNoError(t, err)
	checkFalse(t, "enable applied", applied)
	checkIntEqual(t, "requests", fs.count(), 0)
}

func TestKomga_DeleteUser(t *testing.T) {
	fs, c := komgaFixture(t)
	fs.respond("DELETE /api/v2/users/k2", http.StatusNoContent, nil)

	checkNoError(t, c.DeleteUser(context.Background(), "k2"))
	checkSliceLen(t, "deletes", len(fs.requests(http.MethodDelete, "/api/v2/users/k2")), 1)
}

func TestKomga_NowPlayingIsEmpty(t *testing.T) {
	_, c := komgaFixture(t)
	sessions, err := c.NowPlaying(context.Background())
	checkNoError(t, err)
	if sessions == nil || len(sessions) != 0 {
		t.Errorf("sessions = %#v, want empty non-nil", sessions)
	}
}
