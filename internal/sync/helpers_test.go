// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/notify"
)

// testDBSemaphore serializes DuckDB usage across tests in this package.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedServer(t *testing.T, db *database.DB, serverType string) string {
	t.Helper()
	srv := &models.MediaServer{Name: serverType, ServerType: serverType, URL: "http://" + serverType, Enabled: true}
	if err := db.CreateMediaServer(context.Background(), srv); err != nil {
		t.Fatalf("CreateMediaServer: %v", err)
	}
	return srv.ID
}

func seedUser(t *testing.T, db *database.DB, u models.User) models.User {
	t.Helper()
	if u.Code == "" {
		u.Code = models.SyncedUserCode
	}
	if err := db.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("CreateUser(%s): %v", u.Token, err)
	}
	return u
}

// fakeClient is a scripted adapter. Methods not overridden panic through
// the nil embedded interface.
type fakeClient struct {
	mediaclient.MediaClient

	serverType string
	keyField   media.KeyField

	mu         sync.Mutex
	roster     []media.MediaUserDetails
	rosterErr  error
	deleteErrs map[string]error
	panics     map[string]bool
	deleted    []string
	listCalls  int
	toggle     bool
}

func (f *fakeClient) ServerType() string       { return f.serverType }
func (f *fakeClient) KeyField() media.KeyField { return f.keyField }

func (f *fakeClient) ListRemoteUsers(context.Context) ([]media.MediaUserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return append([]media.MediaUserDetails(nil), f.roster...), nil
}

func (f *fakeClient) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[id] {
		panic("adapter bug deleting " + id)
	}
	if err := f.deleteErrs[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClient) EnableUser(context.Context, string) (bool, error)  { return f.toggle, nil }
func (f *fakeClient) DisableUser(context.Context, string) (bool, error) { return f.toggle, nil }

// fakeClients maps server ids to clients.
type fakeClients map[string]mediaclient.MediaClient

func (f fakeClients) ClientFor(_ context.Context, serverID string) (mediaclient.MediaClient, error) {
	c, ok := f[serverID]
	if !ok {
		return nil, fmt.Errorf("no client for %s", serverID)
	}
	return c, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// failingMetadataStore wraps a real store and fails the metadata commit.
type failingMetadataStore struct {
	*database.DB
}

func (failingMetadataStore) UpdateUserMetadata(context.Context, []models.UserMetadata) error {
	return errors.New("disk full")
}

func jellyfinUser(id, name string, policy map[string]any, access media.LibraryAccess) media.MediaUserDetails {
	perms := media.ForJellyfin(policy)
	return media.MediaUserDetails{
		UserID:      id,
		Username:    name,
		IsAdmin:     perms.IsAdmin,
		IsEnabled:   !media.Bool(policy["IsDisabled"]),
		Access:      access,
		Permissions: perms,
		RawPolicies: policy,
	}
}

func tokens(users []models.User) map[string]bool {
	out := make(map[string]bool, len(users))
	for _, u := range users {
		out[u.Token] = true
	}
	return out
}

func byToken(users []models.User, token string) *models.User {
	for i := range users {
		if users[i].Token == token {
			return &users[i]
		}
	}
	return nil
}
