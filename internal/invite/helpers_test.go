// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package invite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/notify"
)

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

// fakeJellyfin is a stateful stand-in for the Jellyfin user API.
type fakeJellyfin struct {
	srv *httptest.Server

	mu       sync.Mutex
	calls    int
	created  []string
	policies map[string]map[string]any
	failNew  int
}

func newFakeJellyfin(t *testing.T) *fakeJellyfin {
	t.Helper()
	f := &fakeJellyfin{policies: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /Users/New", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Name string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failNew != 0 {
			w.WriteHeader(f.failNew)
			_, _ = w.Write([]byte(`{"message":"Password does not meet policy"}`))
			return
		}
		id := fmt.Sprintf("jf-%d", len(f.created)+1)
		f.created = append(f.created, body.Name)
		f.policies[id] = map[string]any{"IsAdministrator": false, "EnableAllFolders": false}
		writeJSON(w, map[string]any{"Id": id, "Name": body.Name})
	})
	mux.HandleFunc("GET /Users/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		policy, ok := f.policies[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"Id": id, "Policy": policy})
	})
	mux.HandleFunc("POST /Users/{id}/Policy", func(w http.ResponseWriter, r *http.Request) {
		var policy map[string]any
		_ = json.NewDecoder(r.Body).Decode(&policy)
		f.mu.Lock()
		f.policies[r.PathValue("id")] = policy
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeJellyfin) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeJellyfin) policy(id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policies[id]
}

// staticClients always returns the same adapter.
type staticClients struct {
	client mediaclient.MediaClient
}

func (s staticClients) ClientFor(context.Context, string) (mediaclient.MediaClient, error) {
	return s.client, nil
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

type recordingHandoff struct {
	mu    sync.Mutex
	calls []string
}

func (h *recordingHandoff) UserProvisioned(_ context.Context, serverID, serverType, remoteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, serverID+"/"+serverType+"/"+remoteID)
}

// fixture wires a database, a Jellyfin server with two libraries and a
// Redeemer pointed at both.
type fixture struct {
	db       *database.DB
	jf       *fakeJellyfin
	serverID string
	libs     []models.Library
	notifier *recordingNotifier
	handoff  *recordingHandoff
	r        *Redeemer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t)
	jf := newFakeJellyfin(t)

	srv := &models.MediaServer{
		Name:                  "Jellyfin",
		ServerType:            "jellyfin",
		URL:                   jf.srv.URL,
		Enabled:               true,
		DefaultAllowDownloads: true,
	}
	if err := db.CreateMediaServer(ctx, srv); err != nil {
		t.Fatalf("CreateMediaServer: %v", err)
	}
	if err := db.UpsertLibraries(ctx, srv.ID, map[string]string{"lib-movies": "Movies", "lib-tv": "TV Shows"}); err != nil {
		t.Fatalf("UpsertLibraries: %v", err)
	}
	libs, err := db.ListLibraries(ctx, srv.ID)
	if err != nil {
		t.Fatalf("ListLibraries: %v", err)
	}

	client := mediaclient.NewJellyfinClient(mediaclient.Config{
		ServerID:   srv.ID,
		ServerType: "jellyfin",
		URL:        jf.srv.URL,
		Token:      "test-token",
	}, mediaclient.Deps{})

	f := &fixture{
		db:       db,
		jf:       jf,
		serverID: srv.ID,
		libs:     libs,
		notifier: &recordingNotifier{},
		handoff:  &recordingHandoff{},
	}
	f.r = NewRedeemer(db, staticClients{client: client}, WithNotifier(f.notifier), WithHandoff(f.handoff))
	return f
}

func (f *fixture) invite(t *testing.T, inv models.Invitation) *models.Invitation {
	t.Helper()
	if inv.ServerID == "" {
		inv.ServerID = f.serverID
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if err := f.db.CreateInvitation(context.Background(), &inv); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	return &inv
}

func (f *fixture) library(name string) models.Library {
	for _, lib := range f.libs {
		if lib.Name == name {
			return lib
		}
	}
	panic("no library " + name)
}

func joinRequest(code, username string) models.JoinRequest {
	return models.JoinRequest{
		Code:            code,
		Username:        username,
		Email:           username + "@example.com",
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
	}
}

func checkFailure(t *testing.T, res Result, in State, msg string) {
	t.Helper()
	if res.Success {
		t.Fatalf("redemption succeeded, want failure %q", msg)
	}
	if res.State != StateFailed {
		t.Errorf("State = %s, want FAILED", res.State)
	}
	if res.FailedIn != in {
		t.Errorf("FailedIn = %s, want %s", res.FailedIn, in)
	}
	if res.Message != msg {
		t.Errorf("Message = %q, want %q", res.Message, msg)
	}
}
