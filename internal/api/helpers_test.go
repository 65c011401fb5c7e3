// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/auth"
	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/invite"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
	wsync "github.com/tomtom215/wizarr/internal/sync"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

// ============================================================================
// Fakes
// ============================================================================

type fakeStore struct {
	mu          sync.Mutex
	pingErr     error
	servers     map[string]*models.MediaServer
	libraries   map[string][]models.Library
	upserted    map[string]map[string]string
	invitations []models.Invitation
	users       map[string]*models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		servers:   map[string]*models.MediaServer{},
		libraries: map[string][]models.Library{},
		upserted:  map[string]map[string]string{},
		users:     map[string]*models.User{},
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) CreateMediaServer(_ context.Context, server *models.MediaServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if server.ID == "" {
		server.ID = "srv-new"
	}
	cp := *server
	s.servers[server.ID] = &cp
	return nil
}

func (s *fakeStore) GetMediaServer(_ context.Context, id string) (*models.MediaServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[id]
	if !ok {
		return nil, database.ErrServerNotFound
	}
	return srv, nil
}

func (s *fakeStore) ListMediaServers(context.Context, bool) ([]models.MediaServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MediaServer, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, *srv)
	}
	return out, nil
}

func (s *fakeStore) UpsertLibraries(_ context.Context, serverID string, scanned map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted[serverID] = scanned
	return nil
}

func (s *fakeStore) ListLibraries(_ context.Context, serverID string) ([]models.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.libraries[serverID], nil
}

func (s *fakeStore) GetUserByToken(_ context.Context, serverID, token string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[serverID+"/"+token]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invitations {
		if existing.Code == inv.Code {
			return database.ErrInvitationExists
		}
	}
	if inv.Code == "" {
		inv.Code = "GENERATED"
	}
	inv.ID = int64(len(s.invitations) + 1)
	s.invitations = append(s.invitations, *inv)
	return nil
}

func (s *fakeStore) ListInvitations(_ context.Context, serverID string) ([]models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Invitation
	for _, inv := range s.invitations {
		if serverID == "" || inv.ServerID == serverID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteInvitation(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invitations {
		if inv.Code == code {
			s.invitations = append(s.invitations[:i], s.invitations[i+1:]...)
			return nil
		}
	}
	return database.ErrInvitationNotFound
}

type fakeRedeemer struct {
	result invite.Result
	joins  []models.JoinRequest
	plex   []models.PlexJoinRequest
}

func (f *fakeRedeemer) Redeem(_ context.Context, req models.JoinRequest) invite.Result {
	f.joins = append(f.joins, req)
	return f.result
}

func (f *fakeRedeemer) RedeemPlex(_ context.Context, req models.PlexJoinRequest) invite.Result {
	f.plex = append(f.plex, req)
	return f.result
}

type fakeReconciler struct {
	users []models.User
	res   wsync.Result
	err   error
}

func (f *fakeReconciler) Reconcile(context.Context, string) ([]models.User, wsync.Result, error) {
	return f.users, f.res, f.err
}

type fakeUsers struct {
	removed []int64
	toggled map[int64]bool
	applied bool
	err     error
}

func (f *fakeUsers) Remove(_ context.Context, id int64) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeUsers) SetEnabled(_ context.Context, id int64, enabled bool) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.toggled == nil {
		f.toggled = map[int64]bool{}
	}
	f.toggled[id] = enabled
	return f.applied, nil
}

type fakeSweeper struct{ deleted []int64 }

func (f *fakeSweeper) Sweep(context.Context) ([]int64, error) { return f.deleted, nil }

// fakeClient overrides the calls the handlers make; anything else panics
// through the nil embedded interface.
type fakeClient struct {
	mediaclient.MediaClient
	serverType string
	scanned    map[string]string
	libraries  map[string]string
	sessions   []media.Session
	stats      media.Statistics
	readonly   bool
	details    map[string]media.MediaUserDetails
	err        error
}

func (c *fakeClient) ServerType() string { return c.serverType }

func (c *fakeClient) ScanLibraries(context.Context, string, string) (map[string]string, error) {
	return c.scanned, c.err
}

func (c *fakeClient) Libraries(context.Context) (map[string]string, error) {
	return c.libraries, c.err
}

func (c *fakeClient) NowPlaying(context.Context) ([]media.Session, error) {
	return c.sessions, c.err
}

func (c *fakeClient) Statistics(context.Context) (media.Statistics, error) {
	return c.stats, c.err
}

func (c *fakeClient) ReadonlyStatistics(context.Context) (media.Statistics, error) {
	c.readonly = true
	return c.stats, c.err
}

func (c *fakeClient) GetUserDetails(_ context.Context, id string) (media.MediaUserDetails, error) {
	d, ok := c.details[id]
	if !ok {
		return media.MediaUserDetails{}, &mediaclient.ClientError{Vendor: c.serverType, Op: "get user", StatusCode: http.StatusNotFound}
	}
	return d, nil
}

type staticClients struct {
	client *fakeClient
}

func (s staticClients) ClientFor(_ context.Context, serverID string) (mediaclient.MediaClient, error) {
	if serverID != "srv-1" {
		return nil, database.ErrServerNotFound
	}
	return s.client, nil
}

type memoryAuditor struct {
	mu     sync.Mutex
	events []audit.Event
	filter audit.QueryFilter
}

func (a *memoryAuditor) Log(event *audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
}

func (a *memoryAuditor) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = filter
	return append([]audit.Event(nil), a.events...), nil
}

func (a *memoryAuditor) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, len(a.events))
	for i, e := range a.events {
		out[i] = e.Type
	}
	return out
}

type prefixEncrypter struct{}

func (prefixEncrypter) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", errors.New("empty")
	}
	return "sealed:" + plain, nil
}

// ============================================================================
// Harness
// ============================================================================

type harness struct {
	t        *testing.T
	store    *fakeStore
	redeemer *fakeRedeemer
	recon    *fakeReconciler
	users    *fakeUsers
	sweeper  *fakeSweeper
	client   *fakeClient
	auditor  *memoryAuditor
	token    string
	handler  http.Handler
}

func newHarness(t *testing.T, cfg MiddlewareConfig) *harness {
	t.Helper()
	jwt, err := auth.NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	token, err := jwt.GenerateToken("admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	h := &harness{
		t:        t,
		store:    newFakeStore(),
		redeemer: &fakeRedeemer{},
		recon:    &fakeReconciler{},
		users:    &fakeUsers{applied: true},
		sweeper:  &fakeSweeper{},
		client:   &fakeClient{serverType: "jellyfin"},
		auditor:  &memoryAuditor{},
		token:    token,
	}
	h.store.servers["srv-1"] = &models.MediaServer{ID: "srv-1", Name: "Home", ServerType: "jellyfin", URL: "http://jellyfin:8096"}

	h.handler = NewRouter(Dependencies{
		Store:      h.store,
		Redeemer:   h.redeemer,
		Reconciler: h.recon,
		Users:      h.users,
		Sweeper:    h.sweeper,
		Clients:    staticClients{client: h.client},
		NewClient: func(mediaclient.Config) (mediaclient.MediaClient, error) {
			return h.client, nil
		},
		Encrypter: prefixEncrypter{},
		JWT:       jwt,
		Audit:     h.auditor,
	}, cfg)
	return h
}

// do sends a request; admin requests carry the bearer token.
func (h *harness) do(method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func checkStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func checkErrorCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	env := decodeEnvelope(t, rec, nil)
	if env.Success || env.Error == nil || env.Error.Code != want {
		t.Fatalf("error = %+v, want code %s", env.Error, want)
	}
}
