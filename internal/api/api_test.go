// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/auth"
	"github.com/tomtom215/wizarr/internal/invite"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/models"
	wsync "github.com/tomtom215/wizarr/internal/sync"
)

var disabledLimits = MiddlewareConfig{RateLimitDisabled: true}

// ============================================================================
// Health
// ============================================================================

func TestHealth(t *testing.T) {
	h := newHarness(t, disabledLimits)

	checkStatus(t, h.do(http.MethodGet, "/api/v1/health/live", nil, false), http.StatusOK)
	checkStatus(t, h.do(http.MethodGet, "/api/v1/health/ready", nil, false), http.StatusOK)

	h.store.pingErr = errors.New("database is locked")
	rec := h.do(http.MethodGet, "/api/v1/health/ready", nil, false)
	checkStatus(t, rec, http.StatusServiceUnavailable)
	checkErrorCode(t, rec, ErrCodeServiceUnavailable)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, disabledLimits)
	rec := h.do(http.MethodGet, "/api/v1/nope", nil, false)
	checkStatus(t, rec, http.StatusNotFound)
	checkErrorCode(t, rec, ErrCodeNotFound)
}

// ============================================================================
// Join
// ============================================================================

func TestJoin_Success(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.redeemer.result = invite.Result{Success: true, Message: invite.MsgSuccess, State: invite.StateDone, UserID: 42}

	rec := h.do(http.MethodPost, "/api/v1/join", models.JoinRequest{
		Code: "ABC123", Username: "alice", Email: "a@x.io", Password: "hunter2!!", ConfirmPassword: "hunter2!!",
	}, false)
	checkStatus(t, rec, http.StatusCreated)

	var resp models.JoinResponse
	decodeEnvelope(t, rec, &resp)
	if !resp.Success || resp.UserID != 42 {
		t.Errorf("response = %+v", resp)
	}
	if len(h.redeemer.joins) != 1 || h.redeemer.joins[0].Code != "ABC123" {
		t.Errorf("redeemer saw %+v", h.redeemer.joins)
	}
}

func TestJoin_FailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		result invite.Result
		want   int
	}{
		{"invalid code", invite.Result{Message: invite.MsgInvalidCode, State: invite.StateFailed, FailedIn: invite.StatePending}, http.StatusBadRequest},
		{"bad password", invite.Result{Message: invite.MsgPasswordLength, State: invite.StateFailed, FailedIn: invite.StateValidating}, http.StatusBadRequest},
		{"expired", invite.Result{Message: invite.MsgExpired, State: invite.StateFailed, FailedIn: invite.StatePending}, http.StatusGone},
		{"already used", invite.Result{Message: invite.MsgAlreadyUsed, State: invite.StateFailed, FailedIn: invite.StatePending}, http.StatusConflict},
		{"user exists", invite.Result{Message: invite.MsgUserExists, State: invite.StateFailed, FailedIn: invite.StateCreatingRemote}, http.StatusConflict},
		{"remote failure", invite.Result{Message: invite.MsgRemoteFailure, State: invite.StateFailed, FailedIn: invite.StateCreatingRemote}, http.StatusBadGateway},
		{"persist failure", invite.Result{Message: invite.MsgPersistFailure, State: invite.StateFailed, FailedIn: invite.StatePersistingLocal}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, disabledLimits)
			h.redeemer.result = tt.result

			rec := h.do(http.MethodPost, "/api/v1/join", models.JoinRequest{Code: "X"}, false)
			checkStatus(t, rec, tt.want)
			env := decodeEnvelope(t, rec, nil)
			if env.Error == nil || env.Error.Code != ErrCodeInvitationRejected || env.Error.Message != tt.result.Message {
				t.Errorf("error = %+v", env.Error)
			}
		})
	}
}

func TestJoin_MalformedBody(t *testing.T) {
	h := newHarness(t, disabledLimits)
	rec := h.do(http.MethodPost, "/api/v1/join", "{not json", false)
	checkStatus(t, rec, http.StatusBadRequest)
	if len(h.redeemer.joins) != 0 {
		t.Error("redeemer must not run on a malformed body")
	}
}

func TestJoinPlex(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.redeemer.result = invite.Result{Success: true, Message: invite.MsgSuccess, State: invite.StateDone, UserID: 7}

	rec := h.do(http.MethodPost, "/api/v1/join/plex", models.PlexJoinRequest{Code: "PLEX1", Email: "p@x.io"}, false)
	checkStatus(t, rec, http.StatusCreated)
	if len(h.redeemer.plex) != 1 || h.redeemer.plex[0].Email != "p@x.io" {
		t.Errorf("plex redemptions = %+v", h.redeemer.plex)
	}
}

func TestJoin_RateLimited(t *testing.T) {
	h := newHarness(t, MiddlewareConfig{JoinRateLimitRequests: 2, RateLimitWindow: time.Minute})
	h.redeemer.result = invite.Result{Message: invite.MsgInvalidCode, State: invite.StateFailed, FailedIn: invite.StatePending}

	for i := 0; i < 2; i++ {
		checkStatus(t, h.do(http.MethodPost, "/api/v1/join", models.JoinRequest{Code: "X"}, false), http.StatusBadRequest)
	}
	rec := h.do(http.MethodPost, "/api/v1/join", models.JoinRequest{Code: "X"}, false)
	checkStatus(t, rec, http.StatusTooManyRequests)
	checkErrorCode(t, rec, ErrCodeTooManyRequests)
}

// ============================================================================
// Authentication
// ============================================================================

func TestAdminRoutes_RequireToken(t *testing.T) {
	h := newHarness(t, disabledLimits)

	rec := h.do(http.MethodGet, "/api/v1/servers", nil, false)
	checkStatus(t, rec, http.StatusUnauthorized)
	checkErrorCode(t, rec, ErrCodeUnauthorized)

	jwt, _ := auth.NewJWTManager(testSecret, time.Hour)
	viewer, _ := jwt.GenerateToken("bob", "viewer")
	h.token = viewer
	rec = h.do(http.MethodGet, "/api/v1/servers", nil, true)
	checkStatus(t, rec, http.StatusForbidden)
	checkErrorCode(t, rec, ErrCodeForbidden)
}

// ============================================================================
// Servers
// ============================================================================

func TestCreateServer_EncryptsKeyAndStoresLibraries(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.scanned = map[string]string{"Movies": "lib-1", "TV": "lib-2"}

	rec := h.do(http.MethodPost, "/api/v1/servers", models.CreateServerRequest{
		Name: "Den", ServerType: "jellyfin", URL: "http://den:8096/", APIKey: "plain-key",
	}, true)
	checkStatus(t, rec, http.StatusCreated)

	stored := h.store.servers["srv-new"]
	if stored == nil {
		t.Fatalf("server not stored: %v", h.store.servers)
	}
	if stored.APIKeyEncrypted != "sealed:plain-key" {
		t.Errorf("APIKeyEncrypted = %q", stored.APIKeyEncrypted)
	}
	if stored.URL != "http://den:8096" {
		t.Errorf("URL = %q, want trailing slash trimmed", stored.URL)
	}
	if strings.Contains(rec.Body.String(), "plain-key") || strings.Contains(rec.Body.String(), "sealed:") {
		t.Errorf("response leaks the API key: %s", rec.Body.String())
	}
	libs := h.store.upserted["srv-new"]
	if libs["lib-1"] != "Movies" || libs["lib-2"] != "TV" {
		t.Errorf("upserted libraries = %v", libs)
	}
}

func TestCreateServer_Validation(t *testing.T) {
	h := newHarness(t, disabledLimits)
	rec := h.do(http.MethodPost, "/api/v1/servers", models.CreateServerRequest{
		Name: "Den", ServerType: "tautulli", URL: "http://den", APIKey: "k",
	}, true)
	checkStatus(t, rec, http.StatusBadRequest)
	checkErrorCode(t, rec, ErrCodeValidationFailed)
}

func TestCreateServer_ScanFailure(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.err = errors.New("connection refused")

	rec := h.do(http.MethodPost, "/api/v1/servers", models.CreateServerRequest{
		Name: "Den", ServerType: "jellyfin", URL: "http://den:8096", APIKey: "k",
	}, true)
	checkStatus(t, rec, http.StatusBadGateway)
	if _, ok := h.store.servers["srv-new"]; ok {
		t.Error("server must not be saved when the credential check fails")
	}
}

func TestScanLibraries(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.scanned = map[string]string{"Movies": "lib-1"}

	rec := h.do(http.MethodPost, "/api/v1/servers/scan-libraries", models.ScanLibrariesRequest{
		ServerType: "jellyfin", URL: "http://den:8096", APIKey: "k",
	}, true)
	checkStatus(t, rec, http.StatusOK)
	var got map[string]string
	decodeEnvelope(t, rec, &got)
	if got["Movies"] != "lib-1" {
		t.Errorf("scan = %v", got)
	}
}

func TestServerLibraries_Refreshes(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.libraries = map[string]string{"lib-1": "Movies"}
	h.store.libraries["srv-1"] = []models.Library{{ID: 1, ExternalID: "lib-1", Name: "Movies", ServerID: "srv-1", Enabled: true}}

	rec := h.do(http.MethodGet, "/api/v1/servers/srv-1/libraries", nil, true)
	checkStatus(t, rec, http.StatusOK)
	if h.store.upserted["srv-1"]["lib-1"] != "Movies" {
		t.Errorf("upserted = %v", h.store.upserted)
	}
	var libs []models.Library
	decodeEnvelope(t, rec, &libs)
	if len(libs) != 1 || libs[0].Name != "Movies" {
		t.Errorf("libraries = %+v", libs)
	}

	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers/missing/libraries", nil, true), http.StatusNotFound)
}

func TestSyncServer(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.recon.users = []models.User{{ID: 1, Username: "alice", ServerID: "srv-1"}}
	h.recon.res = wsync.Result{Inserted: 1, Deleted: 2}

	rec := h.do(http.MethodPost, "/api/v1/servers/srv-1/sync", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var resp models.SyncResponse
	decodeEnvelope(t, rec, &resp)
	if len(resp.Users) != 1 || resp.Inserted != 1 || resp.Deleted != 2 {
		t.Errorf("sync response = %+v", resp)
	}
}

func TestServerStatistics_Readonly(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.stats = media.Statistics{ServerType: "jellyfin", ServerName: "Home"}

	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers/srv-1/statistics", nil, true), http.StatusOK)
	if h.client.readonly {
		t.Error("readonly statistics used without readonly=true")
	}
	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers/srv-1/statistics?readonly=true", nil, true), http.StatusOK)
	if !h.client.readonly {
		t.Error("readonly=true should use ReadonlyStatistics")
	}
	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers/srv-1/statistics?readonly=maybe", nil, true), http.StatusBadRequest)
}

func TestNowPlaying_Sorted(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.client.sessions = []media.Session{{SessionID: "2", UserName: "zed"}, {SessionID: "1", UserName: "amy"}}

	rec := h.do(http.MethodGet, "/api/v1/servers/srv-1/now-playing", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var sessions []media.Session
	decodeEnvelope(t, rec, &sessions)
	if len(sessions) != 2 || sessions[0].UserName != "amy" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestServerUser(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.store.users["srv-1/u-1"] = &models.User{ID: 9, Token: "u-1", Username: "alice", ServerID: "srv-1"}
	h.client.details = map[string]media.MediaUserDetails{"u-1": {UserID: "u-1", Username: "alice", IsEnabled: true}}

	rec := h.do(http.MethodGet, "/api/v1/servers/srv-1/users/u-1", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var resp struct {
		Local  *models.User            `json:"local"`
		Remote *media.MediaUserDetails `json:"remote"`
	}
	decodeEnvelope(t, rec, &resp)
	if resp.Local == nil || resp.Local.ID != 9 || resp.Remote == nil || resp.Remote.Username != "alice" {
		t.Errorf("response = %+v", resp)
	}

	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers/srv-1/users/ghost", nil, true), http.StatusNotFound)
}

// ============================================================================
// Invitations
// ============================================================================

func TestCreateInvitation(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.store.libraries["srv-1"] = []models.Library{
		{ID: 1, ExternalID: "lib-1", Name: "Movies", ServerID: "srv-1"},
		{ID: 2, ExternalID: "lib-2", Name: "TV", ServerID: "srv-1"},
	}
	days := 30

	rec := h.do(http.MethodPost, "/api/v1/invitations", models.CreateInvitationRequest{
		ServerID: "srv-1", DurationDays: &days, LibraryIDs: []int64{2, 2},
	}, true)
	checkStatus(t, rec, http.StatusCreated)
	var inv models.Invitation
	decodeEnvelope(t, rec, &inv)
	if inv.Code != "GENERATED" || len(inv.Libraries) != 1 || inv.Libraries[0].Name != "TV" {
		t.Errorf("invitation = %+v", inv)
	}

	rec = h.do(http.MethodPost, "/api/v1/invitations", models.CreateInvitationRequest{
		ServerID: "srv-1", LibraryIDs: []int64{99},
	}, true)
	checkStatus(t, rec, http.StatusBadRequest)

	rec = h.do(http.MethodPost, "/api/v1/invitations", models.CreateInvitationRequest{ServerID: "nope"}, true)
	checkStatus(t, rec, http.StatusNotFound)

	past := time.Now().Add(-time.Hour)
	rec = h.do(http.MethodPost, "/api/v1/invitations", models.CreateInvitationRequest{ServerID: "srv-1", Expires: &past}, true)
	checkStatus(t, rec, http.StatusBadRequest)
}

func TestCreateInvitation_DuplicateCode(t *testing.T) {
	h := newHarness(t, disabledLimits)
	req := models.CreateInvitationRequest{Code: "SAME1", ServerID: "srv-1"}
	checkStatus(t, h.do(http.MethodPost, "/api/v1/invitations", req, true), http.StatusCreated)
	rec := h.do(http.MethodPost, "/api/v1/invitations", req, true)
	checkStatus(t, rec, http.StatusConflict)
	checkErrorCode(t, rec, ErrCodeConflict)
}

func TestListAndDeleteInvitations(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.store.invitations = []models.Invitation{{Code: "A1", ServerID: "srv-1"}, {Code: "B2", ServerID: "srv-2"}}

	rec := h.do(http.MethodGet, "/api/v1/invitations?server_id=srv-1", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var invs []models.Invitation
	decodeEnvelope(t, rec, &invs)
	if len(invs) != 1 || invs[0].Code != "A1" {
		t.Errorf("invitations = %+v", invs)
	}

	checkStatus(t, h.do(http.MethodDelete, "/api/v1/invitations/A1", nil, true), http.StatusNoContent)
	checkStatus(t, h.do(http.MethodDelete, "/api/v1/invitations/A1", nil, true), http.StatusNotFound)
}

// ============================================================================
// Users
// ============================================================================

func TestDeleteUser(t *testing.T) {
	h := newHarness(t, disabledLimits)

	checkStatus(t, h.do(http.MethodDelete, "/api/v1/users/5", nil, true), http.StatusNoContent)
	if len(h.users.removed) != 1 || h.users.removed[0] != 5 {
		t.Errorf("removed = %v", h.users.removed)
	}
	checkStatus(t, h.do(http.MethodDelete, "/api/v1/users/abc", nil, true), http.StatusBadRequest)
}

func TestEnableDisableUser(t *testing.T) {
	h := newHarness(t, disabledLimits)

	rec := h.do(http.MethodPost, "/api/v1/users/3/disable", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var resp models.ToggleResponse
	decodeEnvelope(t, rec, &resp)
	if !resp.Applied || h.users.toggled[3] {
		t.Errorf("disable: applied=%v toggled=%v", resp.Applied, h.users.toggled)
	}

	h.users.applied = false
	rec = h.do(http.MethodPost, "/api/v1/users/3/enable", nil, true)
	checkStatus(t, rec, http.StatusOK)
	resp = models.ToggleResponse{}
	decodeEnvelope(t, rec, &resp)
	if resp.Applied || !h.users.toggled[3] {
		t.Errorf("enable: applied=%v toggled=%v", resp.Applied, h.users.toggled)
	}
}

func TestExpirySweep(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.sweeper.deleted = []int64{4, 8}

	rec := h.do(http.MethodPost, "/api/v1/expiry/sweep", nil, true)
	checkStatus(t, rec, http.StatusOK)
	var resp models.SweepResponse
	decodeEnvelope(t, rec, &resp)
	if len(resp.Deleted) != 2 || resp.Deleted[1] != 8 {
		t.Errorf("sweep = %+v", resp)
	}
}

// ============================================================================
// Metrics
// ============================================================================

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, disabledLimits)
	h.do(http.MethodGet, "/api/v1/health/live", nil, false)

	rec := h.do(http.MethodGet, "/metrics", nil, false)
	checkStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `endpoint="/api/v1/health/live"`) {
		t.Error("api request metric missing the route pattern label")
	}
}

// ============================================================================
// Audit trail
// ============================================================================

func TestAudit_RecordsAdminActions(t *testing.T) {
	h := newHarness(t, disabledLimits)

	checkStatus(t, h.do(http.MethodPost, "/api/v1/invitations", models.CreateInvitationRequest{Code: "AUDIT1", ServerID: "srv-1"}, true), http.StatusCreated)
	checkStatus(t, h.do(http.MethodDelete, "/api/v1/invitations/AUDIT1", nil, true), http.StatusNoContent)
	checkStatus(t, h.do(http.MethodDelete, "/api/v1/users/5", nil, true), http.StatusNoContent)
	checkStatus(t, h.do(http.MethodPost, "/api/v1/users/5/disable", nil, true), http.StatusOK)

	want := []audit.EventType{audit.EventInvitationCreated, audit.EventInvitationDeleted, audit.EventUserDeleted, audit.EventUserDisabled}
	got := h.auditor.types()
	if len(got) != len(want) {
		t.Fatalf("audit events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	first := h.auditor.events[0]
	if first.Actor != "admin" || first.TargetID != "AUDIT1" || first.RequestID == "" {
		t.Errorf("invitation event = %+v", first)
	}
}

func TestAudit_FailedActionNotRecorded(t *testing.T) {
	h := newHarness(t, disabledLimits)
	checkStatus(t, h.do(http.MethodDelete, "/api/v1/invitations/MISSING", nil, true), http.StatusNotFound)
	if len(h.auditor.types()) != 0 {
		t.Errorf("failed delete recorded %v", h.auditor.types())
	}
}

func TestAudit_AuthFailureRecorded(t *testing.T) {
	h := newHarness(t, disabledLimits)
	checkStatus(t, h.do(http.MethodGet, "/api/v1/servers", nil, false), http.StatusUnauthorized)

	events := h.auditor.events
	if len(events) != 1 || events[0].Type != audit.EventAuthFailure || events[0].Outcome != audit.OutcomeFailure {
		t.Fatalf("events = %+v", events)
	}
}

func TestListAudit_Filters(t *testing.T) {
	h := newHarness(t, disabledLimits)

	rec := h.do(http.MethodGet, "/api/v1/audit?type=user.deleted,user.disabled&target_type=user&since=2026-01-01T00:00:00Z&limit=10", nil, true)
	checkStatus(t, rec, http.StatusOK)
	f := h.auditor.filter
	if len(f.Types) != 2 || f.TargetType != "user" || f.Limit != 10 || f.Since == nil {
		t.Errorf("filter = %+v", f)
	}

	checkStatus(t, h.do(http.MethodGet, "/api/v1/audit?since=yesterday", nil, true), http.StatusBadRequest)
	checkStatus(t, h.do(http.MethodGet, "/api/v1/audit?limit=-3", nil, true), http.StatusBadRequest)
}
