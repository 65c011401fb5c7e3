// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package invite redeems invitation codes into provisioned accounts.
//
// A redemption walks PENDING, VALIDATING, CREATING_REMOTE, GRANTING_ACCESS
// and PERSISTING_LOCAL before reaching DONE; any step may end in FAILED.
// Nothing remote happens before validation passes. A provisioning intent is
// written before the remote call so an account created by a redemption
// that later fails is adopted by the next reconciliation.
//
// Redemptions of the same code are serialized in process by a keyed lock
// and across processes by the conditional mark-used update in the store.
package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/media"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/metrics"
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/notify"
	"github.com/tomtom215/wizarr/internal/validation"
)

// Store is the persistence used by redemption. *database.DB implements it.
type Store interface {
	GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error)
	GetMediaServer(ctx context.Context, id string) (*models.MediaServer, error)
	ListLibraries(ctx context.Context, serverID string) ([]models.Library, error)
	ListEnabledLibraries(ctx context.Context, serverID string) ([]models.Library, error)
	FindUserByUsernameOrEmail(ctx context.Context, serverID, username, email string) (*models.User, error)
	CreateIntent(ctx context.Context, intent *models.ProvisionIntent) error
	UpdateIntentState(ctx context.Context, id string, state models.IntentState, remoteID, errMsg string) error
	CompleteRedemption(ctx context.Context, user *models.User, intentID string) error
}

// ClientSource resolves the adapter for a server.
type ClientSource interface {
	ClientFor(ctx context.Context, serverID string) (mediaclient.MediaClient, error)
}

// Handoff is told about every provisioned account, e.g. to import it into
// a request manager. Implementations log their own failures.
type Handoff interface {
	UserProvisioned(ctx context.Context, serverID, serverType, remoteUserID string)
}

var _ Store = (*database.DB)(nil)

// Redeemer runs redemptions.
type Redeemer struct {
	store    Store
	clients  ClientSource
	notifier notify.Notifier
	handoff  Handoff
	locks    *keyedMutex
	now      func() time.Time
}

// Option customizes a Redeemer.
type Option func(*Redeemer)

// WithNotifier sets the notifier for user_invited events.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Redeemer) { r.notifier = n }
}

// WithHandoff sets the post-provisioning hand-off.
func WithHandoff(h Handoff) Option {
	return func(r *Redeemer) { r.handoff = h }
}

// NewRedeemer creates a Redeemer.
func NewRedeemer(store Store, clients ClientSource, opts ...Option) *Redeemer {
	r := &Redeemer{
		store:    store,
		clients:  clients,
		notifier: notify.Nop{},
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// account is what a redemption asks the media server to create.
type account struct {
	username string
	email    string
	password string
}

// Redeem handles the password-based join form.
func (r *Redeemer) Redeem(ctx context.Context, req models.JoinRequest) Result {
	return r.run(ctx, strings.TrimSpace(req.Code), func() (account, *Result) {
		if res := validateJoin(req); res != nil {
			return account{}, res
		}
		return account{
			username: strings.TrimSpace(req.Username),
			email:    strings.TrimSpace(req.Email),
			password: req.Password,
		}, nil
	})
}

// RedeemPlex handles Plex, where the e-mail comes from the OAuth hand-off
// and no password is set.
func (r *Redeemer) RedeemPlex(ctx context.Context, req models.PlexJoinRequest) Result {
	return r.run(ctx, strings.TrimSpace(req.Code), func() (account, *Result) {
		if verr := validation.ValidateStruct(req); verr != nil {
			res := failed(StateValidating, messageFor(verr))
			return account{}, &res
		}
		email := strings.TrimSpace(req.Email)
		return account{username: email, email: email}, nil
	})
}

func (r *Redeemer) run(ctx context.Context, code string, validate func() (account, *Result)) (res Result) {
	start := time.Now()
	serverType := "unknown"
	defer func() {
		metrics.RecordRedemption(serverType, outcome(res), time.Since(start))
	}()
	logger := logging.Ctx(ctx).With().Str("code", code).Logger()

	// PENDING
	unlock := r.locks.Lock(code)
	defer unlock()

	inv, res, ok := r.loadValid(ctx, code, StatePending)
	if !ok {
		return res
	}

	// VALIDATING
	acct, rejected := validate()
	if rejected != nil {
		return *rejected
	}

	// CREATING_REMOTE
	existing, err := r.store.FindUserByUsernameOrEmail(ctx, inv.ServerID, acct.username, acct.email)
	switch {
	case err == nil && existing != nil:
		return failed(StateCreatingRemote, MsgUserExists)
	case err != nil && !errors.Is(err, database.ErrUserNotFound):
		logger.Error().Err(err).Msg("Duplicate user lookup failed")
		return failed(StateCreatingRemote, MsgPersistFailure)
	}

	if inv, res, ok = r.loadValid(ctx, code, StateCreatingRemote); !ok {
		return res
	}

	client, err := r.clients.ClientFor(ctx, inv.ServerID)
	if err != nil {
		logger.Error().Err(err).Str("server_id", inv.ServerID).Msg("No media client for invitation")
		return failed(StateCreatingRemote, MsgRemoteFailure)
	}
	serverType = client.ServerType()
	logger = logger.With().Str("server_type", serverType).Str("username", acct.username).Logger()

	grant, err := r.buildGrant(ctx, inv, serverType)
	if err != nil {
		logger.Error().Err(err).Msg("Could not resolve invitation grant")
		return failed(StateCreatingRemote, MsgPersistFailure)
	}

	intent := &models.ProvisionIntent{
		ServerID:       inv.ServerID,
		InvitationCode: inv.Code,
		Username:       acct.username,
		Email:          acct.email,
	}
	if err := r.store.CreateIntent(ctx, intent); err != nil {
		logger.Error().Err(err).Msg("Could not record provisioning intent")
		return failed(StateCreatingRemote, MsgPersistFailure)
	}

	remoteID, err := client.CreateUser(ctx, mediaclient.NewUser{
		Username: acct.username,
		Email:    acct.email,
		Password: acct.password,
		PlexHome: inv.PlexHome,
		Grant:    grant,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Remote account creation failed")
		r.markIntent(ctx, intent.ID, models.IntentFailed, "", err)
		return failed(StateCreatingRemote, remoteMessage(err))
	}
	r.markIntent(ctx, intent.ID, models.IntentRemoteCreated, remoteID, nil)

	// GRANTING_ACCESS
	if err := client.GrantAccess(ctx, remoteID, grant); err != nil {
		// The account exists; the intent stays remote_created for adoption.
		logger.Error().Err(err).Str("remote_id", remoteID).Msg("Granting access failed, remote account left in place")
		r.markIntent(ctx, intent.ID, models.IntentRemoteCreated, "", err)
		return failed(StateGrantingAccess, MsgRemoteFailure)
	}

	// PERSISTING_LOCAL
	now := r.now().UTC()
	user := &models.User{
		Token:               remoteID,
		Username:            acct.username,
		Email:               acct.email,
		Code:                inv.Code,
		ServerID:            inv.ServerID,
		Expires:             inv.MembershipExpiry(now),
		IsAdmin:             grant.Permissions.IsAdmin,
		AllowDownloads:      grant.Permissions.AllowDownloads,
		AllowLiveTV:         grant.Permissions.AllowLiveTV,
		AllowCameraUpload:   grant.Permissions.AllowCameraUpload,
		AccessibleLibraries: grant.Access.StoredNames(),
		CreatedAt:           now,
	}
	if err := r.store.CompleteRedemption(ctx, user, intent.ID); err != nil {
		logger.Error().Err(err).Str("remote_id", remoteID).Msg("Local persistence failed, remote account left in place")
		switch {
		case errors.Is(err, database.ErrInvitationUsed):
			return failed(StatePersistingLocal, MsgAlreadyUsed)
		case errors.Is(err, database.ErrUserExists):
			return failed(StatePersistingLocal, MsgUserExists)
		default:
			return failed(StatePersistingLocal, MsgPersistFailure)
		}
	}

	// DONE
	logger.Info().Int64("user_id", user.ID).Str("remote_id", remoteID).Msg("Invitation redeemed")
	notify.Send(ctx, r.notifier, notify.NewEvent(notify.EventUserInvited, map[string]any{
		"user_id":     user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"code":        user.Code,
		"server_id":   user.ServerID,
		"server_type": serverType,
	}))
	if r.handoff != nil {
		r.handoff.UserProvisioned(ctx, inv.ServerID, serverType, remoteID)
	}
	return succeeded(user.ID)
}

// loadValid loads the invitation and checks that it can still be redeemed.
func (r *Redeemer) loadValid(ctx context.Context, code string, state State) (*models.Invitation, Result, bool) {
	if code == "" {
		return nil, failed(state, MsgInvalidCode), false
	}
	inv, err := r.store.GetInvitationByCode(ctx, code)
	if errors.Is(err, database.ErrInvitationNotFound) {
		return nil, failed(state, MsgInvalidCode), false
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("code", code).Msg("Invitation lookup failed")
		return nil, failed(state, MsgInvalidCode), false
	}
	now := r.now()
	if inv.IsExpired(now) {
		return nil, failed(state, MsgExpired), false
	}
	if inv.IsExhausted() {
		return nil, failed(state, MsgAlreadyUsed), false
	}
	return inv, Result{}, true
}

// buildGrant derives library access and permissions from the invitation,
// falling back to the server defaults for unset flags. No selection, or a
// selection covering every enabled library, grants unrestricted access so
// libraries added later are included.
func (r *Redeemer) buildGrant(ctx context.Context, inv *models.Invitation, serverType string) (media.Grant, error) {
	var defaults models.MediaServer
	if inv.ServerID != "" {
		srv, err := r.store.GetMediaServer(ctx, inv.ServerID)
		if err != nil && !errors.Is(err, database.ErrServerNotFound) {
			return media.Grant{}, err
		}
		if srv != nil {
			defaults = *srv
		}
	}

	perms := media.StandardizedPermissions{
		ServerType:        serverType,
		AllowDownloads:    flag(inv.AllowDownloads, defaults.DefaultAllowDownloads),
		AllowLiveTV:       flag(inv.AllowLiveTV, defaults.DefaultAllowLiveTV),
		AllowCameraUpload: flag(inv.AllowMobileUploads, defaults.DefaultAllowMobileUploads),
	}

	helper := media.LibraryAccessHelper{Store: r.store}
	if len(inv.Libraries) == 0 {
		return media.Grant{Access: helper.CreateFullAccess(), Permissions: perms}, nil
	}

	enabled, err := r.store.ListEnabledLibraries(ctx, inv.ServerID)
	if err != nil {
		return media.Grant{}, err
	}
	if coversAll(inv.Libraries, enabled) {
		return media.Grant{Access: helper.CreateFullAccess(), Permissions: perms}, nil
	}

	ids := make([]string, 0, len(inv.Libraries))
	for _, lib := range inv.Libraries {
		ids = append(ids, lib.ExternalID)
	}
	access, err := helper.CreateRestrictedAccess(ctx, ids, inv.ServerID)
	if err != nil {
		return media.Grant{}, err
	}
	return media.Grant{Access: access, Permissions: perms}, nil
}

// coversAll reports whether selected contains every enabled library.
func coversAll(selected, enabled []models.Library) bool {
	if len(enabled) == 0 {
		return false
	}
	chosen := make(map[string]bool, len(selected))
	for _, lib := range selected {
		chosen[lib.ExternalID] = true
	}
	for _, lib := range enabled {
		if !chosen[lib.ExternalID] {
			return false
		}
	}
	return true
}

func flag(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func (r *Redeemer) markIntent(ctx context.Context, id string, state models.IntentState, remoteID string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.store.UpdateIntentState(ctx, id, state, remoteID, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("intent_id", id).Str("state", string(state)).
			Msg("Could not update provisioning intent")
	}
}

// remoteMessage surfaces a vendor's 4xx explanation, which is usually
// actionable (password policy, taken username); anything else is generic.
func remoteMessage(err error) string {
	if ce, ok := mediaclient.AsClientError(err); ok && ce.IsClientSide() && ce.Message != "" {
		return ce.Message
	}
	return MsgRemoteFailure
}

func outcome(res Result) string {
	switch {
	case res.Success:
		return "success"
	case res.FailedIn == StatePending || res.FailedIn == StateValidating:
		return "rejected"
	case res.FailedIn == StatePersistingLocal:
		return "persist_error"
	default:
		return "remote_error"
	}
}
