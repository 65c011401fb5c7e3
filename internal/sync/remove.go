// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"fmt"

	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/notify"
)

// Remover deletes and toggles users on their media server and mirrors the
// result locally.
type Remover struct {
	store    Store
	clients  ClientSource
	notifier notify.Notifier
}

// NewRemover creates a remover. A nil notifier discards events.
func NewRemover(store Store, clients ClientSource, notifier notify.Notifier) *Remover {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Remover{store: store, clients: clients, notifier: notifier}
}

// Remove deletes the user remotely and then locally. When the remote
// delete fails the local row is kept so the removal can be retried. A
// remote 404 counts as already deleted.
func (r *Remover) Remove(ctx context.Context, userID int64) error {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return r.remove(ctx, user, notify.EventUserDeleted)
}

func (r *Remover) remove(ctx context.Context, user *models.User, event notify.EventType) error {
	client, err := r.clients.ClientFor(ctx, user.ServerID)
	if err != nil {
		return fmt.Errorf("resolve client: %w", err)
	}

	if err := client.DeleteUser(ctx, user.Token); err != nil {
		if !mediaclient.IsNotFound(err) {
			return fmt.Errorf("remote delete of user %d: %w", user.ID, err)
		}
		logging.Ctx(ctx).Debug().Int64("user_id", user.ID).Msg("Remote account already gone")
	}

	if err := r.store.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("local delete of user %d: %w", user.ID, err)
	}

	notify.Send(ctx, r.notifier, notify.NewEvent(event, map[string]any{
		"user_id":     user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"server_id":   user.ServerID,
		"server_type": client.ServerType(),
	}))
	return nil
}

// SetEnabled enables or disables the remote account. It reports false
// when the vendor has no such operation; the local flag is only changed
// when the remote call applied.
func (r *Remover) SetEnabled(ctx context.Context, userID int64, enabled bool) (bool, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	client, err := r.clients.ClientFor(ctx, user.ServerID)
	if err != nil {
		return false, fmt.Errorf("resolve client: %w", err)
	}

	var applied bool
	if enabled {
		applied, err = client.EnableUser(ctx, user.Token)
	} else {
		applied, err = client.DisableUser(ctx, user.Token)
	}
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	if err := r.store.SetUserDisabled(ctx, user.ID, !enabled); err != nil {
		return true, fmt.Errorf("record user state: %w", err)
	}
	return true, nil
}
