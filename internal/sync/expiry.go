// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/wizarr/internal/logging"
	"github.com/tomtom215/wizarr/internal/metrics"
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/notify"
)

// ExpirySweeper removes users whose membership expired.
type ExpirySweeper struct {
	store   Store
	remover *Remover
	now     func() time.Time
}

// NewExpirySweeper creates a sweeper that deletes through remover.
func NewExpirySweeper(store Store, remover *Remover) *ExpirySweeper {
	return &ExpirySweeper{store: store, remover: remover, now: time.Now}
}

// Sweep deletes every user with expires < now and returns the deleted ids.
// Each user is handled on its own: a failure is logged and the user stays
// for the next sweep. Only a failure to list expired users is returned.
func (s *ExpirySweeper) Sweep(ctx context.Context) ([]int64, error) {
	metrics.ExpirySweepRuns.Inc()

	expired, err := s.store.ExpiredUsers(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list expired users: %w", err)
	}

	deleted := make([]int64, 0, len(expired))
	failed := 0
	for i := range expired {
		if ctx.Err() != nil {
			break
		}
		user := &expired[i]
		if err := s.removeOne(ctx, user); err != nil {
			failed++
			metrics.ExpiredUserFailures.Inc()
			logging.Ctx(ctx).Error().Err(err).
				Int64("user_id", user.ID).
				Str("server_id", user.ServerID).
				Msg("Failed to remove expired user")
			continue
		}
		metrics.ExpiredUsersDeleted.Inc()
		deleted = append(deleted, user.ID)
	}

	if len(expired) > 0 {
		logging.Ctx(ctx).Info().
			Int("expired", len(expired)).
			Int("deleted", len(deleted)).
			Int("failed", failed).
			Msg("Expiry sweep finished")
	}
	return deleted, nil
}

// removeOne turns an adapter panic into an error so one user cannot end
// the sweep.
func (s *ExpirySweeper) removeOne(ctx context.Context, user *models.User) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.remover.remove(ctx, user, notify.EventUserExpired)
}
