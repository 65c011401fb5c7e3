// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/wizarr/internal/logging"
)

// ManagerConfig sets the two ticker periods.
type ManagerConfig struct {
	ReconcileInterval  time.Duration
	SweepInterval      time.Duration
	ReconcileOnStartup bool
}

// Manager runs reconciliation of every enabled server and the expiry
// sweep on their own tickers.
type Manager struct {
	store      Store
	reconciler *Reconciler
	sweeper    *ExpirySweeper
	cfg        ManagerConfig

	mu            sync.RWMutex
	running       bool
	stopChan      chan struct{}
	wg            sync.WaitGroup
	lastReconcile time.Time
	lastSweep     time.Time

	// reconcileMu prevents a manual trigger from overlapping a tick
	reconcileMu sync.Mutex
	sweepMu     sync.Mutex
}

// NewManager creates a manager. Non-positive intervals disable that loop.
func NewManager(store Store, reconciler *Reconciler, sweeper *ExpirySweeper, cfg ManagerConfig) *Manager {
	logging.Info().
		Dur("reconcile_interval", cfg.ReconcileInterval).
		Dur("sweep_interval", cfg.SweepInterval).
		Msg("Sync manager config loaded")
	return &Manager{
		store:      store,
		reconciler: reconciler,
		sweeper:    sweeper,
		cfg:        cfg,
	}
}

// Start launches the loops and returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	logging.Info().Msg("Starting sync manager...")

	if m.cfg.ReconcileInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, stop, m.cfg.ReconcileInterval, m.cfg.ReconcileOnStartup, func(ctx context.Context) {
			if err := m.ReconcileAll(ctx); err != nil {
				logging.Warn().Err(err).Msg("Scheduled reconciliation finished with errors")
			}
		})
	}
	if m.cfg.SweepInterval > 0 {
		m.wg.Add(1)
		go m.loop(ctx, stop, m.cfg.SweepInterval, false, func(ctx context.Context) {
			if _, err := m.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("Expiry sweep failed")
			}
		})
	}
	return nil
}

// Stop signals the loops and waits for the current run to finish.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("sync manager is not running")
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
	return nil
}

func (m *Manager) loop(ctx context.Context, stop <-chan struct{}, interval time.Duration, runNow bool, run func(context.Context)) {
	defer m.wg.Done()

	if runNow {
		run(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ReconcileAll reconciles every enabled server. One server failing does
// not stop the others; the first error is returned.
func (m *Manager) ReconcileAll(ctx context.Context) error {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()

	servers, err := m.store.ListMediaServers(ctx, true)
	if err != nil {
		return fmt.Errorf("list media servers: %w", err)
	}

	var firstErr error
	for _, srv := range servers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := m.reconciler.ListUsers(ctx, srv.ID); err != nil {
			logging.ForServer(ctx, srv.ServerType, srv.ID).Error().Err(err).Msg("Reconciliation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.mu.Lock()
	m.lastReconcile = time.Now()
	m.mu.Unlock()
	return firstErr
}

// Sweep runs one expiry sweep, serialized with the scheduled one.
func (m *Manager) Sweep(ctx context.Context) ([]int64, error) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	deleted, err := m.sweeper.Sweep(ctx)
	if err == nil {
		m.mu.Lock()
		m.lastSweep = time.Now()
		m.mu.Unlock()
	}
	return deleted, err
}

// LastReconcile returns when ReconcileAll last finished.
func (m *Manager) LastReconcile() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReconcile
}

// LastSweep returns when the last successful sweep finished.
func (m *Manager) LastSweep() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSweep
}
