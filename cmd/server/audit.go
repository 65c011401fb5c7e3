// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package main

import (
	"context"
	"database/sql"

	"github.com/tomtom215/wizarr/internal/api"
	"github.com/tomtom215/wizarr/internal/audit"
	"github.com/tomtom215/wizarr/internal/config"
	"github.com/tomtom215/wizarr/internal/logging"
)

// openAuditLog returns a nil Auditor when the trail is disabled so the
// router sees a true nil interface.
func openAuditLog(ctx context.Context, conn *sql.DB, cfg config.AuditConfig) (api.Auditor, func()) {
	if !cfg.Enabled {
		logging.Info().Msg("Audit trail disabled")
		return nil, func() {}
	}

	store := audit.NewDuckDBStore(conn)
	if err := store.CreateTable(ctx); err != nil {
		logging.Error().Err(err).Msg("Failed to create audit table, audit trail disabled")
		return nil, func() {}
	}

	logger := audit.NewLogger(store, audit.Config{
		Enabled:         true,
		RetentionDays:   cfg.RetentionDays,
		CleanupInterval: cfg.CleanupInterval,
		BufferSize:      cfg.BufferSize,
	})
	logger.StartCleanupRoutine(ctx)
	logging.Info().Int("retention_days", cfg.RetentionDays).Msg("Audit trail enabled")

	return logger, func() {
		if err := logger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}
}
