// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package sync keeps the local user table aligned with each media server.

Key Components:

  - Reconciler: fetches the remote roster and makes the local rows match it
  - Remover: deletes a user remotely, then locally
  - ExpirySweeper: removes users whose membership has expired
  - Manager: runs reconciliation and the sweep on tickers

Reconciliation:

The remote roster is authoritative. Users are matched on the adapter's
KeyField (vendor id, username for Navidrome, e-mail for Plex). A run applies
the structural diff (deletes and inserts) in one transaction, then rewrites
the normalized permission and library columns in a second. When the second
commit fails the structural changes stay and the pre-metadata rows are
returned. Running twice against an unchanged roster writes nothing.

Remote accounts created by a redemption that never finished are matched to
their open provisioning intent by username or e-mail and inherit its
invitation code.

Usage Example:

	reconciler := sync.NewReconciler(db, resolver)
	users, err := reconciler.ListUsers(ctx, serverID)

	sweeper := sync.NewExpirySweeper(db, sync.NewRemover(db, resolver, notifier))
	deleted, err := sweeper.Sweep(ctx)
*/
package sync
