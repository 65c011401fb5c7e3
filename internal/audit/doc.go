// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package audit records the admin activity trail: servers added, invitations
created or deleted, users removed or toggled, manual syncs and sweeps, and
rejected admin credentials.

Events are queued on a buffered channel and written to the audit_events
table by a single goroutine, so handlers never wait on the insert. A full
buffer drops the event with a warning. Retention cleanup runs on its own
ticker and deletes events older than RetentionDays.

Querying:

	events, err := logger.Query(ctx, audit.QueryFilter{
		Types: []audit.EventType{audit.EventInvitationCreated},
		Limit: 50,
	})
*/
package audit
