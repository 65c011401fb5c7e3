// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package main is the entry point for the Wizarr server.

Wizarr hands out invitation codes that create accounts on self-hosted media
servers (Plex, Jellyfin, Emby, Audiobookshelf, Komga, Kavita, RomM,
Navidrome and Drop), keeps a local mirror of each server's users, and
removes accounts whose invitation-granted membership has expired.

# Process Layout

	RootSupervisor ("wizarr")
	├── WorkerSupervisor ("worker-layer")
	│   └── Sync Manager (roster reconciliation + expiry sweep)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router)

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, with a slog bridge for suture
 3. Database: DuckDB, schema and migrations
 4. Legacy seeding: SERVER_TYPE / SERVER_URL / API_KEY into settings
 5. Audit trail: DuckDB table, async writer, retention cleanup
 6. Media clients: shared HTTP client, rate limiter and caches
 7. Workflow: redeemer, reconciler, remover, expiry sweeper
 8. Supervisor tree and HTTP server

# Admin Tokens

The admin API takes an HS256 bearer token signed with JWT_SECRET. Print
one with:

	wizarr -issue-token admin

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains for
SHUTDOWN_TIMEOUT and the sync manager finishes its current pass.
*/
package main
