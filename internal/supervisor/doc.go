// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package supervisor runs Wizarr's long-lived services under suture v4.

The tree has two layers so a crashing background worker never takes the
HTTP listener down with it:

	RootSupervisor ("wizarr")
	├── WorkerSupervisor ("worker-layer")
	│   └── SyncService (roster reconciliation + expiry sweep)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Services return nil to stop for good and an error to be restarted. Restarts
back off after FailureThreshold failures within the decay window.

DuckDB is not supervised; it is an embedded library owned by main.
*/
package supervisor
