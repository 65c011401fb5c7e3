// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

/*
Package api is the chi HTTP surface in front of the provisioning workflow.

Public routes (strict per-IP rate limit):

	POST /api/v1/join                  password-based redemption
	POST /api/v1/join/plex             Plex redemption after OAuth
	GET  /api/v1/health/live
	GET  /api/v1/health/ready

Admin routes (HS256 bearer token with role "admin"):

	GET    /api/v1/servers
	POST   /api/v1/servers
	POST   /api/v1/servers/scan-libraries
	GET    /api/v1/servers/{id}/libraries
	POST   /api/v1/servers/{id}/sync
	GET    /api/v1/servers/{id}/statistics?readonly=true|false
	GET    /api/v1/servers/{id}/now-playing
	GET    /api/v1/servers/{id}/users/{token}
	GET    /api/v1/invitations?server_id=
	POST   /api/v1/invitations
	DELETE /api/v1/invitations/{code}
	DELETE /api/v1/users/{id}
	POST   /api/v1/users/{id}/enable
	POST   /api/v1/users/{id}/disable
	POST   /api/v1/expiry/sweep
	GET    /api/v1/audit?type=&actor=&target_type=&target_id=&since=&until=

Successful admin mutations and rejected admin credentials are written to
the audit trail when an Auditor is configured. GET /metrics serves
Prometheus. Every JSON response uses the APIResponse envelope.
*/
package api
