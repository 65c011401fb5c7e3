// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package models

import "time"

// IntentState tracks a redemption across the remote and local writes.
type IntentState string

const (
	IntentPending       IntentState = "pending"
	IntentRemoteCreated IntentState = "remote_created"
	IntentCompleted     IntentState = "completed"
	IntentFailed        IntentState = "failed"
	// IntentAdopted means reconciliation found the orphaned remote account and
	// attached the invitation code to it.
	IntentAdopted IntentState = "adopted"
)

// IsOpen reports whether reconciliation may still adopt this intent.
func (s IntentState) IsOpen() bool {
	return s == IntentPending || s == IntentRemoteCreated
}

// ProvisionIntent is written before a remote account is created so a crash
// between remote creation and the local commit can be repaired.
type ProvisionIntent struct {
	ID             string      `json:"id"`
	ServerID       string      `json:"server_id"`
	InvitationCode string      `json:"invitation_code"`
	Username       string      `json:"username"`
	Email          string      `json:"email,omitempty"`
	RemoteID       string      `json:"remote_id,omitempty"`
	State          IntentState `json:"state"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
