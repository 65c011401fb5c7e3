// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package invite

// State is a step of the redemption state machine.
type State string

const (
	StatePending         State = "PENDING"
	StateValidating      State = "VALIDATING"
	StateCreatingRemote  State = "CREATING_REMOTE"
	StateGrantingAccess  State = "GRANTING_ACCESS"
	StatePersistingLocal State = "PERSISTING_LOCAL"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// User-facing messages. They are shown verbatim on the join form.
const (
	MsgInvalidCode      = "Invalid invitation code."
	MsgExpired          = "Invitation has expired"
	MsgAlreadyUsed      = "Invitation has already been used."
	MsgInvalidEmail     = "Invalid e-mail address."
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordLength   = "Password must be between 8 and 128 characters."
	MsgUserExists       = "User or e-mail already exists"
	MsgRemoteFailure    = "Could not create your account on the media server. Please contact the administrator."
	MsgPersistFailure   = "Your account was created but could not be saved. Please contact the administrator."
	MsgSuccess          = "Account created. Welcome!"
)

// Result is the outcome shown to the person redeeming.
type Result struct {
	Success bool
	Message string
	// State is StateDone or StateFailed.
	State State
	// FailedIn is the state that failed; empty on success.
	FailedIn State
	UserID   int64
}

func succeeded(userID int64) Result {
	return Result{Success: true, Message: MsgSuccess, State: StateDone, UserID: userID}
}

func failed(in State, message string) Result {
	return Result{Message: message, State: StateFailed, FailedIn: in}
}
