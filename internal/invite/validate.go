// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package invite

import (
	"github.com/tomtom215/wizarr/internal/models"
	"github.com/tomtom215/wizarr/internal/validation"
)

// validateJoin checks the form before any remote call.
func validateJoin(req models.JoinRequest) *Result {
	if verr := validation.ValidateStruct(req); verr != nil {
		res := failed(StateValidating, messageFor(verr))
		return &res
	}
	if req.Password != req.ConfirmPassword {
		res := failed(StateValidating, MsgPasswordMismatch)
		return &res
	}
	return nil
}

// messageFor picks the message for the first failing field.
func messageFor(verr *validation.RequestValidationError) string {
	errs := verr.Errors()
	if len(errs) == 0 {
		return verr.Error()
	}
	first := errs[0]
	switch first.Field() {
	case "email":
		return MsgInvalidEmail
	case "password":
		return MsgPasswordLength
	case "code":
		return MsgInvalidCode
	}
	return first.Error()
}
