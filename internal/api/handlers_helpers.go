// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wizarr/internal/database"
	"github.com/tomtom215/wizarr/internal/mediaclient"
	"github.com/tomtom215/wizarr/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	if !decodeJSON(rw, r, dst) {
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

func int64Param(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v, err == nil && v > 0
}

// respondStoreError maps not-found sentinels to 404 and the rest to 500.
func respondStoreError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrServerNotFound):
		rw.NotFound("Media server not found")
	case errors.Is(err, database.ErrUserNotFound):
		rw.NotFound("User not found")
	case errors.Is(err, database.ErrInvitationNotFound):
		rw.NotFound("Invitation not found")
	case errors.Is(err, database.ErrLibraryNotFound):
		rw.NotFound("Library not found")
	case errors.Is(err, database.ErrInvitationExists):
		rw.Conflict("Invitation code already exists")
	default:
		rw.DatabaseError(err)
	}
}

// respondClientError maps adapter failures. Resolution failures for an
// unknown server are 404; vendor errors are 502.
func respondClientError(rw *ResponseWriter, serverType string, err error) {
	switch {
	case errors.Is(err, database.ErrServerNotFound), errors.Is(err, mediaclient.ErrNoLegacyServer):
		rw.NotFound("Media server not found")
	case errors.Is(err, mediaclient.ErrUnsupported):
		rw.Error(http.StatusNotImplemented, ErrCodeNotSupported, err.Error())
	case mediaclient.IsNotFound(err):
		rw.NotFound("Not found on the media server")
	default:
		if serverType == "" {
			serverType = "media server"
		}
		rw.ExternalServiceError(serverType, err)
	}
}
