// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package media holds the vendor-neutral view of media server accounts:
// user details, library access, permissions, sessions and statistics, plus
// the helpers that build them from raw vendor payloads.
package media

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// UserLibraryAccess is one library a user can (or cannot) reach.
type UserLibraryAccess struct {
	LibraryID   string `json:"library_id"`
	LibraryName string `json:"library_name"`
	HasAccess   bool   `json:"has_access"`
}

// LibraryAccess is either unrestricted or an explicit list. An explicit empty
// list means the user sees nothing and is never the same as unrestricted.
// The zero value is unrestricted.
type LibraryAccess struct {
	restricted bool
	libraries  []UserLibraryAccess
}

// Unrestricted grants every library, including ones added later.
func Unrestricted() LibraryAccess {
	return LibraryAccess{}
}

// Restricted limits access to libs. A nil or empty slice means no libraries.
func Restricted(libs []UserLibraryAccess) LibraryAccess {
	cp := make([]UserLibraryAccess, len(libs))
	copy(cp, libs)
	return LibraryAccess{restricted: true, libraries: cp}
}

// RestrictedToIDs is Restricted with ids doubling as names, for payloads that
// carry ids only.
func RestrictedToIDs(ids []string) LibraryAccess {
	libs := make([]UserLibraryAccess, 0, len(ids))
	for _, id := range ids {
		libs = append(libs, UserLibraryAccess{LibraryID: id, LibraryName: id, HasAccess: true})
	}
	return Restricted(libs)
}

// IsUnrestricted reports full access.
func (a LibraryAccess) IsUnrestricted() bool {
	return !a.restricted
}

// Libraries returns the explicit list, or nil when unrestricted.
func (a LibraryAccess) Libraries() []UserLibraryAccess {
	if !a.restricted {
		return nil
	}
	cp := make([]UserLibraryAccess, len(a.libraries))
	copy(cp, a.libraries)
	return cp
}

// IDs returns the vendor ids of the explicit list.
func (a LibraryAccess) IDs() []string {
	if !a.restricted {
		return nil
	}
	ids := make([]string, 0, len(a.libraries))
	for _, l := range a.libraries {
		if l.HasAccess {
			ids = append(ids, l.LibraryID)
		}
	}
	return ids
}

// Names returns the library names of the explicit list.
func (a LibraryAccess) Names() []string {
	if !a.restricted {
		return nil
	}
	names := make([]string, 0, len(a.libraries))
	for _, l := range a.libraries {
		if l.HasAccess {
			names = append(names, l.LibraryName)
		}
	}
	return names
}

// StoredNames is the persisted form: nil for unrestricted, otherwise a
// non-nil slice of names.
func (a LibraryAccess) StoredNames() []string {
	return a.Names()
}

// MarshalJSON emits null for unrestricted and the list otherwise.
func (a LibraryAccess) MarshalJSON() ([]byte, error) {
	if !a.restricted {
		return []byte("null"), nil
	}
	return json.Marshal(a.libraries)
}

// KeyField selects which remote attribute identifies a user during
// reconciliation. The local User.Token stores the same attribute.
type KeyField int

const (
	KeyByID KeyField = iota
	KeyByUsername
	KeyByEmail
)

func (k KeyField) String() string {
	switch k {
	case KeyByUsername:
		return "username"
	case KeyByEmail:
		return "email"
	default:
		return "id"
	}
}

// RemoteKey extracts the reconciliation key from remote details.
func (k KeyField) RemoteKey(d MediaUserDetails) string {
	switch k {
	case KeyByUsername:
		return d.Username
	case KeyByEmail:
		if d.Email == nil {
			return ""
		}
		return k.Normalize(*d.Email)
	default:
		return d.UserID
	}
}

// Normalize canonicalizes a stored key for comparison. E-mail keys compare
// case-insensitively.
func (k KeyField) Normalize(key string) string {
	if k == KeyByEmail {
		return strings.ToLower(strings.TrimSpace(key))
	}
	return key
}

// MediaUserDetails is a freshly built, read-only snapshot of a remote user.
type MediaUserDetails struct {
	UserID      string                  `json:"user_id"`
	Username    string                  `json:"username"`
	Email       *string                 `json:"email,omitempty"`
	IsAdmin     bool                    `json:"is_admin"`
	IsEnabled   bool                    `json:"is_enabled"`
	CreatedAt   *time.Time              `json:"created_at,omitempty"`
	LastActive  *time.Time              `json:"last_active,omitempty"`
	Access      LibraryAccess           `json:"library_access"`
	Permissions StandardizedPermissions `json:"permissions"`
	// RawPolicies is the vendor payload, kept for diagnostics only.
	RawPolicies map[string]any `json:"raw_policies,omitempty"`
}

// HasLibraryRestrictions is true iff access is an explicit list.
func (d MediaUserDetails) HasLibraryRestrictions() bool {
	return !d.Access.IsUnrestricted()
}

// EmailOrEmpty dereferences Email.
func (d MediaUserDetails) EmailOrEmpty() string {
	if d.Email == nil {
		return ""
	}
	return *d.Email
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Grant is the access applied to a freshly created or updated account.
type Grant struct {
	Access      LibraryAccess
	Permissions StandardizedPermissions
}

// Session is one active playback stream.
type Session struct {
	SessionID   string  `json:"session_id"`
	UserID      string  `json:"user_id,omitempty"`
	UserName    string  `json:"user_name"`
	Title       string  `json:"title"`
	MediaType   string  `json:"media_type"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	Client      string  `json:"client,omitempty"`
	Device      string  `json:"device,omitempty"`
	Transcoding bool    `json:"transcoding"`
}

// ProgressPercent converts a position and duration (any unit) to 0-100.
func ProgressPercent(position, duration float64) float64 {
	if duration <= 0 || position <= 0 {
		return 0
	}
	p := position / duration * 100
	if p > 100 {
		return 100
	}
	return p
}
