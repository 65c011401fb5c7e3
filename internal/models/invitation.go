// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package models

import "time"

// Invitation is a redeemable code.
//
// Expires bounds when the code itself can be used. DurationDays is the
// lifetime of the membership it creates. Nil permission flags fall back to
// the server defaults at redemption time.
type Invitation struct {
	ID                 int64      `json:"id"`
	Code               string     `json:"code"`
	ServerID           string     `json:"server_id"`
	Used               bool       `json:"used"`
	UsedAt             *time.Time `json:"used_at,omitempty"`
	UsedBy             *int64     `json:"used_by,omitempty"`
	Unlimited          bool       `json:"unlimited"`
	Expires            *time.Time `json:"expires,omitempty"`
	DurationDays       *int       `json:"duration_days,omitempty"`
	AllowDownloads     *bool      `json:"allow_downloads,omitempty"`
	AllowLiveTV        *bool      `json:"allow_live_tv,omitempty"`
	AllowMobileUploads *bool      `json:"allow_mobile_uploads,omitempty"`
	PlexHome           bool       `json:"plex_home"`
	Libraries          []Library  `json:"libraries"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsExpired reports whether the code can no longer be redeemed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Expires != nil && !i.Expires.After(now)
}

// IsExhausted reports whether a single-use code has been consumed.
func (i *Invitation) IsExhausted() bool {
	return i.Used && !i.Unlimited
}

// IsValid combines expiry and usage at now.
func (i *Invitation) IsValid(now time.Time) bool {
	return !i.IsExpired(now) && !i.IsExhausted()
}

// MembershipExpiry returns now + DurationDays, or nil for permanent members.
func (i *Invitation) MembershipExpiry(now time.Time) *time.Time {
	if i.DurationDays == nil || *i.DurationDays <= 0 {
		return nil
	}
	t := now.Add(time.Duration(*i.DurationDays) * 24 * time.Hour)
	return &t
}
