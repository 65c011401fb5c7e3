// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package media

import (
	"strings"
	"time"
)

// Statistics is the dashboard summary of one server. A vendor failure is
// reported in Error while whatever was collected is still returned.
type Statistics struct {
	ServerType  string       `json:"server_type"`
	ServerName  string       `json:"server_name,omitempty"`
	Version     string       `json:"version,omitempty"`
	Users       UserStats    `json:"users"`
	Libraries   LibraryStats `json:"libraries"`
	Sessions    SessionStats `json:"sessions"`
	CollectedAt time.Time    `json:"collected_at"`
	Error       string       `json:"error,omitempty"`
}

// UserStats counts remote accounts. Total is -1 when it was not collected.
type UserStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// LibraryStats counts libraries and items per kind ("movies", "books", ...).
type LibraryStats struct {
	Total int            `json:"total"`
	Items map[string]int `json:"items,omitempty"`
}

// SessionStats counts current streams.
type SessionStats struct {
	Active      int `json:"active"`
	Transcoding int `json:"transcoding"`
}

// NewStatistics returns an empty summary stamped with now.
func NewStatistics(serverType string, now time.Time) Statistics {
	return Statistics{
		ServerType:  serverType,
		Users:       UserStats{Total: -1},
		Libraries:   LibraryStats{Items: map[string]int{}},
		CollectedAt: now,
	}
}

// AddError records a partial failure without discarding earlier ones.
func (s *Statistics) AddError(part string, err error) {
	if err == nil {
		return
	}
	msg := part + ": " + err.Error()
	if s.Error == "" {
		s.Error = msg
		return
	}
	s.Error = strings.Join([]string{s.Error, msg}, "; ")
}

// ApplySessions fills the session counters.
func (s *Statistics) ApplySessions(sessions []Session) {
	s.Sessions.Active = len(sessions)
	s.Sessions.Transcoding = 0
	for _, sess := range sessions {
		if sess.Transcoding {
			s.Sessions.Transcoding++
		}
	}
}

// ApplyUsers fills the user counters from a roster.
func (s *Statistics) ApplyUsers(users []MediaUserDetails) {
	s.Users.Total = len(users)
	s.Users.Active = 0
	for _, u := range users {
		if u.IsEnabled {
			s.Users.Active++
		}
	}
}
