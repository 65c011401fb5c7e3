// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package media

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/wizarr/internal/models"
)

// LibraryLookup reads the persisted libraries of a server.
type LibraryLookup interface {
	ListLibraries(ctx context.Context, serverID string) ([]models.Library, error)
}

// LibraryAccessHelper builds LibraryAccess values from vendor ids or names,
// resolving display names from the persisted library table.
type LibraryAccessHelper struct {
	Store LibraryLookup
}

// CreateFullAccess returns the unrestricted value.
func (h LibraryAccessHelper) CreateFullAccess() LibraryAccess {
	return Unrestricted()
}

// CreateRestrictedAccess resolves externalIDs against the server's libraries
// and returns them sorted by name. No ids yields an explicit empty list.
// Ids without a persisted row are kept, named by their id.
func (h LibraryAccessHelper) CreateRestrictedAccess(ctx context.Context, externalIDs []string, serverID string) (LibraryAccess, error) {
	if len(externalIDs) == 0 {
		return Restricted(nil), nil
	}
	byID, _, err := h.index(ctx, serverID)
	if err != nil {
		return LibraryAccess{}, err
	}

	seen := make(map[string]bool, len(externalIDs))
	libs := make([]UserLibraryAccess, 0, len(externalIDs))
	for _, id := range externalIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		name := id
		if lib, ok := byID[id]; ok {
			name = lib.Name
		}
		libs = append(libs, UserLibraryAccess{LibraryID: id, LibraryName: name, HasAccess: true})
	}
	sortByName(libs)
	return Restricted(libs), nil
}

// CreateFromSections is the name-keyed variant used for Plex shared sections.
// Unknown names are kept with an empty id.
func (h LibraryAccessHelper) CreateFromSections(ctx context.Context, names []string, serverID string) (LibraryAccess, error) {
	if len(names) == 0 {
		return Restricted(nil), nil
	}
	_, byName, err := h.index(ctx, serverID)
	if err != nil {
		return LibraryAccess{}, err
	}

	seen := make(map[string]bool, len(names))
	libs := make([]UserLibraryAccess, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		entry := UserLibraryAccess{LibraryName: name, HasAccess: true}
		if lib, ok := byName[key]; ok {
			entry.LibraryID = lib.ExternalID
			entry.LibraryName = lib.Name
		}
		libs = append(libs, entry)
	}
	sortByName(libs)
	return Restricted(libs), nil
}

func (h LibraryAccessHelper) index(ctx context.Context, serverID string) (map[string]models.Library, map[string]models.Library, error) {
	byID := map[string]models.Library{}
	byName := map[string]models.Library{}
	if h.Store == nil {
		return byID, byName, nil
	}
	libs, err := h.Store.ListLibraries(ctx, serverID)
	if err != nil {
		return nil, nil, fmt.Errorf("load libraries for server %s: %w", serverID, err)
	}
	for _, l := range libs {
		byID[l.ExternalID] = l
		byName[strings.ToLower(l.Name)] = l
	}
	return byID, byName, nil
}

func sortByName(libs []UserLibraryAccess) {
	sort.SliceStable(libs, func(i, j int) bool {
		return strings.ToLower(libs[i].LibraryName) < strings.ToLower(libs[j].LibraryName)
	})
}
