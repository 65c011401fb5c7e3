// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"sort"
	"strconv"

	"github.com/tomtom215/wizarr/internal/media"
)

// Accessors for decoded JSON objects. Vendors disagree on whether ids are
// numbers or strings, so identifiers are always read through str.

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func num(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func obj(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func list(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if o, ok := item.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out
}

func strList(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	return out
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// accessFromIDs builds a restricted access list, naming ids through libs
// (external_id -> name) where possible.
func accessFromIDs(ids []string, libs map[string]string) media.LibraryAccess {
	entries := make([]media.UserLibraryAccess, 0, len(ids))
	for _, id := range ids {
		name := id
		if n, ok := libs[id]; ok && n != "" {
			name = n
		}
		entries = append(entries, media.UserLibraryAccess{LibraryID: id, LibraryName: name, HasAccess: true})
	}
	return media.Restricted(entries)
}

// grantIDs resolves a grant to concrete library ids. Unrestricted expands to
// every library in libs.
func grantIDs(access media.LibraryAccess, libs map[string]string) []string {
	if !access.IsUnrestricted() {
		return access.IDs()
	}
	ids := make([]string, 0, len(libs))
	for id := range libs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// coversAll reports whether ids name every library in libs.
func coversAll(ids []string, libs map[string]string) bool {
	if len(libs) == 0 {
		return false
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for id := range libs {
		if !set[id] {
			return false
		}
	}
	return true
}
