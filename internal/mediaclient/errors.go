// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package mediaclient

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// ClientError is the single error type returned by adapters for remote
// failures. StatusCode is 0 for transport errors.
type ClientError struct {
	Vendor     string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ClientError) Error() string {
	var b strings.Builder
	b.WriteString(e.Vendor)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ClientError) Unwrap() error { return e.Err }

// IsClientSide reports a 4xx response.
func (e *ClientError) IsClientSide() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// AsClientError unwraps err to a *ClientError.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if ce, ok := AsClientError(err); ok {
		return ce.StatusCode
	}
	return 0
}

// IsNotFound reports an HTTP 404 from the vendor.
func IsNotFound(err error) bool {
	return StatusCode(err) == 404
}

// maxMessageLen bounds messages copied from response bodies.
const maxMessageLen = 300

var (
	plexXMLMessage = regexp.MustCompile(`<error[^>]*message="([^"]*)"`)
	plexHTMLTitle  = regexp.MustCompile(`(?is)<title>\s*(.*?)\s*</title>`)
	jsonMessageKey = regexp.MustCompile(`"(?:message|error|detail|title)"\s*:\s*"([^"]+)"`)
)

// extractMessage pulls a human readable message out of an error body.
func extractMessage(vendor string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var msg string
	switch vendor {
	case "plex":
		msg = plexMessage(trimmed)
	case "navidrome":
		msg = subsonicMessage(body)
	}
	if msg == "" {
		msg = genericJSONMessage(body)
	}
	if msg == "" {
		if m := jsonMessageKey.FindStringSubmatch(trimmed); m != nil {
			msg = m[1]
		}
	}
	if msg == "" && !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "<") {
		// Jellyfin and Emby answer many errors with a plain text body.
		msg = trimmed
	}
	return truncate(msg, maxMessageLen)
}

func plexMessage(body string) string {
	if strings.HasPrefix(body, "<") {
		var doc struct {
			Errors []struct {
				Message string `xml:"message,attr"`
				Text    string `xml:",chardata"`
			} `xml:"error"`
		}
		if err := xml.Unmarshal([]byte(body), &doc); err == nil {
			for _, e := range doc.Errors {
				if e.Message != "" {
					return e.Message
				}
				if t := strings.TrimSpace(e.Text); t != "" {
					return t
				}
			}
		}
		if m := plexXMLMessage.FindStringSubmatch(body); m != nil {
			return m[1]
		}
		if m := plexHTMLTitle.FindStringSubmatch(body); m != nil {
			return m[1]
		}
		return ""
	}

	var doc struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err == nil {
		msgs := make([]string, 0, len(doc.Errors))
		for _, e := range doc.Errors {
			if e.Message != "" {
				msgs = append(msgs, e.Message)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func subsonicMessage(body []byte) string {
	var doc subsonicEnvelope
	if err := json.Unmarshal(body, &doc); err != nil || doc.Response.Error == nil {
		return ""
	}
	return doc.Response.Error.Message
}

func genericJSONMessage(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail", "title", "Message"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && s != "" {
				return s
			}
		}
	}
	if errs, ok := doc["errors"].([]any); ok {
		for _, e := range errs {
			if m, ok := e.(map[string]any); ok {
				if s, ok := m["message"].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
