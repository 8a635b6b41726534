// Package jid normalizes and classifies WhatsApp identifiers.
package jid

import (
	"errors"
	"regexp"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// Server names used in identifiers.
const (
	UserServer       = types.DefaultUserServer
	LegacyUserServer = types.LegacyUserServer
	GroupServer      = types.GroupServer
	LIDServer        = types.HiddenUserServer
	BroadcastServer  = types.BroadcastServer
	NewsletterServer = types.NewsletterServer

	lidPrefix = "lid:"
)

// ErrInvalid is returned when a string cannot be parsed as an identifier.
var ErrInvalid = errors.New("jid: invalid identifier")

var (
	userPattern  = regexp.MustCompile(`^\d{5,20}@s\.whatsapp\.net$`)
	groupPattern = regexp.MustCompile(`^\d+(-\d+)?@g\.us$`)
)

// Normalize returns the canonical form of an identifier.
// Device (":N") and resource ("/res") suffixes are dropped, "@c.us" becomes
// "@s.whatsapp.net", "lid:N" becomes "N@lid" and a bare phone number becomes a
// user JID. It returns "" when s cannot be an identifier.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if hasLIDPrefix(s) {
		user := stripUserSuffix(s[len(lidPrefix):])
		if !isDigits(user) {
			return ""
		}
		return user + "@" + LIDServer
	}

	at := strings.IndexByte(s, '@')
	if at < 0 {
		phone := phoneDigits(s)
		if phone == "" {
			return ""
		}
		return phone + "@" + UserServer
	}
	if strings.Count(s, "@") > 1 {
		return ""
	}

	user := stripUserSuffix(s[:at])
	server := strings.ToLower(s[at+1:])
	if i := strings.IndexAny(server, "/:"); i >= 0 {
		server = server[:i]
	}
	server = strings.TrimSpace(server)
	if server == LegacyUserServer {
		server = UserServer
	}
	switch server {
	case UserServer:
		user = phoneDigits(user)
	case LIDServer:
		if !isDigits(user) {
			return ""
		}
	case GroupServer:
		if !isGroupUser(user) {
			return ""
		}
	default:
		if strings.ContainsAny(user, " \t") {
			return ""
		}
	}
	if user == "" || server == "" {
		return ""
	}
	return user + "@" + server
}

// isGroupUser matches "N" and the legacy "creator-timestamp" group ids.
func isGroupUser(user string) bool {
	head, tail, found := strings.Cut(user, "-")
	if !found {
		return isDigits(head)
	}
	return isDigits(head) && isDigits(tail)
}

// IsValid reports whether s is a canonical user or group identifier.
// LIDs and identifiers with suffixes are not valid.
func IsValid(s string) bool {
	return userPattern.MatchString(s) || groupPattern.MatchString(s)
}

// IsLID reports whether s is a linked identifier in either "N@lid" or "lid:N" form.
func IsLID(s string) bool {
	s = strings.TrimSpace(s)
	if hasLIDPrefix(s) {
		return true
	}
	return server(s) == LIDServer
}

// IsGroup reports whether s refers to a group.
func IsGroup(s string) bool {
	return server(s) == GroupServer
}

// IsUser reports whether s refers to a phone-number user.
func IsUser(s string) bool {
	return server(s) == UserServer
}

// IsBroadcast reports whether s is a broadcast list or status identifier.
func IsBroadcast(s string) bool {
	return server(s) == BroadcastServer
}

// IsNewsletter reports whether s is a channel identifier.
func IsNewsletter(s string) bool {
	return server(s) == NewsletterServer
}

// User returns the user part of the normalized identifier.
func User(s string) string {
	n := Normalize(s)
	if at := strings.IndexByte(n, '@'); at >= 0 {
		return n[:at]
	}
	return ""
}

// PhoneNumber returns the digits of a user identifier, or "" for anything else.
func PhoneNumber(s string) string {
	n := Normalize(s)
	if !userPattern.MatchString(n) {
		return ""
	}
	return n[:strings.IndexByte(n, '@')]
}

// FromPhone builds a user identifier from a phone number in any common notation.
func FromPhone(phone string) string {
	digits := phoneDigits(phone)
	if digits == "" {
		return ""
	}
	return digits + "@" + UserServer
}

// ToLID returns the canonical "N@lid" form, or "" if s is not a LID.
func ToLID(s string) string {
	if !IsLID(s) {
		return ""
	}
	return Normalize(s)
}

// Parse normalizes s and converts it to a whatsmeow JID.
func Parse(s string) (types.JID, error) {
	n := Normalize(s)
	if n == "" {
		return types.EmptyJID, ErrInvalid
	}
	parsed, err := types.ParseJID(n)
	if err != nil {
		return types.EmptyJID, errors.Join(ErrInvalid, err)
	}
	return parsed, nil
}

// Format returns the normalized string form of a whatsmeow JID.
func Format(j types.JID) string {
	if j.IsEmpty() {
		return ""
	}
	return Normalize(j.ToNonAD().String())
}

// Dedupe normalizes ids and drops empty results and duplicates, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n := Normalize(id)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func server(s string) string {
	n := Normalize(s)
	if at := strings.IndexByte(n, '@'); at >= 0 {
		return n[at+1:]
	}
	return ""
}

func hasLIDPrefix(s string) bool {
	return len(s) >= len(lidPrefix) && strings.EqualFold(s[:len(lidPrefix)], lidPrefix)
}

// stripUserSuffix drops ":device", "/resource" and a numeric ".agent" from the user part.
func stripUserSuffix(user string) string {
	if i := strings.IndexAny(user, ":/"); i >= 0 {
		user = user[:i]
	}
	if i := strings.LastIndexByte(user, '.'); i >= 0 && isDigits(user[i+1:]) {
		user = user[:i]
	}
	return strings.TrimSpace(user)
}

func phoneDigits(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return ""
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
