// Package identity implements the static client identity token: a UUID
// plus an anonymous/linked flag, with a fixed 33-character wire form.
package identity

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInvalid is returned by Parse when s is not a well-formed UserId.
var ErrInvalid = errors.New("invalid user id")

// wireLen is the fixed length of a UserId's ASCII wire form: one prefix
// byte plus 32 hex digits (UUID simple form).
const wireLen = 33

// UserId is a client-asserted opaque identity token that persists across
// sessions and owns username reservations.
type UserId struct {
	uuid uuid.UUID
	anon bool
}

// New generates a fresh anonymous identity.
func New() UserId {
	return UserId{uuid: uuid.New(), anon: true}
}

// Parse decodes the 33-character wire form produced by Format. The first
// byte must be 'a' (anonymous) or 'l' (linked); the remaining 32 bytes must
// be a simple-form (no-hyphen) UUID.
func Parse(s string) (UserId, error) {
	if len(s) != wireLen {
		return UserId{}, ErrInvalid
	}
	var anon bool
	switch s[0] {
	case 'a':
		anon = true
	case 'l':
		anon = false
	default:
		return UserId{}, ErrInvalid
	}
	id, err := parseSimple(s[1:])
	if err != nil {
		return UserId{}, ErrInvalid
	}
	return UserId{uuid: id, anon: anon}, nil
}

// parseSimple parses a 32-character hyphen-free UUID by reinserting the
// standard hyphen positions and parsing the hyphenated form.
func parseSimple(s string) (uuid.UUID, error) {
	if len(s) != 32 {
		return uuid.UUID{}, ErrInvalid
	}
	hyphenated := s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
	return uuid.Parse(hyphenated)
}

// Format renders the single-character prefix followed by the 32-character
// simple-form UUID.
func (u UserId) Format() string {
	prefix := byte('l')
	if u.anon {
		prefix = 'a'
	}
	simple := u.uuid.String()
	// Strip the hyphens google/uuid's String() inserts to get the simple form.
	buf := make([]byte, 0, wireLen)
	buf = append(buf, prefix)
	for i := 0; i < len(simple); i++ {
		if simple[i] != '-' {
			buf = append(buf, simple[i])
		}
	}
	return string(buf)
}

// Anon reports whether this identity is anonymous (as opposed to linked).
func (u UserId) Anon() bool {
	return u.anon
}

// Equal reports whether two UserIds name the same identity.
func (u UserId) Equal(other UserId) bool {
	return u.uuid == other.uuid && u.anon == other.anon
}
