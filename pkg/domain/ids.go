// Package domain holds shared identifier types used across services.
// Typed IDs prevent accidental cross-assignment between identifier kinds.
package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "meridian/pkg/domain-errors"
)

// UserID identifies the account whose sessions are being queried.
type UserID uuid.UUID

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether the ID is the nil UUID.
func (id UserID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses and validates a user ID from its string form.
// IDs must be valid, non-empty, non-nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user id")
	return UserID(id), err
}

// NewUserID returns a freshly generated user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

func parseUUID(s, kind string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, kind+" is not a valid uuid")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil uuid")
	}
	return id, nil
}

// maxSubjectIDLength bounds subject identifiers; longest observed
// production value is 253 characters (a full DNS hostname).
const maxSubjectIDLength = 512

// SubjectID identifies what a session was spent on: a hostname for web
// activity ("github.com") or a reverse-DNS application ID for desktop
// activity ("com.apple.Terminal"). Opaque to the query engine beyond
// basic shape validation.
type SubjectID string

func (id SubjectID) String() string { return string(id) }

// ParseSubjectID validates a subject identifier. Subjects must be
// non-empty, printable, and bounded in length.
func ParseSubjectID(s string) (SubjectID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id must not be empty")
	}
	if len(trimmed) > maxSubjectIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id exceeds maximum length")
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "subject id contains control characters")
		}
	}
	return SubjectID(trimmed), nil
}
