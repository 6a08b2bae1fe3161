// Package domain holds identifier types shared across bounded contexts.
package domain

import (
	"github.com/google/uuid"

	dErrors "lifeline/pkg/domain-errors"
)

// Typed identifiers keep candidate, directory-entry and account ids from
// being passed where another kind is expected.
type (
	UserID      uuid.UUID
	CandidateID uuid.UUID
	EntryID     uuid.UUID
)

func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id CandidateID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string     { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CandidateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// NewCandidateID returns a random candidate id.
func NewCandidateID() CandidateID { return CandidateID(uuid.New()) }

// NewEntryID returns a random directory entry id.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// ParseUserID parses a non-nil UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseCandidateID parses a non-nil UUID string into a CandidateID.
func ParseCandidateID(s string) (CandidateID, error) {
	u, err := parseUUID(s, "candidate_id")
	return CandidateID(u), err
}

// ParseEntryID parses a non-nil UUID string into an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry_id")
	return EntryID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}

// Text encoding lets the typed ids round-trip through JSON as UUID strings.

func (id UserID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id CandidateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EntryID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CandidateID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntryID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
