package persist

import (
	"github.com/google/uuid"
)

// Token is the stable 128-bit identity of a persisted entity.
// The zero Token means "no identity assigned yet".
type Token uuid.UUID

// NewToken returns a fresh random token.
func NewToken() Token {
	return Token(uuid.New())
}

// ParseToken parses the canonical textual form of a token.
func ParseToken(s string) (Token, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Token{}, err
	}
	return Token(id), nil
}

// IsZero reports whether the token is unset.
func (t Token) IsZero() bool {
	return t == Token{}
}

// String returns the canonical textual form.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// MarshalText implements encoding.TextMarshaler.
func (t Token) MarshalText() ([]byte, error) {
	return uuid.UUID(t).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Token) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(t).UnmarshalText(b)
}

// compareTokens orders tokens bytewise.
func compareTokens(a, b Token) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// SpaceID names a StateSpace. The zero SpaceID is the main world, which is
// always open. Inside a sub-space, an identity tag carrying the zero SpaceID
// has simply not been claimed yet.
type SpaceID uuid.UUID

// MainSpace is the id of the always-present main-world space.
var MainSpace SpaceID

// NewSpaceID returns a fresh random space id.
func NewSpaceID() SpaceID {
	return SpaceID(uuid.New())
}

// ParseSpaceID parses the canonical textual form of a space id.
func ParseSpaceID(s string) (SpaceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SpaceID{}, err
	}
	return SpaceID(id), nil
}

// IsMain reports whether id is the main-world space.
func (id SpaceID) IsMain() bool {
	return id == MainSpace
}

// String returns the canonical textual form.
func (id SpaceID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id SpaceID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *SpaceID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
