package persist

import (
	"encoding/json"
	"slices"
)

// BaselineSet is the write-once set of tokens that existed in a StateSpace
// the first time it was ever observed.
//
// The zero value is an empty, not yet established baseline.
type BaselineSet struct {
	ids map[Token]struct{}
}

// NewBaselineSet returns a baseline established with tokens.
// It is mostly useful for loading saves and for tests.
func NewBaselineSet(tokens ...Token) BaselineSet {
	var b BaselineSet
	b.Establish(tokens)
	return b
}

// Len returns the number of baseline members.
func (b *BaselineSet) Len() int {
	return len(b.ids)
}

// Empty reports whether the baseline has not been established yet.
func (b *BaselineSet) Empty() bool {
	return len(b.ids) == 0
}

// Contains reports whether id is a baseline member.
func (b *BaselineSet) Contains(id Token) bool {
	_, ok := b.ids[id]
	return ok
}

// Establish sets the baseline to exactly tokens if, and only if, it is still
// empty. Once non-empty the set never changes again; later calls return false.
func (b *BaselineSet) Establish(tokens []Token) bool {
	if len(b.ids) > 0 || len(tokens) == 0 {
		return false
	}
	b.ids = make(map[Token]struct{}, len(tokens))
	for _, id := range tokens {
		if !id.IsZero() {
			b.ids[id] = struct{}{}
		}
	}
	return len(b.ids) > 0
}

// Tokens returns the members in a stable order.
func (b *BaselineSet) Tokens() []Token {
	out := make([]Token, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	slices.SortFunc(out, compareTokens)
	return out
}

// Clone returns an independent copy.
func (b *BaselineSet) Clone() BaselineSet {
	return NewBaselineSet(b.Tokens()...)
}

// MarshalJSON encodes the baseline as a sorted token list.
func (b BaselineSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Tokens())
}

// UnmarshalJSON decodes a token list. Decoding replaces the receiver
// outright; it is the restore path, not a second write.
func (b *BaselineSet) UnmarshalJSON(data []byte) error {
	var tokens []Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*b = NewBaselineSet(tokens...)
	return nil
}
