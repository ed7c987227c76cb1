package dfworld

import (
	"github.com/df-mc/dragonfly/server/item"

	"github.com/oriumgames/persist"
)

// StackItem exposes an item stack's custom values as a persist.Item.
// Stacks are immutable, so SetValue replaces Stack; read it back after
// writing a token and put it into the holder's inventory.
type StackItem struct {
	Stack item.Stack
}

// Value implements persist.Item.
func (s *StackItem) Value(key string) (string, bool) {
	v, ok := s.Stack.Value(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// SetValue implements persist.Item.
func (s *StackItem) SetValue(key, value string) {
	s.Stack = s.Stack.WithValue(key, value)
}

var _ persist.Item = (*StackItem)(nil)
