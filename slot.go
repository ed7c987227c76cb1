package persist

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// slotPrefix starts every save slot blob name.
	slotPrefix = "slot_"

	// maxSlotNameLen bounds the sanitized name part of a blob name.
	maxSlotNameLen = 50

	// defaultSlotName replaces names that sanitize to nothing.
	defaultSlotName = "Save"
)

// SlotInfo describes a save slot.
type SlotInfo struct {
	// ID is time ordered, so slots also sort by creation.
	ID ulid.ULID
	// Name is the display name chosen by the player.
	Name string
	// Timestamp is when the slot was last saved.
	Timestamp time.Time
}

// Created returns when the slot was created.
func (s SlotInfo) Created() time.Time {
	return ulid.Time(s.ID.Time())
}

// blobName returns the Store name of the slot: slot_<id>_<sanitized name>.
func (s SlotInfo) blobName() string {
	return slotPrefix + s.ID.String() + "_" + SanitizeName(s.Name)
}

// parseBlobName extracts the slot id and sanitized name from a blob name.
func parseBlobName(name string) (SlotInfo, bool) {
	rest, ok := strings.CutPrefix(name, slotPrefix)
	if !ok || len(rest) < ulid.EncodedSize+1 || rest[ulid.EncodedSize] != '_' {
		return SlotInfo{}, false
	}
	id, err := ulid.ParseStrict(rest[:ulid.EncodedSize])
	if err != nil {
		return SlotInfo{}, false
	}
	return SlotInfo{ID: id, Name: rest[ulid.EncodedSize+1:]}, true
}

// SanitizeName makes a display name safe for use in a blob name: reserved
// characters become underscores, leading and trailing dots and spaces are
// trimmed, and the result is capped at 50 characters. Empty results become
// "Save".
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if r := []rune(name); len(r) > maxSlotNameLen {
		name = strings.TrimRight(string(r[:maxSlotNameLen]), ". ")
	}
	if name == "" {
		return defaultSlotName
	}
	return name
}

// slotHeader is the part of a blob needed to list slots.
type slotHeader struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// readHeader decodes the slot header of a blob, ignoring everything else.
func readHeader(data []byte) (slotHeader, error) {
	var h slotHeader
	err := json.Unmarshal(data, &h)
	return h, err
}
