package persist

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lukechampine.com/blake3"
)

// BlobVersion is the save format version written by EncodeSaveData.
const BlobVersion = 1

// SpaceSnapshot is the persisted form of one StateSpace.
type SpaceSnapshot struct {
	ID         SpaceID       `json:"id"`
	Anchor     Anchor        `json:"anchor"`
	Definition string        `json:"definition,omitempty"`
	Baseline   BaselineSet   `json:"baseline"`
	Records    []StateRecord `json:"records"`
}

// SaveData is everything a save slot holds.
type SaveData struct {
	Version   int       `json:"version"`
	Slot      string    `json:"slot"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`

	// OpenSpace is the sub-space that was open when the game was saved,
	// MainSpace if none.
	OpenSpace SpaceID `json:"open_space"`

	// Main is the main-world space.
	Main SpaceSnapshot `json:"main"`

	// Spaces holds the last snapshot of every sub-space ever closed or saved.
	Spaces []SpaceSnapshot `json:"spaces"`

	// Tokens lists the cross references of every known sub-space.
	Tokens []CrossReferenceToken `json:"tokens"`
}

// Space returns the stored snapshot of id.
func (d *SaveData) Space(id SpaceID) (SpaceSnapshot, bool) {
	if id.IsMain() {
		return d.Main, true
	}
	for _, s := range d.Spaces {
		if s.ID == id {
			return s, true
		}
	}
	return SpaceSnapshot{}, false
}

// PutSpace stores snap, replacing any earlier snapshot of the same space.
func (d *SaveData) PutSpace(snap SpaceSnapshot) {
	if snap.ID.IsMain() {
		d.Main = snap
		return
	}
	for i := range d.Spaces {
		if d.Spaces[i].ID == snap.ID {
			d.Spaces[i] = snap
			return
		}
	}
	d.Spaces = append(d.Spaces, snap)
}

// Token returns the cross reference of space.
func (d *SaveData) Token(space SpaceID) (CrossReferenceToken, bool) {
	for _, t := range d.Tokens {
		if t.Space == space {
			return t, true
		}
	}
	return CrossReferenceToken{}, false
}

// PutToken stores tok, replacing any earlier token of the same space.
func (d *SaveData) PutToken(tok CrossReferenceToken) {
	for i := range d.Tokens {
		if d.Tokens[i].Space == tok.Space {
			d.Tokens[i] = tok
			return
		}
	}
	d.Tokens = append(d.Tokens, tok)
}

// section is the checksummed wire form of one SpaceSnapshot.
type section struct {
	Checksum string          `json:"checksum"`
	Data     json.RawMessage `json:"data"`
}

// envelope is the wire form of SaveData.
type envelope struct {
	Version   int                   `json:"version"`
	Slot      string                `json:"slot"`
	Name      string                `json:"name"`
	Timestamp time.Time             `json:"timestamp"`
	OpenSpace SpaceID               `json:"open_space"`
	Main      section               `json:"main"`
	Spaces    []section             `json:"spaces"`
	Tokens    []CrossReferenceToken `json:"tokens"`
}

// checksum returns the hex BLAKE3 digest of the compacted JSON in data.
func checksum(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", err
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func encodeSection(snap SpaceSnapshot) (section, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return section{}, fmt.Errorf("encode space %s: %w", snap.ID, err)
	}
	sum, err := checksum(data)
	if err != nil {
		return section{}, err
	}
	return section{Checksum: sum, Data: data}, nil
}

func decodeSection(s section) (SpaceSnapshot, error) {
	var snap SpaceSnapshot
	if len(s.Data) == 0 {
		return snap, fmt.Errorf("empty section")
	}
	sum, err := checksum(s.Data)
	if err != nil {
		return snap, err
	}
	if sum != s.Checksum {
		return snap, fmt.Errorf("checksum mismatch")
	}
	if err := json.Unmarshal(s.Data, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// EncodeSaveData renders d into its blob form. Every space is wrapped in its
// own checksummed section so that damage stays local to one space.
func EncodeSaveData(d *SaveData) ([]byte, error) {
	env := envelope{
		Version:   BlobVersion,
		Slot:      d.Slot,
		Name:      d.Name,
		Timestamp: d.Timestamp,
		OpenSpace: d.OpenSpace,
		Tokens:    d.Tokens,
	}
	var err error
	if env.Main, err = encodeSection(d.Main); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	for _, snap := range d.Spaces {
		sec, err := encodeSection(snap)
		if err != nil {
			return nil, fmt.Errorf("persist: %w", err)
		}
		env.Spaces = append(env.Spaces, sec)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("persist: encode save data: %w", err)
	}
	return data, nil
}

// DecodeSaveData parses a blob produced by EncodeSaveData.
//
// Decoding is forgiving: a space section that fails to parse or whose
// checksum does not match is dropped with a warning, so that space takes the
// fresh-baseline path on its next open. Only a blob whose envelope cannot be
// parsed at all returns an error, together with empty save data.
func DecodeSaveData(data []byte, log *slog.Logger) (*SaveData, error) {
	if log == nil {
		log = slog.Default()
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &SaveData{Version: BlobVersion}, fmt.Errorf("persist: decode save data: %w", err)
	}
	if env.Version > BlobVersion {
		log.Warn("persist: save data written by a newer version", "version", env.Version, "supported", BlobVersion)
	}

	d := &SaveData{
		Version:   env.Version,
		Slot:      env.Slot,
		Name:      env.Name,
		Timestamp: env.Timestamp,
		OpenSpace: env.OpenSpace,
		Tokens:    env.Tokens,
	}
	if main, err := decodeSection(env.Main); err != nil {
		malformedSectionsTotal.Inc()
		log.Warn("persist: dropping malformed main space snapshot", "slot", env.Slot, "error", err)
	} else {
		main.ID = MainSpace
		d.Main = main
	}
	for i, sec := range env.Spaces {
		snap, err := decodeSection(sec)
		if err != nil {
			malformedSectionsTotal.Inc()
			log.Warn("persist: dropping malformed space snapshot", "slot", env.Slot, "index", i, "error", err)
			continue
		}
		d.Spaces = append(d.Spaces, snap)
	}
	return d, nil
}
