package persist

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultStability is the stability of a freshly created cross reference.
const DefaultStability float32 = 100

// CapsuleKey is the Item key the CapsuleCarrier stores tokens under.
const CapsuleKey = "persist.crossref"

// CrossReferenceToken is a portable capsule, carried inside an item, that
// names a StateSpace and lets it be re-entered later from anywhere.
type CrossReferenceToken struct {
	// Space is the space the token opens.
	Space SpaceID `json:"space"`

	// Container identifies the carried object owning re-entry rights.
	Container Token `json:"container"`

	// Anchor is where the space was last placed in the world.
	Anchor mgl64.Vec3 `json:"anchor"`

	// Stability is a domain decay counter. The persistence core only
	// carries it.
	Stability float32 `json:"stability"`

	// Definition is what to stream in when the space is opened.
	Definition string `json:"definition,omitempty"`
}

// NewCrossReferenceToken creates a token for a brand new space.
func NewCrossReferenceToken(definition string, anchor mgl64.Vec3) CrossReferenceToken {
	return CrossReferenceToken{
		Space:      NewSpaceID(),
		Container:  NewToken(),
		Anchor:     anchor,
		Stability:  DefaultStability,
		Definition: definition,
	}
}

// Valid reports whether the token names a sub-space.
func (t CrossReferenceToken) Valid() bool {
	return !t.Space.IsMain()
}

var errMalformedCapsule = errors.New("persist: malformed cross reference capsule")

// EncodeCapsule renders tok in the portable capsule form: base64 of
// "definition|space|container|stability|x,y,z".
func EncodeCapsule(tok CrossReferenceToken) (string, error) {
	if strings.ContainsRune(tok.Definition, '|') {
		return "", fmt.Errorf("persist: definition %q contains a separator", tok.Definition)
	}
	raw := strings.Join([]string{
		tok.Definition,
		tok.Space.String(),
		tok.Container.String(),
		strconv.FormatFloat(float64(tok.Stability), 'f', -1, 32),
		formatVec(tok.Anchor),
	}, "|")
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeCapsule parses a capsule produced by EncodeCapsule.
func DecodeCapsule(s string) (CrossReferenceToken, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return CrossReferenceToken{}, fmt.Errorf("%w: %w", errMalformedCapsule, err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 5 {
		return CrossReferenceToken{}, fmt.Errorf("%w: %d fields", errMalformedCapsule, len(parts))
	}

	tok := CrossReferenceToken{Definition: parts[0]}
	if tok.Space, err = ParseSpaceID(parts[1]); err != nil {
		return CrossReferenceToken{}, fmt.Errorf("%w: space: %w", errMalformedCapsule, err)
	}
	if tok.Container, err = ParseToken(parts[2]); err != nil {
		return CrossReferenceToken{}, fmt.Errorf("%w: container: %w", errMalformedCapsule, err)
	}
	stability, err := strconv.ParseFloat(parts[3], 32)
	if err != nil {
		return CrossReferenceToken{}, fmt.Errorf("%w: stability: %w", errMalformedCapsule, err)
	}
	tok.Stability = float32(stability)
	if tok.Anchor, err = parseVec(parts[4]); err != nil {
		return CrossReferenceToken{}, fmt.Errorf("%w: anchor: %w", errMalformedCapsule, err)
	}
	return tok, nil
}

func formatVec(v mgl64.Vec3) string {
	return strconv.FormatFloat(v[0], 'f', -1, 64) + "," +
		strconv.FormatFloat(v[1], 'f', -1, 64) + "," +
		strconv.FormatFloat(v[2], 'f', -1, 64)
}

func parseVec(s string) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("want 3 components, got %d", len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

// CapsuleCarrier is the default Carrier. It keeps the capsule form of the
// token in the item's custom data under CapsuleKey.
type CapsuleCarrier struct{}

// ReadToken implements Carrier. Items without a capsule, or with one that
// fails to parse, carry no token.
func (CapsuleCarrier) ReadToken(item Item) (CrossReferenceToken, bool) {
	s, ok := item.Value(CapsuleKey)
	if !ok || s == "" {
		return CrossReferenceToken{}, false
	}
	tok, err := DecodeCapsule(s)
	if err != nil {
		return CrossReferenceToken{}, false
	}
	return tok, true
}

// WriteToken implements Carrier.
func (CapsuleCarrier) WriteToken(item Item, tok CrossReferenceToken) error {
	s, err := EncodeCapsule(tok)
	if err != nil {
		return err
	}
	item.SetValue(CapsuleKey, s)
	return nil
}

// Compile-time check that CapsuleCarrier implements Carrier.
var _ Carrier = CapsuleCarrier{}
