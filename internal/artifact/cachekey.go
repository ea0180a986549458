package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// CacheKey is the composite identity of a generated artifact: instruction
// text, data shape, trait signature, and theme. The generation model and the
// base artifact are deliberately not part of the key, so switching models or
// refining the same base twice never invalidates the cache.
type CacheKey struct {
	Description    string `json:"description"`     // whitespace-collapsed
	DataShape      string `json:"data_shape"`      // structural fingerprint, not content
	TraitSignature string `json:"trait_signature"` // sorted export/import names
	Theme          string `json:"theme,omitempty"`
}

const idLen = 12

// NewCacheKey normalizes the description and assembles the key from the data
// context and theme text.
func NewCacheKey(description string, dc DataContext, theme string) CacheKey {
	return CacheKey{
		Description:    NormalizeDescription(description),
		DataShape:      dc.ShapeFingerprint(),
		TraitSignature: dc.TraitSignature(),
		Theme:          strings.TrimSpace(theme),
	}
}

// ID derives the content-addressed artifact id for this key. Same key, same
// id, across processes.
func (k CacheKey) ID() string {
	raw, _ := json.Marshal(k)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:idLen]
}

// NormalizeDescription collapses runs of whitespace so trivially reformatted
// instructions hit the same cache entry.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Ref formats an id@version reference.
func Ref(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

// ParseRef splits "id" or "id@version" into its parts. Version 0 means
// "latest".
func ParseRef(ref string) (id string, version int, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", 0, fmt.Errorf("artifact ref is required")
	}
	at := strings.LastIndexByte(ref, '@')
	if at < 0 {
		return ref, 0, nil
	}
	id = ref[:at]
	if id == "" {
		return "", 0, fmt.Errorf("invalid artifact ref %q", ref)
	}
	if _, err := fmt.Sscanf(ref[at+1:], "%d", &version); err != nil || version < 1 {
		return "", 0, fmt.Errorf("invalid version in artifact ref %q", ref)
	}
	return id, version, nil
}
