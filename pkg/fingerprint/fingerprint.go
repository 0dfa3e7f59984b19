// Package fingerprint derives deterministic cache keys from component
// invocations. A fingerprint binds the component id to a sha256 digest of
// the canonicalized invocation context, so equal logical inputs always map
// to the same key while the key itself never exposes the raw payload.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key identifies one cached component result. The component id is kept
// beside the digest so callers can invalidate every entry a component
// produced without being able to reverse the digest.
type Key struct {
	// ComponentID is the id of the component the result belongs to.
	ComponentID string

	// Digest is the hex-encoded sha256 of the canonicalized invocation
	// context (component id, input, params).
	Digest string
}

// String renders the key in its storage form, "<component-id>:<digest>".
func (k Key) String() string {
	return k.ComponentID + ":" + k.Digest
}

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool {
	return k.ComponentID == "" && k.Digest == ""
}

// New computes the fingerprint for a component invocation. It never fails:
// values that cannot be serialized (funcs, channels, unsafe pointers) are
// skipped under a fixed exclusion rule, and non-finite floats encode as
// fixed tokens. Mapping keys are sorted before hashing, so two maps with
// the same entries in different iteration order produce the same key.
func New(componentID string, input any, params map[string]any) Key {
	h := sha256.New()
	w := writer{h: h}
	w.string(componentID)
	w.any(input)
	w.any(params)
	return Key{
		ComponentID: componentID,
		Digest:      hex.EncodeToString(h.Sum(nil)),
	}
}
