package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key namespaces group cache entries by what they hold, so pattern
// invalidation can target one kind of entry without touching the others.
const (
	NamespaceContent    = "content"
	NamespaceTranscript = "transcript"
)

// fieldSeparator keeps distinct field lists from colliding after
// concatenation ("ab"+"c" vs "a"+"bc").
const fieldSeparator = "\x1f"

// DeriveKey builds a deterministic cache key from the semantic identity
// fields of a cacheable subject. Identical logical subjects always hash to
// the same key because the fields are joined in caller-fixed order rather
// than serialized from an unordered structure.
func DeriveKey(namespace string, fields ...string) string {
	h := sha256.Sum256([]byte(strings.Join(fields, fieldSeparator)))
	return namespace + ":" + hex.EncodeToString(h[:])
}

// DeriveBytesKey builds a cache key from raw content bytes, used to keep
// repeated submissions of the same audio from re-running transcription.
func DeriveBytesKey(namespace string, content []byte) string {
	h := sha256.Sum256(content)
	return namespace + ":" + hex.EncodeToString(h[:])
}
