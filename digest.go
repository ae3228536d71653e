package stemflow

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// IDSize is the width in bytes of a task identifier.
const IDSize = 16

// ID is a fixed-width digest value. Task ids, fingerprints, and every
// intermediate value produced by the identifier engine share this type.
type ID [IDSize]byte

// String returns the id as lowercase hex. Internal comparisons operate
// on the raw bytes; hex is the default external rendering.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Base32 returns the id in unpadded base32 for compact display.
func (id ID) Base32() string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:])
}

// IsZero reports whether the id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID decodes the hex form produced by String.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse id %q: %w", s, err)
	}
	if len(raw) != IDSize {
		return id, fmt.Errorf("parse id %q: want %d bytes, got %d", s, IDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func compareIDs(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Digest hashes an ordered tuple of byte strings into an ID.
// Each part is length-prefixed before hashing, so the encoding is
// injective: Digest([]byte("ab"), []byte("c")) differs from
// Digest([]byte("a"), []byte("bc")).
func Digest(parts ...[]byte) ID {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
