// Package objstore implements the content model of spec.md §3/§4.3: the
// identifiers (Hash20, Hash32, ObjectId, RootId), the immutable entities
// (Blob, Tree, TreeEntry), and their versioned wire serialization.
package objstore

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Hash20 is a 20-byte content digest (SHA-1 / manifest node id).
type Hash20 [20]byte

// ToHex renders h as lowercase hex, grounded on plumbing.Hash's own String
// method since both are 20-byte SHA-1-shaped digests used for the same
// content-addressing purpose.
func (h Hash20) ToHex() string {
	return plumbing.Hash(h).String()
}

// Hash20FromHex parses a 40-character hex string into a Hash20.
func Hash20FromHex(s string) (Hash20, error) {
	if len(s) != 40 {
		return Hash20{}, ederrors.NewInvalidArgument(fmt.Sprintf("hash20: expected 40 hex chars, got %d", len(s)), nil)
	}
	h := plumbing.NewHash(s)
	if h.IsZero() && s != "0000000000000000000000000000000000000000" {
		return Hash20{}, ederrors.NewInvalidArgument("hash20: malformed hex", nil)
	}
	return Hash20(h), nil
}

func (h Hash20) IsZero() bool { return h == Hash20{} }

// Hash32 is a 32-byte BLAKE3 digest.
type Hash32 [32]byte

func (h Hash32) ToHex() string { return hex.EncodeToString(h[:]) }

func Hash32FromHex(s string) (Hash32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return Hash32{}, ederrors.NewInvalidArgument("hash32: malformed hex", err)
	}
	var h Hash32
	copy(h[:], raw)
	return h, nil
}

// Blake3 computes the unkeyed BLAKE3-256 digest of data.
func Blake3(data []byte) Hash32 {
	sum := blake3.Sum256(data)
	return Hash32(sum)
}

// KeyedBlake3 computes the BLAKE3-256 digest of data under a 32-byte key, as
// used by ObjectStore.compute_blake3 when a process-wide key is configured
// (spec.md §4.6).
func KeyedBlake3(key [32]byte, data []byte) Hash32 {
	hasher := blake3.New(32, key[:])
	hasher.Write(data)
	var out Hash32
	copy(out[:], hasher.Sum(nil))
	return out
}
