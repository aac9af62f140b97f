package objstore

import "hash/fnv"

// ObjectId is an opaque byte string produced by a BackingStore. Per spec.md
// §3, the core never interprets the bytes; it is only ever compared via the
// owning BackingStore's CompareObjectsByID. We still want it usable as a Go
// map key in the common case (most backing stores use a fixed-width id), so
// ObjectId wraps the bytes in a comparable value alongside a variable-length
// fallback for backing stores that don't.
type ObjectId struct {
	// fixed holds the id when len(raw) <= 32; this is the common case (a
	// SHA-1 or BLAKE3 digest) and lets ObjectId be used directly as a map
	// key without indirection.
	fixed  [32]byte
	length uint8
	// overflow holds the raw bytes when they don't fit in fixed. It is
	// never set together with a meaningful fixed/length pair.
	overflow string
}

// NewObjectId wraps raw bytes produced by a BackingStore.
func NewObjectId(raw []byte) ObjectId {
	if len(raw) <= 32 {
		var id ObjectId
		copy(id.fixed[:], raw)
		id.length = uint8(len(raw))
		return id
	}
	return ObjectId{overflow: string(raw), length: 255}
}

// Bytes returns the raw id bytes, suitable only for handing back to the
// BackingStore that produced them (render_object_id) or for use as a cache
// key payload; the core must not otherwise interpret them.
func (id ObjectId) Bytes() []byte {
	if id.length == 255 {
		return []byte(id.overflow)
	}
	return append([]byte(nil), id.fixed[:id.length]...)
}

func (id ObjectId) IsEmpty() bool {
	return id.length == 0 && id.overflow == ""
}

// Hash returns a stable FNV-1a hash of the id's bytes. Most callers should
// prefer using ObjectId directly as a map key (it is comparable); Hash exists
// for original_source/-derived call sites that want a uint64 summary, e.g.
// for sharding across a fixed number of buckets.
func (id ObjectId) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write(id.Bytes())
	return h.Sum64()
}

// RootId is an opaque string, parsed/rendered only by the owning BackingStore.
type RootId string

// CompareResult is the result of a BackingStore's CompareObjectsByID.
type CompareResult int

const (
	CompareUnknown CompareResult = iota
	CompareIdentical
	CompareDifferent
)

// InodeNumber is a stable, nonzero 64-bit identifier. 1 is always the mount root.
type InodeNumber uint64

// RootInodeNumber is the inode number of a mount's root directory.
const RootInodeNumber InodeNumber = 1

func (n InodeNumber) Valid() bool { return n != 0 }
