package objstore

// Blob is immutable byte content keyed by an ObjectId (spec.md §3/§4.3). The
// teacher's content_cache.go stores blob content as whole files on disk; the
// in-memory Blob here is the analogous "whole contiguous buffer" value that
// LocalStore and the caches hand around as a shared, immutable reference.
type Blob struct {
	id    ObjectId
	bytes []byte
}

// NewBlob wraps bytes (which must not be mutated afterward) as content for id.
func NewBlob(id ObjectId, bytes []byte) *Blob {
	return &Blob{id: id, bytes: bytes}
}

func (b *Blob) ID() ObjectId { return b.id }

func (b *Blob) Len() int { return len(b.bytes) }

// CoalescedBytes returns a contiguous view of the blob's content. Our
// in-memory representation is already a single slice (we never chunk), so
// this never copies; a chunked backing store implementation would coalesce
// here before returning.
func (b *Blob) CoalescedBytes() []byte { return b.bytes }

func (b *Blob) AsString() string { return string(b.bytes) }
