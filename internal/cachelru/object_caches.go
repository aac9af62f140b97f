package cachelru

import "github.com/edenfs-go/edencore/internal/objstore"

// TreeCache maps ObjectId to a shared *objstore.Tree, bounded by each tree's
// estimated in-memory footprint (spec.md §4.4).
type TreeCache = Cache[objstore.ObjectId, *objstore.Tree]

// NewTreeCache builds a TreeCache with a byte budget.
func NewTreeCache(budgetBytes int64) *TreeCache {
	return New[objstore.ObjectId, *objstore.Tree](budgetBytes, func(t *objstore.Tree) int64 {
		return int64(t.SizeFootprint())
	})
}

// BlobCache maps ObjectId to a shared *objstore.Blob, bounded by total bytes
// of cached content (spec.md §4.4 "inserts account for Blob::len").
type BlobCache = Cache[objstore.ObjectId, *objstore.Blob]

// NewBlobCache builds a BlobCache with a byte budget.
func NewBlobCache(budgetBytes int64) *BlobCache {
	return New[objstore.ObjectId, *objstore.Blob](budgetBytes, func(b *objstore.Blob) int64 {
		return int64(b.Len())
	})
}

// BlobMetadataCache maps ObjectId to BlobMetadata, bounded by entry count
// rather than bytes (spec.md §4.4).
type BlobMetadataCache = Cache[objstore.ObjectId, objstore.BlobMetadata]

// NewBlobMetadataCache builds a BlobMetadataCache bounded to maxEntries.
func NewBlobMetadataCache(maxEntries int64) *BlobMetadataCache {
	return New[objstore.ObjectId, objstore.BlobMetadata](maxEntries, func(objstore.BlobMetadata) int64 {
		return 1
	})
}
