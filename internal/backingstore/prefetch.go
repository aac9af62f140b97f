package backingstore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/edenfs-go/edencore/internal/objstore"
)

// PrefetchViaErrgroup is a default prefetch_blobs implementation any
// BackingStore can embed: it warms the cache for each id by calling
// GetBlob concurrently, bounded by concurrency, and discards the fetched
// content (the point is the side effect of the fetch landing in whatever
// caching layer wraps store, not the returned bytes). Grounded on the
// install-fanout pattern in the pack (parallel per-item work joined with a
// single errgroup.Group), generalized with SetLimit since an unbounded
// fan-out over a prefetch list could otherwise open one subprocess/network
// round trip per blob simultaneously.
func PrefetchViaErrgroup(ctx context.Context, store BackingStore, ids []objstore.ObjectId, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 8
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for _, id := range ids {
		id := id
		eg.Go(func() error {
			_, err := store.GetBlob(egCtx, id)
			return err
		})
	}
	return eg.Wait()
}
