package backingstore

import (
	"context"

	"github.com/edenfs-go/edencore/internal/localstore"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// LocalStoreCached wraps an inner BackingStore and a localstore.Store. Tree
// and blob lookups try the local store first (origin FromDiskCache); on
// miss they delegate to inner and write the result through to the local
// store before returning it with origin FromNetworkFetch. get_root_tree
// always writes its result through, since a root's tree id isn't known
// ahead of the call. prefetch_blobs, fetch recording, and id rendering all
// pass straight through to inner (spec.md §4.5).
type LocalStoreCached struct {
	inner BackingStore
	store *localstore.Store
}

func NewLocalStoreCached(inner BackingStore, store *localstore.Store) *LocalStoreCached {
	return &LocalStoreCached{inner: inner, store: store}
}

func (l *LocalStoreCached) CompareObjectsByID(a, b objstore.ObjectId) objstore.CompareResult {
	return l.inner.CompareObjectsByID(a, b)
}

func (l *LocalStoreCached) GetRootTree(ctx context.Context, root objstore.RootId) (RootTreeResult, error) {
	result, err := l.inner.GetRootTree(ctx, root)
	if err != nil {
		return RootTreeResult{}, err
	}
	raw, serr := objstore.SerializeTree(result.Tree, objstore.TreeVersionV2)
	if serr == nil {
		_ = l.store.Put(localstore.ColumnTree, result.TreeID, raw)
	}
	return result, nil
}

func (l *LocalStoreCached) GetTreeEntryForRoot(ctx context.Context, root objstore.RootId, kind objstore.EntryKind) (objstore.TreeEntry, error) {
	return l.inner.GetTreeEntryForRoot(ctx, root, kind)
}

func (l *LocalStoreCached) GetTree(ctx context.Context, id objstore.ObjectId) (GetTreeResult, error) {
	if raw, err := l.store.Get(localstore.ColumnTree, id); err == nil {
		tree, derr := objstore.DeserializeTree(id, raw, objstore.CaseSensitive)
		if derr == nil {
			return GetTreeResult{Tree: tree, Origin: FromDiskCache}, nil
		}
	}

	result, err := l.inner.GetTree(ctx, id)
	if err != nil {
		return GetTreeResult{}, err
	}
	if raw, serr := objstore.SerializeTree(result.Tree, objstore.TreeVersionV2); serr == nil {
		_ = l.store.Put(localstore.ColumnTree, id, raw)
	}
	return GetTreeResult{Tree: result.Tree, Origin: FromNetworkFetch}, nil
}

func (l *LocalStoreCached) GetBlob(ctx context.Context, id objstore.ObjectId) (GetBlobResult, error) {
	if raw, err := l.store.Get(localstore.ColumnBlob, id); err == nil {
		return GetBlobResult{Blob: objstore.NewBlob(id, raw), Origin: FromDiskCache}, nil
	}

	result, err := l.inner.GetBlob(ctx, id)
	if err != nil {
		return GetBlobResult{}, err
	}
	_ = l.store.Put(localstore.ColumnBlob, id, result.Blob.CoalescedBytes())
	return GetBlobResult{Blob: result.Blob, Origin: FromNetworkFetch}, nil
}

func (l *LocalStoreCached) GetBlobMetadata(ctx context.Context, id objstore.ObjectId) (GetBlobMetaResult, error) {
	if raw, err := l.store.Get(localstore.ColumnBlobMetadata, id); err == nil {
		if meta, derr := objstore.DeserializeBlobMetadata(raw); derr == nil {
			return GetBlobMetaResult{Meta: meta, Origin: FromDiskCache}, nil
		}
	}

	result, err := l.inner.GetBlobMetadata(ctx, id)
	if err != nil {
		return GetBlobMetaResult{}, err
	}
	_ = l.store.Put(localstore.ColumnBlobMetadata, id, objstore.SerializeBlobMetadata(result.Meta))
	return GetBlobMetaResult{Meta: result.Meta, Origin: FromNetworkFetch}, nil
}

func (l *LocalStoreCached) PrefetchBlobs(ctx context.Context, ids []objstore.ObjectId) error {
	return l.inner.PrefetchBlobs(ctx, ids)
}

func (l *LocalStoreCached) PeriodicManagementTask() { l.inner.PeriodicManagementTask() }

func (l *LocalStoreCached) StartRecordingFetch() { l.inner.StartRecordingFetch() }
func (l *LocalStoreCached) StopRecordingFetch() map[string]struct{} {
	return l.inner.StopRecordingFetch()
}

func (l *LocalStoreCached) ImportManifestForRoot(ctx context.Context, root objstore.RootId, hash objstore.Hash20) error {
	return l.inner.ImportManifestForRoot(ctx, root, hash)
}

func (l *LocalStoreCached) ParseRootID(s string) (objstore.RootId, error) { return l.inner.ParseRootID(s) }
func (l *LocalStoreCached) RenderRootID(id objstore.RootId) string        { return l.inner.RenderRootID(id) }
func (l *LocalStoreCached) ParseObjectID(raw []byte) (objstore.ObjectId, error) {
	return l.inner.ParseObjectID(raw)
}
func (l *LocalStoreCached) RenderObjectID(id objstore.ObjectId) []byte { return l.inner.RenderObjectID(id) }

func (l *LocalStoreCached) RepoName() (string, bool) { return l.inner.RepoName() }

var _ BackingStore = (*LocalStoreCached)(nil)
var _ BackingStore = (*Null)(nil)
