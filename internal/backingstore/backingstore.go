// Package backingstore defines the uniform façade every remote object
// source (hg, git, recas, or nothing at all) is accessed through, plus the
// LocalStore-backed caching decorator every such source is wrapped in
// before reaching ObjectStore (spec.md §4.5).
package backingstore

import (
	"context"

	"github.com/edenfs-go/edencore/internal/objstore"
)

// Origin attributes where a fetched object came from, for telemetry and
// request deprioritization (spec.md §4.5).
type Origin int

const (
	FromMemoryCache Origin = iota
	FromDiskCache
	FromNetworkFetch
)

func (o Origin) String() string {
	switch o {
	case FromMemoryCache:
		return "FromMemoryCache"
	case FromDiskCache:
		return "FromDiskCache"
	case FromNetworkFetch:
		return "FromNetworkFetch"
	default:
		return "Unknown"
	}
}

type RootTreeResult struct {
	TreeID objstore.ObjectId
	Tree   *objstore.Tree
}

type GetTreeResult struct {
	Tree   *objstore.Tree
	Origin Origin
}

type GetBlobResult struct {
	Blob   *objstore.Blob
	Origin Origin
}

type GetBlobMetaResult struct {
	Meta   objstore.BlobMetadata
	Origin Origin
}

// BackingStore is the uniform façade over a remote object source.
type BackingStore interface {
	CompareObjectsByID(a, b objstore.ObjectId) objstore.CompareResult

	GetRootTree(ctx context.Context, root objstore.RootId) (RootTreeResult, error)
	GetTreeEntryForRoot(ctx context.Context, root objstore.RootId, kind objstore.EntryKind) (objstore.TreeEntry, error)
	GetTree(ctx context.Context, id objstore.ObjectId) (GetTreeResult, error)
	GetBlob(ctx context.Context, id objstore.ObjectId) (GetBlobResult, error)
	GetBlobMetadata(ctx context.Context, id objstore.ObjectId) (GetBlobMetaResult, error)
	PrefetchBlobs(ctx context.Context, ids []objstore.ObjectId) error

	PeriodicManagementTask()

	StartRecordingFetch()
	StopRecordingFetch() map[string]struct{}

	ImportManifestForRoot(ctx context.Context, root objstore.RootId, hash objstore.Hash20) error

	ParseRootID(s string) (objstore.RootId, error)
	RenderRootID(id objstore.RootId) string
	ParseObjectID(raw []byte) (objstore.ObjectId, error)
	RenderObjectID(id objstore.ObjectId) []byte

	RepoName() (string, bool)
}
