package backingstore

import (
	"context"
	"sync"

	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// Null is a BackingStore with no remote objects: every lookup is a
// NotFound, used for tests and for mounts with no configured remote
// (spec.md §4.5).
type Null struct {
	mu        sync.Mutex
	recording bool
	recorded  map[string]struct{}
}

func NewNull() *Null {
	return &Null{recorded: make(map[string]struct{})}
}

func (n *Null) CompareObjectsByID(objstore.ObjectId, objstore.ObjectId) objstore.CompareResult {
	return objstore.CompareUnknown
}

func (n *Null) GetRootTree(context.Context, objstore.RootId) (RootTreeResult, error) {
	return RootTreeResult{}, ederrors.NewNotFound("null backing store has no objects", nil)
}

func (n *Null) GetTreeEntryForRoot(context.Context, objstore.RootId, objstore.EntryKind) (objstore.TreeEntry, error) {
	return objstore.TreeEntry{}, ederrors.NewNotFound("null backing store has no objects", nil)
}

func (n *Null) GetTree(context.Context, objstore.ObjectId) (GetTreeResult, error) {
	return GetTreeResult{}, ederrors.NewNotFound("null backing store has no objects", nil)
}

func (n *Null) GetBlob(context.Context, objstore.ObjectId) (GetBlobResult, error) {
	return GetBlobResult{}, ederrors.NewNotFound("null backing store has no objects", nil)
}

func (n *Null) GetBlobMetadata(context.Context, objstore.ObjectId) (GetBlobMetaResult, error) {
	return GetBlobMetaResult{}, ederrors.NewNotFound("null backing store has no objects", nil)
}

// PrefetchBlobs is a no-op: there's nothing to prefetch.
func (n *Null) PrefetchBlobs(context.Context, []objstore.ObjectId) error { return nil }

func (n *Null) PeriodicManagementTask() {}

func (n *Null) StartRecordingFetch() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recording = true
	n.recorded = make(map[string]struct{})
}

func (n *Null) StopRecordingFetch() map[string]struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recording = false
	out := n.recorded
	n.recorded = make(map[string]struct{})
	return out
}

func (n *Null) ImportManifestForRoot(context.Context, objstore.RootId, objstore.Hash20) error {
	return ederrors.NewNotFound("null backing store has no objects", nil)
}

func (n *Null) ParseRootID(s string) (objstore.RootId, error) { return objstore.RootId(s), nil }
func (n *Null) RenderRootID(id objstore.RootId) string        { return string(id) }

func (n *Null) ParseObjectID(raw []byte) (objstore.ObjectId, error) {
	return objstore.NewObjectId(raw), nil
}
func (n *Null) RenderObjectID(id objstore.ObjectId) []byte { return id.Bytes() }

func (n *Null) RepoName() (string, bool) { return "", false }
