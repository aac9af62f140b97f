package objectstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenfs-go/edencore/internal/backingstore"
	"github.com/edenfs-go/edencore/internal/cachelru"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// countingBacking wraps a Null-like BackingStore that serves a fixed set of
// trees/blobs/metadata and counts how many times each method is called, to
// verify memory-cache short-circuiting.
type countingBacking struct {
	backingstore.BackingStore
	mu         sync.Mutex
	trees      map[objstore.ObjectId]*objstore.Tree
	blobs      map[objstore.ObjectId]*objstore.Blob
	metas      map[objstore.ObjectId]objstore.BlobMetadata
	treeCalls  int32
	blobCalls  int32
	metaCalls  int32
	compare    objstore.CompareResult
}

func newCountingBacking() *countingBacking {
	return &countingBacking{
		BackingStore: backingstore.NewNull(),
		trees:        make(map[objstore.ObjectId]*objstore.Tree),
		blobs:        make(map[objstore.ObjectId]*objstore.Blob),
		metas:        make(map[objstore.ObjectId]objstore.BlobMetadata),
	}
}

func (c *countingBacking) CompareObjectsByID(a, b objstore.ObjectId) objstore.CompareResult {
	return c.compare
}

func (c *countingBacking) GetTree(ctx context.Context, id objstore.ObjectId) (backingstore.GetTreeResult, error) {
	atomic.AddInt32(&c.treeCalls, 1)
	c.mu.Lock()
	tree, ok := c.trees[id]
	c.mu.Unlock()
	if !ok {
		return backingstore.GetTreeResult{}, ederrors.NewNotFound("no such tree", nil)
	}
	return backingstore.GetTreeResult{Tree: tree, Origin: backingstore.FromNetworkFetch}, nil
}

func (c *countingBacking) GetBlob(ctx context.Context, id objstore.ObjectId) (backingstore.GetBlobResult, error) {
	atomic.AddInt32(&c.blobCalls, 1)
	c.mu.Lock()
	blob, ok := c.blobs[id]
	c.mu.Unlock()
	if !ok {
		return backingstore.GetBlobResult{}, ederrors.NewNotFound("no such blob", nil)
	}
	return backingstore.GetBlobResult{Blob: blob, Origin: backingstore.FromNetworkFetch}, nil
}

func (c *countingBacking) GetBlobMetadata(ctx context.Context, id objstore.ObjectId) (backingstore.GetBlobMetaResult, error) {
	atomic.AddInt32(&c.metaCalls, 1)
	c.mu.Lock()
	meta, ok := c.metas[id]
	c.mu.Unlock()
	if !ok {
		return backingstore.GetBlobMetaResult{}, ederrors.NewNotFound("no such metadata", nil)
	}
	return backingstore.GetBlobMetaResult{Meta: meta, Origin: backingstore.FromNetworkFetch}, nil
}

func newStore(backing *countingBacking) *Store {
	return New(backing, cachelru.NewTreeCache(1<<20), cachelru.NewBlobMetadataCache(1024), objstore.CaseSensitive, Config{HeavyThreshold: 3})
}

func TestUT_OS_01_01_GetTree_CachesAfterFirstFetch(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{1})
	backing.trees[id] = objstore.NewTree(id, nil, objstore.CaseSensitive, nil)
	store := newStore(backing)

	r1, err := store.GetTree(context.Background(), id, Context{})
	require.NoError(t, err)
	assert.Equal(t, backingstore.FromNetworkFetch, r1.Origin)

	r2, err := store.GetTree(context.Background(), id, Context{})
	require.NoError(t, err)
	assert.Equal(t, backingstore.FromMemoryCache, r2.Origin)
	assert.EqualValues(t, 1, backing.treeCalls)
}

func TestUT_OS_01_02_GetBlob_AlwaysDelegates(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{2})
	backing.blobs[id] = objstore.NewBlob(id, []byte("x"))
	store := newStore(backing)

	_, err := store.GetBlob(context.Background(), id, Context{})
	require.NoError(t, err)
	_, err = store.GetBlob(context.Background(), id, Context{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, backing.blobCalls)
}

func TestUT_OS_02_01_GetBlobMetadata_CachesWithoutBlake3(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{3})
	backing.metas[id] = objstore.BlobMetadata{Size: 42}
	store := newStore(backing)

	r1, err := store.GetBlobMetadata(context.Background(), id, false, Context{})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), r1.Meta.Size)
	assert.False(t, r1.Meta.HasBlake3)

	r2, err := store.GetBlobMetadata(context.Background(), id, false, Context{})
	require.NoError(t, err)
	assert.Equal(t, backingstore.FromMemoryCache, r2.Origin)
	assert.EqualValues(t, 1, backing.metaCalls)
}

func TestUT_OS_02_02_GetBlobMetadata_FillsBlake3OnDemand(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{4})
	backing.metas[id] = objstore.BlobMetadata{Size: 5}
	backing.blobs[id] = objstore.NewBlob(id, []byte("hello"))
	store := newStore(backing)

	r1, err := store.GetBlobMetadata(context.Background(), id, false, Context{})
	require.NoError(t, err)
	assert.False(t, r1.Meta.HasBlake3)

	r2, err := store.GetBlobMetadata(context.Background(), id, true, Context{})
	require.NoError(t, err)
	assert.True(t, r2.Meta.HasBlake3)
	assert.Equal(t, objstore.Blake3([]byte("hello")), r2.Meta.Blake3)

	r3, err := store.GetBlobMetadata(context.Background(), id, true, Context{})
	require.NoError(t, err)
	assert.Equal(t, backingstore.FromMemoryCache, r3.Origin)
	assert.True(t, r3.Meta.HasBlake3)
}

func TestUT_OS_02_03_GetBlobSHA1Size_DeriveFromMetadata(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{5})
	backing.metas[id] = objstore.BlobMetadata{Size: 99, SHA1: objstore.Hash20{1, 2, 3}}
	store := newStore(backing)

	size, err := store.GetBlobSize(context.Background(), id, Context{})
	require.NoError(t, err)
	assert.Equal(t, uint64(99), size)

	sha1, err := store.GetBlobSHA1(context.Background(), id, Context{})
	require.NoError(t, err)
	assert.Equal(t, objstore.Hash20{1, 2, 3}, sha1)
}

func TestUT_OS_03_01_AreBlobsEqual_IdenticalShortCircuits(t *testing.T) {
	backing := newCountingBacking()
	backing.compare = objstore.CompareIdentical
	store := newStore(backing)

	a := objstore.NewObjectId([]byte{6})
	b := objstore.NewObjectId([]byte{7})
	equal, err := store.AreBlobsEqual(context.Background(), a, b, Context{})
	require.NoError(t, err)
	assert.True(t, equal)
	assert.EqualValues(t, 0, backing.metaCalls, "identical compare must skip SHA1 lookups")
}

func TestUT_OS_03_02_AreBlobsEqual_FallsBackToSHA1(t *testing.T) {
	backing := newCountingBacking()
	backing.compare = objstore.CompareDifferent
	a := objstore.NewObjectId([]byte{8})
	b := objstore.NewObjectId([]byte{9})
	backing.metas[a] = objstore.BlobMetadata{SHA1: objstore.Hash20{9, 9}}
	backing.metas[b] = objstore.BlobMetadata{SHA1: objstore.Hash20{9, 9}}
	store := newStore(backing)

	equal, err := store.AreBlobsEqual(context.Background(), a, b, Context{})
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestUT_OS_04_01_ProcessInfoCache_CrossesHeavyThreshold(t *testing.T) {
	cache := NewProcessInfoCache()
	var crossed bool
	for i := 0; i < 3; i++ {
		_, crossed = cache.RecordFetch(42, 3)
	}
	assert.True(t, crossed)
	assert.True(t, cache.IsDeprioritized(42))
}

func TestUT_OS_04_02_FetchAttribution_LogsFetchHeavyAtThreshold(t *testing.T) {
	backing := newCountingBacking()
	id := objstore.NewObjectId([]byte{10})
	backing.trees[id] = objstore.NewTree(id, nil, objstore.CaseSensitive, nil)
	store := newStore(backing)

	ctx := WithProcess(7)
	for i := 0; i < 2; i++ {
		otherID := objstore.NewObjectId([]byte{byte(20 + i)})
		backing.trees[otherID] = objstore.NewTree(otherID, nil, objstore.CaseSensitive, nil)
		_, err := store.GetTree(context.Background(), otherID, ctx)
		require.NoError(t, err)
	}
	_, err := store.GetTree(context.Background(), id, ctx)
	require.NoError(t, err)

	assert.True(t, store.processes.IsDeprioritized(7))
}
