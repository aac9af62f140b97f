package cachelru

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edenfs-go/edencore/internal/objstore"
)

func TestUT_LR_01_01_InsertGet_RoundTrips(t *testing.T) {
	c := New[string, int](100, func(int) int64 { return 1 })
	c.Insert("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestUT_LR_01_02_Insert_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, func(int) int64 { return 1 })
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Insert("c", 3) // evicts "a" (LRU)

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestUT_LR_01_03_Get_RefreshesRecency(t *testing.T) {
	c := New[string, int](2, func(int) int64 { return 1 })
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Get("a") // "a" now more recently used than "b"
	c.Insert("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted, not a")
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestUT_LR_01_04_Insert_ReplacesAndResizes(t *testing.T) {
	c := New[string, int64](10, func(v int64) int64 { return v })
	c.Insert("a", 4)
	c.Insert("a", 8)
	assert.Equal(t, int64(8), c.UsedSize())
}

func TestUT_LR_01_05_Clear_EmptiesCache(t *testing.T) {
	c := New[string, int](10, func(int) int64 { return 1 })
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestUT_LR_02_01_TreeCache_SizedByFootprint(t *testing.T) {
	c := NewTreeCache(1 << 20)
	id := objstore.NewObjectId([]byte{1})
	tree := objstore.NewTree(id, nil, objstore.CaseSensitive, nil)
	c.Insert(id, tree)

	got, ok := c.Get(id)
	assert.True(t, ok)
	assert.Equal(t, tree, got)
}

func TestUT_LR_02_02_BlobMetadataCache_BoundedByEntryCount(t *testing.T) {
	c := NewBlobMetadataCache(2)
	id1 := objstore.NewObjectId([]byte{1})
	id2 := objstore.NewObjectId([]byte{2})
	id3 := objstore.NewObjectId([]byte{3})

	c.Insert(id1, objstore.BlobMetadata{Size: 10})
	c.Insert(id2, objstore.BlobMetadata{Size: 20})
	c.Insert(id3, objstore.BlobMetadata{Size: 30})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(id1)
	assert.False(t, ok)
}
