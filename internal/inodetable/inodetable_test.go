package inodetable

import (
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenfs-go/edencore/internal/diskvector"
)

type meta struct {
	Size uint64
	Mode uint32
}

type metaCodec struct{}

func (metaCodec) Version() uint32 { return 1 }
func (metaCodec) Size() int       { return 12 }
func (metaCodec) Encode(m meta, buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], m.Size)
	binary.BigEndian.PutUint32(buf[8:12], m.Mode)
}
func (metaCodec) Decode(buf []byte) meta {
	return meta{Size: binary.BigEndian.Uint64(buf[0:8]), Mode: binary.BigEndian.Uint32(buf[8:12])}
}

func openTable(t *testing.T) *Table[meta] {
	path := filepath.Join(t.TempDir(), "inodes.mdv")
	tbl, err := Open[meta](path, metaCodec{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestUT_IT_01_01_SetGet_RoundTrips(t *testing.T) {
	tbl := openTable(t)
	require.NoError(t, tbl.Set(10, meta{Size: 100, Mode: 0644}))

	r, ok := tbl.Get(10)
	require.True(t, ok)
	assert.Equal(t, meta{Size: 100, Mode: 0644}, r)

	_, ok = tbl.Get(11)
	assert.False(t, ok)
}

func TestUT_IT_01_02_GetOrThrow_NotFound(t *testing.T) {
	tbl := openTable(t)
	_, err := tbl.GetOrThrow(5)
	require.Error(t, err)
}

func TestUT_IT_01_03_SetDefault_OnlyInsertsOnce(t *testing.T) {
	tbl := openTable(t)
	r1, err := tbl.SetDefault(1, meta{Size: 1})
	require.NoError(t, err)
	assert.Equal(t, meta{Size: 1}, r1)

	r2, err := tbl.SetDefault(1, meta{Size: 999})
	require.NoError(t, err)
	assert.Equal(t, meta{Size: 1}, r2, "second SetDefault must not overwrite")
}

func TestUT_IT_01_04_PopulateIfNotSet_ComputesOutsideLockOnce(t *testing.T) {
	tbl := openTable(t)
	var calls int
	var mu sync.Mutex
	compute := func() meta {
		mu.Lock()
		calls++
		mu.Unlock()
		return meta{Size: 42}
	}

	r1, err := tbl.PopulateIfNotSet(7, compute)
	require.NoError(t, err)
	assert.Equal(t, meta{Size: 42}, r1)

	r2, err := tbl.PopulateIfNotSet(7, compute)
	require.NoError(t, err)
	assert.Equal(t, meta{Size: 42}, r2)
	assert.Equal(t, 1, calls)
}

func TestUT_IT_01_05_ModifyOrThrow_MutatesStoredRecord(t *testing.T) {
	tbl := openTable(t)
	require.NoError(t, tbl.Set(3, meta{Size: 10}))

	got, err := tbl.ModifyOrThrow(3, func(m *meta) { m.Size += 5 })
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got.Size)

	stored, ok := tbl.Get(3)
	require.True(t, ok)
	assert.Equal(t, uint64(15), stored.Size)
}

func TestUT_IT_01_06_ModifyOrThrow_NotFound(t *testing.T) {
	tbl := openTable(t)
	_, err := tbl.ModifyOrThrow(999, func(m *meta) {})
	require.Error(t, err)
}

func TestUT_IT_02_01_FreeInode_IdempotentAndDense(t *testing.T) {
	tbl := openTable(t)
	require.NoError(t, tbl.Set(1, meta{Size: 11}))
	require.NoError(t, tbl.Set(2, meta{Size: 22}))
	require.NoError(t, tbl.Set(3, meta{Size: 33}))

	require.NoError(t, tbl.FreeInode(1))
	assert.Equal(t, uint64(2), tbl.Len())
	_, ok := tbl.Get(1)
	assert.False(t, ok)

	r2, ok := tbl.Get(2)
	require.True(t, ok)
	assert.Equal(t, meta{Size: 22}, r2)
	r3, ok := tbl.Get(3)
	require.True(t, ok)
	assert.Equal(t, meta{Size: 33}, r3)

	require.NoError(t, tbl.FreeInode(1)) // no-op, already absent
	assert.Equal(t, uint64(2), tbl.Len())
}

func TestUT_IT_02_02_ForEach_VisitsAllEntries(t *testing.T) {
	tbl := openTable(t)
	want := map[InodeNumber]uint64{1: 10, 2: 20, 3: 30}
	for ino, size := range want {
		require.NoError(t, tbl.Set(ino, meta{Size: size}))
	}

	got := map[InodeNumber]uint64{}
	tbl.ForEach(func(ino InodeNumber, m meta) bool {
		got[ino] = m.Size
		return true
	})
	assert.Equal(t, want, got)
}

func TestUT_IT_03_01_Persistence_AcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inodes.mdv")
	tbl, err := Open[meta](path, metaCodec{}, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Set(10, meta{Size: 15}))
	require.NoError(t, tbl.Close())

	reopened, err := Open[meta](path, metaCodec{}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	r, err := reopened.GetOrThrow(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), r.Size)
}
