package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

func openStore(t *testing.T) *Store {
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUT_LS_01_01_PutGet_RoundTrips(t *testing.T) {
	s := openStore(t)
	id := objstore.NewObjectId([]byte{1, 2, 3})
	require.NoError(t, s.Put(ColumnBlob, id, []byte("hello")))

	got, err := s.Get(ColumnBlob, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestUT_LS_01_02_Get_MissIsNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(ColumnTree, objstore.NewObjectId([]byte{9}))
	require.Error(t, err)
	assert.True(t, ederrors.IsNotFound(err))
}

func TestUT_LS_01_03_Columns_AreIndependent(t *testing.T) {
	s := openStore(t)
	id := objstore.NewObjectId([]byte{5})
	require.NoError(t, s.Put(ColumnBlob, id, []byte("blob-value")))

	_, err := s.Get(ColumnTree, id)
	require.Error(t, err)
}

func TestUT_LS_02_01_Delete_IsIdempotent(t *testing.T) {
	s := openStore(t)
	id := objstore.NewObjectId([]byte{7})
	require.NoError(t, s.Put(ColumnHgProxyHash, id, []byte("x")))
	require.NoError(t, s.Delete(ColumnHgProxyHash, id))
	require.NoError(t, s.Delete(ColumnHgProxyHash, id))

	_, err := s.Get(ColumnHgProxyHash, id)
	require.Error(t, err)
}

func TestUT_LS_02_02_Clear_RemovesAllKeysInColumn(t *testing.T) {
	s := openStore(t)
	id1 := objstore.NewObjectId([]byte{1})
	id2 := objstore.NewObjectId([]byte{2})
	require.NoError(t, s.Put(ColumnBlobMetadata, id1, []byte("a")))
	require.NoError(t, s.Put(ColumnBlobMetadata, id2, []byte("b")))

	require.NoError(t, s.Clear(ColumnBlobMetadata))

	_, err := s.Get(ColumnBlobMetadata, id1)
	require.Error(t, err)
	_, err = s.Get(ColumnBlobMetadata, id2)
	require.Error(t, err)
}

func TestUT_LS_03_01_Compact_PreservesData(t *testing.T) {
	s := openStore(t)
	id := objstore.NewObjectId([]byte{3})
	require.NoError(t, s.Put(ColumnTree, id, []byte("tree-bytes")))

	require.NoError(t, s.Compact())

	got, err := s.Get(ColumnTree, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("tree-bytes"), got)
}

func TestUT_LS_04_01_Persistence_AcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := Open(path)
	require.NoError(t, err)
	id := objstore.NewObjectId([]byte{4})
	require.NoError(t, s.Put(ColumnBlob, id, []byte("persisted")))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ColumnBlob, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}
