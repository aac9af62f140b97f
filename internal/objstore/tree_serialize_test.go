package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []TreeEntry {
	return []TreeEntry{
		{Name: "README.md", ID: NewObjectId([]byte{1, 2, 3}), Kind: KindRegularFile},
		{Name: "bin", ID: NewObjectId([]byte{4, 5, 6}), Kind: KindExecutableFile},
		{Name: "src", ID: NewObjectId([]byte{7, 8, 9}), Kind: KindTree, Aux: &EntryAux{
			HasSize: true,
			Size:    4096,
		}},
	}
}

func TestUT_OB_01_01_SerializeDeserialize_V1_RoundTrip(t *testing.T) {
	id := NewObjectId([]byte{0xAA, 0xBB})
	tree := NewTree(id, sampleEntries(), CaseSensitive, nil)

	raw, err := SerializeTree(tree, TreeVersionV1)
	require.NoError(t, err)

	got, err := DeserializeTree(id, raw, CaseSensitive)
	require.NoError(t, err)

	assert.Equal(t, tree.Entries(), got.Entries())
	assert.Nil(t, got.Aux())
}

func TestUT_OB_01_02_SerializeDeserialize_V2_PreservesAux(t *testing.T) {
	id := NewObjectId([]byte{0xCC})
	hash := Blake3([]byte("digest of the tree"))
	aux := &TreeAuxData{DigestSize: 12345, DigestHash: &hash}
	tree := NewTree(id, sampleEntries(), CaseInsensitive, aux)

	raw, err := SerializeTree(tree, TreeVersionV2)
	require.NoError(t, err)

	got, err := DeserializeTree(id, raw, CaseInsensitive)
	require.NoError(t, err)

	assert.Equal(t, tree.Entries(), got.Entries())
	require.NotNil(t, got.Aux())
	assert.Equal(t, aux.DigestSize, got.Aux().DigestSize)
	require.NotNil(t, got.Aux().DigestHash)
	assert.Equal(t, *aux.DigestHash, *got.Aux().DigestHash)
}

func TestUT_OB_01_03_SerializeDeserialize_V2_NoDigestHash(t *testing.T) {
	id := NewObjectId([]byte{0xDD})
	aux := &TreeAuxData{DigestSize: 99}
	tree := NewTree(id, sampleEntries(), CaseSensitive, aux)

	raw, err := SerializeTree(tree, TreeVersionV2)
	require.NoError(t, err)

	got, err := DeserializeTree(id, raw, CaseSensitive)
	require.NoError(t, err)
	require.NotNil(t, got.Aux())
	assert.Nil(t, got.Aux().DigestHash)
	assert.Equal(t, uint64(99), got.Aux().DigestSize)
}

func TestUT_OB_01_04_Deserialize_RejectsUnknownVersion(t *testing.T) {
	id := NewObjectId([]byte{1})
	tree := NewTree(id, nil, CaseSensitive, nil)
	raw, err := SerializeTree(tree, TreeVersionV1)
	require.NoError(t, err)
	raw[3] = 0x09 // corrupt low byte of the big-endian version field

	_, err = DeserializeTree(id, raw, CaseSensitive)
	require.Error(t, err)
}

func TestUT_OB_01_05_Deserialize_RejectsTrailingBytes(t *testing.T) {
	id := NewObjectId([]byte{2})
	tree := NewTree(id, nil, CaseSensitive, nil)
	raw, err := SerializeTree(tree, TreeVersionV1)
	require.NoError(t, err)
	raw = append(raw, 0xFF)

	_, err = DeserializeTree(id, raw, CaseSensitive)
	require.Error(t, err)
}

func TestUT_OB_01_06_EmptyTree_RoundTrips(t *testing.T) {
	id := NewObjectId([]byte{3})
	tree := NewTree(id, nil, CaseSensitive, nil)
	raw, err := SerializeTree(tree, TreeVersionV1)
	require.NoError(t, err)

	got, err := DeserializeTree(id, raw, CaseSensitive)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestUT_OB_02_01_GitBlob_RoundTrip(t *testing.T) {
	content := []byte("package main\n\nfunc main() {}\n")
	raw := SerializeGitBlob(content)

	got, err := DeserializeGitBlob(raw)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUT_OB_02_02_GitBlob_EmptyContent(t *testing.T) {
	raw := SerializeGitBlob(nil)
	got, err := DeserializeGitBlob(raw)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUT_OB_02_03_GitBlob_RejectsSizeMismatch(t *testing.T) {
	raw := SerializeGitBlob([]byte("hello"))
	raw[len(raw)-1] = 'X'
	raw = append(raw, 'Y') // now claims size 5 but carries 6 bytes

	_, err := DeserializeGitBlob(raw)
	require.Error(t, err)
}

func TestUT_OB_02_04_GitBlob_RejectsMissingNul(t *testing.T) {
	_, err := DeserializeGitBlob([]byte("blob 5 hello"))
	require.Error(t, err)
}

func TestUT_OB_02_05_GitBlob_RejectsWrongType(t *testing.T) {
	raw := append([]byte("tree 5\x00"), []byte("hello")...)
	_, err := DeserializeGitBlob(raw)
	require.Error(t, err)
}
