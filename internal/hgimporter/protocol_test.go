package hgimporter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

func TestUT_HG_01_01_FrameHeader_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 7, CmdCatFile, FlagMoreChunks, []byte("payload")))

	frame, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), frame.RequestID)
	assert.Equal(t, CmdCatFile, frame.Command)
	assert.Equal(t, FlagMoreChunks, frame.Flags)
	assert.Equal(t, []byte("payload"), frame.Data)
}

func TestUT_HG_01_02_FrameHeader_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, 1, CmdGetFileSize, 0, nil))

	frame, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, frame.Data)
}

func TestUT_HG_02_01_ParseStarted_ValidFrame(t *testing.T) {
	var buf bytes.Buffer
	writeU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	writeString := func(s string) {
		writeU32(uint32(len(s)))
		buf.WriteString(s)
	}

	writeU32(1) // protocol version
	writeU32(uint32(StartTreemanifestSupported | StartCatTreeSupported | StartMononokeSupported))
	writeU32(2) // num tree paths
	writeString("pack/one")
	writeString("pack/two")
	writeString("myrepo")

	info, err := parseStarted(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.ProtocolVersion)
	assert.Equal(t, []string{"pack/one", "pack/two"}, info.TreePaths)
	assert.Equal(t, "myrepo", info.MononokeName)
}

func TestUT_HG_02_02_ParseStarted_TruncatedIsProtocolError(t *testing.T) {
	_, err := parseStarted([]byte{0, 0, 0, 1})
	require.Error(t, err)
}

func TestUT_HG_03_01_ParseRemoteError_BuildsTaggedError(t *testing.T) {
	var buf bytes.Buffer
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len("ResetRepoError")))
	buf.Write(b[:])
	buf.WriteString("ResetRepoError")
	binary.BigEndian.PutUint32(b[:], uint32(len("repo state changed")))
	buf.Write(b[:])
	buf.WriteString("repo state changed")

	err := parseRemoteError(buf.Bytes())
	require.Error(t, err)
	assert.Equal(t, "ResetRepoError", ederrors.RemoteTypeOf(err))
}
