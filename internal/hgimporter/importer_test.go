package hgimporter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edenfs-go/edencore/internal/objstore"
	"github.com/edenfs-go/edencore/internal/procutil"
)

// fakeHelper drives the parent side of the protocol as if it were "hg
// debugedenimporthelper", so importer.go can be tested without spawning a
// real subprocess.
type fakeHelper struct {
	in  *procutil.FileDescriptor // helper reads requests here
	out *procutil.FileDescriptor // helper writes responses here
}

func newFakeHgImporter(t *testing.T, handle func(*fakeHelper)) *HgImporter {
	t.Helper()
	parentInR, parentInW, err := procutil.Pipe()
	require.NoError(t, err)
	parentOutR, parentOutW, err := procutil.Pipe()
	require.NoError(t, err)

	helper := &fakeHelper{in: parentInR, out: parentOutW}

	startedPayload := encodeStartedFrame(StartedInfo{
		ProtocolVersion: 1,
		StartFlags:      StartTreemanifestSupported | StartCatTreeSupported,
	})
	require.NoError(t, writeFrame(parentOutW.File(), 0, CmdStarted, 0, startedPayload))

	go func() {
		handle(helper)
	}()

	hi := &HgImporter{in: parentInW, out: parentOutR}
	started, err := hi.waitForStart()
	require.NoError(t, err)
	hi.Started = started

	t.Cleanup(func() {
		_ = parentInW.Close()
		_ = parentOutR.Close()
	})
	return hi
}

func encodeStartedFrame(info StartedInfo) []byte {
	buf := make([]byte, 0, 64)
	putU32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU32(info.ProtocolVersion)
	putU32(uint32(info.StartFlags))
	putU32(uint32(len(info.TreePaths)))
	for _, p := range info.TreePaths {
		putU32(uint32(len(p)))
		buf = append(buf, p...)
	}
	if info.StartFlags&StartMononokeSupported != 0 {
		putU32(uint32(len(info.MononokeName)))
		buf = append(buf, info.MononokeName...)
	}
	return buf
}

func TestUT_HG_03_01_NeutralizedEnv_SetsRequiredVars(t *testing.T) {
	env := neutralizedEnv()
	assert.Contains(t, env, "HGPLAIN=1")
	assert.Contains(t, env, "CHGDISABLE=1")
	assert.Contains(t, env, "WATCHMAN_NO_SPAWN=1")
	assert.Contains(t, env, "LSAN_OPTIONS=detect_leaks=0")
}

func TestUT_HG_03_02_NeutralizedEnv_StripsDyldVars(t *testing.T) {
	t.Setenv("DYLD_LIBRARY_PATH", "/some/path")
	t.Setenv("DYLD_INSERT_LIBRARIES", "/some/lib.dylib")

	env := neutralizedEnv()
	for _, kv := range env {
		assert.False(t, hasPrefix(kv, "DYLD_LIBRARY_PATH="))
		assert.False(t, hasPrefix(kv, "DYLD_INSERT_LIBRARIES="))
	}
}

func TestUT_HG_04_01_Start_RejectsMissingRequiredFlags(t *testing.T) {
	parentOutR, parentOutW, err := procutil.Pipe()
	require.NoError(t, err)
	defer parentOutR.Close()

	startedPayload := encodeStartedFrame(StartedInfo{ProtocolVersion: 1, StartFlags: StartTreemanifestSupported})
	require.NoError(t, writeFrame(parentOutW.File(), 0, CmdStarted, 0, startedPayload))
	_ = parentOutW.Close()

	hi := &HgImporter{out: parentOutR}
	_, err = hi.waitForStart()
	require.Error(t, err)
}

func TestUT_HG_04_02_CatFile_HappyPath(t *testing.T) {
	wantPath := "dir/file.txt"
	wantID := objstore.Hash20{1, 2, 3}
	content := []byte("file content here")

	hi := newFakeHgImporter(t, func(h *fakeHelper) {
		frame, err := readFrame(h.in.File())
		require.NoError(t, err)
		assert.Equal(t, CmdCatFile, frame.Command)
		assert.Equal(t, encodePathAndHash(wantPath, wantID), frame.Data)
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID, CmdResponse, 0, content))
	})

	got, err := hi.CatFile(wantPath, wantID)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUT_HG_04_03_GetFileSize_ParsesU64Response(t *testing.T) {
	id := objstore.Hash20{9}
	hi := newFakeHgImporter(t, func(h *fakeHelper) {
		frame, err := readFrame(h.in.File())
		require.NoError(t, err)
		var payload [8]byte
		binary.BigEndian.PutUint64(payload[:], 12345)
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID, CmdResponse, 0, payload[:]))
	})

	size, err := hi.GetFileSize("a/b", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), size)
}

func TestUT_HG_04_04_Request_AccumulatesMoreChunks(t *testing.T) {
	id := objstore.Hash20{4}
	hi := newFakeHgImporter(t, func(h *fakeHelper) {
		frame, err := readFrame(h.in.File())
		require.NoError(t, err)
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID, CmdResponse, FlagMoreChunks, []byte("part1-")))
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID, CmdResponse, 0, []byte("part2")))
	})

	got, err := hi.CatTree(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("part1-part2"), got)
}

func TestUT_HG_04_05_Request_ErrorFlagSurfacesAsRemoteError(t *testing.T) {
	id := objstore.Hash20{5}
	hi := newFakeHgImporter(t, func(h *fakeHelper) {
		frame, err := readFrame(h.in.File())
		require.NoError(t, err)

		errPayload := func() []byte {
			buf := make([]byte, 0, 32)
			put := func(s string) {
				var b [4]byte
				binary.BigEndian.PutUint32(b[:], uint32(len(s)))
				buf = append(buf, b[:]...)
				buf = append(buf, s...)
			}
			put("ResetRepoError")
			put("repo moved under us")
			return buf
		}()
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID, CmdResponse, FlagError, errPayload))
	})

	_, err := hi.CatTree(id)
	require.Error(t, err)
	assert.True(t, isTransient(err))
}

func TestUT_HG_04_06_Request_MismatchedIDIsProtocolError(t *testing.T) {
	id := objstore.Hash20{6}
	hi := newFakeHgImporter(t, func(h *fakeHelper) {
		frame, err := readFrame(h.in.File())
		require.NoError(t, err)
		require.NoError(t, writeFrame(h.out.File(), frame.RequestID+999, CmdResponse, 0, nil))
	})

	_, err := hi.CatTree(id)
	require.Error(t, err)
}
