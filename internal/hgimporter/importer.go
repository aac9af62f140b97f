package hgimporter

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
	"github.com/edenfs-go/edencore/internal/procutil"
)

// requiredStartFlags are the StartFlag bits the helper must report or the
// importer refuses to start (spec.md §4.8).
const requiredStartFlags = StartTreemanifestSupported | StartCatTreeSupported

const protocolVersion = 1

// Options configures how the helper subprocess is spawned.
type Options struct {
	BinaryPath string // "hg" by default
	RepoPath   string
}

// HgImporter owns one "hg debugedenimporthelper" subprocess and its framed
// pipe protocol. It is not safe for concurrent use by multiple goroutines
// (mirrors the original's thread-bound design): callers needing
// parallelism create multiple HgImporters.
type HgImporter struct {
	proc    *procutil.SpawnedProcess
	in      *procutil.FileDescriptor // write requests to the helper
	out     *procutil.FileDescriptor // read responses from the helper
	nextID  uint32
	Started StartedInfo
}

// Start spawns the helper process and blocks for its CMD_STARTED frame.
func Start(opts Options) (*HgImporter, error) {
	binary := opts.BinaryPath
	if binary == "" {
		binary = "hg"
	}

	childInR, parentInW, err := procutil.Pipe()
	if err != nil {
		return nil, err
	}
	parentOutR, childOutW, err := procutil.Pipe()
	if err != nil {
		_ = childInR.Close()
		_ = parentInW.Close()
		return nil, err
	}

	env := neutralizedEnv()
	proc, err := procutil.Spawn(procutil.SpawnOptions{
		Path:       binary,
		Args:       []string{"debugedenimporthelper", "--in-fd", "3", "--out-fd", "4"},
		Dir:        opts.RepoPath,
		Env:        env,
		ExtraFiles: []*os.File{childInR.File(), childOutW.File()},
	})
	// The child now has its own copies of childInR/childOutW; the parent's
	// fds for those ends are no longer needed once spawned. parentInW and
	// parentOutR remain the parent's side of each pipe.
	_ = childInR.Close()
	_ = childOutW.Close()
	if err != nil {
		_ = parentInW.Close()
		_ = parentOutR.Close()
		return nil, err
	}

	hi := &HgImporter{proc: proc, in: parentInW, out: parentOutR}
	started, err := hi.waitForStart()
	if err != nil {
		hi.Close()
		return nil, err
	}
	hi.Started = started
	return hi, nil
}

// neutralizedEnv strips the host hg configuration variables that would
// otherwise make the helper behave interactively or unpredictably
// (spec.md §4.8).
func neutralizedEnv() []string {
	env := os.Environ()
	out := make([]string, 0, len(env)+4)
	for _, kv := range env {
		switch {
		case hasPrefix(kv, "DYLD_LIBRARY_PATH="),
			hasPrefix(kv, "DYLD_INSERT_LIBRARIES="):
			continue
		}
		out = append(out, kv)
	}
	out = append(out, "HGPLAIN=1", "CHGDISABLE=1", "WATCHMAN_NO_SPAWN=1", "LSAN_OPTIONS=detect_leaks=0")
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (hi *HgImporter) waitForStart() (StartedInfo, error) {
	frame, err := readFrame(hi.out.File())
	if err != nil {
		return StartedInfo{}, ederrors.NewProtocolError("hgimporter: reading CMD_STARTED", err)
	}
	if frame.Command != CmdStarted {
		return StartedInfo{}, ederrors.NewProtocolError(fmt.Sprintf("hgimporter: expected CMD_STARTED, got command %d", frame.Command), nil)
	}
	info, err := parseStarted(frame.Data)
	if err != nil {
		return StartedInfo{}, err
	}
	if info.ProtocolVersion != protocolVersion {
		return StartedInfo{}, ederrors.NewProtocolError(fmt.Sprintf("hgimporter: unsupported protocol version %d", info.ProtocolVersion), nil)
	}
	if info.StartFlags&requiredStartFlags != requiredStartFlags {
		return StartedInfo{}, ederrors.NewProtocolError("hgimporter: helper missing required TREEMANIFEST_SUPPORTED/CAT_TREE_SUPPORTED flags", nil)
	}
	return info, nil
}

// Close terminates the helper subprocess and releases its pipes.
func (hi *HgImporter) Close() {
	_ = hi.in.Close()
	_ = hi.out.Close()
	if hi.proc != nil {
		_ = hi.proc.Kill()
		_, _ = hi.proc.Wait()
	}
}

// request sends a single frame and reads response frames for the same
// request id until a chunk without FLAG_MORE_CHUNKS arrives, concatenating
// payloads. A mismatched request id is a fatal protocol error; a FLAG_ERROR
// chunk is returned as the remote error parsed from its payload.
func (hi *HgImporter) request(cmd Command, payload []byte) ([]byte, error) {
	id := atomic.AddUint32(&hi.nextID, 1)
	if err := writeFrame(hi.in.File(), id, cmd, 0, payload); err != nil {
		return nil, ederrors.NewIoError("hgimporter: writing request frame", err)
	}

	var data []byte
	for {
		frame, err := readFrame(hi.out.File())
		if err != nil {
			return nil, ederrors.NewIoError("hgimporter: reading response frame", err)
		}
		if frame.RequestID != id {
			return nil, ederrors.NewProtocolError(fmt.Sprintf("hgimporter: response id %d does not match request id %d", frame.RequestID, id), nil)
		}
		if frame.Flags&FlagError != 0 {
			return nil, parseRemoteError(frame.Data)
		}
		data = append(data, frame.Data...)
		if frame.Flags&FlagMoreChunks == 0 {
			break
		}
	}
	return data, nil
}

func encodePathAndHash(path string, id objstore.Hash20) []byte {
	buf := make([]byte, 4+len(path)+20)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(path)))
	copy(buf[4:4+len(path)], path)
	copy(buf[4+len(path):], id[:])
	return buf
}

// CatFile fetches the raw content of the file at path with manifest node
// id.
func (hi *HgImporter) CatFile(path string, id objstore.Hash20) ([]byte, error) {
	return hi.request(CmdCatFile, encodePathAndHash(path, id))
}

// GetFileSize fetches a file's size without transferring its content.
func (hi *HgImporter) GetFileSize(path string, id objstore.Hash20) (uint64, error) {
	data, err := hi.request(CmdGetFileSize, encodePathAndHash(path, id))
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, ederrors.NewProtocolError("hgimporter: get_file_size response malformed", nil)
	}
	return binary.BigEndian.Uint64(data), nil
}

// CatTree fetches a tree manifest's raw content by manifest node id.
func (hi *HgImporter) CatTree(id objstore.Hash20) ([]byte, error) {
	return hi.request(CmdCatTree, id[:])
}

// FetchTree requests the helper prefetch and cache a tree by node id,
// optionally scoped to path, without returning its content.
func (hi *HgImporter) FetchTree(path string, id objstore.Hash20) error {
	_, err := hi.request(CmdFetchTree, encodePathAndHash(path, id))
	return err
}
