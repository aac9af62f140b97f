// edenfsd is the main daemon process spec.md §2's data flow describes: it
// wires the ObjectStore and InodeTable, completes the startup handshake with
// whichever parent launched it (edenfs-supervisor in daemon mode, or a
// terminal in foreground mode), and serves get_pid/get_status over a local
// control socket. Mounting a filesystem at the kernel boundary (FUSE/NFS/
// PrjFS) is out of scope (spec.md §1); this binary only builds and exposes
// the core storage engine underneath that boundary.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/edenfs-go/edencore/internal/backingstore"
	"github.com/edenfs-go/edencore/internal/cachelru"
	"github.com/edenfs-go/edencore/internal/edenconfig"
	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/inodetable"
	"github.com/edenfs-go/edencore/internal/localstore"
	"github.com/edenfs-go/edencore/internal/objectstore"
	"github.com/edenfs-go/edencore/internal/objstore"
	"github.com/edenfs-go/edencore/internal/startuplogger"
)

var processStart = time.Now()

func usage() {
	fmt.Fprintf(os.Stderr, `edenfsd - the core storage engine daemon.

Usage: edenfsd [options]

Options:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage

	configPath := flag.String("config", edenconfig.DefaultConfigPath(), "path to the daemon's YAML config")
	foreground := flag.Bool("foreground", false, "run attached to the terminal instead of daemonising")
	startupLoggerFd := flag.Int("startupLoggerFd", -1, "internal: handshake pipe fd inherited from edenfs-supervisor")
	logPath := flag.String("logPath", "", "internal: log file the daemon's stdout/stderr were redirected to")
	flag.Parse()

	cfg := edenconfig.LoadConfig(*configPath)
	level, err := edenlog.ParseLevel(cfg.LogLevel)
	if err == nil {
		edenlog.SetGlobalLevel(level)
	}

	sessionID, err := startuplogger.NextSessionID(cfg.StateDir)
	if err != nil {
		edenlog.Fatal().Err(err).Msg("failed to allocate session id")
	}

	logger := selectStartupLogger(*startupLoggerFd, *logPath, *foreground, os.Getpid(), sessionID)

	store, err := buildDaemon(cfg)
	if err != nil {
		logger.ExitUnsuccessfully(70, err.Error())
		return
	}
	defer store.Close()

	listener, err := serveControlSocket(cfg.StateDir, store)
	if err != nil {
		logger.ExitUnsuccessfully(70, "failed to open control socket: "+err.Error())
		return
	}
	defer listener.Close()

	logger.Success(time.Since(processStart).Seconds())

	// The core engine has no mount loop of its own (FUSE is out of scope);
	// block serving the control socket until signalled.
	waitForShutdown()
}

// selectStartupLogger implements spec.md §4.11's three-way mode selection:
// a handshake pipe fd means edenfs-supervisor daemonised us, --foreground
// means attached to a terminal, and otherwise we fall back to a plain file.
func selectStartupLogger(startupLoggerFd int, logPath string, foreground bool, pid int, sessionID int64) startuplogger.Logger {
	switch {
	case startupLoggerFd >= 0:
		return startuplogger.NewDaemonLogger(uintptr(startupLoggerFd), logPath, pid, sessionID)
	case foreground:
		return startuplogger.NewForegroundLogger(pid, sessionID)
	default:
		path := logPath
		if path == "" {
			path = os.Stderr.Name()
		}
		fileLogger, err := startuplogger.NewFileLogger(path, pid, sessionID)
		if err != nil {
			return startuplogger.NewForegroundLogger(pid, sessionID)
		}
		return fileLogger
	}
}

// daemon bundles the constructed storage stack, closed together on exit.
type daemon struct {
	local   *localstore.Store
	inodes  *inodetable.Table[inodeMetadata]
	objects *objectstore.Store
	pid     int
	status  status
}

type status int

const (
	statusStarting status = iota
	statusRunning
)

func (d *daemon) Close() {
	_ = d.inodes.Close()
	_ = d.local.Close()
}

// buildDaemon constructs the ObjectStore/InodeTable stack spec.md §2's data
// flow diagram describes: LocalStore-backed caches in front of a
// BackingStore, and a persistent InodeTable alongside it.
func buildDaemon(cfg *edenconfig.Config) (*daemon, error) {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, ederrors.NewIoError("create state directory", err)
	}

	local, err := localstore.Open(filepath.Join(cfg.StateDir, "local-store.bbolt"))
	if err != nil {
		return nil, err
	}

	treeCache := cachelru.NewTreeCache(cfg.TreeCacheBytes)
	_ = cachelru.NewBlobCache(cfg.BlobCacheBytes) // reserved for the mount layer; not consulted by ObjectStore itself
	blobMetaCache := cachelru.NewBlobMetadataCache(cfg.BlobMetadataCacheEntries)

	// No concrete remote backing store is wired in this scope (Thrift/HTTP
	// import clients are out of scope per spec.md §1); NewNull stands in as
	// the inner store LocalStoreCached write-throughs against.
	backing := backingstore.NewLocalStoreCached(backingstore.NewNull(), local)

	objects := objectstore.New(backing, treeCache, blobMetaCache, objstore.CaseSensitive, objectstore.Config{})

	inodes, err := inodetable.Open[inodeMetadata](filepath.Join(cfg.StateDir, "inodes.mdv"), inodeMetadataCodec{}, nil)
	if err != nil {
		local.Close()
		return nil, err
	}
	const modeDir = 0040000 // S_IFDIR
	if _, ok := inodes.Get(objstore.RootInodeNumber); !ok {
		now := time.Now().UnixNano()
		if err := inodes.Set(objstore.RootInodeNumber, inodeMetadata{Mode: modeDir | 0755, Atime: now, Mtime: now, Ctime: now}); err != nil {
			inodes.Close()
			local.Close()
			return nil, err
		}
	}

	return &daemon{local: local, inodes: inodes, objects: objects, pid: os.Getpid(), status: statusRunning}, nil
}

// inodeMetadata is the fixed-width per-inode record InodeTable persists:
// POSIX mode plus the three timestamps update_atime/update_mtime_and_ctime
// mutate (spec.md §4.2, §4.7).
type inodeMetadata struct {
	Mode  uint32
	Atime int64
	Mtime int64
	Ctime int64
}

type inodeMetadataCodec struct{}

func (inodeMetadataCodec) Version() uint32 { return 1 }
func (inodeMetadataCodec) Size() int       { return 28 }

func (inodeMetadataCodec) Encode(r inodeMetadata, buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], r.Mode)
	binary.BigEndian.PutUint64(buf[4:12], uint64(r.Atime))
	binary.BigEndian.PutUint64(buf[12:20], uint64(r.Mtime))
	binary.BigEndian.PutUint64(buf[20:28], uint64(r.Ctime))
}

func (inodeMetadataCodec) Decode(buf []byte) inodeMetadata {
	return inodeMetadata{
		Mode:  binary.BigEndian.Uint32(buf[0:4]),
		Atime: int64(binary.BigEndian.Uint64(buf[4:12])),
		Mtime: int64(binary.BigEndian.Uint64(buf[12:20])),
		Ctime: int64(binary.BigEndian.Uint64(buf[20:28])),
	}
}

// controlSocketPath is where get_pid/get_status are served. The Thrift
// control plane is out of scope (spec.md §1); this is a minimal stand-in so
// a DaemonClient implementation has something real to dial during
// development, rather than wiring supervisor.DaemonClient to nothing.
func controlSocketPath(stateDir string) string {
	return filepath.Join(stateDir, "edenfsd.sock")
}

// serveControlSocket answers "pid\n" and "status\n" requests over a Unix
// domain socket. No pack example ships a lightweight server-side control
// protocol library (the nearest candidates, socketio and the gRPC stack seen
// in unrelated examples, both assume a full client/server codegen pipeline
// this single-line request/response exchange doesn't warrant), so this is
// deliberately plain net/net.Listener.
func serveControlSocket(stateDir string, d *daemon) (net.Listener, error) {
	path := controlSocketPath(stateDir)
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, ederrors.NewIoError("listen on control socket", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleControlConn(conn, d)
		}
	}()

	return listener, nil
}

// dialControlSocket connects to the control socket edenfsd serves at
// stateDir, for use by clients such as edenfsctl's own pid/status checks.
func dialControlSocket(stateDir string) (net.Conn, error) {
	return net.Dial("unix", controlSocketPath(stateDir))
}

func handleControlConn(conn net.Conn, d *daemon) {
	defer conn.Close()
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	switch string(buf[:n]) {
	case "pid\n":
		fmt.Fprintf(conn, "%d\n", d.pid)
	case "status\n":
		fmt.Fprintf(conn, "%d\n", d.status)
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, the signals
// edenfs-supervisor forwards to this process (spec.md §4.9).
func waitForShutdown() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	<-ctx.Done()
}
