package procutil

import (
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Kind classifies the underlying descriptor, resolved once via fstat
// (spec.md §4.12).
type Kind int

const (
	KindUnknown Kind = iota
	KindGeneric
	KindPipe
	KindSocket
)

// FileDescriptor is a thin wrapper over *os.File adding the retry-on-EINTR
// full read/write helpers and close-on-exec/blocking-mode toggles the
// HgImporter frame protocol and the supervisor's log pipe both need.
type FileDescriptor struct {
	file *os.File
	kind Kind
}

// NewFileDescriptor wraps f, probing its kind from the underlying fstat
// mode.
func NewFileDescriptor(f *os.File) *FileDescriptor {
	return &FileDescriptor{file: f, kind: probeKind(f)}
}

func probeKind(f *os.File) Kind {
	info, err := f.Stat()
	if err != nil {
		return KindUnknown
	}
	switch {
	case info.Mode()&os.ModeNamedPipe != 0:
		return KindPipe
	case info.Mode()&os.ModeSocket != 0:
		return KindSocket
	case info.Mode().IsRegular() || info.Mode()&os.ModeCharDevice != 0:
		return KindGeneric
	default:
		return KindUnknown
	}
}

func (fd *FileDescriptor) Kind() Kind   { return fd.kind }
func (fd *FileDescriptor) File() *os.File { return fd.file }
func (fd *FileDescriptor) Fd() uintptr   { return fd.file.Fd() }

func (fd *FileDescriptor) Close() error { return fd.file.Close() }

// Read performs one read, matching os.File.Read.
func (fd *FileDescriptor) Read(p []byte) (int, error) { return fd.file.Read(p) }

// Write performs one write, matching os.File.Write.
func (fd *FileDescriptor) Write(p []byte) (int, error) { return fd.file.Write(p) }

// ReadFull reads exactly len(p) bytes, retrying on EINTR and on short reads
// (spec.md §4.12 "read_full").
func (fd *FileDescriptor) ReadFull(p []byte) (int, error) {
	n, err := io.ReadFull(fd.file, p)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return n, ederrors.NewIoError("read_full", err)
	}
	return n, err
}

// WriteFull writes exactly len(p) bytes, retrying on EINTR and on short
// writes (spec.md §4.12 "write_full").
func (fd *FileDescriptor) WriteFull(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := fd.file.Write(p[total:])
		total += n
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return total, ederrors.NewIoError("write_full", err)
		}
	}
	return total, nil
}

// SetBlocking toggles the descriptor's O_NONBLOCK flag.
func (fd *FileDescriptor) SetBlocking(blocking bool) error {
	return unix.SetNonblock(int(fd.Fd()), !blocking)
}

// SetCloseOnExec toggles FD_CLOEXEC.
func (fd *FileDescriptor) SetCloseOnExec(closeOnExec bool) error {
	flags, err := unix.FcntlInt(fd.Fd(), unix.F_GETFD, 0)
	if err != nil {
		return ederrors.NewIoError("fcntl F_GETFD", err)
	}
	if closeOnExec {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	if _, err := unix.FcntlInt(fd.Fd(), unix.F_SETFD, flags); err != nil {
		return ederrors.NewIoError("fcntl F_SETFD", err)
	}
	return nil
}

// Duplicate returns a new FileDescriptor over a dup() of the underlying fd.
func (fd *FileDescriptor) Duplicate() (*FileDescriptor, error) {
	newFd, err := unix.Dup(int(fd.Fd()))
	if err != nil {
		return nil, ederrors.NewIoError("dup", err)
	}
	f := os.NewFile(uintptr(newFd), fd.file.Name())
	return NewFileDescriptor(f), nil
}

// Pipe creates a connected read/write FileDescriptor pair.
func Pipe() (r, w *FileDescriptor, err error) {
	rf, wf, err := os.Pipe()
	if err != nil {
		return nil, nil, ederrors.NewIoError("pipe", err)
	}
	return NewFileDescriptor(rf), NewFileDescriptor(wf), nil
}
