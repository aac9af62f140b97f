package supervisor

import (
	"syscall"

	"github.com/edenfs-go/edencore/internal/procutil"
)

// Instance is the single daemon process the Monitor manages for its
// lifetime: either one already running that we've attached to
// (ExistingInstance), or one this process spawned, or inherited across a
// self-restart, and still owns the log pipe for (SpawnedInstance). See
// spec.md §4.9.
type Instance interface {
	Pid() int
}

// ExistingInstance wraps a daemon pid the Monitor did not spawn itself,
// found by a successful get_pid RPC probe. Liveness is polled with
// kill(pid, 0).
type ExistingInstance struct {
	pid int
}

// NewExistingInstance attaches to an already-running daemon.
func NewExistingInstance(pid int) *ExistingInstance {
	return &ExistingInstance{pid: pid}
}

func (e *ExistingInstance) Pid() int { return e.pid }

// IsAlive sends signal 0, which performs only the existence/permission
// check without actually delivering a signal.
func (e *ExistingInstance) IsAlive() bool {
	err := syscall.Kill(e.pid, 0)
	return err == nil || err == syscall.EPERM
}

// SpawnedInstance wraps a daemon process this Monitor started itself (or
// inherited across a self-restart, where Go's syscall.Exec replaces the
// Monitor's own image in place, preserving its pid and the OS
// parent/child relationship to the daemon without needing a *exec.Cmd).
// It owns the read end of the daemon's stdout/stderr pipe so the Monitor
// can forward bytes into the log file as they arrive.
type SpawnedInstance struct {
	pid     int
	proc    *procutil.SpawnedProcess // nil when inherited across a restart
	logPipe *procutil.FileDescriptor
}

// NewSpawnedInstance wraps a freshly spawned child and the read end of
// its log pipe.
func NewSpawnedInstance(proc *procutil.SpawnedProcess, logPipe *procutil.FileDescriptor) *SpawnedInstance {
	return &SpawnedInstance{pid: proc.Pid(), proc: proc, logPipe: logPipe}
}

// NewInheritedSpawnedInstance wraps a daemon pid and log pipe inherited
// across a self-restart (--childEdenFSPid/--childEdenFSPipe).
func NewInheritedSpawnedInstance(pid int, logPipe *procutil.FileDescriptor) *SpawnedInstance {
	return &SpawnedInstance{pid: pid, logPipe: logPipe}
}

func (s *SpawnedInstance) Pid() int { return s.pid }

// LogPipe exposes the fd the restart handoff needs to pass to the next
// incarnation of this binary.
func (s *SpawnedInstance) LogPipe() *procutil.FileDescriptor { return s.logPipe }

// ReadLogChunk performs one read from the log pipe, forwarding raw bytes
// for the Monitor to write into the LogFile. ok is false once the pipe
// has reached EOF.
func (s *SpawnedInstance) ReadLogChunk(buf []byte) (n int, ok bool, err error) {
	n, err = s.logPipe.Read(buf)
	if err != nil {
		return n, false, err
	}
	return n, n > 0, nil
}

// TryReap performs one non-blocking waitpid, reporting whether the child
// has exited and its exit status if so.
func (s *SpawnedInstance) TryReap() (exited bool, status int, err error) {
	if s.proc != nil {
		return s.proc.TryWait()
	}
	return procutil.TryWaitPid(s.pid)
}

// Terminate sends SIGTERM to the daemon.
func (s *SpawnedInstance) Terminate() error { return syscall.Kill(s.pid, syscall.SIGTERM) }

// Kill sends SIGKILL to the daemon.
func (s *SpawnedInstance) Kill() error { return syscall.Kill(s.pid, syscall.SIGKILL) }

func (s *SpawnedInstance) Close() {
	if s.logPipe != nil {
		_ = s.logPipe.Close()
	}
}
