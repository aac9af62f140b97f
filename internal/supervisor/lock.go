package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// MonitorLock is the exclusive monitor.lock file a Monitor holds for its
// entire lifetime under the daemon's state directory (spec.md §4.9),
// refusing to start on contention. Follows the same open-fd-then-flock
// idiom as internal/diskvector.
type MonitorLock struct {
	file *os.File
}

// AcquireMonitorLock opens (creating if absent) monitor.lock under
// stateDir, takes a non-blocking exclusive flock, and writes our pid into
// it. Returns an error if another Monitor already holds the lock.
func AcquireMonitorLock(stateDir string) (*MonitorLock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, ederrors.NewIoError("create state directory", err)
	}
	path := filepath.Join(stateDir, "monitor.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ederrors.NewIoError("open monitor.lock", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, ederrors.NewInvalidArgument("another monitor already holds monitor.lock", err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, ederrors.NewIoError("truncate monitor.lock", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d", os.Getpid())), 0); err != nil {
		_ = f.Close()
		return nil, ederrors.NewIoError("write pid to monitor.lock", err)
	}

	return &MonitorLock{file: f}, nil
}

// Release drops the flock and closes the lock file.
func (l *MonitorLock) Release() error {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}
