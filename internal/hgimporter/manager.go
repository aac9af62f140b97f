package hgimporter

import (
	"sync"

	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// Manager wraps one HgImporter and transparently recreates it after a
// detected protocol/transport error or an explicit "ResetRepoError",
// retrying the call exactly once before surfacing the failure as a fetch
// miss (spec.md §4.8).
type Manager struct {
	mu       sync.Mutex
	opts     Options
	importer *HgImporter

	// startFn is Start by default; tests substitute a fake helper so the
	// retry logic can be exercised without spawning a real subprocess.
	startFn func(Options) (*HgImporter, error)
}

// NewManager constructs a Manager; the underlying HgImporter is started
// lazily on first use.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, startFn: Start}
}

func (m *Manager) getImporter() (*HgImporter, error) {
	if m.importer != nil {
		return m.importer, nil
	}
	hi, err := m.startFn(m.opts)
	if err != nil {
		return nil, err
	}
	m.importer = hi
	return hi, nil
}

func (m *Manager) resetImporter(cause error) {
	edenlog.Warn().Err(cause).Msg("hgimporter: resetting helper subprocess after error")
	if m.importer != nil {
		m.importer.Close()
		m.importer = nil
	}
}

func isTransient(err error) bool {
	if ederrors.IsProtocolError(err) || ederrors.IsIoError(err) {
		return true
	}
	return ederrors.RemoteTypeOf(err) == "ResetRepoError"
}

func retryOnce[T any](m *Manager, call func(*HgImporter) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	hi, err := m.getImporter()
	if err != nil {
		return zero, err
	}
	result, err := call(hi)
	if err == nil {
		return result, nil
	}
	if !isTransient(err) {
		return zero, err
	}

	m.resetImporter(err)
	hi, err2 := m.getImporter()
	if err2 != nil {
		return zero, err2
	}
	result, err = call(hi)
	if err != nil {
		edenlog.Warn().Err(err).Msg("hgimporter: fetch miss after retry")
		return zero, err
	}
	return result, nil
}

// CatFile fetches file content, retrying once on a transient error.
func (m *Manager) CatFile(path string, id objstore.Hash20) ([]byte, error) {
	return retryOnce(m, func(hi *HgImporter) ([]byte, error) { return hi.CatFile(path, id) })
}

// GetFileSize fetches a file's size, retrying once on a transient error.
func (m *Manager) GetFileSize(path string, id objstore.Hash20) (uint64, error) {
	return retryOnce(m, func(hi *HgImporter) (uint64, error) { return hi.GetFileSize(path, id) })
}

// CatTree fetches tree content, retrying once on a transient error.
func (m *Manager) CatTree(id objstore.Hash20) ([]byte, error) {
	return retryOnce(m, func(hi *HgImporter) ([]byte, error) { return hi.CatTree(id) })
}

// FetchTree requests a tree prefetch, retrying once on a transient error.
func (m *Manager) FetchTree(path string, id objstore.Hash20) error {
	_, err := retryOnce(m, func(hi *HgImporter) (struct{}, error) { return struct{}{}, hi.FetchTree(path, id) })
	return err
}

// Close releases the underlying HgImporter, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.importer != nil {
		m.importer.Close()
		m.importer = nil
	}
}
