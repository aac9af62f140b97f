package diskvector

import (
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Stats is a snapshot of a Vector's bookkeeping, surfaced for diagnostics
// (spec.md §6 "MappedDiskVector stats").
type Stats struct {
	EntryCount   uint64
	Capacity     uint64
	EntrySize    uint32
	EntryVersion uint32
	FileBytes    int64
}

// Vector is a persistent, memory-mapped dense array of fixed-size records of
// type R, with page-multiple growth and in-place version migration on Open
// (spec.md §4.1). A Vector instance is safe for concurrent use by multiple
// goroutines; cross-process exclusivity is enforced with an advisory flock
// taken for the lifetime of Open.
type Vector[R any] struct {
	mu    sync.RWMutex
	path  string
	file  *os.File
	codec Codec[R]
	data  []byte // mmap'd region covering [0, capacity*entrySize); nil when capacity is 0
	h     header
}

// Open opens or creates the disk vector at path. If the file already exists
// at an older entryVersion than codec.Version(), migrations is searched for
// a path from the file's version to the codec's version and applied in
// place before the vector becomes usable; if no such path exists Open
// returns a VersionMismatch error.
func Open[R any](path string, codec Codec[R], migrations []Migration) (*Vector[R], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ederrors.NewIoError("diskvector: open "+path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, ederrors.NewIoError("diskvector: "+path+" is locked by another process", err)
	}

	v := &Vector[R]{path: path, file: f, codec: codec}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ederrors.NewIoError("diskvector: stat "+path, err)
	}

	if info.Size() == 0 {
		v.h = header{
			structVersion: currentStructVersion,
			entryVersion:  codec.Version(),
			entrySize:     uint32(codec.Size()),
			entryCount:    0,
			capacity:      0,
		}
		if err := v.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return v, nil
	}

	hdrBuf := make([]byte, headerSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, ederrors.NewIoError("diskvector: read header of "+path, err)
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}
	v.h = h

	if h.entryVersion == codec.Version() && h.entrySize != uint32(codec.Size()) {
		f.Close()
		return nil, ederrors.NewVersionMismatch("diskvector: entry size "+strconv.FormatUint(uint64(h.entrySize), 10)+
			" does not match record size "+strconv.Itoa(codec.Size()), nil)
	}

	if err := v.mapCurrent(); err != nil {
		f.Close()
		return nil, err
	}

	if h.entryVersion != codec.Version() {
		if err := v.migrate(migrations, codec); err != nil {
			v.unmapCurrent()
			f.Close()
			return nil, err
		}
	}

	return v, nil
}

func (v *Vector[R]) mapCurrent() error {
	if v.h.capacity == 0 {
		v.data = nil
		return nil
	}
	size := int(v.h.capacity) * int(v.h.entrySize)
	data, err := unix.Mmap(int(v.file.Fd()), headerSize, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return ederrors.NewIoError("diskvector: mmap", err)
	}
	v.data = data
	return nil
}

func (v *Vector[R]) unmapCurrent() {
	if v.data != nil {
		unix.Munmap(v.data)
		v.data = nil
	}
}

func (v *Vector[R]) writeHeader() error {
	if _, err := v.file.WriteAt(encodeHeader(v.h), 0); err != nil {
		return ederrors.NewIoError("diskvector: write header", err)
	}
	return nil
}

// migrate rewrites the entry region from the file's stamped version to
// codec's version, one step of the chain at a time, growing or shrinking the
// entry slot size as each step's record size dictates.
func (v *Vector[R]) migrate(migrations []Migration, codec Codec[R]) error {
	path, ok := buildMigrationPath(migrations, v.h.entryVersion, codec.Version())
	if !ok {
		return ederrors.NewVersionMismatch(
			"diskvector: no migration path from version "+strconv.FormatUint(uint64(v.h.entryVersion), 10)+
				" to "+strconv.FormatUint(uint64(codec.Version()), 10), nil)
	}

	count := v.h.entryCount
	oldSize := int(v.h.entrySize)
	cur := v.data

	for _, step := range path {
		// Only the final hop's record size is known (codec.Size()); an
		// intermediate hop's own size isn't carried by Migration, so chains
		// longer than one step must keep every non-final record the same
		// byte width as its predecessor. Multi-step chains that also change
		// width mid-chain need their own intermediate Codec threaded through
		// here; none of our migrations do yet.
		newSize := oldSize
		if step.ToVersion == codec.Version() {
			newSize = codec.Size()
		}
		newBuf := make([]byte, int(count)*newSize)
		for i := uint64(0); i < count; i++ {
			oldRec := cur[int(i)*oldSize : int(i)*oldSize+oldSize]
			newRec := newBuf[int(i)*newSize : int(i)*newSize+newSize]
			step.MigrateEntry(oldRec, newRec)
		}
		cur = newBuf
		oldSize = newSize
	}

	newCapacity := count
	newEntrySize := uint32(codec.Size())
	newHeader := header{
		structVersion: currentStructVersion,
		entryVersion:  codec.Version(),
		entrySize:     newEntrySize,
		entryCount:    count,
		capacity:      newCapacity,
	}

	// Never mutate the live file in place: write the migrated header and
	// entries to a sibling tmp file first, so a crash mid-migration leaves
	// the original file untouched and the tmp file is the only casualty
	// (spec.md §4.1 "create a sibling <path>.tmp... rename over the
	// original, reopen"), matching localstore.Store.Compact's own
	// write-tmp/rename/reopen pattern.
	tmpPath := v.path + ".tmp"
	if err := writeMigratedFile(tmpPath, newHeader, cur); err != nil {
		os.Remove(tmpPath)
		return err
	}

	v.unmapCurrent()
	unix.Flock(int(v.file.Fd()), unix.LOCK_UN)
	if err := v.file.Close(); err != nil {
		os.Remove(tmpPath)
		return ederrors.NewIoError("diskvector: close before migration swap", err)
	}

	if err := os.Rename(tmpPath, v.path); err != nil {
		return ederrors.NewIoError("diskvector: swap migrated file into place", err)
	}

	f, err := os.OpenFile(v.path, os.O_RDWR, 0644)
	if err != nil {
		return ederrors.NewIoError("diskvector: reopen after migration", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return ederrors.NewIoError("diskvector: relock after migration", err)
	}

	v.file = f
	v.h = newHeader
	v.codec = codec
	return v.mapCurrent()
}

// writeMigratedFile writes a fresh header plus entry region to a new file at
// tmpPath, used as the migration's staging area before it is renamed over
// the live file.
func writeMigratedFile(tmpPath string, h header, data []byte) error {
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ederrors.NewIoError("diskvector: create migration tmp file", err)
	}
	defer f.Close()
	if _, err := f.WriteAt(encodeHeader(h), 0); err != nil {
		return ederrors.NewIoError("diskvector: write migration tmp header", err)
	}
	if len(data) > 0 {
		if _, err := f.WriteAt(data, headerSize); err != nil {
			return ederrors.NewIoError("diskvector: write migrated entries", err)
		}
	}
	return nil
}

// nextCapacity returns the next capacity (in entries) to grow to: roughly
// double the current one, rounded up to a multiple of the number of entries
// that fit in one OS page (pageSize/entrySize, at least 1).
func nextCapacity(current uint64, entrySize uint32) uint64 {
	pageSize := uint64(unix.Getpagesize())
	entriesPerPage := pageSize / uint64(entrySize)
	if entriesPerPage == 0 {
		entriesPerPage = 1
	}
	if current == 0 {
		return entriesPerPage
	}
	target := current * 2
	if target < current { // unrealistic overflow guard
		target = current + entriesPerPage
	}
	pages := (target + entriesPerPage - 1) / entriesPerPage
	return pages * entriesPerPage
}

func (v *Vector[R]) grow() error {
	newCap := nextCapacity(v.h.capacity, v.h.entrySize)
	v.unmapCurrent()
	newSize := int64(headerSize) + int64(newCap)*int64(v.h.entrySize)
	if err := v.file.Truncate(newSize); err != nil {
		return ederrors.NewIoError("diskvector: truncate for growth", err)
	}
	v.h.capacity = newCap
	if err := v.mapCurrent(); err != nil {
		return err
	}
	return v.writeHeader()
}

// Len returns the number of logical entries.
func (v *Vector[R]) Len() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.h.entryCount
}

// Capacity returns the number of allocated entry slots.
func (v *Vector[R]) Capacity() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.h.capacity
}

func (v *Vector[R]) slot(i uint64) []byte {
	size := int(v.h.entrySize)
	off := int(i) * size
	return v.data[off : off+size]
}

// Get decodes the entry at index i.
func (v *Vector[R]) Get(i uint64) (R, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var zero R
	if i >= v.h.entryCount {
		return zero, ederrors.NewInvalidArgument("diskvector: index out of range", nil)
	}
	return v.codec.Decode(v.slot(i)), nil
}

// Set overwrites the entry at index i.
func (v *Vector[R]) Set(i uint64, r R) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i >= v.h.entryCount {
		return ederrors.NewInvalidArgument("diskvector: index out of range", nil)
	}
	v.codec.Encode(r, v.slot(i))
	return nil
}

// EmplaceBack appends r, growing the backing file if needed, and returns its
// index.
func (v *Vector[R]) EmplaceBack(r R) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.h.entryCount == v.h.capacity {
		if err := v.grow(); err != nil {
			return 0, err
		}
	}
	idx := v.h.entryCount
	v.codec.Encode(r, v.slot(idx))
	v.h.entryCount++
	if err := v.writeHeader(); err != nil {
		return 0, err
	}
	return idx, nil
}

// PopBack removes and returns the last entry.
func (v *Vector[R]) PopBack() (R, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero R
	if v.h.entryCount == 0 {
		return zero, ederrors.NewNotFound("diskvector: pop_back on empty vector", nil)
	}
	idx := v.h.entryCount - 1
	r := v.codec.Decode(v.slot(idx))
	v.h.entryCount = idx
	if err := v.writeHeader(); err != nil {
		return zero, err
	}
	return r, nil
}

// Front returns the first entry.
func (v *Vector[R]) Front() (R, error) { return v.Get(0) }

// Back returns the last entry.
func (v *Vector[R]) Back() (R, error) {
	v.mu.RLock()
	count := v.h.entryCount
	v.mu.RUnlock()
	if count == 0 {
		var zero R
		return zero, ederrors.NewNotFound("diskvector: back on empty vector", nil)
	}
	return v.Get(count - 1)
}

// ForEach calls fn for every entry in order, stopping early if fn returns
// false.
func (v *Vector[R]) ForEach(fn func(i uint64, r R) bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for i := uint64(0); i < v.h.entryCount; i++ {
		if !fn(i, v.codec.Decode(v.slot(i))) {
			return
		}
	}
}

// Flush msyncs the mapped region so readers via a separate mapping (e.g. a
// concurrently-run repair tool) observe recent writes.
func (v *Vector[R]) Flush() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.data == nil {
		return nil
	}
	if err := unix.Msync(v.data, unix.MS_SYNC); err != nil {
		return ederrors.NewIoError("diskvector: msync", err)
	}
	return nil
}

// Stats returns a snapshot of the vector's bookkeeping.
func (v *Vector[R]) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Stats{
		EntryCount:   v.h.entryCount,
		Capacity:     v.h.capacity,
		EntrySize:    v.h.entrySize,
		EntryVersion: v.h.entryVersion,
		FileBytes:    int64(headerSize) + int64(v.h.capacity)*int64(v.h.entrySize),
	}
}

// Close flushes, unmaps, writes the final header, releases the flock, and
// closes the underlying file.
func (v *Vector[R]) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.data != nil {
		unix.Msync(v.data, unix.MS_SYNC)
		unix.Munmap(v.data)
		v.data = nil
	}
	if err := v.writeHeader(); err != nil {
		v.file.Close()
		return err
	}
	unix.Flock(int(v.file.Fd()), unix.LOCK_UN)
	if err := v.file.Close(); err != nil {
		return ederrors.NewIoError("diskvector: close", err)
	}
	return nil
}
