// Package inodetable implements InodeTable<R>: persistent per-inode metadata
// records backed by a diskvector.Vector, indexed in memory by inode number
// (spec.md §4.2).
package inodetable

import (
	"sync"

	"github.com/edenfs-go/edencore/internal/diskvector"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// Entry is the on-disk record: an inode number paired with its metadata.
type Entry[R any] struct {
	Ino InodeNumber
	Rec R
}

// InodeNumber mirrors objstore.InodeNumber; re-exported here so callers of
// this package don't need to import objstore just to name an inode.
type InodeNumber = objstore.InodeNumber

// Table wraps a diskvector.Vector[Entry[R]] with an in-memory
// HashMap[InodeNumber]->slot index guarded by a single RWMutex. The index
// lock covers structural changes only (insert/remove); a caller that has
// exclusive per-inode access (via the inode's own lock, see internal/inode)
// may mutate a stored record's fields directly through modify_or_throw
// without contending with unrelated inodes (spec.md §4.2).
type Table[R any] struct {
	mu      sync.RWMutex
	storage *diskvector.Vector[Entry[R]]
	index   map[InodeNumber]uint64
}

// entryCodec adapts a diskvector.Codec[R] for R into one for Entry[R].
type entryCodec[R any] struct {
	inner   diskvector.Codec[R]
	version uint32
	rawSize int
}

func (c entryCodec[R]) Version() uint32 { return c.version }
func (c entryCodec[R]) Size() int       { return c.rawSize }

func (c entryCodec[R]) Encode(e Entry[R], buf []byte) {
	putUint64(buf[0:8], uint64(e.Ino))
	c.inner.Encode(e.Rec, buf[8:])
}

func (c entryCodec[R]) Decode(buf []byte) Entry[R] {
	return Entry[R]{
		Ino: InodeNumber(getUint64(buf[0:8])),
		Rec: c.inner.Decode(buf[8:]),
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Open opens or creates the table's backing file, reconstructing the
// in-memory index from the on-disk entries.
func Open[R any](path string, recCodec diskvector.Codec[R], migrations []diskvector.Migration) (*Table[R], error) {
	ec := entryCodec[R]{inner: recCodec, version: recCodec.Version(), rawSize: 8 + recCodec.Size()}
	storage, err := diskvector.Open[Entry[R]](path, ec, migrations)
	if err != nil {
		return nil, err
	}

	t := &Table[R]{storage: storage, index: make(map[InodeNumber]uint64)}
	storage.ForEach(func(i uint64, e Entry[R]) bool {
		t.index[e.Ino] = i
		return true
	})
	return t, nil
}

// Get returns the record for ino, if present.
func (t *Table[R]) Get(ino InodeNumber) (R, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var zero R
	i, ok := t.index[ino]
	if !ok {
		return zero, false
	}
	e, err := t.storage.Get(i)
	if err != nil {
		return zero, false
	}
	return e.Rec, true
}

// GetOrThrow is Get but returns a NotFound error instead of ok=false.
func (t *Table[R]) GetOrThrow(ino InodeNumber) (R, error) {
	r, ok := t.Get(ino)
	if !ok {
		var zero R
		return zero, ederrors.NewNotFound("inodetable: no entry for inode", nil)
	}
	return r, nil
}

// Set inserts or overwrites the record for ino.
func (t *Table[R]) Set(ino InodeNumber, r R) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[ino]; ok {
		return t.storage.Set(i, Entry[R]{Ino: ino, Rec: r})
	}
	i, err := t.storage.EmplaceBack(Entry[R]{Ino: ino, Rec: r})
	if err != nil {
		return err
	}
	t.index[ino] = i
	return nil
}

// SetDefault inserts r iff ino is absent, and returns the value now stored
// (either r, or whatever was already there).
func (t *Table[R]) SetDefault(ino InodeNumber, r R) (R, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[ino]; ok {
		e, err := t.storage.Get(i)
		if err != nil {
			return r, err
		}
		return e.Rec, nil
	}
	i, err := t.storage.EmplaceBack(Entry[R]{Ino: ino, Rec: r})
	if err != nil {
		var zero R
		return zero, err
	}
	t.index[ino] = i
	return r, nil
}

// PopulateIfNotSet calls compute outside any table lock when ino is absent,
// then inserts the result under the write lock — discarding it if another
// writer raced and inserted first, so compute is never observably wasted
// work from the caller's point of view but may still run redundantly under a
// race (spec.md §4.2).
func (t *Table[R]) PopulateIfNotSet(ino InodeNumber, compute func() R) (R, error) {
	if r, ok := t.Get(ino); ok {
		return r, nil
	}
	computed := compute()

	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[ino]; ok {
		e, err := t.storage.Get(i)
		if err != nil {
			var zero R
			return zero, err
		}
		return e.Rec, nil
	}
	i, err := t.storage.EmplaceBack(Entry[R]{Ino: ino, Rec: computed})
	if err != nil {
		var zero R
		return zero, err
	}
	t.index[ino] = i
	return computed, nil
}

// ModifyOrThrow takes the table's read lock (structural state doesn't
// change), applies mutate to the stored record, writes the result back, and
// returns it. Callers are responsible for ensuring exclusive access to ino
// itself (e.g. via the inode's own lock) since ModifyOrThrow does not
// serialize against concurrent ModifyOrThrow calls on the SAME inode.
func (t *Table[R]) ModifyOrThrow(ino InodeNumber, mutate func(*R)) (R, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[ino]
	if !ok {
		var zero R
		return zero, ederrors.NewNotFound("inodetable: modify on absent inode", nil)
	}

	e, err := t.storage.Get(i)
	if err != nil {
		var zero R
		return zero, err
	}
	mutate(&e.Rec)
	if err := t.storage.Set(i, e); err != nil {
		var zero R
		return zero, err
	}
	return e.Rec, nil
}

// FreeInode removes ino's entry, if present, swapping the last storage slot
// into the vacated one and updating the index for both the removed and the
// moved entry (spec.md §4.2 "dense removal, no free list"). Idempotent.
func (t *Table[R]) FreeInode(ino InodeNumber) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[ino]
	if !ok {
		return nil
	}

	lastIdx := t.storage.Len() - 1
	if i != lastIdx {
		last, err := t.storage.Get(lastIdx)
		if err != nil {
			return err
		}
		if err := t.storage.Set(i, last); err != nil {
			return err
		}
		t.index[last.Ino] = i
	}
	if _, err := t.storage.PopBack(); err != nil {
		return err
	}
	delete(t.index, ino)
	return nil
}

// ForEach calls fn for every stored (inode, record) pair in storage order.
func (t *Table[R]) ForEach(fn func(ino InodeNumber, r R) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.storage.ForEach(func(_ uint64, e Entry[R]) bool {
		return fn(e.Ino, e.Rec)
	})
}

// Len returns the number of stored entries.
func (t *Table[R]) Len() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.storage.Len()
}

// Close closes the backing storage.
func (t *Table[R]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storage.Close()
}
