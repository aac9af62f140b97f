package inode

import (
	"sync"

	"github.com/edenfs-go/edencore/internal/objstore"
)

// ChildEntry is one entry in a TreeInode's ordered child table: the child's
// content address and mode, and (once loaded into the Map) its InodeNumber.
// Per spec.md §4.1/§4.7, the parent holds only this entry, not a strong
// reference to the loaded child inode itself.
type ChildEntry struct {
	Name   objstore.PathComponent
	ID     objstore.ObjectId
	Mode   uint32
	Loaded objstore.InodeNumber // zero if the child hasn't been materialized
}

// TreeInode is a directory inode: an InodeBase plus an ordered table of
// children, protected by its own contents lock (spec.md §4.7 "per-TreeInode
// contents lock"). The contents lock may be acquired after a child's
// location lock, but only via the retry protocol in GetParentInfo — never
// the reverse order, to avoid deadlock (parent before child, consistently).
type TreeInode struct {
	InodeBase

	contentsMu sync.RWMutex
	contents   []ChildEntry
	index      map[objstore.PathComponent]int
}

// NewTreeInode constructs an empty directory inode.
func NewTreeInode(base *InodeBase) *TreeInode {
	return &TreeInode{
		InodeBase: *base,
		index:     make(map[objstore.PathComponent]int),
	}
}

// Contents returns a snapshot of the child table in order. Callers must not
// mutate the returned slice.
func (t *TreeInode) Contents() []ChildEntry {
	t.contentsMu.RLock()
	defer t.contentsMu.RUnlock()
	return t.contents
}

// Find looks up a child by name.
func (t *TreeInode) Find(name objstore.PathComponent) (ChildEntry, bool) {
	t.contentsMu.RLock()
	defer t.contentsMu.RUnlock()
	i, ok := t.index[name]
	if !ok {
		return ChildEntry{}, false
	}
	return t.contents[i], true
}

// InsertChild adds or replaces a child entry.
func (t *TreeInode) InsertChild(e ChildEntry) {
	t.contentsMu.Lock()
	defer t.contentsMu.Unlock()
	if i, ok := t.index[e.Name]; ok {
		t.contents[i] = e
		return
	}
	t.index[e.Name] = len(t.contents)
	t.contents = append(t.contents, e)
}

// RemoveChild removes a child entry by name, returning false if it wasn't
// present. Removal is dense, same as InodeTable.FreeInode: the last entry is
// swapped into the vacated slot and the index is updated.
func (t *TreeInode) RemoveChild(name objstore.PathComponent) bool {
	t.contentsMu.Lock()
	defer t.contentsMu.Unlock()
	i, ok := t.index[name]
	if !ok {
		return false
	}
	last := len(t.contents) - 1
	if i != last {
		t.contents[i] = t.contents[last]
		t.index[t.contents[i].Name] = i
	}
	t.contents = t.contents[:last]
	delete(t.index, name)
	return true
}

// LockContentsForRename acquires the contents write lock directly. This is
// the only caller-visible way to take the lock outside GetParentInfo's
// retry protocol, used by a rename's destination-side insert once the
// mount-wide rename lock is already held.
func (t *TreeInode) LockContentsForRename(guard RenameGuard) func() {
	_ = guard
	t.contentsMu.Lock()
	return t.contentsMu.Unlock
}

// Map is the set of currently-instantiated inodes for a mount, keyed by
// InodeNumber, with its own "unload lock" distinct from any individual
// inode's location lock (spec.md §4.7).
type Map struct {
	mu  sync.Mutex
	ino map[objstore.InodeNumber]*InodeBase
}

// NewMap constructs an empty inode map.
func NewMap() *Map {
	return &Map{ino: make(map[objstore.InodeNumber]*InodeBase)}
}

// Load registers an already-constructed inode, replacing any prior entry
// under the same number.
func (m *Map) Load(b *InodeBase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ino[b.Number] = b
}

// Get returns the loaded inode for ino, if present.
func (m *Map) Get(ino objstore.InodeNumber) (*InodeBase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.ino[ino]
	return b, ok
}

// unloadLocked removes ino from the map and, if parent is non-nil, removes
// the corresponding entry from the parent's contents. Must be called with m
// already locked (see InodeBase.MarkUnlinked).
func (m *Map) unloadLocked(ino objstore.InodeNumber, parent *TreeInode, name objstore.PathComponent) {
	delete(m.ino, ino)
	if parent != nil {
		parent.RemoveChild(name)
	}
}

