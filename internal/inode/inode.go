// Package inode implements the in-memory inode graph: InodeBase location
// tracking, the mount-wide rename lock, and TreeInode's child table
// (spec.md §4.7).
package inode

import (
	"sync"
	"sync/atomic"

	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// RenameLock is the mount-wide exclusive lock held across any structural
// move (mark_unlinked, update_location, rename). Holding it prevents
// observers from seeing intermediate states while walking paths upward.
type RenameLock struct {
	mu sync.Mutex
}

// RenameGuard is proof, by construction, that the caller holds the mount's
// RenameLock. Functions that require the rename lock take a RenameGuard
// argument rather than a *RenameLock so the type system documents the
// requirement even though Go can't statically verify lock possession.
type RenameGuard struct {
	lock *RenameLock
}

// Lock acquires the rename lock and returns a guard. Callers must Unlock it
// when the structural move is complete.
func (l *RenameLock) Lock() RenameGuard {
	l.mu.Lock()
	return RenameGuard{lock: l}
}

func (g RenameGuard) Unlock() { g.lock.mu.Unlock() }

// Location is an inode's position in the tree: its parent, its name within
// that parent, and whether it has been unlinked.
type Location struct {
	Parent   *TreeInode
	Name     objstore.PathComponent
	Unlinked bool
}

// InodeBase is the runtime inode object shared by both leaf (file/symlink)
// and TreeInode (directory) inodes.
type InodeBase struct {
	Number      objstore.InodeNumber
	InitialMode uint32

	locMu    sync.RWMutex
	location Location

	strongCount int32 // atomic: live Go references outside the map
	fsRefCount  int32 // atomic: kernel/FS-visible references (e.g. open handles)
}

// NewRootInode constructs the inode for a mount's root: no parent, empty name.
func NewRootInode(mode uint32) *InodeBase {
	return &InodeBase{
		Number:      objstore.RootInodeNumber,
		InitialMode: mode,
		location:    Location{Parent: nil, Name: ""},
	}
}

// NewInodeBase constructs a non-root inode already attached under parent.
func NewInodeBase(ino objstore.InodeNumber, mode uint32, parent *TreeInode, name objstore.PathComponent) *InodeBase {
	return &InodeBase{
		Number:      ino,
		InitialMode: mode,
		location:    Location{Parent: parent, Name: name},
	}
}

// IsRoot reports whether this is the mount root (no parent, by inode number).
func (b *InodeBase) IsRoot() bool { return b.Number == objstore.RootInodeNumber }

// Location returns a snapshot of the inode's current location.
func (b *InodeBase) Location() Location {
	b.locMu.RLock()
	defer b.locMu.RUnlock()
	return b.location
}

// AddStrongRef / DropStrongRef track Go-side references (e.g. a handle
// returned to a caller); AddFSRef / DropFSRef track kernel-visible
// references (e.g. open file handles). Both are consulted by MarkUnlinked
// to decide whether the inode can be destroyed immediately.
func (b *InodeBase) AddStrongRef() { atomic.AddInt32(&b.strongCount, 1) }
func (b *InodeBase) DropStrongRef() int32 {
	return atomic.AddInt32(&b.strongCount, -1)
}
func (b *InodeBase) AddFSRef() { atomic.AddInt32(&b.fsRefCount, 1) }
func (b *InodeBase) DropFSRef() int32 {
	return atomic.AddInt32(&b.fsRefCount, -1)
}

// MarkUnlinked requires guard to prove the caller holds the mount's rename
// lock. It sets location.Unlinked under the location write-lock, then
// atomically (under m's unload lock) decides whether the inode can be
// destroyed now: both strong_pointer_count and fs_ref_count must be zero. If
// so, it calls m.unload and returns true (ownership of destruction is handed
// to the caller, outside the inode-map lock); otherwise it returns false and
// the inode lives until the last reference drops (spec.md §4.7).
func (b *InodeBase) MarkUnlinked(guard RenameGuard, m *Map, parent *TreeInode, name objstore.PathComponent) bool {
	_ = guard // proof that the rename lock is held for the duration of this call

	b.locMu.Lock()
	b.location.Unlinked = true
	b.locMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if atomic.LoadInt32(&b.strongCount) == 0 && atomic.LoadInt32(&b.fsRefCount) == 0 {
		m.unloadLocked(b.Number, parent, name)
		return true
	}
	return false
}

// UpdateLocation requires the rename lock, asserts the inode is not
// unlinked, and mutates its location in place.
func (b *InodeBase) UpdateLocation(guard RenameGuard, newParent *TreeInode, newName objstore.PathComponent) error {
	_ = guard

	b.locMu.Lock()
	defer b.locMu.Unlock()
	if b.location.Unlinked {
		return ederrors.NewInvalidArgument("inode: update_location on unlinked inode", nil)
	}
	b.location.Parent = newParent
	b.location.Name = newName
	return nil
}

// ParentInfo is the result of a successful GetParentInfo call: the parent
// inode whose contents lock is now held for write, and the name this inode
// had in that parent at the moment of the check. Callers must call Unlock
// when done mutating the parent's contents.
type ParentInfo struct {
	Parent   *TreeInode
	Name     objstore.PathComponent
	Unlinked bool
}

// Unlock releases the parent's contents write lock acquired by
// GetParentInfo. A no-op if Unlinked is true (no lock was taken).
func (p ParentInfo) Unlock() {
	if p.Parent != nil && !p.Unlinked {
		p.Parent.contentsMu.Unlock()
	}
}

// GetParentInfo obtains the parent's contents lock consistently with any
// in-flight rename, per spec.md §4.7: read location and capture parent; if
// unlinked, return an unlinked marker; otherwise acquire the parent's
// contents write lock, then re-read our own location — if the parent is
// still the same, succeed; otherwise release and retry. No mount-wide lock
// is used; retries are bounded only by concurrent rename traffic.
func (b *InodeBase) GetParentInfo() ParentInfo {
	tries := 0
	for {
		loc := b.Location()
		if loc.Unlinked {
			return ParentInfo{Unlinked: true}
		}
		if loc.Parent == nil {
			return ParentInfo{Parent: nil, Name: loc.Name}
		}

		loc.Parent.contentsMu.Lock()
		recheck := b.Location()
		if recheck.Unlinked {
			loc.Parent.contentsMu.Unlock()
			return ParentInfo{Unlinked: true}
		}
		if recheck.Parent == loc.Parent {
			return ParentInfo{Parent: loc.Parent, Name: recheck.Name}
		}
		loc.Parent.contentsMu.Unlock()

		tries++
		edenlog.Trace().Int("tries", tries).Msg("get_parent_info: parent changed under us, retrying")
	}
}

// walkToRoot walks location.Parent up to the root, reading each ancestor's
// location under its own read lock (no mount-wide lock: a concurrent rename
// may still be observed mid-walk as either the old or new path, but never a
// torn mix of the two, since each hop reads one inode's location
// atomically). It returns the path components root-to-leaf along with
// whether any ancestor on the way was found unlinked.
func (b *InodeBase) walkToRoot() (components []objstore.PathComponent, unlinked bool) {
	cur := b
	for cur != nil && !cur.IsRoot() {
		loc := cur.Location()
		if loc.Unlinked {
			unlinked = true
		}
		components = append(components, loc.Name)
		if loc.Parent == nil {
			break
		}
		cur = &loc.Parent.InodeBase
	}

	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}
	return components, unlinked
}

// Path reconstructs the inode's full path (logging mode): if any ancestor on
// the walk to the root was found unlinked, the leaf name is rendered as
// "<deleted:name>" rather than silently returning a stale-looking path.
func (b *InodeBase) Path() string {
	components, unlinked := b.walkToRoot()
	if len(components) == 0 {
		return "/"
	}
	out := ""
	for i, c := range components {
		if unlinked && i == len(components)-1 {
			out += "/<deleted:" + string(c) + ">"
			continue
		}
		out += "/" + string(c)
	}
	return out
}

// PathStrict is Path's strict-mode counterpart: if any ancestor on the walk
// to the root was found unlinked, it returns ("", false) instead of a
// "<deleted:…>"-formatted path.
func (b *InodeBase) PathStrict() (string, bool) {
	components, unlinked := b.walkToRoot()
	if unlinked {
		return "", false
	}
	if len(components) == 0 {
		return "/", true
	}
	out := ""
	for _, c := range components {
		out += "/" + string(c)
	}
	return out, true
}
