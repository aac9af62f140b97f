package objstore

// EntryKind is the type of a TreeEntry (spec.md §3).
type EntryKind uint8

const (
	KindTree EntryKind = iota
	KindRegularFile
	KindExecutableFile
	KindSymlink
)

// PathComponent is a single path segment name (no slashes).
type PathComponent string

// EntryAux carries the optional, versioned auxiliary metadata a TreeEntry
// may record about its target without having to fetch it.
type EntryAux struct {
	HasSHA1       bool
	SHA1          Hash20
	HasBlake3     bool
	Blake3        Hash32
	HasSize       bool
	Size          uint64
	HasDigestHash bool
	DigestHash    Hash32
	HasDigestSize bool
	DigestSize    uint64
}

// TreeEntry is one child of a Tree: a name, the ObjectId of its content, its
// kind, and optional aux data (spec.md §3).
type TreeEntry struct {
	Name PathComponent
	ID   ObjectId
	Kind EntryKind
	Aux  *EntryAux
}
