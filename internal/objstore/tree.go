package objstore

// CaseSensitivity controls how Tree.Find folds names.
type CaseSensitivity bool

const (
	CaseSensitive   CaseSensitivity = true
	CaseInsensitive CaseSensitivity = false
)

// TreeAuxData is the optional per-tree digest summary appended by the V2
// wire format (spec.md §3/§4.3).
type TreeAuxData struct {
	DigestSize uint64
	DigestHash *Hash32
}

// Tree is an ordered map from PathComponent to TreeEntry, preserving
// insertion order on iteration, plus the id it was loaded/computed under and
// the case-sensitivity it should be looked up with (spec.md §3).
type Tree struct {
	id        ObjectId
	entries   []TreeEntry
	index     map[string]int // folded-or-exact name -> index into entries
	sensitive CaseSensitivity
	aux       *TreeAuxData
}

// NewTree builds a Tree from entries in the given order. Entry names must be
// unique under sensitivity; duplicates are a caller bug (spec.md §3 invariant)
// and NewTree panics rather than silently dropping data, mirroring how the
// teacher's DriveItem constructors treat invariant violations as programmer
// error rather than recoverable input.
func NewTree(id ObjectId, entries []TreeEntry, sensitivity CaseSensitivity, aux *TreeAuxData) *Tree {
	t := &Tree{
		id:        id,
		entries:   append([]TreeEntry(nil), entries...),
		index:     make(map[string]int, len(entries)),
		sensitive: sensitivity,
		aux:       aux,
	}
	for i, e := range t.entries {
		key := t.foldName(string(e.Name))
		if _, exists := t.index[key]; exists {
			panic("objstore: duplicate entry name in tree: " + string(e.Name))
		}
		t.index[key] = i
	}
	return t
}

func (t *Tree) foldName(name string) string {
	if t.sensitive == CaseSensitive {
		return name
	}
	return asciiFold(name)
}

// asciiFold lowercases only ASCII letters, matching spec.md §3's
// "case-insensitive compares fold ASCII case" (not full Unicode casefolding).
func asciiFold(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (t *Tree) ID() ObjectId                 { return t.id }
func (t *Tree) CaseSensitivity() CaseSensitivity { return t.sensitive }
func (t *Tree) Aux() *TreeAuxData            { return t.aux }
func (t *Tree) Len() int                     { return len(t.entries) }

// Entries returns the entries in stable insertion order. Callers must not
// mutate the returned slice.
func (t *Tree) Entries() []TreeEntry { return t.entries }

// Find looks up name honoring the tree's case-sensitivity flag.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	i, ok := t.index[t.foldName(name)]
	if !ok {
		return TreeEntry{}, false
	}
	return t.entries[i], true
}

// WithCaseSensitivity returns a copy of t with a different sensitivity flag,
// used when the mount's sensitivity differs from the stored tree's (spec.md
// §4.3: "the object store returns a copy with the flag flipped").
func (t *Tree) WithCaseSensitivity(sensitivity CaseSensitivity) *Tree {
	if sensitivity == t.sensitive {
		return t
	}
	return NewTree(t.id, t.entries, sensitivity, t.aux)
}

// SizeFootprint estimates the tree's in-memory footprint for cache
// accounting: a fixed per-entry overhead plus each entry's variable-length
// name and id bytes.
func (t *Tree) SizeFootprint() int {
	const perEntryOverhead = 32
	total := 64
	for _, e := range t.entries {
		total += perEntryOverhead + len(e.Name) + len(e.ID.Bytes())
	}
	return total
}
