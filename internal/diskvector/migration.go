package diskvector

// Codec describes how to turn a Go value of type R into the fixed-size
// on-disk record format (and back), plus the version stamp that identifies
// that format. Go generics have no sizeof(R), so callers supply Size()
// explicitly rather than relying on reflection over R's layout.
type Codec[R any] interface {
	Version() uint32
	Size() int
	Encode(r R, buf []byte)
	Decode(buf []byte) R
}

// Migration upgrades one on-disk record version to the next. Chains are
// applied in sequence on Open when the file's stamped entryVersion is older
// than the codec's, one step at a time, so a file need only ever declare the
// migration from its immediate predecessor (spec.md §4.1 "migration chain").
type Migration struct {
	FromVersion uint32
	ToVersion   uint32
	// MigrateEntry converts one old-format record (oldSize bytes) into one
	// new-format record (newSize bytes, preallocated by the caller).
	MigrateEntry func(old []byte, newBuf []byte)
}

// buildMigrationPath walks chain from 'from' to 'to', returning the ordered
// list of migrations to apply and true, or false if no path exists. Chain
// entries whose FromVersion equals their ToVersion are ignored, and when
// several entries share a FromVersion the last one wins.
func buildMigrationPath(chain []Migration, from, to uint32) ([]Migration, bool) {
	if from == to {
		return nil, true
	}
	byFrom := make(map[uint32]Migration, len(chain))
	for _, m := range chain {
		if m.FromVersion == m.ToVersion {
			continue
		}
		byFrom[m.FromVersion] = m
	}
	var path []Migration
	cur := from
	seen := map[uint32]bool{}
	for cur != to {
		if seen[cur] {
			return nil, false
		}
		seen[cur] = true
		m, ok := byFrom[cur]
		if !ok {
			return nil, false
		}
		path = append(path, m)
		cur = m.ToVersion
	}
	return path, true
}
