package objstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// TreeVersion is the 4-byte version tag at the start of a serialized Tree
// (spec.md §3/§4.3/§6).
type TreeVersion uint32

const (
	TreeVersionV1 TreeVersion = 1
	TreeVersionV2 TreeVersion = 2
)

const (
	auxFlagSHA1 = 1 << iota
	auxFlagBlake3
	auxFlagSize
	auxFlagDigestHash
	auxFlagDigestSize
)

// SerializeTree encodes t as the given wire version. A tree with no Aux set
// (neither TreeAuxData nor a preference for V2) should normally be written
// as V1; callers pass the version explicitly because the choice is a
// property of the write path, not of the in-memory Tree.
func SerializeTree(t *Tree, version TreeVersion) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(version)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(t.entries))); err != nil {
		return nil, err
	}
	for _, e := range t.entries {
		if err := writeEntry(&buf, e); err != nil {
			return nil, err
		}
	}
	if version == TreeVersionV2 {
		var digestSize uint64
		var hasHash byte
		var hash Hash32
		if t.aux != nil {
			digestSize = t.aux.DigestSize
			if t.aux.DigestHash != nil {
				hasHash = 1
				hash = *t.aux.DigestHash
			}
		}
		if err := binary.Write(&buf, binary.BigEndian, digestSize); err != nil {
			return nil, err
		}
		if err := buf.WriteByte(hasHash); err != nil {
			return nil, err
		}
		if hasHash == 1 {
			if _, err := buf.Write(hash[:]); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, e TreeEntry) error {
	name := []byte(e.Name)
	if len(name) > 0xFFFF {
		return ederrors.NewInvalidArgument("tree entry name too long", nil)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(name))); err != nil {
		return err
	}
	buf.Write(name)

	if err := buf.WriteByte(byte(e.Kind)); err != nil {
		return err
	}
	idBytes := e.ID.Bytes()
	if len(idBytes) > 0xFF {
		return ederrors.NewInvalidArgument("tree entry id too long", nil)
	}
	if err := buf.WriteByte(byte(len(idBytes))); err != nil {
		return err
	}
	buf.Write(idBytes)

	if e.Aux == nil {
		return buf.WriteByte(0)
	}
	if err := buf.WriteByte(1); err != nil {
		return err
	}
	var mask byte
	aux := e.Aux
	if aux.HasSHA1 {
		mask |= auxFlagSHA1
	}
	if aux.HasBlake3 {
		mask |= auxFlagBlake3
	}
	if aux.HasSize {
		mask |= auxFlagSize
	}
	if aux.HasDigestHash {
		mask |= auxFlagDigestHash
	}
	if aux.HasDigestSize {
		mask |= auxFlagDigestSize
	}
	if err := buf.WriteByte(mask); err != nil {
		return err
	}
	if aux.HasSHA1 {
		buf.Write(aux.SHA1[:])
	}
	if aux.HasBlake3 {
		buf.Write(aux.Blake3[:])
	}
	if aux.HasSize {
		if err := binary.Write(buf, binary.BigEndian, aux.Size); err != nil {
			return err
		}
	}
	if aux.HasDigestHash {
		buf.Write(aux.DigestHash[:])
	}
	if aux.HasDigestSize {
		if err := binary.Write(buf, binary.BigEndian, aux.DigestSize); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeTree parses raw as a serialized Tree produced by SerializeTree,
// assigning it id and sensitivity (neither is carried on the wire: id is the
// content address under which raw was stored, and sensitivity is a property
// of the mount, per spec.md §4.3).
func DeserializeTree(id ObjectId, raw []byte, sensitivity CaseSensitivity) (*Tree, error) {
	r := bytes.NewReader(raw)

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, ederrors.NewInvalidArgument("tree: truncated version", err)
	}
	if version != uint32(TreeVersionV1) && version != uint32(TreeVersionV2) {
		return nil, ederrors.NewInvalidArgument(fmt.Sprintf("tree: unknown version %d", version), nil)
	}

	var numEntries uint32
	if err := binary.Read(r, binary.BigEndian, &numEntries); err != nil {
		return nil, ederrors.NewInvalidArgument("tree: truncated entry count", err)
	}

	entries := make([]TreeEntry, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		e, err := readEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	var aux *TreeAuxData
	if TreeVersion(version) == TreeVersionV2 {
		var digestSize uint64
		if err := binary.Read(r, binary.BigEndian, &digestSize); err != nil {
			return nil, ederrors.NewInvalidArgument("tree: v2 missing digest_size", err)
		}
		hasHash, err := r.ReadByte()
		if err != nil {
			return nil, ederrors.NewInvalidArgument("tree: v2 missing digest_hash presence", err)
		}
		aux = &TreeAuxData{DigestSize: digestSize}
		if hasHash == 1 {
			var hash Hash32
			if _, err := io.ReadFull(r, hash[:]); err != nil {
				return nil, ederrors.NewInvalidArgument("tree: v2 truncated digest_hash", err)
			}
			aux.DigestHash = &hash
		}
	}

	if r.Len() != 0 {
		return nil, ederrors.NewInvalidArgument(fmt.Sprintf("tree: %d trailing bytes after declared fields", r.Len()), nil)
	}

	return NewTree(id, entries, sensitivity, aux), nil
}

func readEntry(r *bytes.Reader) (TreeEntry, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated name length", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated name", err)
	}

	kindByte, err := r.ReadByte()
	if err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated kind", err)
	}

	idLen, err := r.ReadByte()
	if err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated id length", err)
	}
	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated id", err)
	}

	hasAux, err := r.ReadByte()
	if err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated has_aux", err)
	}

	entry := TreeEntry{
		Name: PathComponent(name),
		ID:   NewObjectId(idBytes),
		Kind: EntryKind(kindByte),
	}
	if hasAux == 0 {
		return entry, nil
	}

	mask, err := r.ReadByte()
	if err != nil {
		return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated aux mask", err)
	}
	aux := &EntryAux{}
	if mask&auxFlagSHA1 != 0 {
		aux.HasSHA1 = true
		if _, err := io.ReadFull(r, aux.SHA1[:]); err != nil {
			return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated sha1", err)
		}
	}
	if mask&auxFlagBlake3 != 0 {
		aux.HasBlake3 = true
		if _, err := io.ReadFull(r, aux.Blake3[:]); err != nil {
			return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated blake3", err)
		}
	}
	if mask&auxFlagSize != 0 {
		aux.HasSize = true
		if err := binary.Read(r, binary.BigEndian, &aux.Size); err != nil {
			return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated size", err)
		}
	}
	if mask&auxFlagDigestHash != 0 {
		aux.HasDigestHash = true
		if _, err := io.ReadFull(r, aux.DigestHash[:]); err != nil {
			return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated digest_hash", err)
		}
	}
	if mask&auxFlagDigestSize != 0 {
		aux.HasDigestSize = true
		if err := binary.Read(r, binary.BigEndian, &aux.DigestSize); err != nil {
			return TreeEntry{}, ederrors.NewInvalidArgument("tree entry: truncated digest_size", err)
		}
	}
	entry.Aux = aux
	return entry, nil
}
