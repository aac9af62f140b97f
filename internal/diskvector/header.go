// Package diskvector implements a persistent, memory-mapped dense vector of
// fixed-size records, with in-place schema migration between record
// versions (spec.md §4.1 "MappedDiskVector").
package diskvector

import (
	"encoding/binary"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// fileMagic identifies a disk vector file, padded to 8 bytes so the header
// stays 8-byte aligned.
var fileMagic = [8]byte{'M', 'D', 'V', 0, 0, 0, 0, 0}

// headerSize is the fixed on-disk size of header, in bytes. Any field added
// to header must come out of reserved so old binaries still agree on layout.
const headerSize = 64

// header is the first headerSize bytes of a disk vector file. It is never
// mapped; it's read/written with pread/pwrite-equivalents so a torn mmap
// write of the entry region can't corrupt it independently.
type header struct {
	structVersion uint32 // version of this header layout itself
	entryVersion  uint32 // version of the record type stored in the file
	entrySize     uint32 // size in bytes of one record at entryVersion
	entryCount    uint64 // number of valid (logical) entries
	capacity      uint64 // number of entry slots the file is currently sized for
}

const currentStructVersion = 1

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], fileMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], h.structVersion)
	binary.BigEndian.PutUint32(buf[12:16], h.entryVersion)
	binary.BigEndian.PutUint32(buf[16:20], h.entrySize)
	binary.BigEndian.PutUint64(buf[20:28], h.entryCount)
	binary.BigEndian.PutUint64(buf[28:36], h.capacity)
	// buf[36:64] reserved, left zero.
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, ederrors.NewInvalidArgument("diskvector: truncated header", nil)
	}
	if string(buf[0:8]) != string(fileMagic[:]) {
		return header{}, ederrors.NewInvalidArgument("diskvector: bad magic", nil)
	}
	h := header{
		structVersion: binary.BigEndian.Uint32(buf[8:12]),
		entryVersion:  binary.BigEndian.Uint32(buf[12:16]),
		entrySize:     binary.BigEndian.Uint32(buf[16:20]),
		entryCount:    binary.BigEndian.Uint64(buf[20:28]),
		capacity:      binary.BigEndian.Uint64(buf[28:36]),
	}
	if h.structVersion != currentStructVersion {
		return header{}, ederrors.NewVersionMismatch("diskvector: unsupported struct version", nil)
	}
	return h, nil
}
