package objstore

import (
	"encoding/binary"
	"io"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// BlobMetadata is the size/digest summary of a blob that callers can often
// use without fetching the blob's full content (spec.md §4.4/§4.6).
type BlobMetadata struct {
	Size      uint64
	SHA1      Hash20
	HasBlake3 bool
	Blake3    Hash32
}

// SerializeBlobMetadata encodes m in the fixed layout LocalStore writes to
// its blob_metadata column: size, sha1, a has-blake3 byte, and blake3 (all
// zero if absent).
func SerializeBlobMetadata(m BlobMetadata) []byte {
	buf := make([]byte, 8+20+1+32)
	binary.BigEndian.PutUint64(buf[0:8], m.Size)
	copy(buf[8:28], m.SHA1[:])
	if m.HasBlake3 {
		buf[28] = 1
		copy(buf[29:61], m.Blake3[:])
	}
	return buf
}

// DeserializeBlobMetadata parses raw produced by SerializeBlobMetadata.
func DeserializeBlobMetadata(raw []byte) (BlobMetadata, error) {
	const want = 8 + 20 + 1 + 32
	if len(raw) != want {
		return BlobMetadata{}, ederrors.NewInvalidArgument("blob metadata: wrong length", io.ErrUnexpectedEOF)
	}
	m := BlobMetadata{Size: binary.BigEndian.Uint64(raw[0:8])}
	copy(m.SHA1[:], raw[8:28])
	if raw[28] == 1 {
		m.HasBlake3 = true
		copy(m.Blake3[:], raw[29:61])
	}
	return m, nil
}
