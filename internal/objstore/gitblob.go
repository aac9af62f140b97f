package objstore

import (
	"bytes"
	"strconv"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

const gitBlobType = "blob"

// SerializeGitBlob renders content in the same on-disk framing git uses for
// loose blob objects: "blob <decimal size>\0<content>" (spec.md §4.3's
// "Git-blob interop"). This is the format backing stores that proxy a git
// remote hand to LocalStore, so a Blob's bytes round-trip losslessly through
// a git object database without the core needing to know git's internals.
func SerializeGitBlob(content []byte) []byte {
	header := gitBlobType + " " + strconv.Itoa(len(content)) + "\x00"
	out := make([]byte, 0, len(header)+len(content))
	out = append(out, header...)
	out = append(out, content...)
	return out
}

// DeserializeGitBlob parses raw produced by SerializeGitBlob (or by git
// itself) back into the blob's content, validating that the declared size
// matches what follows the NUL terminator.
func DeserializeGitBlob(raw []byte) ([]byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return nil, ederrors.NewInvalidArgument("git blob: missing NUL header terminator", nil)
	}
	header := string(raw[:nul])
	parts := bytes.SplitN([]byte(header), []byte(" "), 2)
	if len(parts) != 2 || string(parts[0]) != gitBlobType {
		return nil, ederrors.NewInvalidArgument("git blob: not a blob object: "+header, nil)
	}
	size, err := strconv.Atoi(string(parts[1]))
	if err != nil || size < 0 {
		return nil, ederrors.NewInvalidArgument("git blob: invalid size field: "+string(parts[1]), nil)
	}
	content := raw[nul+1:]
	if len(content) != size {
		return nil, ederrors.NewInvalidArgument("git blob: size mismatch: header says "+strconv.Itoa(size)+", got "+strconv.Itoa(len(content)), nil)
	}
	return append([]byte(nil), content...), nil
}
