package startuplogger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edenfs-go/edencore/internal/ederrors"
)

// NextSessionID reads, increments, and persists the monotonic session
// counter kept in stateDir, used to stamp each daemon startup when the
// caller did not supply one explicitly (supplemented from the original
// implementation's session_id logging, not present in spec.md's
// invariants but cheap to carry forward).
func NextSessionID(stateDir string) (int64, error) {
	path := filepath.Join(stateDir, "next_session_id")

	var current int64
	if data, err := os.ReadFile(path); err == nil {
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			parsed, perr := strconv.ParseInt(trimmed, 10, 64)
			if perr != nil {
				return 0, ederrors.NewInvalidArgument("corrupt session id counter", perr)
			}
			current = parsed
		}
	} else if !os.IsNotExist(err) {
		return 0, ederrors.NewIoError("read session id counter", err)
	}

	next := current + 1
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return 0, ederrors.NewIoError("create state directory", err)
	}
	if err := os.WriteFile(path, []byte(strconv.FormatInt(next, 10)), 0644); err != nil {
		return 0, ederrors.NewIoError("write session id counter", err)
	}
	return next, nil
}
