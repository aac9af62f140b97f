// Package logfile implements the rotating log file the supervisor appends
// the daemon's stdout/stderr to (spec.md §4.10): synchronous rename-based
// rotation once a size threshold is crossed, with pruning of old rotated
// files handled by a dedicated background thread so rotation never blocks
// the writer on directory I/O.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/ederrors"
)

// Strategy names the new file produced by a rotation (pruning is always
// enqueued separately by LogFile; Strategy exists so callers can plug in a
// different naming scheme without touching LogFile itself).
type Strategy interface {
	// RotatedName returns the sibling path the live file should be
	// renamed to, derived from base and now.
	RotatedName(base string, now time.Time, seq int) string
}

// TimestampSuffixStrategy renames "name.log" to
// "name.log-YYYYMMDD.HHMMSS[.seq]", matching spec.md §4.10.
type TimestampSuffixStrategy struct{}

func (TimestampSuffixStrategy) RotatedName(base string, now time.Time, seq int) string {
	stamp := now.Format("20060102.150405")
	if seq > 0 {
		return fmt.Sprintf("%s-%s.%d", base, stamp, seq)
	}
	return fmt.Sprintf("%s-%s", base, stamp)
}

// LogFile appends to a fixed path, rotating synchronously once the
// running byte total crosses MaxSizeBytes, and pruning old rotated
// siblings on a dedicated background thread.
type LogFile struct {
	path         string
	maxSizeBytes int64
	maxRotated   int
	strategy     Strategy

	mu      sync.Mutex
	file    *os.File
	written int64

	pruneCh chan string
	done    chan struct{}
}

// Open opens (creating if absent) the log file at path and starts its
// background pruning thread.
func Open(path string, maxSizeBytes int64, maxRotated int, strategy Strategy) (*LogFile, error) {
	if strategy == nil {
		strategy = TimestampSuffixStrategy{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ederrors.NewIoError("logfile: create log directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, ederrors.NewIoError("logfile: open", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ederrors.NewIoError("logfile: stat", err)
	}

	lf := &LogFile{
		path:         path,
		maxSizeBytes: maxSizeBytes,
		maxRotated:   maxRotated,
		strategy:     strategy,
		file:         f,
		written:      info.Size(),
		pruneCh:      make(chan string, 64),
		done:         make(chan struct{}),
	}
	go lf.pruneLoop()
	return lf, nil
}

// Write appends p, rotating first if doing so would cross the size
// threshold.
func (lf *LogFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.maxSizeBytes > 0 && lf.written+int64(len(p)) > lf.maxSizeBytes && lf.written > 0 {
		if err := lf.rotateLocked(); err != nil {
			edenlog.Error().Err(err).Str("path", lf.path).Msg("logfile: rotation failed, continuing to write to current file")
		}
	}

	n, err := lf.file.Write(p)
	lf.written += int64(n)
	if err != nil {
		return n, ederrors.NewIoError("logfile: write", err)
	}
	return n, nil
}

func (lf *LogFile) rotateLocked() error {
	if err := lf.file.Close(); err != nil {
		return ederrors.NewIoError("logfile: close before rotation", err)
	}

	rotated := lf.nextRotatedName()
	if err := os.Rename(lf.path, rotated); err != nil {
		// Rotation failed; reopen the original path so logging can
		// continue rather than losing all subsequent output.
		f, reopenErr := os.OpenFile(lf.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if reopenErr == nil {
			lf.file = f
		}
		return ederrors.NewIoError("logfile: rename during rotation", err)
	}

	f, err := os.OpenFile(lf.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return ederrors.NewIoError("logfile: open after rotation", err)
	}
	lf.file = f
	lf.written = 0

	select {
	case lf.pruneCh <- rotated:
	default:
		edenlog.Warn().Str("path", rotated).Msg("logfile: prune queue full, dropping prune request")
	}
	return nil
}

func (lf *LogFile) nextRotatedName() string {
	now := time.Now()
	for seq := 0; ; seq++ {
		candidate := lf.strategy.RotatedName(lf.path, now, seq)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// Sync flushes the current file to disk.
func (lf *LogFile) Sync() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Sync()
}

// Close stops the background pruning thread and closes the current file.
func (lf *LogFile) Close() error {
	close(lf.pruneCh)
	<-lf.done
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return lf.file.Close()
}

// pruneLoop is the single-writer background thread that performs
// directory scans and deletions so Write never blocks on them.
func (lf *LogFile) pruneLoop() {
	defer close(lf.done)
	for range lf.pruneCh {
		if err := lf.prune(); err != nil {
			edenlog.Warn().Err(err).Str("path", lf.path).Msg("logfile: prune failed")
		}
	}
}

var rotatedNameRe = regexp.MustCompile(`-(\d{8})\.(\d{6})(?:\.(\d+))?$`)

// prune scans path's directory for rotated siblings sharing its base
// name, keeps the maxRotated newest by (date, time, seq), and deletes
// the rest.
func (lf *LogFile) prune() error {
	if lf.maxRotated <= 0 {
		return nil
	}
	dir := filepath.Dir(lf.path)
	base := filepath.Base(lf.path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ederrors.NewIoError("logfile: read directory for pruning", err)
	}

	type rotatedFile struct {
		name string
		key  string
	}
	var rotated []rotatedFile
	for _, e := range entries {
		if e.IsDir() || !startsWith(e.Name(), base+"-") {
			continue
		}
		m := rotatedNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq := m[3]
		if seq == "" {
			seq = "0"
		}
		rotated = append(rotated, rotatedFile{name: e.Name(), key: m[1] + m[2] + seq})
	}

	sort.Slice(rotated, func(i, j int) bool { return rotated[i].key > rotated[j].key })

	for i := lf.maxRotated; i < len(rotated); i++ {
		full := filepath.Join(dir, rotated[i].name)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			edenlog.Warn().Err(err).Str("path", full).Msg("logfile: failed to remove old rotated file")
		}
	}
	return nil
}

func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
