// Package objectstore implements the multi-tier fetch orchestrator used by
// every inode operation (spec.md §4.6): it sits in front of a BackingStore,
// short-circuits on a tree cache and a blob-metadata cache, and attributes
// every fetch to an origin for telemetry and request deprioritization.
package objectstore

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/edenfs-go/edencore/internal/backingstore"
	"github.com/edenfs-go/edencore/internal/cachelru"
	"github.com/edenfs-go/edencore/internal/edenlog"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// FetchKind identifies what kind of object a did_fetch callback reports.
type FetchKind int

const (
	FetchTree FetchKind = iota
	FetchBlob
	FetchBlobMetadata
)

func (k FetchKind) String() string {
	switch k {
	case FetchTree:
		return "tree"
	case FetchBlob:
		return "blob"
	case FetchBlobMetadata:
		return "blob_metadata"
	default:
		return "unknown"
	}
}

// Config bounds the heavy-fetch detection described in spec.md §4.6: once a
// process's accumulated fetch count crosses HeavyThreshold, and every
// HeavyThreshold fetches after that, a FetchHeavy event is logged and the
// process's priority is lowered.
type Config struct {
	HeavyThreshold int
	// Blake3Key, when non-nil, is used for keyed BLAKE3 hashing of blob
	// content instead of the unkeyed digest.
	Blake3Key *[32]byte
}

func defaultConfig() Config {
	return Config{HeavyThreshold: 1000}
}

// Context carries the per-request process attribution used for fetch-heavy
// detection. A zero Context has no attached process and never triggers
// attribution.
type Context struct {
	ProcessID int64
	HasPID    bool
}

// WithProcess returns a Context attributing fetches to pid.
func WithProcess(pid int64) Context {
	return Context{ProcessID: pid, HasPID: true}
}

// ProcessInfo tracks per-process fetch counts and the deprioritization
// state derived from them.
type ProcessInfo struct {
	FetchCount  int64
	Deprioritized bool
}

// ProcessInfoCache holds one ProcessInfo per process id seen by did_fetch.
// The mutex guards the map; ProcessStore is intentionally unbounded since
// processes are naturally reaped when they exit and the daemon restarts
// periodically (spec.md names no eviction policy for it).
type ProcessInfoCache struct {
	mu    sync.Mutex
	procs map[int64]*ProcessInfo
}

func NewProcessInfoCache() *ProcessInfoCache {
	return &ProcessInfoCache{procs: make(map[int64]*ProcessInfo)}
}

// RecordFetch increments pid's fetch count and returns the updated count
// along with whether this call crossed a multiple of threshold.
func (p *ProcessInfoCache) RecordFetch(pid int64, threshold int) (count int64, crossedHeavy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.procs[pid]
	if !ok {
		info = &ProcessInfo{}
		p.procs[pid] = info
	}
	info.FetchCount++
	if threshold > 0 && info.FetchCount%int64(threshold) == 0 {
		info.Deprioritized = true
		crossedHeavy = true
	}
	return info.FetchCount, crossedHeavy
}

// IsDeprioritized reports whether pid has previously crossed the heavy
// threshold and should be served at lower priority.
func (p *ProcessInfoCache) IsDeprioritized(pid int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.procs[pid]
	return ok && info.Deprioritized
}

// Store is the ObjectStore described in spec.md §4.6.
type Store struct {
	backing     backingstore.BackingStore
	trees       *cachelru.TreeCache
	blobMetaMu  sync.Mutex
	blobMeta    *cachelru.BlobMetadataCache
	processes   *ProcessInfoCache
	sensitivity objstore.CaseSensitivity
	cfg         Config

	group singleflight.Group
}

// New builds a Store. treeCache and blobMetaCache are owned by the caller
// (typically the mount, which sizes them from configuration) but the Store
// is the only thing that reads or writes them once constructed.
func New(backing backingstore.BackingStore, treeCache *cachelru.TreeCache, blobMetaCache *cachelru.BlobMetadataCache, sensitivity objstore.CaseSensitivity, cfg Config) *Store {
	if cfg.HeavyThreshold == 0 {
		cfg = defaultConfig()
	}
	return &Store{
		backing:     backing,
		trees:       treeCache,
		blobMeta:    blobMetaCache,
		processes:   NewProcessInfoCache(),
		sensitivity: sensitivity,
		cfg:         cfg,
	}
}

func (s *Store) recordFetch(kind FetchKind, id objstore.ObjectId, origin backingstore.Origin, ctx Context) {
	if !ctx.HasPID {
		return
	}
	count, heavy := s.processes.RecordFetch(ctx.ProcessID, s.cfg.HeavyThreshold)
	if heavy {
		edenlog.Warn().
			Str("event", "FetchHeavy").
			Int64("pid", ctx.ProcessID).
			Int64("fetch_count", count).
			Str("kind", kind.String()).
			Str("object_id", hex.EncodeToString(id.Bytes())).
			Str("origin", origin.String()).
			Msg("process crossed fetch-heavy threshold, deprioritizing")
	}
}

// GetRootTree delegates to the backing store, inserts the returned tree
// into the tree cache keyed by its id, and applies the mount's case
// sensitivity before returning it.
func (s *Store) GetRootTree(goCtx context.Context, root objstore.RootId, ctx Context) (backingstore.RootTreeResult, error) {
	result, err := s.backing.GetRootTree(goCtx, root)
	if err != nil {
		return backingstore.RootTreeResult{}, err
	}
	tree := result.Tree.WithCaseSensitivity(s.sensitivity)
	s.trees.Insert(result.TreeID, tree)
	s.recordFetch(FetchTree, result.TreeID, backingstore.FromNetworkFetch, ctx)
	return backingstore.RootTreeResult{TreeID: result.TreeID, Tree: tree}, nil
}

// GetTree looks the tree up in the memory cache first (origin
// FromMemoryCache); on miss it delegates to the backing store (which has
// its own disk-cache tier), inserts the result into the memory cache, and
// applies the mount's case sensitivity.
func (s *Store) GetTree(goCtx context.Context, id objstore.ObjectId, ctx Context) (backingstore.GetTreeResult, error) {
	if tree, ok := s.trees.Get(id); ok {
		s.recordFetch(FetchTree, id, backingstore.FromMemoryCache, ctx)
		return backingstore.GetTreeResult{Tree: tree, Origin: backingstore.FromMemoryCache}, nil
	}

	v, err, _ := s.group.Do("tree:"+hex.EncodeToString(id.Bytes()), func() (interface{}, error) {
		result, err := s.backing.GetTree(goCtx, id)
		if err != nil {
			return nil, err
		}
		tree := result.Tree.WithCaseSensitivity(s.sensitivity)
		s.trees.Insert(id, tree)
		return backingstore.GetTreeResult{Tree: tree, Origin: result.Origin}, nil
	})
	if err != nil {
		return backingstore.GetTreeResult{}, err
	}
	result := v.(backingstore.GetTreeResult)
	s.recordFetch(FetchTree, id, result.Origin, ctx)
	return result, nil
}

// GetBlob delegates unconditionally: there is no in-process blob cache at
// this layer, since blob content is cached by the LocalStore tier or a
// BlobCache owned elsewhere (spec.md §4.6).
func (s *Store) GetBlob(goCtx context.Context, id objstore.ObjectId, ctx Context) (backingstore.GetBlobResult, error) {
	result, err := s.backing.GetBlob(goCtx, id)
	if err != nil {
		return backingstore.GetBlobResult{}, err
	}
	s.recordFetch(FetchBlob, id, result.Origin, ctx)
	return result, nil
}

// GetBlobMetadata consults the memory cache first. If the cached entry
// lacks a BLAKE3 digest and the caller needs one, the blob is fetched,
// BLAKE3 is computed, and the cache entry is updated in place. On a full
// miss it delegates, inserts the result, and computes BLAKE3 the same way
// if requested.
func (s *Store) GetBlobMetadata(goCtx context.Context, id objstore.ObjectId, blake3Needed bool, ctx Context) (backingstore.GetBlobMetaResult, error) {
	s.blobMetaMu.Lock()
	cached, ok := s.blobMeta.Get(id)
	s.blobMetaMu.Unlock()

	if ok {
		if !blake3Needed || cached.HasBlake3 {
			s.recordFetch(FetchBlobMetadata, id, backingstore.FromMemoryCache, ctx)
			return backingstore.GetBlobMetaResult{Meta: cached, Origin: backingstore.FromMemoryCache}, nil
		}
		meta, err := s.fillBlake3(goCtx, id, cached)
		if err != nil {
			return backingstore.GetBlobMetaResult{}, err
		}
		s.recordFetch(FetchBlobMetadata, id, backingstore.FromMemoryCache, ctx)
		return backingstore.GetBlobMetaResult{Meta: meta, Origin: backingstore.FromMemoryCache}, nil
	}

	v, err, _ := s.group.Do("meta:"+hex.EncodeToString(id.Bytes()), func() (interface{}, error) {
		result, err := s.backing.GetBlobMetadata(goCtx, id)
		if err != nil {
			return nil, err
		}
		meta := result.Meta
		if blake3Needed && !meta.HasBlake3 {
			meta, err = s.fillBlake3(goCtx, id, meta)
			if err != nil {
				return nil, err
			}
		} else {
			s.blobMetaMu.Lock()
			s.blobMeta.Insert(id, meta)
			s.blobMetaMu.Unlock()
		}
		return backingstore.GetBlobMetaResult{Meta: meta, Origin: result.Origin}, nil
	})
	if err != nil {
		return backingstore.GetBlobMetaResult{}, err
	}
	result := v.(backingstore.GetBlobMetaResult)
	s.recordFetch(FetchBlobMetadata, id, result.Origin, ctx)
	return result, nil
}

func (s *Store) fillBlake3(goCtx context.Context, id objstore.ObjectId, meta objstore.BlobMetadata) (objstore.BlobMetadata, error) {
	blobResult, err := s.backing.GetBlob(goCtx, id)
	if err != nil {
		return objstore.BlobMetadata{}, err
	}
	meta.Blake3 = s.ComputeBlake3(blobResult.Blob)
	meta.HasBlake3 = true

	s.blobMetaMu.Lock()
	s.blobMeta.Insert(id, meta)
	s.blobMetaMu.Unlock()
	return meta, nil
}

// ComputeBlake3 hashes a blob's content, using the process-configured key
// if one is set.
func (s *Store) ComputeBlake3(b *objstore.Blob) objstore.Hash32 {
	if s.cfg.Blake3Key != nil {
		return objstore.KeyedBlake3(*s.cfg.Blake3Key, b.CoalescedBytes())
	}
	return objstore.Blake3(b.CoalescedBytes())
}

// GetBlobSHA1 derives a blob's SHA-1 from its metadata.
func (s *Store) GetBlobSHA1(goCtx context.Context, id objstore.ObjectId, ctx Context) (objstore.Hash20, error) {
	result, err := s.GetBlobMetadata(goCtx, id, false, ctx)
	if err != nil {
		return objstore.Hash20{}, err
	}
	return result.Meta.SHA1, nil
}

// GetBlobSize derives a blob's size from its metadata.
func (s *Store) GetBlobSize(goCtx context.Context, id objstore.ObjectId, ctx Context) (uint64, error) {
	result, err := s.GetBlobMetadata(goCtx, id, false, ctx)
	if err != nil {
		return 0, err
	}
	return result.Meta.Size, nil
}

// GetBlobBlake3 derives a blob's BLAKE3 digest from its metadata, computing
// it on demand if not already known.
func (s *Store) GetBlobBlake3(goCtx context.Context, id objstore.ObjectId, ctx Context) (objstore.Hash32, error) {
	result, err := s.GetBlobMetadata(goCtx, id, true, ctx)
	if err != nil {
		return objstore.Hash32{}, err
	}
	return result.Meta.Blake3, nil
}

// AreBlobsEqual returns true immediately when the backing store reports
// the two ids as Identical; otherwise it falls back to comparing SHA-1s.
func (s *Store) AreBlobsEqual(goCtx context.Context, a, b objstore.ObjectId, ctx Context) (bool, error) {
	if s.backing.CompareObjectsByID(a, b) == objstore.CompareIdentical {
		return true, nil
	}
	shaA, err := s.GetBlobSHA1(goCtx, a, ctx)
	if err != nil {
		return false, err
	}
	shaB, err := s.GetBlobSHA1(goCtx, b, ctx)
	if err != nil {
		return false, err
	}
	return shaA == shaB, nil
}
