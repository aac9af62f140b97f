// Package localstore implements the on-disk key/value store that sits
// beneath the in-memory caches and above the remote BackingStore: a
// byte-oriented store keyed by (column, ObjectId), with columns at least
// {blob, blob_metadata, tree, hg_proxy_hash} (spec.md §6).
package localstore

import (
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/edenfs-go/edencore/internal/ederrors"
	"github.com/edenfs-go/edencore/internal/objstore"
)

// Column names the bbolt bucket a key lives in.
type Column string

const (
	ColumnBlob         Column = "blob"
	ColumnBlobMetadata Column = "blob_metadata"
	ColumnTree         Column = "tree"
	ColumnHgProxyHash  Column = "hg_proxy_hash"
)

// columns lists every bucket LocalStore guarantees exists, created on Open.
var columns = []Column{ColumnBlob, ColumnBlobMetadata, ColumnTree, ColumnHgProxyHash}

// Store is the opaque byte-oriented KV store spec.md §6 describes. The core
// never interprets values; it stores and retrieves exactly what callers
// give it.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the bbolt database at path, ensuring every column's
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, ederrors.NewIoError("localstore: open "+path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range columns {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, ederrors.NewIoError("localstore: initialize buckets", err)
	}
	return &Store{db: db, path: path}, nil
}

// Get returns the stored bytes for (column, id), or a NotFound error.
func (s *Store) Get(column Column, id objstore.ObjectId) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(column))
		if b == nil {
			return ederrors.NewNotFound("localstore: unknown column "+string(column), nil)
		}
		v := b.Get(id.Bytes())
		if v == nil {
			return ederrors.NewNotFound("localstore: miss", nil)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes value under (column, id), overwriting any prior value.
func (s *Store) Put(column Column, id objstore.ObjectId, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(column))
		if b == nil {
			return ederrors.NewNotFound("localstore: unknown column "+string(column), nil)
		}
		return b.Put(id.Bytes(), value)
	})
	if err != nil {
		return ederrors.NewIoError("localstore: put", err)
	}
	return nil
}

// Delete removes (column, id), if present. Idempotent.
func (s *Store) Delete(column Column, id objstore.ObjectId) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(column))
		if b == nil {
			return nil
		}
		return b.Delete(id.Bytes())
	})
	if err != nil {
		return ederrors.NewIoError("localstore: delete", err)
	}
	return nil
}

// Clear empties every key in column.
func (s *Store) Clear(column Column) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(column)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket([]byte(column))
		return err
	})
	if err != nil {
		return ederrors.NewIoError("localstore: clear "+string(column), err)
	}
	return nil
}

// Compact rewrites the database file to reclaim space left by deleted
// entries, by copying every bucket into a fresh file and swapping it in.
// bbolt never shrinks its file on its own (free pages are reused but not
// released back to the OS), so this is the only way to recover disk space
// after heavy churn.
func (s *Store) Compact() error {
	tmpPath := s.path + ".compact.tmp"
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return ederrors.NewIoError("localstore: open compaction target", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(append([]byte(nil), k...), append([]byte(nil), v...))
				})
			})
		})
	})
	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return ederrors.NewIoError("localstore: compact copy", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return ederrors.NewIoError("localstore: close compaction target", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return ederrors.NewIoError("localstore: close before swap", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return ederrors.NewIoError("localstore: swap compacted file into place", err)
	}

	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return ederrors.NewIoError("localstore: reopen after compaction", err)
	}
	s.db = db
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return ederrors.NewIoError("localstore: close", err)
	}
	return nil
}
