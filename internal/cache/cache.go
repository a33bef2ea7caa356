// Package cache persists unclassified per-unit records between runs, keyed
// by unit path and content.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.etcd.io/bbolt"

	"github.com/mayflower/rpg-explainer/internal/model"
)

// SchemaVersion is the record format version. Bump it whenever the
// extracted record changes shape or meaning.
const SchemaVersion = 1

// DefaultMemEntries is the size of the in-memory tier.
const DefaultMemEntries = 256

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keySchema     = []byte("schema_version")
)

// ErrSchemaMismatch reports a cache written by a newer version of the tool.
var ErrSchemaMismatch = errors.New("cache schema is newer than this version")

// Store is a bbolt-backed record cache with an LRU of encoded records in
// front of it. It is safe for concurrent use.
type Store struct {
	db  *bbolt.DB
	mem *lru.Cache[string, []byte]
}

// Open opens or creates the cache at path. Records written under an older
// schema are discarded.
func Open(path string, memEntries int) (*Store, error) {
	if memEntries <= 0 {
		memEntries = DefaultMemEntries
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	if err := db.Update(migrate); err != nil {
		db.Close()
		return nil, err
	}
	mem, err := lru.New[string, []byte](memEntries)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, mem: mem}, nil
}

func migrate(tx *bbolt.Tx) error {
	meta, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}
	var version uint64
	if v := meta.Get(keySchema); len(v) == 8 {
		version = binary.BigEndian.Uint64(v)
	}
	switch {
	case version > SchemaVersion:
		return fmt.Errorf("%w (v%d > v%d)", ErrSchemaMismatch, version, SchemaVersion)
	case version < SchemaVersion:
		if tx.Bucket(bucketRecords) != nil {
			if err := tx.DeleteBucket(bucketRecords); err != nil {
				return err
			}
		}
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, SchemaVersion)
		if err := meta.Put(keySchema, v); err != nil {
			return err
		}
	}
	_, err = tx.CreateBucketIfNotExists(bucketRecords)
	return err
}

// Key identifies a unit by path and content.
func Key(path string, source []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the record stored for path and source. Each call returns a
// freshly decoded record.
func (s *Store) Get(path string, source []byte) (model.FileRecord, bool, error) {
	key := Key(path, source)
	data, ok := s.mem.Get(key)
	if !ok {
		err := s.db.View(func(tx *bbolt.Tx) error {
			if v := tx.Bucket(bucketRecords).Get([]byte(key)); v != nil {
				data = append([]byte(nil), v...)
			}
			return nil
		})
		if err != nil {
			return model.FileRecord{}, false, err
		}
		if data == nil {
			return model.FileRecord{}, false, nil
		}
		s.mem.Add(key, data)
	}

	var rec model.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.FileRecord{}, false, fmt.Errorf("decoding cached record for %s: %w", path, err)
	}
	return rec, true, nil
}

// Put stores rec for path and source.
func (s *Store) Put(path string, source []byte, rec model.FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := Key(path, source)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(key), data)
	})
	if err != nil {
		return err
	}
	s.mem.Add(key, data)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes every stored record.
func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRecords)
		return err
	})
	if err != nil {
		return err
	}
	s.mem.Purge()
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
