// Package store is a local content-addressable blob store on BoltDB. It
// keeps raw blobs, an index of attribute claims per permanode and a set of
// deleted refs, and serves live search subscriptions over them.
package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Bucket names
var (
	bucketBlobs   = []byte("blobs")
	bucketClaims  = []byte("claims")
	bucketDeleted = []byte("deleted")
)

var allBuckets = [][]byte{bucketBlobs, bucketClaims, bucketDeleted}

// DBFile is the database file name inside the store directory.
const DBFile = "blobnav.db"

// BlobStore implements domain.Store using BoltDB.
type BlobStore struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time

	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access). In
	// memory-only mode it is the whole store.
	cache map[string][]byte

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// Open opens or creates the store in dir. An empty dir gives a memory-only
// store that is lost on Close.
func Open(dir string, logger *slog.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BlobStore{
		logger: logger,
		now:    time.Now,
		cache:  make(map[string][]byte),
		subs:   make(map[*subscription]struct{}),
	}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	logger.Debug("opened blob store", "path", dbPath)
	return s, nil
}

// Close ends every subscription and closes the database.
func (s *BlobStore) Close() error {
	s.subsMu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[*subscription]struct{})
	s.subsMu.Unlock()

	for sub := range subs {
		sub.shutdown()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func cacheKey(bucket []byte, key string) string {
	return string(bucket) + ":" + key
}

func (s *BlobStore) get(bucket []byte, key string) ([]byte, bool) {
	ck := cacheKey(bucket, key)

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[ck]; ok {
		s.mu.RUnlock()
		return data, true
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = bytes.Clone(v)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[ck] = data
	s.mu.Unlock()
	return data, true
}

func (s *BlobStore) put(bucket []byte, key string, data []byte) error {
	s.mu.Lock()
	s.cache[cacheKey(bucket, key)] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BlobStore) has(bucket []byte, key string) bool {
	_, ok := s.get(bucket, key)
	return ok
}

type entry struct {
	key   string
	value []byte
}

// scan returns the entries of bucket whose key starts with prefix, in key order.
func (s *BlobStore) scan(bucket []byte, prefix string) []entry {
	var out []entry
	if s.db == nil {
		cp := cacheKey(bucket, prefix)
		s.mu.RLock()
		for k, v := range s.cache {
			if strings.HasPrefix(k, cp) {
				out = append(out, entry{key: strings.TrimPrefix(k, string(bucket)+":"), value: v})
			}
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
		return out
	}

	s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			out = append(out, entry{key: string(k), value: bytes.Clone(v)})
		}
		return nil
	})
	return out
}

// refs returns every stored, undeleted blob ref in key order.
func (s *BlobStore) refs() []domain.Ref {
	var out []domain.Ref
	for _, e := range s.scan(bucketBlobs, "") {
		ref := domain.Ref(e.key)
		if !s.has(bucketDeleted, e.key) {
			out = append(out, ref)
		}
	}
	return out
}
