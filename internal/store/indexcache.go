// indexcache.go adapts the anonymizer's persistent value cache into a
// persistent index cache: normalized exchange key → (tape path, exchange
// index), so a large tape directory does not need a full re-parse on every
// process start. It is purely an accelerator: Store always keeps an
// in-memory index built from the loaded tapes, and falls back to rebuilding
// it from scratch when the cache is empty, stale, or absent.
package store

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// exchangeRef locates one exchange within a loaded tape.
type exchangeRef struct {
	TapePath string
	Index    int
}

func (r exchangeRef) encode() string {
	return r.TapePath + "\x1f" + strconv.Itoa(r.Index)
}

func decodeRef(s string) (exchangeRef, bool) {
	parts := strings.SplitN(s, "\x1f", 2)
	if len(parts) != 2 {
		return exchangeRef{}, false
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return exchangeRef{}, false
	}
	return exchangeRef{TapePath: parts[0], Index: idx}, true
}

// indexCache is the persistence interface for the normalized-key index.
// Implementations must be safe for concurrent use.
type indexCache interface {
	Get(key string) (exchangeRef, bool)
	Set(key string, ref exchangeRef)
	Close() error
}

// memoryIndexCache is an in-memory indexCache, used when no on-disk path is
// configured.
type memoryIndexCache struct {
	mu    sync.RWMutex
	store map[string]string
}

func newMemoryIndexCache() indexCache {
	return &memoryIndexCache{store: make(map[string]string)}
}

func (c *memoryIndexCache) Get(key string) (exchangeRef, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return exchangeRef{}, false
	}
	return decodeRef(v)
}

func (c *memoryIndexCache) Set(key string, ref exchangeRef) {
	c.mu.Lock()
	c.store[key] = ref.encode()
	c.mu.Unlock()
}

func (c *memoryIndexCache) Close() error { return nil }

const indexBucket = "tape_index"

// bboltIndexCache is an indexCache backed by an embedded bbolt database,
// surviving process restarts.
type bboltIndexCache struct {
	db *bolt.DB
}

func newBboltIndexCache(path string) (indexCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt index cache %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(indexBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt index bucket: %w", err)
	}
	return &bboltIndexCache{db: db}, nil
}

func (c *bboltIndexCache) Get(key string) (exchangeRef, bool) {
	var encoded string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(indexBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			encoded = string(v)
		}
		return nil
	})
	if err != nil || encoded == "" {
		return exchangeRef{}, false
	}
	return decodeRef(encoded)
}

func (c *bboltIndexCache) Set(key string, ref exchangeRef) {
	_ = c.db.Update(func(tx *bolt.Tx) error { //nolint:errcheck // best-effort; in-memory index is authoritative
		b := tx.Bucket([]byte(indexBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", indexBucket)
		}
		return b.Put([]byte(key), []byte(ref.encode()))
	})
}

func (c *bboltIndexCache) Close() error {
	return c.db.Close()
}
