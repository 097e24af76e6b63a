// Package extkey implements the extended-key overflow cache: an in-memory
// cache mapping the blob ID of an over-size in-node key to its resolved key
// bytes, so repeated traversal comparisons against a long key do not refetch
// its blob chain every time.
package extkey

import (
	"sync"

	"bptreekv/pkg/blob"

	"github.com/cespare/xxhash"
)

// BlobID identifies a blob-store chain holding an extended key's bytes.
type BlobID = blob.BlobID

func hashOf(id BlobID) uint64 {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

type entry struct {
	id  BlobID
	key []byte
}

// Cache is an xxhash-bucketed cache of extended-key lookups. It has no size
// limit; an entry leaves the cache only through Remove.
type Cache struct {
	mu      sync.Mutex
	buckets map[uint64][]entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{buckets: make(map[uint64][]entry)}
}

// Get returns the cached key bytes for id, if present.
func (c *Cache) Get(id BlobID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.buckets[hashOf(id)]
	for _, e := range bucket {
		if e.id == id {
			return e.key, true
		}
	}
	return nil, false
}

// Put caches key as the resolved bytes for id.
func (c *Cache) Put(id BlobID, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := hashOf(id)
	bucket := c.buckets[h]
	for i, e := range bucket {
		if e.id == id {
			bucket[i].key = key
			return
		}
	}
	c.buckets[h] = append(bucket, entry{id: id, key: key})
}

// Remove invalidates any cached entry for id. pkg/btree calls it when
// erasing a leaf slot frees that slot's extended-key blob. Record blobs are
// never put in the cache, and freeing or overwriting a record blob does not
// call Remove.
func (c *Cache) Remove(id BlobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := hashOf(id)
	bucket := c.buckets[h]
	for i, e := range bucket {
		if e.id == id {
			c.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}
