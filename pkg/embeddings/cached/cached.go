// Package cached decorates an Embedder with an LRU cache keyed by image
// content hash, so re-ingesting the same image skips the model round trip.
package cached

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/keyframeco/prism/pkg/embeddings"
)

const (
	// DefaultCapacity is the default number of cached embeddings.
	DefaultCapacity = 1000

	// DefaultTTL is the default lifetime of a cached embedding.
	DefaultTTL = time.Hour
)

// Config holds configuration for the caching decorator.
type Config struct {
	// Capacity is the maximum number of cached embeddings. Defaults to
	// DefaultCapacity if zero.
	Capacity int

	// TTL is how long a cached embedding stays valid. Zero means entries
	// never expire.
	TTL time.Duration
}

type cacheEntry struct {
	key      string
	vector   []float32
	storedAt time.Time
}

// Embedder wraps another Embedder with an LRU cache. Concurrent requests
// for the same image share a single upstream call.
type Embedder struct {
	inner    embeddings.Embedder
	capacity int
	ttl      time.Duration

	mu        sync.Mutex
	items     map[string]*list.Element
	evictList *list.List

	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewEmbedder wraps inner with a cache.
func NewEmbedder(inner embeddings.Embedder, cfg Config) *Embedder {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Embedder{
		inner:     inner,
		capacity:  capacity,
		ttl:       cfg.TTL,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Embed returns the cached embedding for the image when present, otherwise
// calls the inner embedder and caches the result.
func (e *Embedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	key := cacheKey(image)

	if vector, ok := e.get(key); ok {
		e.hits.Add(1)
		return vector, nil
	}
	e.misses.Add(1)

	result, err, _ := e.group.Do(key, func() (any, error) {
		vector, err := e.inner.Embed(ctx, image)
		if err != nil {
			return nil, err
		}
		e.set(key, vector)
		return vector, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]float32), nil
}

// Dimension reports the inner embedder's vector width.
func (e *Embedder) Dimension() int {
	return e.inner.Dimension()
}

// Close releases the inner embedder.
func (e *Embedder) Close() error {
	return e.inner.Close()
}

// Stats reports cache hits and misses.
func (e *Embedder) Stats() (hits, misses int64) {
	return e.hits.Load(), e.misses.Load()
}

// Len reports the number of cached embeddings.
func (e *Embedder) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evictList.Len()
}

func (e *Embedder) get(key string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	element, ok := e.items[key]
	if !ok {
		return nil, false
	}

	ent := element.Value.(*cacheEntry)
	if e.ttl > 0 && e.now().Sub(ent.storedAt) > e.ttl {
		e.removeElement(element)
		return nil, false
	}

	e.evictList.MoveToFront(element)
	return ent.vector, true
}

func (e *Embedder) set(key string, vector []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if element, ok := e.items[key]; ok {
		e.evictList.MoveToFront(element)
		ent := element.Value.(*cacheEntry)
		ent.vector = vector
		ent.storedAt = e.now()
		return
	}

	element := e.evictList.PushFront(&cacheEntry{
		key:      key,
		vector:   vector,
		storedAt: e.now(),
	})
	e.items[key] = element

	for e.evictList.Len() > e.capacity {
		oldest := e.evictList.Back()
		if oldest == nil {
			break
		}
		e.removeElement(oldest)
	}
}

func (e *Embedder) removeElement(element *list.Element) {
	e.evictList.Remove(element)
	ent := element.Value.(*cacheEntry)
	delete(e.items, ent.key)
}

func cacheKey(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

// Ensure Embedder implements embeddings.Embedder
var _ embeddings.Embedder = (*Embedder)(nil)
