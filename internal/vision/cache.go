package vision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Cache remembers detections per image so re-uploads skip the model.
// Implementations are safe for concurrent use.
type Cache interface {
	Get(key string) ([]Detection, bool)
	Set(key string, dets []Detection)
	Close() error
}

// CacheKey derives a cache key from the detector identity and the raw
// image bytes.
func CacheKey(detector string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(detector))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OpenCache returns a bbolt-backed cache at path, or a bounded in-memory
// cache when path is empty.
func OpenCache(path string, maxEntries int) (Cache, error) {
	if path == "" {
		return newMemoryCache(maxEntries), nil
	}
	return newBoltCache(path)
}

type memoryCache struct {
	mu         sync.RWMutex
	store      map[string][]Detection
	maxEntries int
}

func newMemoryCache(maxEntries int) *memoryCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &memoryCache{store: make(map[string][]Detection), maxEntries: maxEntries}
}

func (c *memoryCache) Get(key string) ([]Detection, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key string, dets []Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.store[key]; !ok && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = dets
}

func (c *memoryCache) Close() error { return nil }

const boltBucket = "detections"

type boltCache struct {
	db *bolt.DB
}

func newBoltCache(path string) (*boltCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open detection cache %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("create detection bucket: %w", err)
	}
	log.Info().Str("path", path).Msg("detection cache opened")
	return &boltCache{db: db}, nil
}

func (c *boltCache) Get(key string) ([]Detection, bool) {
	var dets []Detection
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &dets)
	})
	if err != nil {
		log.Warn().Err(err).Msg("detection cache read failed")
		return nil, false
	}
	return dets, found
}

func (c *boltCache) Set(key string, dets []Detection) {
	data, err := json.Marshal(dets)
	if err != nil {
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), data)
	}); err != nil {
		log.Warn().Err(err).Msg("detection cache write failed")
	}
}

func (c *boltCache) Close() error { return c.db.Close() }
