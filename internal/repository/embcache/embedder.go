// Package embcache decorates an embedder with a key-value cache so
// unchanged file content is never re-embedded.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/embedhq/codevec/internal/db"
	"github.com/embedhq/codevec/internal/domain"
)

const cacheKeyPrefix = "codevec:emb_cache:"

// kv is the slice of the key-value store the cache consumes.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves embeddings from a key-value store, falling back
// to the wrapped embedder on a miss. Push events routinely re-deliver
// files whose content did not change, so the content hash is the key.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      kv
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	ttl        time.Duration
}

// New creates the caching decorator. cacheTotal counts lookups by
// "result" label ("hit" / "miss"); nil disables counting.
func New(
	inner domain.Embedder,
	store kv,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      store,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// WithTTL sets an expiration on cached embeddings. Zero keeps them forever.
func (c *CachedEmbedder) WithTTL(ttl time.Duration) *CachedEmbedder {
	c.ttl = ttl
	return c
}

// Embed returns the cached vector when the content hash is known,
// otherwise asks the wrapped embedder and stores what it returns.
// A hit reports zero token usage since no provider call happened.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.count("hit")
		c.logger.Debug("Embedding cache hit", zap.String("key", key))
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed uncached content: %w", err)
	}

	c.save(ctx, key, result.Embedding)
	return result, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) count(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// lookup fetches and decodes a cached vector. Any failure, transport or
// decode, reads as a miss: the cache must never block embedding.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := cacheBytesToVector(data)
	if err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// save writes the vector without failing the caller: an unreachable
// cache only costs tokens on the next delivery of the same content.
func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	data := vectorToCacheBytes(vec)

	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, data, c.ttl)
	} else {
		err = c.store.Set(ctx, key, data)
	}
	if err != nil {
		c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// vectorToCacheBytes packs float32s little-endian, 4 bytes each:
// a 1536-dim vector stores as 6 KiB.
func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func cacheBytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cache entry is %d bytes, not a whole number of float32s", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
