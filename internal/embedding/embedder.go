package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/utils"
)

// Embedder turns an utterance into a fixed-dimension vector. Name identifies
// the vector space so cached vectors from different models never mix.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

// CachedEmbedder consults the cache before calling the wrapped embedder.
// Cache errors are logged and otherwise ignored.
type CachedEmbedder struct {
	inner Embedder
	cache Cache
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, cache Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl}
}

func (e *CachedEmbedder) Name() string {
	return e.inner.Name()
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(e.inner.Name(), text)

	cached, found, err := e.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
	} else if found {
		return cached, nil
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, key, vec, e.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
	return vec, nil
}

func CacheKey(model, text string) string {
	return model + ":" + utils.HashText(text)
}
