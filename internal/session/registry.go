package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tutor-agent/backend/internal/memory"
	"github.com/tutor-agent/backend/pkg/logger"
)

const DefaultSessionID = "default"

// Archive supplies the records of a session stored by an earlier process.
type Archive interface {
	Load(ctx context.Context, sessionID string) ([]memory.Record, error)
}

// Registry owns one Memory per session. Sessions idle longer than the TTL
// are dropped; a zero TTL keeps them for the life of the process.
type Registry struct {
	cfg     memory.Config
	ttl     time.Duration
	archive Archive

	mu    sync.Mutex
	cache *cache.Cache

	// loads collapses concurrent creations of one session, so the archive
	// is read once per session and never under mu.
	loads singleflight.Group
}

func NewRegistry(cfg memory.Config, ttl time.Duration, archive Archive) (*Registry, error) {
	// Validate once so Memory never has to report a config error.
	if _, err := memory.New(cfg); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	expiration := cache.NoExpiration
	var cleanup time.Duration
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}

	c := cache.New(expiration, cleanup)
	c.OnEvicted(func(id string, _ interface{}) {
		logger.Debug("Session memory evicted", zap.String("session_id", id))
	})

	return &Registry{cfg: cfg, ttl: ttl, archive: archive, cache: c}, nil
}

// Memory returns the session's memory, creating it on first use. A new
// memory is rehydrated from the archive when one is configured; archive
// failures leave it empty or partially restored. Rehydrating one session
// does not block lookups of others.
func (r *Registry) Memory(ctx context.Context, sessionID string) *memory.Memory {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	if m, ok := r.lookup(sessionID); ok {
		return m
	}

	v, _, _ := r.loads.Do(sessionID, func() (interface{}, error) {
		if m, ok := r.lookup(sessionID); ok {
			return m, nil
		}

		m, _ := memory.New(r.cfg)
		r.rehydrate(ctx, sessionID, m)

		r.mu.Lock()
		defer r.mu.Unlock()
		r.cache.Set(sessionID, m, cache.DefaultExpiration)
		return m, nil
	})
	return v.(*memory.Memory)
}

func (r *Registry) lookup(sessionID string) (*memory.Memory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(sessionID)
	if !found {
		return nil, false
	}
	m := x.(*memory.Memory)
	if r.ttl > 0 {
		r.cache.Set(sessionID, m, cache.DefaultExpiration)
	}
	return m, true
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

func (r *Registry) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *Registry) rehydrate(ctx context.Context, sessionID string, m *memory.Memory) {
	if r.archive == nil {
		return
	}

	records, err := r.archive.Load(ctx, sessionID)
	if err != nil {
		logger.Warn("Failed to load archived session memory", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := m.Restore(records); err != nil {
		logger.Warn("Archived session memory partially restored",
			zap.String("session_id", sessionID),
			zap.Int("restored", m.Len()),
			zap.Error(err),
		)
		return
	}
	if len(records) > 0 {
		logger.Info("Session memory rehydrated", zap.String("session_id", sessionID), zap.Int("records", len(records)))
	}
}
