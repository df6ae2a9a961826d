package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

const defaultCacheTTL = 30 * time.Second

type snapshotStore interface {
	Load(ctx context.Context, key string, dest interface{}) error
	Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Purge(ctx context.Context, pattern string) (int, error)
}

// CacheService fronts the snapshot store with hit accounting. A disabled or
// nil service reports a miss on every read and ignores writes.
type CacheService struct {
	store   snapshotStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(store snapshotStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled reports whether reads can hit.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// Get decodes key into dest. Backend failures are logged, counted as a miss and returned.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.store.Load(ctx, key, dest)
	hit := err == nil
	s.metrics.RecordCacheOperation(hit, time.Since(start))
	switch {
	case hit:
		return true, nil
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, nil
	default:
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
}

// Set writes value under key; a non-positive ttl uses the service default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	err := s.store.Store(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return err
}

// Invalidate purges every key matching pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	removed, err := s.store.Purge(ctx, pattern)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Debug("cache purged", zap.String("pattern", pattern), zap.Int("keys", removed))
	}
	return nil
}
