// Package core provides the business logic ports and shared services for the
// POI audit pipeline.
package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is the primitive behind the notification spam gate.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// ScheduleCacheConfig holds configuration for schedule config caching.
type ScheduleCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultScheduleCacheConfig returns a ScheduleCacheConfig with sensible defaults.
func DefaultScheduleCacheConfig() ScheduleCacheConfig {
	return ScheduleCacheConfig{
		TTL: time.Minute,
	}
}

// ScheduleCacheService caches the active schedule set in front of the store.
// The cache is advisory and TTL-bounded: the scheduler tolerates staleness up
// to the TTL without correctness impact, since due-ness is re-checked against
// the store before any enqueue.
type ScheduleCacheService struct {
	schedules ScheduleRepository
	local     *LocalLRU
	ttl       time.Duration
	logger    *slog.Logger
}

// ScheduleCacheServiceOptions bundles dependencies for NewScheduleCacheService.
type ScheduleCacheServiceOptions struct {
	Schedules ScheduleRepository
	Local     *LocalLRU
	Config    ScheduleCacheConfig
	Logger    *slog.Logger
}

// NewScheduleCacheService creates a new ScheduleCacheService.
func NewScheduleCacheService(opts ScheduleCacheServiceOptions) *ScheduleCacheService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultScheduleCacheConfig().TTL
	}
	local := opts.Local
	if local == nil {
		local = NewLocalLRU(DefaultLocalLRUConfig())
	}
	return &ScheduleCacheService{
		schedules: opts.Schedules,
		local:     local,
		ttl:       ttl,
		logger:    logger.With("component", "schedule_cache"),
	}
}

const activeSchedulesKey = "schedules:active"

// ActiveSchedules returns the active schedule set, served from cache within
// the TTL. A store failure with a warm cache serves the stale copy.
func (s *ScheduleCacheService) ActiveSchedules(ctx context.Context) ([]*model.ScheduleConfig, error) {
	if raw, ok := s.local.Get(activeSchedulesKey); ok {
		var cached []*model.ScheduleConfig
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		s.local.Delete(activeSchedulesKey)
	}

	schedules, err := s.schedules.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(schedules); marshalErr == nil {
		s.local.Set(activeSchedulesKey, raw, s.ttl)
	} else {
		s.logger.WarnContext(ctx, "failed to cache active schedules", "error", marshalErr)
	}
	return schedules, nil
}

// Invalidate drops the cached schedule set, forcing the next read through.
func (s *ScheduleCacheService) Invalidate() {
	s.local.Delete(activeSchedulesKey)
}
