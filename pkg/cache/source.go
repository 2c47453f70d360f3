package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/keypage/pkg/paging"
)

// Status reports how a load was served.
type Status string

const (
	// StatusHit means the page came from the cache.
	StatusHit Status = "HIT"

	// StatusMiss means the page was loaded and stored.
	StatusMiss Status = "MISS"

	// StatusBypass means the cache was skipped (invalid params or cache failure).
	StatusBypass Status = "BYPASS"
)

// SourceConfig configures a caching Source.
type SourceConfig[K any] struct {
	// Name scopes cache keys and generations (required).
	Name string

	// EncodeKey renders an anchor key for the cache key (required).
	EncodeKey func(K) string

	// TTL of stored pages. Defaults to DefaultTTL.
	TTL time.Duration

	// Logger defaults to the global logger with component "cache".
	Logger *zerolog.Logger
}

// Source decorates a paging.Source with the Redis page cache.
// Only pages are stored; failures always reach the caller uncached.
// Cache failures degrade to a direct load.
type Source[K, V any] struct {
	inner     paging.Source[K, V]
	manager   *Manager
	name      string
	encodeKey func(K) string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewSource wraps inner.
func NewSource[K, V any](inner paging.Source[K, V], manager *Manager, cfg SourceConfig[K]) *Source[K, V] {
	if inner == nil || manager == nil {
		panic("inner source and manager cannot be nil")
	}
	if cfg.Name == "" || cfg.EncodeKey == nil {
		panic("Name and EncodeKey are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	logger := log.With().Str("component", "cache").Str("source", cfg.Name).Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Source[K, V]{
		inner:     inner,
		manager:   manager,
		name:      cfg.Name,
		encodeKey: cfg.EncodeKey,
		ttl:       cfg.TTL,
		logger:    logger,
	}
}

// Load implements paging.Source.
func (s *Source[K, V]) Load(ctx context.Context, params paging.LoadParams[K]) paging.LoadResult[K, V] {
	res, _ := s.LoadWithStatus(ctx, params)
	return res
}

// LoadWithStatus loads like Load and reports how the result was served.
func (s *Source[K, V]) LoadWithStatus(ctx context.Context, params paging.LoadParams[K]) (paging.LoadResult[K, V], Status) {
	if err := params.Validate(); err != nil {
		// Let the inner source report the violation.
		return s.inner.Load(ctx, params), StatusBypass
	}

	gen, err := s.manager.Generation(ctx, s.name)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache generation unavailable, loading directly")
		return s.inner.Load(ctx, params), StatusBypass
	}
	key := s.cacheKey(gen, params)

	entry, err := s.manager.Get(ctx, key)
	switch {
	case err == nil:
		var page paging.Page[K, V]
		decodeErr := json.Unmarshal(entry.Data, &page)
		if decodeErr == nil {
			s.logger.Debug().
				Str("cache_key", key.String()).
				Dur("age", entry.Age()).
				Msg("Cache hit")
			return &page, StatusHit
		}
		CacheErrors.WithLabelValues("decode").Inc()
		s.logger.Warn().Err(decodeErr).Str("cache_key", key.String()).Msg("Discarding undecodable page")
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache read failed")
	}

	res := s.inner.Load(ctx, params)
	page, ok := res.(*paging.Page[K, V])
	if !ok {
		return res, StatusMiss
	}

	data, err := json.Marshal(page)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode page for cache")
		return res, StatusMiss
	}
	if err := s.manager.Set(ctx, key, NewEntry(data, len(page.Data), s.ttl)); err != nil {
		s.logger.Warn().Err(err).Str("cache_key", key.String()).Msg("Cache write failed")
	}
	return res, StatusMiss
}

// RefreshKey implements paging.Source.
func (s *Source[K, V]) RefreshKey(indexInPage int, page *paging.Page[K, V]) (K, bool) {
	return s.inner.RefreshKey(indexInPage, page)
}

// Invalidate makes every page cached so far unreachable. Call it after the
// underlying dataset changes.
func (s *Source[K, V]) Invalidate(ctx context.Context) error {
	gen, err := s.manager.BumpGeneration(ctx, s.name)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("generation", gen).Msg("Cache invalidated")
	return nil
}

func (s *Source[K, V]) cacheKey(gen int64, params paging.LoadParams[K]) CacheKey {
	key := CacheKey{
		Source:       s.name,
		Generation:   gen,
		LoadType:     params.Type,
		LoadSize:     params.LoadSize,
		Placeholders: params.PlaceholdersEnabled,
	}
	if params.Key != nil {
		key.Key = s.encodeKey(*params.Key)
		key.HasKey = true
	}
	return key
}

// Ensure Source implements paging.Source.
var _ paging.Source[string, string] = (*Source[string, string])(nil)
