package store

import (
	"context"
	"time"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/logger"
	"github.com/alqatri/tbilltracker/pkg/redis"
)

// CachedStore wraps a backend with a read-through Redis cache. The cache is
// advisory only: every cache failure degrades to a backend read, so absence
// of the cache can change latency but never correctness.
type CachedStore struct {
	backend Store
	cache   *redis.Cache
	ttl     time.Duration
	log     *logger.Logger
}

// NewCachedStore wraps a backend. TTL bounds staleness of cached reads.
func NewCachedStore(backend Store, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachedStore {
	return &CachedStore{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
		log:     log.Component("store.cached"),
	}
}

// UpsertMany writes through to the backend, then invalidates the affected
// cache entries. Entries are deleted, never updated in place.
func (s *CachedStore) UpsertMany(ctx context.Context, records []treasury.AuctionRecord) error {
	if err := s.backend.UpsertMany(ctx, records); err != nil {
		return err
	}

	tenors := map[treasury.Tenor]struct{}{}
	for i := range records {
		tenors[records[i].Tenor] = struct{}{}
	}
	keys := make([]string, 0, len(tenors))
	for tenor := range tenors {
		keys = append(keys, redis.LatestYieldsKey(tenor.Days()))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("Cache invalidation failed")
	}
	if _, err := s.cache.Incr(ctx, redis.HistoryGenKey); err != nil {
		s.log.WithError(err).Warn("History generation bump failed")
	}
	return nil
}

// Latest checks the cache first and falls through to the backend on miss.
func (s *CachedStore) Latest(ctx context.Context, tenor treasury.Tenor) (*treasury.AuctionRecord, error) {
	key := redis.LatestYieldsKey(tenor.Days())

	var cached treasury.AuctionRecord
	if found, err := s.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	rec, err := s.backend.Latest(ctx, tenor)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
		s.log.WithError(err).Warn("Cache population failed")
	}
	return rec, nil
}

// Range caches by query signature under the current history generation.
func (s *CachedStore) Range(ctx context.Context, tenor treasury.Tenor, from, to time.Time) ([]treasury.AuctionRecord, error) {
	gen := s.cache.Counter(ctx, redis.HistoryGenKey)
	key := redis.HistoryKey(gen, tenor.Days(), from.Format("2006-01-02"), to.Format("2006-01-02"))

	var cached []treasury.AuctionRecord
	if found, err := s.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	records, err := s.backend.Range(ctx, tenor, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, records, s.ttl); err != nil {
		s.log.WithError(err).Warn("Cache population failed")
	}
	return records, nil
}

// Exists always hits the backend; existence checks gate writes and must not
// be stale.
func (s *CachedStore) Exists(ctx context.Context, key treasury.RecordKey) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// LatestSessionDate always hits the backend; it drives the incremental
// refresh decision.
func (s *CachedStore) LatestSessionDate(ctx context.Context) (time.Time, error) {
	return s.backend.LatestSessionDate(ctx)
}

// Close closes the backend. The Redis client is owned by the caller.
func (s *CachedStore) Close() error {
	return s.backend.Close()
}
