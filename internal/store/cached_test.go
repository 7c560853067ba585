package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/redis"
)

// fakeStore counts calls so tests can observe delegation through the cache
// layer.
type fakeStore struct {
	records     map[string]treasury.AuctionRecord
	upsertCalls int
	latestCalls int
	rangeCalls  int
	err         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]treasury.AuctionRecord{}}
}

func (f *fakeStore) UpsertMany(_ context.Context, records []treasury.AuctionRecord) error {
	f.upsertCalls++
	if f.err != nil {
		return f.err
	}
	for i := range records {
		f.records[records[i].Key().String()] = records[i]
	}
	return nil
}

func (f *fakeStore) Latest(_ context.Context, tenor treasury.Tenor) (*treasury.AuctionRecord, error) {
	f.latestCalls++
	if f.err != nil {
		return nil, f.err
	}
	var best *treasury.AuctionRecord
	for k := range f.records {
		rec := f.records[k]
		if rec.Tenor != tenor {
			continue
		}
		if best == nil || rec.SessionDate.After(best.SessionDate) {
			best = &rec
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (f *fakeStore) Range(_ context.Context, tenor treasury.Tenor, from, to time.Time) ([]treasury.AuctionRecord, error) {
	f.rangeCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []treasury.AuctionRecord
	for k := range f.records {
		rec := f.records[k]
		if rec.Tenor != tenor || rec.SessionDate.Before(from) || rec.SessionDate.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeStore) Exists(_ context.Context, key treasury.RecordKey) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.records[key.String()]
	return ok, nil
}

func (f *fakeStore) LatestSessionDate(_ context.Context) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	var latest time.Time
	for k := range f.records {
		if d := f.records[k].SessionDate; d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) Close() error { return nil }

func disabledCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(context.Background(), &config.Config{})
	require.NoError(t, err)
	return redis.NewCache(client, "tbill-test")
}

func newCachedFake(t *testing.T) (*CachedStore, *fakeStore) {
	t.Helper()
	backend := newFakeStore()
	cached := NewCachedStore(backend, disabledCache(t), time.Hour, testLogger())
	return cached, backend
}

func TestCachedStore_DelegatesWithDisabledCache(t *testing.T) {
	cached, backend := newCachedFake(t)
	ctx := context.Background()

	rec := record("2026-08-20", treasury.Tenor91, 27.5)
	require.NoError(t, cached.UpsertMany(ctx, []treasury.AuctionRecord{rec}))
	assert.Equal(t, 1, backend.upsertCalls)

	got, err := cached.Latest(ctx, treasury.Tenor91)
	require.NoError(t, err)
	assert.True(t, got.Yield.Equal(rec.Yield))

	// Disabled cache never serves reads; every Latest hits the backend.
	_, err = cached.Latest(ctx, treasury.Tenor91)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.latestCalls)
}

func TestCachedStore_RangeDelegates(t *testing.T) {
	cached, backend := newCachedFake(t)
	ctx := context.Background()

	require.NoError(t, cached.UpsertMany(ctx, []treasury.AuctionRecord{
		record("2026-08-13", treasury.Tenor91, 27.1),
		record("2026-08-20", treasury.Tenor91, 27.5),
	}))

	from, _ := time.ParseInLocation("2006-01-02", "2026-08-01", time.UTC)
	to, _ := time.ParseInLocation("2006-01-02", "2026-08-31", time.UTC)

	records, err := cached.Range(ctx, treasury.Tenor91, from, to)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, backend.rangeCalls)
}

func TestCachedStore_BackendErrorPropagates(t *testing.T) {
	cached, backend := newCachedFake(t)
	backend.err = ErrUnavailable

	err := cached.UpsertMany(context.Background(), []treasury.AuctionRecord{
		record("2026-08-20", treasury.Tenor91, 27.5),
	})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = cached.Latest(context.Background(), treasury.Tenor91)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachedStore_NotFoundPropagates(t *testing.T) {
	cached, _ := newCachedFake(t)

	_, err := cached.Latest(context.Background(), treasury.Tenor364)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = cached.LatestSessionDate(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_ExistsBypassesCache(t *testing.T) {
	cached, _ := newCachedFake(t)
	ctx := context.Background()

	rec := record("2026-08-20", treasury.Tenor91, 27.5)
	require.NoError(t, cached.UpsertMany(ctx, []treasury.AuctionRecord{rec}))

	found, err := cached.Exists(ctx, rec.Key())
	require.NoError(t, err)
	assert.True(t, found)
}
