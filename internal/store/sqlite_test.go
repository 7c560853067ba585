package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

func newMemStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(date string, tenor treasury.Tenor, yield float64) treasury.AuctionRecord {
	d, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
	y := decimal.NewFromFloat(yield)
	return treasury.AuctionRecord{
		SessionDate:    d,
		Tenor:          tenor,
		Yield:          y,
		PricePer100:    treasury.DiscountPricePer100(y, tenor.Days()),
		AcceptedAmount: decimal.NewFromInt(1_000_000),
		ScrapedAt:      time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteStore_UpsertAndLatest(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	batch := []treasury.AuctionRecord{
		record("2026-08-13", treasury.Tenor91, 27.1),
		record("2026-08-20", treasury.Tenor91, 27.5),
		record("2026-08-20", treasury.Tenor182, 26.9),
	}
	require.NoError(t, s.UpsertMany(ctx, batch))

	latest, err := s.Latest(ctx, treasury.Tenor91)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20", latest.SessionDate.Format("2006-01-02"))
	assert.True(t, latest.Yield.Equal(decimal.NewFromFloat(27.5)))

	_, err = s.Latest(ctx, treasury.Tenor364)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	batch := []treasury.AuctionRecord{
		record("2026-08-20", treasury.Tenor91, 27.5),
		record("2026-08-20", treasury.Tenor182, 26.9),
	}
	require.NoError(t, s.UpsertMany(ctx, batch))
	require.NoError(t, s.UpsertMany(ctx, batch))

	from, _ := time.ParseInLocation("2006-01-02", "2026-01-01", time.UTC)
	to, _ := time.ParseInLocation("2006-01-02", "2026-12-31", time.UTC)

	for _, tenor := range []treasury.Tenor{treasury.Tenor91, treasury.Tenor182} {
		records, err := s.Range(ctx, tenor, from, to)
		require.NoError(t, err)
		assert.Len(t, records, 1, "tenor %d", tenor)
	}
}

func TestSQLiteStore_UpsertOverwritesByNaturalKey(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMany(ctx, []treasury.AuctionRecord{record("2026-08-20", treasury.Tenor91, 27.5)}))

	// Source correction: same natural key, different value.
	corrected := record("2026-08-20", treasury.Tenor91, 27.8)
	require.NoError(t, s.UpsertMany(ctx, []treasury.AuctionRecord{corrected}))

	latest, err := s.Latest(ctx, treasury.Tenor91)
	require.NoError(t, err)
	assert.True(t, latest.Yield.Equal(decimal.NewFromFloat(27.8)))
}

func TestSQLiteStore_RangeOrdering(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	batch := []treasury.AuctionRecord{
		record("2026-08-20", treasury.Tenor91, 27.5),
		record("2026-08-06", treasury.Tenor91, 26.8),
		record("2026-08-13", treasury.Tenor91, 27.1),
	}
	require.NoError(t, s.UpsertMany(ctx, batch))

	from, _ := time.ParseInLocation("2006-01-02", "2026-08-01", time.UTC)
	to, _ := time.ParseInLocation("2006-01-02", "2026-08-31", time.UTC)

	records, err := s.Range(ctx, treasury.Tenor91, from, to)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2026-08-06", records[0].SessionDate.Format("2006-01-02"))
	assert.Equal(t, "2026-08-13", records[1].SessionDate.Format("2006-01-02"))
	assert.Equal(t, "2026-08-20", records[2].SessionDate.Format("2006-01-02"))

	// Bounds are inclusive.
	records, err = s.Range(ctx, treasury.Tenor91, from, records[1].SessionDate)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSQLiteStore_Exists(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	rec := record("2026-08-20", treasury.Tenor91, 27.5)
	require.NoError(t, s.UpsertMany(ctx, []treasury.AuctionRecord{rec}))

	found, err := s.Exists(ctx, rec.Key())
	require.NoError(t, err)
	assert.True(t, found)

	missing := record("2026-08-21", treasury.Tenor364, 25.0)
	found, err = s.Exists(ctx, missing.Key())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_LatestSessionDate(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	_, err := s.LatestSessionDate(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	batch := []treasury.AuctionRecord{
		record("2026-08-13", treasury.Tenor91, 27.1),
		record("2026-08-20", treasury.Tenor182, 26.9),
	}
	require.NoError(t, s.UpsertMany(ctx, batch))

	date, err := s.LatestSessionDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20", date.Format("2006-01-02"))
}

func TestSQLiteStore_InvalidBatchCommitsNothing(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	bad := record("2026-08-20", treasury.Tenor91, 27.5)
	bad.Yield = decimal.NewFromFloat(-1.0)

	err := s.UpsertMany(ctx, []treasury.AuctionRecord{
		record("2026-08-20", treasury.Tenor182, 26.9),
		bad,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraint)

	// All-or-nothing: the valid record must not have been committed either.
	_, err = s.Latest(ctx, treasury.Tenor182)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_EmptyBatchIsNoOp(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.UpsertMany(context.Background(), nil))
}
