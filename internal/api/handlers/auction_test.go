package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/internal/scraper"
	"github.com/alqatri/tbilltracker/internal/store"
	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

type stubFetcher struct{}

func (stubFetcher) FetchListing(context.Context) (*scraper.RawPayload, error) {
	return &scraper.RawPayload{HTML: "<html>listing</html>", FetchedAt: time.Now()}, nil
}

type stubParser struct {
	records []treasury.AuctionRecord
}

func (p stubParser) Parse(*scraper.RawPayload) (*scraper.ParseResult, error) {
	return &scraper.ParseResult{Records: p.records}, nil
}

func seedRecord(date string, tenor treasury.Tenor, yield float64) treasury.AuctionRecord {
	d, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
	y := decimal.NewFromFloat(yield)
	return treasury.AuctionRecord{
		SessionDate:    d,
		Tenor:          tenor,
		Yield:          y,
		PricePer100:    treasury.DiscountPricePer100(y, tenor.Days()),
		AcceptedAmount: decimal.NewFromInt(500_000),
		ScrapedAt:      time.Now().UTC(),
	}
}

func newHandler(t *testing.T, parsed []treasury.AuctionRecord) (*AuctionHandler, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.IngestConfig{MaxAttempts: 1, Cadence: 96 * time.Hour}
	orch := ingest.New(stubFetcher{}, stubParser{records: parsed}, st, cfg, testLogger())
	return NewAuctionHandler(st, orch, testLogger()), st
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestGetLatest(t *testing.T) {
	h, st := newHandler(t, nil)
	require.NoError(t, st.UpsertMany(context.Background(), []treasury.AuctionRecord{
		seedRecord("2026-08-13", treasury.Tenor91, 27.1),
		seedRecord("2026-08-20", treasury.Tenor91, 27.5),
		seedRecord("2026-08-20", treasury.Tenor364, 25.4),
	}))

	rec := httptest.NewRecorder()
	h.GetLatest(rec, httptest.NewRequest(http.MethodGet, "/api/v1/latest", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"], "one latest record per populated tenor")
}

func TestGetHistory(t *testing.T) {
	h, st := newHandler(t, nil)
	require.NoError(t, st.UpsertMany(context.Background(), []treasury.AuctionRecord{
		seedRecord("2026-08-13", treasury.Tenor91, 27.1),
		seedRecord("2026-08-20", treasury.Tenor91, 27.5),
	}))

	rec := httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/history?tenor=91&from=2026-08-01&to=2026-08-31", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	items := data["items"].([]interface{})
	first := items[0].(map[string]interface{})
	assert.Equal(t, "2026-08-13", first["sessionDate"])
	assert.Equal(t, float64(91), first["tenorDays"])
}

func TestGetHistory_Validation(t *testing.T) {
	h, _ := newHandler(t, nil)

	cases := map[string]string{
		"missing tenor": "/api/v1/history",
		"unknown tenor": "/api/v1/history?tenor=120",
		"bad from":      "/api/v1/history?tenor=91&from=20-08-2026",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetHistory(rec, httptest.NewRequest(http.MethodGet, url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetReport_BeforeAnyRun(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := httptest.NewRecorder()
	h.GetReport(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerUpdate(t *testing.T) {
	h, st := newHandler(t, []treasury.AuctionRecord{seedRecord("2026-08-20", treasury.Tenor91, 27.5)})

	rec := httptest.NewRecorder()
	h.TriggerUpdate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/update?force=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "updated", data["outcome"])

	stored, err := st.Latest(context.Background(), treasury.Tenor91)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20", stored.SessionDate.Format("2006-01-02"))

	// Report endpoint now reflects the run.
	rec = httptest.NewRecorder()
	h.GetReport(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
