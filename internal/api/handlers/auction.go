package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alqatri/tbilltracker/internal/ingest"
	"github.com/alqatri/tbilltracker/internal/store"
	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// AuctionHandler serves stored auction data and the ingestion trigger.
type AuctionHandler struct {
	store        store.Store
	orchestrator *ingest.Orchestrator
	log          *logger.Logger
}

// NewAuctionHandler creates the handler.
func NewAuctionHandler(st store.Store, orchestrator *ingest.Orchestrator, log *logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		store:        st,
		orchestrator: orchestrator,
		log:          log.Component("api.auction"),
	}
}

// recordView is the wire shape of one auction record.
type recordView struct {
	SessionDate    string          `json:"sessionDate"`
	TenorDays      int             `json:"tenorDays"`
	YieldPercent   decimal.Decimal `json:"yieldPercent"`
	PricePer100    decimal.Decimal `json:"pricePer100"`
	AcceptedAmount decimal.Decimal `json:"acceptedAmount"`
	MaturityDate   string          `json:"maturityDate"`
	ScrapedAt      time.Time       `json:"scrapedAt"`
}

func toView(rec treasury.AuctionRecord) recordView {
	return recordView{
		SessionDate:    rec.SessionDate.Format("2006-01-02"),
		TenorDays:      rec.Tenor.Days(),
		YieldPercent:   rec.Yield,
		PricePer100:    rec.PricePer100,
		AcceptedAmount: rec.AcceptedAmount,
		MaturityDate:   rec.MaturityDate().Format("2006-01-02"),
		ScrapedAt:      rec.ScrapedAt,
	}
}

// Health reports storage reachability. An empty dataset is healthy.
// GET /health
func (h *AuctionHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if _, err := h.store.LatestSessionDate(r.Context()); err != nil && !errors.Is(err, store.ErrNotFound) {
		status = "degraded"
		code = http.StatusServiceUnavailable
		h.log.WithError(err).Warn("Health check storage probe failed")
	}

	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "tbilltracker-api",
	})
}

// GetLatest returns the latest auction record per tenor.
// GET /api/v1/latest
func (h *AuctionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	records, err := h.orchestrator.LatestPerTenor(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to load latest records")
		respondError(w, http.StatusInternalServerError, "Failed to load latest records")
		return
	}

	items := make([]recordView, 0, len(records))
	for _, rec := range records {
		items = append(items, toView(rec))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"count": len(items),
			"items": items,
		},
	})
}

// GetHistory returns stored records for one tenor within a date range.
// GET /api/v1/history?tenor=91&from=2026-01-01&to=2026-08-31
func (h *AuctionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenorDays, err := strconv.Atoi(r.URL.Query().Get("tenor"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "tenor query parameter is required")
		return
	}
	tenor := treasury.Tenor(tenorDays)
	if !tenor.Valid() {
		respondError(w, http.StatusBadRequest, "tenor must be one of 91, 182, 273, 364")
		return
	}

	now := time.Now().UTC()
	from, err := dateParam(r, "from", now.AddDate(-1, 0, 0))
	if err != nil {
		respondError(w, http.StatusBadRequest, "from must be formatted YYYY-MM-DD")
		return
	}
	to, err := dateParam(r, "to", now)
	if err != nil {
		respondError(w, http.StatusBadRequest, "to must be formatted YYYY-MM-DD")
		return
	}

	records, err := h.store.Range(r.Context(), tenor, from, to)
	if err != nil {
		h.log.WithError(err).Error("Failed to load history")
		respondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	items := make([]recordView, 0, len(records))
	for _, rec := range records {
		items = append(items, toView(rec))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"tenorDays": tenor.Days(),
			"from":      from.Format("2006-01-02"),
			"to":        to.Format("2006-01-02"),
			"count":     len(items),
			"items":     items,
		},
	})
}

// GetReport returns the last ingestion run's report.
// GET /api/v1/report
func (h *AuctionHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report := h.orchestrator.LastReport()
	if report == nil {
		respondError(w, http.StatusNotFound, "No ingestion run recorded yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    report,
	})
}

// TriggerUpdate runs one ingestion synchronously.
// POST /api/v1/update?force=true
func (h *AuctionHandler) TriggerUpdate(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	report, err := h.orchestrator.Run(r.Context(), force)
	if err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			respondError(w, http.StatusConflict, "An ingestion run is already in progress")
			return
		}
		h.log.WithError(err).Error("Triggered ingestion failed")
		respondJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
			"data":    report,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    report,
	})
}

func dateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
