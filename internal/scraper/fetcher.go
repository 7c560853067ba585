package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// Fetcher acquires the raw auction listing from the source.
type Fetcher interface {
	FetchListing(ctx context.Context) (*RawPayload, error)
}

// ChromeFetcher drives a headless Chrome session against the CBE listing
// page. The page renders its results tables dynamically, so a plain HTTP GET
// is not enough; the fetcher waits for the table to actually materialize.
type ChromeFetcher struct {
	cfg     config.ScraperConfig
	log     *logger.Logger
	limiter *rate.Limiter
}

// NewChromeFetcher creates a fetcher. The politeness limiter guarantees a
// minimum gap between navigations so the source never sees concurrent or
// rapid-fire requests from this client.
func NewChromeFetcher(cfg *config.Config, log *logger.Logger) *ChromeFetcher {
	return &ChromeFetcher{
		cfg:     cfg.Scraper,
		log:     log.Component("fetcher"),
		limiter: rate.NewLimiter(rate.Every(cfg.Scraper.MinInterval), 1),
	}
}

// FetchListing opens an isolated browser session, navigates to the listing
// page, waits for the results table to become visible and extracts the full
// page markup. The session is torn down on every exit path.
func (f *ChromeFetcher) FetchListing(ctx context.Context) (*RawPayload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.cfg.UserAgent),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	f.log.WithField("url", f.cfg.SourceURL).Debug("Navigating to auction listing")

	navCtx, cancelNav := context.WithTimeout(browserCtx, f.cfg.NavTimeout)
	defer cancelNav()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(f.cfg.SourceURL))
	if err != nil {
		return nil, mapNavigationError(err)
	}
	if resp != nil {
		if err := classifyStatus(int(resp.Status)); err != nil {
			return nil, err
		}
	}

	// The table being present is not enough; the dynamic render must have
	// completed before the markup is worth extracting.
	renderCtx, cancelRender := context.WithTimeout(browserCtx, f.cfg.RenderTimeout)
	defer cancelRender()

	if err := chromedp.Run(renderCtx, chromedp.WaitVisible("table", chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: results table not visible after %s", ErrRenderTimeout, f.cfg.RenderTimeout)
		}
		return nil, mapNavigationError(err)
	}

	var html string
	if err := chromedp.Run(navCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, mapNavigationError(err)
	}

	if strings.TrimSpace(html) == "" {
		return nil, fmt.Errorf("%w: extracted empty page", ErrSourceUnavailable)
	}
	if isBlockPage(html) {
		return nil, fmt.Errorf("%w: bot challenge page served", ErrSourceBlocked)
	}

	f.log.WithFields(map[string]interface{}{
		"bytes":    len(html),
		"duration": time.Since(start),
	}).Info("Fetched auction listing")

	return &RawPayload{
		HTML:      html,
		URL:       f.cfg.SourceURL,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// mapNavigationError folds chromedp/network failures into the taxonomy.
func mapNavigationError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSourceBlocked) || errors.Is(err, ErrRenderTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
}

// classifyStatus maps refusal status codes to ErrSourceBlocked and other
// non-success codes to ErrSourceUnavailable.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrSourceBlocked, status)
	case status >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrSourceUnavailable, status)
	}
	return nil
}

// blockMarkers are fragments served by common bot-mitigation interstitials.
var blockMarkers = []string{
	"Access Denied",
	"Request unsuccessful",
	"Incapsula incident",
	"cf-challenge",
	"Attention Required! | Cloudflare",
}

// isBlockPage detects a challenge page that came back with HTTP 200.
func isBlockPage(html string) bool {
	for _, marker := range blockMarkers {
		if strings.Contains(html, marker) {
			return true
		}
	}
	return false
}
