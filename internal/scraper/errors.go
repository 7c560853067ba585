package scraper

import "errors"

// Acquisition and parsing failure taxonomy. The orchestrator branches on
// these with errors.Is, so every fetch/parse failure wraps one of them.
var (
	// ErrSourceUnavailable covers network and navigation failures. Transient;
	// the orchestrator retries it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRenderTimeout means the page loaded but the results table never
	// became visible within the render budget. Transient; retried.
	ErrRenderTimeout = errors.New("source render timeout")

	// ErrSourceBlocked means the source actively refused the request (rate
	// limiting, bot detection). Never retried within the same run.
	ErrSourceBlocked = errors.New("source blocked the request")

	// ErrSchemaDrift means the page no longer matches the expected layout.
	// Fatal to the run; downstream data would otherwise be silently wrong.
	ErrSchemaDrift = errors.New("source schema drift")

	// ErrValueParse means a cell could not be coerced to its expected type.
	// Row-scoped; carried inside RowError.
	ErrValueParse = errors.New("value parse failure")
)

// RowError describes one rejected row of a parse pass. Rows are independent:
// one bad row never aborts the rest of the payload.
type RowError struct {
	TenorDays int    `json:"tenor_days"`
	Section   int    `json:"section"`
	Reason    string `json:"reason"`
}

func (e RowError) Error() string {
	return e.Reason
}
