package scraper

import "time"

// RawPayload is the raw table markup extracted from one fetch attempt.
// A payload is atomic: either the full rendered page made it here or the
// fetch failed.
type RawPayload struct {
	HTML      string    `json:"html"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Empty reports whether the payload carries no content at all. An empty
// payload parses to zero records without error.
func (p *RawPayload) Empty() bool {
	return p == nil || len(p.HTML) == 0
}
