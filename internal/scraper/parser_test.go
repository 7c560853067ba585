package scraper

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/config"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

// section builds one results section the way the CBE listing lays it out:
// an h2 header, a dates table keyed by tenor columns, an accepted-bids
// paragraph and the statement table.
func section(tenors, dates, yields, amounts []string) string {
	var b strings.Builder
	b.WriteString("<h2>النتائج</h2>\n<table><tr><th>البيان</th>")
	for _, t := range tenors {
		fmt.Fprintf(&b, "<th>%s</th>", t)
	}
	b.WriteString("</tr><tr><td>تاريخ الجلسة</td>")
	for _, d := range dates {
		fmt.Fprintf(&b, "<td>%s</td>", d)
	}
	b.WriteString("</tr></table>\n<p>تفاصيل العطاءات المقبولة</p>\n<table><tr><td>متوسط العائد المرجح</td>")
	for _, y := range yields {
		fmt.Fprintf(&b, "<td>%s</td>", y)
	}
	b.WriteString("</tr>")
	if amounts != nil {
		b.WriteString("<tr><td>إجمالي القيمة المقبولة</td>")
		for _, a := range amounts {
			fmt.Fprintf(&b, "<td>%s</td>", a)
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>\n")
	return b.String()
}

func page(sections ...string) *RawPayload {
	return &RawPayload{
		HTML:      "<html><body>" + strings.Join(sections, "\n") + "</body></html>",
		URL:       "https://example.test/auctions",
		FetchedAt: time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC),
	}
}

func TestParse_FullListing(t *testing.T) {
	payload := page(
		section(
			[]string{"91", "182"},
			[]string{"20/08/2026", "20/08/2026"},
			[]string{"27.5", "26.9"},
			[]string{"15,000,000", "20,000,000"},
		),
		section(
			[]string{"273", "364"},
			[]string{"18/08/2026", "18/08/2026"},
			[]string{"26.4", "25.8"},
			[]string{"30,000,000", "45,000,000"},
		),
	)

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 4)
	assert.Empty(t, res.Rejected)

	// Ascending session date, ties broken by tenor.
	assert.Equal(t, treasury.Tenor273, res.Records[0].Tenor)
	assert.Equal(t, treasury.Tenor364, res.Records[1].Tenor)
	assert.Equal(t, treasury.Tenor91, res.Records[2].Tenor)
	assert.Equal(t, treasury.Tenor182, res.Records[3].Tenor)

	first := res.Records[2]
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), first.SessionDate)
	assert.InDelta(t, 27.5, first.Yield.InexactFloat64(), 1e-9)
	assert.InDelta(t, 15_000_000, first.AcceptedAmount.InexactFloat64(), 1e-9)
	// No price row in the fixture, so the price is derived from the yield
	// and must sit below par.
	assert.True(t, first.PricePer100.IsPositive())
	assert.InDelta(t, 93.6, first.PricePer100.InexactFloat64(), 0.1)
	assert.Equal(t, payload.FetchedAt, first.ScrapedAt)
}

func TestParse_ArabicIndicDigits(t *testing.T) {
	payload := page(section(
		[]string{"٩١"},
		[]string{"٢٠/٠٨/٢٠٢٦"},
		[]string{"٢٧٫٥"},
		[]string{"١٥٬٠٠٠٬٠٠٠"},
	))

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, treasury.Tenor91, rec.Tenor)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), rec.SessionDate)
	assert.InDelta(t, 27.5, rec.Yield.InexactFloat64(), 1e-9)
	assert.InDelta(t, 15_000_000, rec.AcceptedAmount.InexactFloat64(), 1e-9)
}

func TestParse_EmptyPayload(t *testing.T) {
	res, err := NewParser(testLogger()).Parse(&RawPayload{})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Rejected)
}

func TestParse_MissingYieldRowIsSchemaDrift(t *testing.T) {
	// A listing without the weighted-average-yield row has lost its most
	// important column; committing anything from it would be wrong.
	html := `<html><body>
		<h2>النتائج</h2>
		<table><tr><th>البيان</th><th>91</th></tr>
		<tr><td>تاريخ الجلسة</td><td>20/08/2026</td></tr></table>
		<p>تفاصيل العطاءات المقبولة</p>
		<table><tr><td>عدد العطاءات</td><td>12</td></tr></table>
	</body></html>`

	_, err := NewParser(testLogger()).Parse(&RawPayload{HTML: html, FetchedAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaDrift)
}

func TestParse_NoResultsSectionIsSchemaDrift(t *testing.T) {
	// All markers present in prose but no recognizable section structure.
	html := `<html><body><div>النتائج تاريخ الجلسة متوسط العائد المرجح المقبولة</div></body></html>`

	_, err := NewParser(testLogger()).Parse(&RawPayload{HTML: html, FetchedAt: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaDrift)
}

func TestParse_BadCellRejectsRowOnly(t *testing.T) {
	payload := page(section(
		[]string{"91", "182"},
		[]string{"20/08/2026", "20/08/2026"},
		[]string{"not-a-number", "26.9"},
		nil,
	))

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Rejected, 1)

	assert.Equal(t, treasury.Tenor182, res.Records[0].Tenor)
	assert.Equal(t, 91, res.Rejected[0].TenorDays)
	assert.Contains(t, res.Rejected[0].Reason, "yield")
}

func TestParse_NegativeYieldRejectsRowOnly(t *testing.T) {
	payload := page(section(
		[]string{"91", "182"},
		[]string{"20/08/2026", "20/08/2026"},
		[]string{"-3.5", "26.9"},
		nil,
	))

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, treasury.Tenor182, res.Records[0].Tenor)
}

func TestParse_UnknownTenorRejectsRowOnly(t *testing.T) {
	payload := page(section(
		[]string{"120", "182"},
		[]string{"20/08/2026", "20/08/2026"},
		[]string{"27.0", "26.9"},
		nil,
	))

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 120, res.Rejected[0].TenorDays)
}

func TestParse_BadSessionDateRejectsRowOnly(t *testing.T) {
	payload := page(section(
		[]string{"91", "182"},
		[]string{"soon", "20/08/2026"},
		[]string{"27.5", "26.9"},
		nil,
	))

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, "session date")
}

func TestParse_DuplicateKeyLastOccurrenceWins(t *testing.T) {
	// The same (session date, tenor) appearing twice collapses to the last
	// occurrence; the source is authoritative for its own latest value.
	payload := page(
		section([]string{"91"}, []string{"20/08/2026"}, []string{"27.5"}, nil),
		section([]string{"91"}, []string{"20/08/2026"}, []string{"28.1"}, nil),
	)

	res, err := NewParser(testLogger()).Parse(payload)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.InDelta(t, 28.1, res.Records[0].Yield.InexactFloat64(), 1e-9)
}

func TestNormalizeNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"٢٧٫٥", "27.5"},
		{"١٥٬٠٠٠", "15000"},
		{" 26.9 % ", "26.9"},
		{"20/08/2026", "20/08/2026"},
		{"1,234.56", "1234.56"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeNumeric(tt.in), tt.in)
	}
}
