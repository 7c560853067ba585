package scraper

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// Structural markers of the CBE auction results page. The page is Arabic;
// the parser anchors on these fragments instead of positional access so a
// layout change surfaces as schema drift, not as silently misaligned data.
const (
	resultsMarker       = "النتائج"             // section header: "results"
	sessionDateLabel    = "تاريخ الجلسة"        // row label: "session date"
	acceptedBidsKeyword = "المقبولة"            // paragraph: "accepted bids"
	yieldAnchor         = "متوسط العائد المرجح" // row label: "weighted average yield"
	amountAnchor        = "إجمالي القيمة المقبولة"
	priceAnchor         = "السعر المقابل"
)

// essentialMarkers must all appear in a payload before any table is trusted.
var essentialMarkers = []string{
	resultsMarker,
	sessionDateLabel,
	yieldAnchor,
	acceptedBidsKeyword,
}

type recordField int

const (
	fieldYield recordField = iota
	fieldAmount
	fieldPrice
)

// statementRowFields is the declared mapping from statement-row labels to
// record fields. Only the yield row is mandatory; price falls back to the
// value implied by the yield when the source omits it.
var statementRowFields = map[string]recordField{
	yieldAnchor:  fieldYield,
	amountAnchor: fieldAmount,
	priceAnchor:  fieldPrice,
}

// ParseResult carries the parsed records alongside per-row rejections.
// Rejected rows are reported, never silently dropped.
type ParseResult struct {
	Records  []treasury.AuctionRecord
	Rejected []RowError
}

// Parser normalizes raw listing markup into validated auction records.
type Parser struct {
	log *logger.Logger
	loc *time.Location
}

// NewParser creates a parser. Session dates on the page are Cairo local.
func NewParser(log *logger.Logger) *Parser {
	loc, err := time.LoadLocation("Africa/Cairo")
	if err != nil {
		loc = time.FixedZone("EET", 2*60*60)
	}
	return &Parser{
		log: log.Component("parser"),
		loc: loc,
	}
}

// Parse extracts auction records from a raw payload. An empty payload yields
// zero records and no error; a payload missing the structural markers fails
// with ErrSchemaDrift. Individual bad rows land in Rejected.
func (p *Parser) Parse(payload *RawPayload) (*ParseResult, error) {
	if payload.Empty() {
		return &ParseResult{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: markup not parseable: %v", ErrSchemaDrift, err)
	}

	text := doc.Text()
	for _, marker := range essentialMarkers {
		if !strings.Contains(text, marker) {
			return nil, fmt.Errorf("%w: marker %q not found", ErrSchemaDrift, marker)
		}
	}

	result := &ParseResult{}
	sections := p.walkSections(doc, result, payload.FetchedAt)
	if sections == 0 {
		return nil, fmt.Errorf("%w: no results section recognized", ErrSchemaDrift)
	}

	p.dedupeAndSort(result)

	p.log.WithFields(map[string]interface{}{
		"sections": sections,
		"records":  len(result.Records),
		"rejected": len(result.Rejected),
	}).Info("Parsed auction listing")
	return result, nil
}

// sectionColumns describes one results section: the tenor columns and the
// session date printed for each.
type sectionColumns struct {
	tenors []int
	dates  []string
}

type walkState int

const (
	stateIdle walkState = iota
	stateWantDates
	stateHaveDates
	stateWantStatement
)

// walkSections runs a state machine over the document's headers, paragraphs
// and tables in document order. Each results section is a dates table
// followed by an accepted-bids statement table.
func (p *Parser) walkSections(doc *goquery.Document, result *ParseResult, fetchedAt time.Time) int {
	state := stateIdle
	section := 0
	var cols sectionColumns

	doc.Find("h2, p, strong, table").Each(func(_ int, sel *goquery.Selection) {
		switch goquery.NodeName(sel) {
		case "h2":
			if strings.Contains(sel.Text(), resultsMarker) {
				state = stateWantDates
				section++
			} else {
				state = stateIdle
			}
		case "p", "strong":
			if state == stateHaveDates && strings.Contains(sel.Text(), acceptedBidsKeyword) {
				state = stateWantStatement
			}
		case "table":
			switch state {
			case stateWantDates:
				parsed, ok := p.parseDatesTable(sel)
				if !ok {
					result.Rejected = append(result.Rejected, RowError{
						Section: section,
						Reason:  "dates table unrecognized",
					})
					state = stateIdle
					return
				}
				cols = parsed
				state = stateHaveDates
			case stateWantStatement:
				p.parseStatementTable(sel, cols, section, fetchedAt, result)
				state = stateIdle
			}
		}
	})

	return section
}

// parseDatesTable reads the tenor header row and the session date row.
func (p *Parser) parseDatesTable(table *goquery.Selection) (sectionColumns, bool) {
	var cols sectionColumns

	rows := table.Find("tr")
	if rows.Length() == 0 {
		return cols, false
	}

	// Header row: first cell is a label, the rest are tenor lengths.
	rows.First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		if tenor, err := strconv.Atoi(normalizeNumeric(cell.Text())); err == nil {
			cols.tenors = append(cols.tenors, tenor)
		}
	})
	if len(cols.tenors) == 0 {
		return cols, false
	}

	found := false
	rows.Each(func(_ int, row *goquery.Selection) {
		if found {
			return
		}
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		if !strings.Contains(cells.First().Text(), sessionDateLabel) {
			return
		}
		found = true
		for i := 1; i <= len(cols.tenors) && i < cells.Length(); i++ {
			cols.dates = append(cols.dates, strings.TrimSpace(cells.Eq(i).Text()))
		}
	})
	if !found || len(cols.dates) != len(cols.tenors) {
		return cols, false
	}

	return cols, true
}

// parseStatementTable reads the accepted-bids statement rows and emits one
// record per tenor column. Columns are independent: one bad cell rejects
// only its own record.
func (p *Parser) parseStatementTable(table *goquery.Selection, cols sectionColumns, section int, fetchedAt time.Time, result *ParseResult) {
	values := map[recordField][]string{}

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := cells.First().Text()
		for anchor, field := range statementRowFields {
			if !strings.Contains(label, anchor) {
				continue
			}
			var vals []string
			for i := 1; i <= len(cols.tenors) && i < cells.Length(); i++ {
				vals = append(vals, strings.TrimSpace(cells.Eq(i).Text()))
			}
			values[field] = vals
		}
	})

	yields, ok := values[fieldYield]
	if !ok || len(yields) != len(cols.tenors) {
		result.Rejected = append(result.Rejected, RowError{
			Section: section,
			Reason:  fmt.Sprintf("statement table missing %q row", yieldAnchor),
		})
		return
	}

	for i, tenorDays := range cols.tenors {
		rec, err := p.buildRecord(tenorDays, cols.dates[i], yields[i], values, i, fetchedAt)
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{
				TenorDays: tenorDays,
				Section:   section,
				Reason:    err.Error(),
			})
			continue
		}
		result.Records = append(result.Records, *rec)
	}
}

// buildRecord coerces one column into a validated auction record.
func (p *Parser) buildRecord(tenorDays int, dateStr, yieldStr string, values map[recordField][]string, col int, fetchedAt time.Time) (*treasury.AuctionRecord, error) {
	tenor := treasury.Tenor(tenorDays)
	if !tenor.Valid() {
		return nil, fmt.Errorf("%w: tenor %d not in published set", ErrValueParse, tenorDays)
	}

	sessionDate, err := p.parseSessionDate(dateStr)
	if err != nil {
		return nil, err
	}

	yield, err := parseDecimalCell(yieldStr)
	if err != nil {
		return nil, fmt.Errorf("%w: yield %q: %v", ErrValueParse, yieldStr, err)
	}

	price := treasury.DiscountPricePer100(yield, tenorDays)
	if cells, ok := values[fieldPrice]; ok && col < len(cells) {
		if parsed, err := parseDecimalCell(cells[col]); err == nil {
			price = parsed
		} else {
			return nil, fmt.Errorf("%w: price %q: %v", ErrValueParse, cells[col], err)
		}
	}

	amount := decimal.Zero
	if cells, ok := values[fieldAmount]; ok && col < len(cells) {
		parsed, err := parseDecimalCell(cells[col])
		if err != nil {
			return nil, fmt.Errorf("%w: accepted amount %q: %v", ErrValueParse, cells[col], err)
		}
		amount = parsed
	}

	rec := &treasury.AuctionRecord{
		SessionDate:    sessionDate,
		Tenor:          tenor,
		Yield:          yield,
		PricePer100:    price,
		AcceptedAmount: amount,
		ScrapedAt:      fetchedAt.UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseSessionDate coerces a dd/mm/yyyy Cairo-local date to a UTC calendar
// date.
func (p *Parser) parseSessionDate(s string) (time.Time, error) {
	cleaned := normalizeNumeric(s)
	parsed, err := time.ParseInLocation("02/01/2006", cleaned, p.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: session date %q: %v", ErrValueParse, s, err)
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
}

// dedupeAndSort collapses duplicate natural keys (last occurrence wins; the
// source is authoritative for its own latest value) and orders records
// ascending by session date, ties broken by tenor.
func (p *Parser) dedupeAndSort(result *ParseResult) {
	byKey := map[treasury.RecordKey]treasury.AuctionRecord{}
	for _, rec := range result.Records {
		byKey[rec.Key()] = rec
	}

	records := make([]treasury.AuctionRecord, 0, len(byKey))
	for _, rec := range byKey {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].SessionDate.Equal(records[j].SessionDate) {
			return records[i].SessionDate.Before(records[j].SessionDate)
		}
		return records[i].Tenor < records[j].Tenor
	})
	result.Records = records
}

// normalizeNumeric strips formatting and maps Arabic-Indic digits to ASCII.
func normalizeNumeric(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '٠' && r <= '٩': // U+0660..U+0669
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹': // U+06F0..U+06F9
			b.WriteRune('0' + (r - '۰'))
		case r == '٫': // Arabic decimal separator
			b.WriteRune('.')
		case r == '٬' || r == ',': // thousands separators
		case r == '%' || r == '٪':
		case r == ' ' || r == ' ' || r == '‏' || r == '‎':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseDecimalCell coerces a table cell to a decimal.
func parseDecimalCell(s string) (decimal.Decimal, error) {
	cleaned := normalizeNumeric(s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty cell")
	}
	return decimal.NewFromString(cleaned)
}
