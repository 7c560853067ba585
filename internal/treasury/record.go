package treasury

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidRecord indicates an auction record violating a model invariant.
var ErrInvalidRecord = errors.New("invalid auction record")

// Tenor is the maturity period of a T-bill in days. The Central Bank of
// Egypt auctions a fixed set of tenors.
type Tenor int

const (
	Tenor91  Tenor = 91
	Tenor182 Tenor = 182
	Tenor273 Tenor = 273
	Tenor364 Tenor = 364
)

// Tenors lists every tenor the source publishes, ascending.
var Tenors = []Tenor{Tenor91, Tenor182, Tenor273, Tenor364}

// Valid reports whether the tenor belongs to the published set.
func (t Tenor) Valid() bool {
	switch t {
	case Tenor91, Tenor182, Tenor273, Tenor364:
		return true
	}
	return false
}

// Days returns the tenor length in days.
func (t Tenor) Days() int {
	return int(t)
}

// RecordKey is the natural key of one auction result: session date + tenor.
type RecordKey struct {
	SessionDate time.Time
	Tenor       Tenor
}

// String renders the key in a stable form usable as a cache key.
func (k RecordKey) String() string {
	return fmt.Sprintf("%s:%d", k.SessionDate.Format("2006-01-02"), k.Tenor)
}

// AuctionRecord is one published auction result for one tenor on one
// session date. Yields and amounts are decimals; the session date is a
// calendar date held at UTC midnight.
type AuctionRecord struct {
	SessionDate    time.Time       `json:"session_date"`
	Tenor          Tenor           `json:"tenor"`
	Yield          decimal.Decimal `json:"yield"`           // weighted average accepted yield, percent
	PricePer100    decimal.Decimal `json:"price_per_100"`   // discounted price per 100 face value
	AcceptedAmount decimal.Decimal `json:"accepted_amount"` // total accepted, EGP
	ScrapedAt      time.Time       `json:"scraped_at"`
}

// Key returns the record's natural key.
func (r *AuctionRecord) Key() RecordKey {
	return RecordKey{SessionDate: r.SessionDate, Tenor: r.Tenor}
}

// MaturityDate returns the date the bill pays out.
func (r *AuctionRecord) MaturityDate() time.Time {
	return r.SessionDate.AddDate(0, 0, r.Tenor.Days())
}

// Validate checks the record invariants. Records failing validation must
// never reach a store.
func (r *AuctionRecord) Validate() error {
	if !r.Tenor.Valid() {
		return fmt.Errorf("%w: tenor %d not in published set", ErrInvalidRecord, r.Tenor)
	}
	if r.SessionDate.IsZero() {
		return fmt.Errorf("%w: session date missing", ErrInvalidRecord)
	}
	if !r.Yield.IsPositive() {
		return fmt.Errorf("%w: yield %s must be positive", ErrInvalidRecord, r.Yield)
	}
	if r.PricePer100.IsNegative() {
		return fmt.Errorf("%w: price per 100 %s must not be negative", ErrInvalidRecord, r.PricePer100)
	}
	if r.AcceptedAmount.IsNegative() {
		return fmt.Errorf("%w: accepted amount %s must not be negative", ErrInvalidRecord, r.AcceptedAmount)
	}
	return nil
}

// DiscountPricePer100 computes the discounted price per 100 face value
// implied by a yield (percent) over a number of days, actual/365.
func DiscountPricePer100(yieldPercent decimal.Decimal, days int) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	factor := decimal.NewFromInt(1).Add(
		yieldPercent.Div(hundred).Mul(decimal.NewFromInt(int64(days))).Div(daysInYear),
	)
	return hundred.DivRound(factor, 10)
}
