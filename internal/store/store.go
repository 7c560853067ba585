package store

import (
	"context"
	"errors"
	"time"

	"github.com/alqatri/tbilltracker/internal/treasury"
)

// Storage failure taxonomy, distinguishable from caller logic errors.
var (
	// ErrUnavailable covers connection and transport failures. The backend
	// state is untouched when it is returned.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrConstraint indicates an invariant breach at the storage layer, e.g.
	// a record that fails validation or a malformed key. Not retryable.
	ErrConstraint = errors.New("storage constraint violation")

	// ErrNotFound is returned by point reads over an empty dataset.
	ErrNotFound = errors.New("record not found")
)

// Store is the narrow port every storage backend implements. Adapters own
// their connection lifecycle and share no state with each other.
//
// UpsertMany is transactional per call: either the whole batch commits or
// none of it does, and concurrent readers never observe a torn write.
// Concurrent upserts over overlapping natural keys resolve to
// last-committed-wins through backend-native transactions.
type Store interface {
	// UpsertMany inserts or replaces records by natural key. Idempotent
	// under repetition.
	UpsertMany(ctx context.Context, records []treasury.AuctionRecord) error

	// Latest returns the most recent record for a tenor, or ErrNotFound.
	Latest(ctx context.Context, tenor treasury.Tenor) (*treasury.AuctionRecord, error)

	// Range returns records for a tenor within [from, to], ascending by
	// session date, ties broken by tenor.
	Range(ctx context.Context, tenor treasury.Tenor, from, to time.Time) ([]treasury.AuctionRecord, error)

	// Exists reports whether a record with the given natural key is stored.
	Exists(ctx context.Context, key treasury.RecordKey) (bool, error)

	// LatestSessionDate returns the newest session date across all tenors,
	// or ErrNotFound on an empty dataset. The orchestrator uses it to decide
	// incremental vs forced refresh.
	LatestSessionDate(ctx context.Context) (time.Time, error)

	Close() error
}

// validateBatch rejects a batch before it touches a backend.
func validateBatch(records []treasury.AuctionRecord) error {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return errors.Join(ErrConstraint, err)
		}
	}
	return nil
}
