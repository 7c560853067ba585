package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/database"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// PostgresStore is the remote durable adapter, backed by a pgx connection
// pool. Suitable for shared, long-lived historical data.
type PostgresStore struct {
	db  *database.DB
	log *logger.Logger
}

// NewPostgresStore bootstraps the schema and returns the adapter.
func NewPostgresStore(ctx context.Context, db *database.DB, log *logger.Logger) (*PostgresStore, error) {
	s := &PostgresStore{
		db:  db,
		log: log.Component("store.postgres"),
	}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tbill_auctions (
			session_date    DATE          NOT NULL,
			tenor           INTEGER       NOT NULL,
			yield           NUMERIC(8,4)  NOT NULL,
			price_per_100   NUMERIC(12,6) NOT NULL,
			accepted_amount NUMERIC(20,2) NOT NULL,
			scraped_at      TIMESTAMPTZ   NOT NULL,
			PRIMARY KEY (session_date, tenor)
		)
	`
	if _, err := s.db.Pool.Exec(ctx, query); err != nil {
		return mapPgError(fmt.Errorf("init schema: %w", err))
	}
	return nil
}

// UpsertMany writes the whole batch inside one transaction.
func (s *PostgresStore) UpsertMany(ctx context.Context, records []treasury.AuctionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateBatch(records); err != nil {
		return err
	}

	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPgError(fmt.Errorf("begin upsert tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO tbill_auctions (session_date, tenor, yield, price_per_100, accepted_amount, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_date, tenor) DO UPDATE SET
			yield           = EXCLUDED.yield,
			price_per_100   = EXCLUDED.price_per_100,
			accepted_amount = EXCLUDED.accepted_amount,
			scraped_at      = EXCLUDED.scraped_at
	`
	for i := range records {
		r := &records[i]
		_, err := tx.Exec(ctx, query,
			r.SessionDate, int(r.Tenor),
			r.Yield.String(), r.PricePer100.String(), r.AcceptedAmount.String(),
			r.ScrapedAt,
		)
		if err != nil {
			return mapPgError(fmt.Errorf("upsert %s: %w", r.Key(), err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit upsert tx: %w", err))
	}

	s.log.WithField("count", len(records)).Info("Upserted auction records")
	return nil
}

const pgSelectColumns = `session_date, tenor, yield::text, price_per_100::text, accepted_amount::text, scraped_at`

// Latest returns the most recent record for a tenor.
func (s *PostgresStore) Latest(ctx context.Context, tenor treasury.Tenor) (*treasury.AuctionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tbill_auctions
		WHERE tenor = $1
		ORDER BY session_date DESC
		LIMIT 1
	`, pgSelectColumns)

	rec, err := scanPgRecord(s.db.Pool.QueryRow(ctx, query, int(tenor)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return rec, nil
}

// Range returns records within [from, to] for a tenor, ascending.
func (s *PostgresStore) Range(ctx context.Context, tenor treasury.Tenor, from, to time.Time) ([]treasury.AuctionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tbill_auctions
		WHERE tenor = $1 AND session_date BETWEEN $2 AND $3
		ORDER BY session_date ASC, tenor ASC
	`, pgSelectColumns)

	rows, err := s.db.Pool.Query(ctx, query, int(tenor), from, to)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var records []treasury.AuctionRecord
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, mapPgError(err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return records, nil
}

// Exists reports whether the natural key is stored.
func (s *PostgresStore) Exists(ctx context.Context, key treasury.RecordKey) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tbill_auctions WHERE session_date = $1 AND tenor = $2)`,
		key.SessionDate, int(key.Tenor),
	).Scan(&exists)
	if err != nil {
		return false, mapPgError(err)
	}
	return exists, nil
}

// LatestSessionDate returns the newest session date across all tenors.
func (s *PostgresStore) LatestSessionDate(ctx context.Context) (time.Time, error) {
	var date *time.Time
	err := s.db.Pool.QueryRow(ctx, `SELECT MAX(session_date) FROM tbill_auctions`).Scan(&date)
	if err != nil {
		return time.Time{}, mapPgError(err)
	}
	if date == nil {
		return time.Time{}, ErrNotFound
	}
	return date.UTC(), nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanPgRecord(row pgRow) (*treasury.AuctionRecord, error) {
	var (
		rec       treasury.AuctionRecord
		tenor     int
		yieldStr  string
		priceStr  string
		amountStr string
	)
	if err := row.Scan(&rec.SessionDate, &tenor, &yieldStr, &priceStr, &amountStr, &rec.ScrapedAt); err != nil {
		return nil, err
	}

	rec.Tenor = treasury.Tenor(tenor)
	rec.SessionDate = rec.SessionDate.UTC()

	var err error
	if rec.Yield, err = decimal.NewFromString(yieldStr); err != nil {
		return nil, fmt.Errorf("decode yield: %w", err)
	}
	if rec.PricePer100, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("decode price: %w", err)
	}
	if rec.AcceptedAmount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	return &rec, nil
}

// mapPgError folds pgx errors into the storage taxonomy: integrity-class
// SQLSTATEs become ErrConstraint, everything transport-shaped becomes
// ErrUnavailable.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") || strings.HasPrefix(pgErr.Code, "22") {
			return errors.Join(ErrConstraint, err)
		}
		return errors.Join(ErrUnavailable, err)
	}

	return errors.Join(ErrUnavailable, err)
}
