package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alqatri/tbilltracker/internal/treasury"
	"github.com/alqatri/tbilltracker/pkg/logger"
)

// SQLiteStore is the embedded local adapter: a single file holding the
// historical dataset, suitable for single-process offline use. Semantics are
// identical to the remote adapter so the two stay interchangeable.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteStore opens (creating if needed) the database file and
// bootstraps the schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string, log *logger.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Join(ErrUnavailable, fmt.Errorf("create data dir: %w", err))
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, fmt.Errorf("open sqlite: %w", err))
	}

	// SQLite allows one writer; a single connection serializes access and
	// keeps :memory: databases from evaporating between calls.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:  db,
		log: log.Component("store.sqlite"),
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tbill_auctions (
			session_date    TEXT    NOT NULL,
			tenor           INTEGER NOT NULL,
			yield           TEXT    NOT NULL,
			price_per_100   TEXT    NOT NULL,
			accepted_amount TEXT    NOT NULL,
			scraped_at      TEXT    NOT NULL,
			PRIMARY KEY (session_date, tenor)
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("init schema: %w", err))
	}
	return nil
}

const dateLayout = "2006-01-02"

// UpsertMany writes the whole batch inside one transaction.
func (s *SQLiteStore) UpsertMany(ctx context.Context, records []treasury.AuctionRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateBatch(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("begin upsert tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO tbill_auctions (session_date, tenor, yield, price_per_100, accepted_amount, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_date, tenor) DO UPDATE SET
			yield           = excluded.yield,
			price_per_100   = excluded.price_per_100,
			accepted_amount = excluded.accepted_amount,
			scraped_at      = excluded.scraped_at
	`
	for i := range records {
		r := &records[i]
		_, err := tx.ExecContext(ctx, query,
			r.SessionDate.Format(dateLayout), int(r.Tenor),
			r.Yield.String(), r.PricePer100.String(), r.AcceptedAmount.String(),
			r.ScrapedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return errors.Join(ErrUnavailable, fmt.Errorf("upsert %s: %w", r.Key(), err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("commit upsert tx: %w", err))
	}

	s.log.WithField("count", len(records)).Info("Upserted auction records")
	return nil
}

const sqliteSelectColumns = `session_date, tenor, yield, price_per_100, accepted_amount, scraped_at`

// Latest returns the most recent record for a tenor.
func (s *SQLiteStore) Latest(ctx context.Context, tenor treasury.Tenor) (*treasury.AuctionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tbill_auctions
		WHERE tenor = ?
		ORDER BY session_date DESC
		LIMIT 1
	`, sqliteSelectColumns)

	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, int(tenor)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	return rec, nil
}

// Range returns records within [from, to] for a tenor, ascending.
func (s *SQLiteStore) Range(ctx context.Context, tenor treasury.Tenor, from, to time.Time) ([]treasury.AuctionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tbill_auctions
		WHERE tenor = ? AND session_date BETWEEN ? AND ?
		ORDER BY session_date ASC, tenor ASC
	`, sqliteSelectColumns)

	rows, err := s.db.QueryContext(ctx, query,
		int(tenor), from.Format(dateLayout), to.Format(dateLayout),
	)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer rows.Close()

	var records []treasury.AuctionRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, errors.Join(ErrUnavailable, err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return records, nil
}

// Exists reports whether the natural key is stored.
func (s *SQLiteStore) Exists(ctx context.Context, key treasury.RecordKey) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tbill_auctions WHERE session_date = ? AND tenor = ?`,
		key.SessionDate.Format(dateLayout), int(key.Tenor),
	).Scan(&count)
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return count > 0, nil
}

// LatestSessionDate returns the newest session date across all tenors.
func (s *SQLiteStore) LatestSessionDate(ctx context.Context) (time.Time, error) {
	var dateStr sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(session_date) FROM tbill_auctions`).Scan(&dateStr)
	if err != nil {
		return time.Time{}, errors.Join(ErrUnavailable, err)
	}
	if !dateStr.Valid {
		return time.Time{}, ErrNotFound
	}

	date, err := time.ParseInLocation(dateLayout, dateStr.String, time.UTC)
	if err != nil {
		return time.Time{}, errors.Join(ErrConstraint, fmt.Errorf("malformed session date %q: %w", dateStr.String, err))
	}
	return date, nil
}

// Close releases the database file.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row sqliteRow) (*treasury.AuctionRecord, error) {
	var (
		rec        treasury.AuctionRecord
		tenor      int
		dateStr    string
		yieldStr   string
		priceStr   string
		amountStr  string
		scrapedStr string
	)
	if err := row.Scan(&dateStr, &tenor, &yieldStr, &priceStr, &amountStr, &scrapedStr); err != nil {
		return nil, err
	}

	rec.Tenor = treasury.Tenor(tenor)

	var err error
	if rec.SessionDate, err = time.ParseInLocation(dateLayout, dateStr, time.UTC); err != nil {
		return nil, fmt.Errorf("decode session date: %w", err)
	}
	if rec.ScrapedAt, err = time.Parse(time.RFC3339Nano, scrapedStr); err != nil {
		return nil, fmt.Errorf("decode scraped at: %w", err)
	}
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
