package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"PortfolioPulse/internal/model"
)

// SQLiteStore persists prices to a SQLite database in WAL mode. Concurrent
// writers wait on the database lock through busy_timeout.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// SQLiteDSN returns the DSN used for dbPath. Pragmas are applied to every
// pooled connection.
func SQLiteDSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("sqlite price store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			ticker         TEXT    NOT NULL,
			trade_date     TEXT    NOT NULL,
			open           TEXT,
			high           TEXT,
			low            TEXT,
			close          TEXT    NOT NULL,
			volume         INTEGER,
			adjusted_close TEXT,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (ticker, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const sqliteUpsert = `INSERT INTO prices
	(ticker, trade_date, open, high, low, close, volume, adjusted_close, updated_at)
	VALUES (?,?,?,?,?,?,?,?,?)
	ON CONFLICT(ticker, trade_date) DO UPDATE SET
		open           = COALESCE(excluded.open, prices.open),
		high           = COALESCE(excluded.high, prices.high),
		low            = COALESCE(excluded.low, prices.low),
		close          = excluded.close,
		volume         = COALESCE(excluded.volume, prices.volume),
		adjusted_close = COALESCE(excluded.adjusted_close, prices.adjusted_close),
		updated_at     = excluded.updated_at
	RETURNING ticker, trade_date, open, high, low, close, volume, adjusted_close, updated_at`

// Upsert validates obs and inserts or merges it into the stored row.
func (s *SQLiteStore) Upsert(ctx context.Context, obs model.PriceObservation) (model.StoredPrice, error) {
	if err := Validate(obs); err != nil {
		return model.StoredPrice{}, err
	}
	row := s.db.QueryRowContext(ctx, sqliteUpsert,
		obs.Ticker, obs.Date.Format(model.DateLayout),
		decimalArg(obs.Open), decimalArg(obs.High), decimalArg(obs.Low), decimalArg(obs.Close),
		volumeArg(obs.Volume), decimalArg(obs.AdjustedClose),
		s.now().Unix(),
	)
	sp, err := scanSQLite(row)
	if err != nil {
		return model.StoredPrice{}, persistenceError(obs.Ticker, "upsert", err)
	}
	return sp, nil
}

// Range returns stored prices for ticker within [from, to], oldest first.
func (s *SQLiteStore) Range(ctx context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker, trade_date, open, high, low, close, volume, adjusted_close, updated_at
		FROM prices WHERE ticker = ? AND trade_date BETWEEN ? AND ? ORDER BY trade_date`,
		ticker, from.Format(model.DateLayout), to.Format(model.DateLayout))
	if err != nil {
		return nil, persistenceError(ticker, "query range", err)
	}
	defer rows.Close()

	var out []model.StoredPrice
	for rows.Next() {
		sp, err := scanSQLite(rows)
		if err != nil {
			return nil, persistenceError(ticker, "scan range", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(ticker, "iterate range", err)
	}
	return out, nil
}

// StoredDays returns the trading days stored for ticker within [from, to],
// oldest first.
func (s *SQLiteStore) StoredDays(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_date FROM prices
		WHERE ticker = ? AND trade_date BETWEEN ? AND ? ORDER BY trade_date`,
		ticker, from.Format(model.DateLayout), to.Format(model.DateLayout))
	if err != nil {
		return nil, persistenceError(ticker, "query stored days", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, persistenceError(ticker, "scan stored day", err)
		}
		d, err := model.ParseDay(raw)
		if err != nil {
			return nil, persistenceError(ticker, "parse stored day", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(ticker, "iterate stored days", err)
	}
	return days, nil
}

func (s *SQLiteStore) SQLDB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite price store")
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (model.StoredPrice, error) {
	var (
		r       priceRow
		day     string
		updated int64
	)
	if err := sc.Scan(&r.ticker, &day, &r.open, &r.high, &r.low, &r.close, &r.volume, &r.adjClose, &updated); err != nil {
		return model.StoredPrice{}, err
	}
	date, err := model.ParseDay(day)
	if err != nil {
		return model.StoredPrice{}, fmt.Errorf("trade_date: %w", err)
	}
	return r.toStored(date, time.Unix(updated, 0).UTC())
}
