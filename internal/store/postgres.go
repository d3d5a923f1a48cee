package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"PortfolioPulse/internal/model"
)

// PostgresStore persists prices to PostgreSQL through a pgx pool. The
// ON CONFLICT clause takes the row lock that serializes same-key writers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore connects to databaseURL and runs migrations.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool, db: stdlib.OpenDBFromPool(pool), logger: logger}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("postgres price store opened")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			ticker         TEXT        NOT NULL,
			trade_date     DATE        NOT NULL,
			open           NUMERIC,
			high           NUMERIC,
			low            NUMERIC,
			close          NUMERIC     NOT NULL,
			volume         BIGINT,
			adjusted_close NUMERIC,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (ticker, trade_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_date ON prices(trade_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

const pgColumns = `ticker, trade_date, open::text, high::text, low::text, close::text, volume, adjusted_close::text, updated_at`

const pgUpsert = `INSERT INTO prices
	(ticker, trade_date, open, high, low, close, volume, adjusted_close, updated_at)
	VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, $8::numeric, now())
	ON CONFLICT (ticker, trade_date) DO UPDATE SET
		open           = COALESCE(EXCLUDED.open, prices.open),
		high           = COALESCE(EXCLUDED.high, prices.high),
		low            = COALESCE(EXCLUDED.low, prices.low),
		close          = EXCLUDED.close,
		volume         = COALESCE(EXCLUDED.volume, prices.volume),
		adjusted_close = COALESCE(EXCLUDED.adjusted_close, prices.adjusted_close),
		updated_at     = EXCLUDED.updated_at
	RETURNING ` + pgColumns

func (s *PostgresStore) Upsert(ctx context.Context, obs model.PriceObservation) (model.StoredPrice, error) {
	if err := Validate(obs); err != nil {
		return model.StoredPrice{}, err
	}
	row := s.pool.QueryRow(ctx, pgUpsert,
		obs.Ticker, obs.Date,
		decimalArg(obs.Open), decimalArg(obs.High), decimalArg(obs.Low), decimalArg(obs.Close),
		volumeArg(obs.Volume), decimalArg(obs.AdjustedClose),
	)
	sp, err := scanPostgres(row)
	if err != nil {
		return model.StoredPrice{}, persistenceError(obs.Ticker, "upsert", err)
	}
	return sp, nil
}

func (s *PostgresStore) Range(ctx context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM prices
		WHERE ticker = $1 AND trade_date BETWEEN $2 AND $3 ORDER BY trade_date`, ticker, from, to)
	if err != nil {
		return nil, persistenceError(ticker, "query range", err)
	}
	defer rows.Close()

	var out []model.StoredPrice
	for rows.Next() {
		sp, err := scanPostgres(rows)
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

func (s *PostgresStore) StoredDays(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT trade_date FROM prices
		WHERE ticker = $1 AND trade_date BETWEEN $2 AND $3 ORDER BY trade_date`, ticker, from, to)
	if err != nil {
		return nil, persistenceError(ticker, "query stored days", err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var d time.Time
		err := row.Scan(&d)
		return model.TradingDay(d), err
	})
	if err != nil {
		return nil, persistenceError(ticker, "scan stored days", err)
	}
	return days, nil
}

func (s *PostgresStore) SQLDB() *sql.DB { return s.db }

func (s *PostgresStore) Close() error {
	s.logger.Info("closing postgres price store")
	err := s.db.Close()
	s.pool.Close()
	return err
}

func scanPostgres(row pgx.Row) (model.StoredPrice, error) {
	var (
		r       priceRow
		day     time.Time
		updated time.Time
	)
	if err := row.Scan(&r.ticker, &day, &r.open, &r.high, &r.low, &r.close, &r.volume, &r.adjClose, &updated); err != nil {
		return model.StoredPrice{}, err
	}
	return r.toStored(model.TradingDay(day), updated)
}
