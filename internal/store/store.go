// Package store persists price observations keyed by (ticker, trade date).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"PortfolioPulse/internal/model"
)

// PriceStore is the system of record for price history.
//
// Upsert is idempotent by (ticker, date): populated fields of a later call
// win, absent fields keep what is already stored. Calls for different keys
// may run concurrently; calls for the same key are serialized by the
// database.
type PriceStore interface {
	Upsert(ctx context.Context, obs model.PriceObservation) (model.StoredPrice, error)
	Range(ctx context.Context, ticker string, from, to time.Time) ([]model.StoredPrice, error)
	// StoredDays lists the stored trading days of ticker in [from, to],
	// oldest first.
	StoredDays(ctx context.Context, ticker string, from, to time.Time) ([]time.Time, error)
	// SQLDB exposes the underlying handle for read-only collaborators
	// sharing the database, such as the company registry.
	SQLDB() *sql.DB
	Close() error
}

// Validate rejects observations that must never reach storage.
func Validate(obs model.PriceObservation) error {
	switch {
	case obs.Ticker == "":
		return model.Errorf(model.KindInvalidObservation, obs.Ticker, "empty ticker")
	case obs.Date.IsZero():
		return model.Errorf(model.KindInvalidObservation, obs.Ticker, "missing date")
	case !obs.Close.Valid:
		return model.Errorf(model.KindInvalidObservation, obs.Ticker, "missing close for %s", obs.Date.Format(model.DateLayout))
	case obs.Volume != nil && *obs.Volume < 0:
		return model.Errorf(model.KindInvalidObservation, obs.Ticker, "negative volume %d", *obs.Volume)
	}
	return nil
}

func persistenceError(ticker string, op string, err error) error {
	return model.NewError(model.KindPersistenceFailure, ticker, fmt.Errorf("%s: %w", op, err))
}

// decimalArg renders a nullable decimal as a nullable SQL text argument.
func decimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func volumeArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return model.Decimal(d), nil
}

// priceRow holds the nullable text form shared by both backends.
type priceRow struct {
	ticker   string
	open     *string
	high     *string
	low      *string
	close    string
	volume   *int64
	adjClose *string
}

func (r priceRow) toStored(date, updated time.Time) (model.StoredPrice, error) {
	sp := model.StoredPrice{
		Ticker:    r.ticker,
		Date:      date,
		Volume:    r.volume,
		UpdatedAt: updated,
	}
	var err error
	if sp.Open, err = parseNullDecimal(r.open); err != nil {
		return sp, fmt.Errorf("open: %w", err)
	}
	if sp.High, err = parseNullDecimal(r.high); err != nil {
		return sp, fmt.Errorf("high: %w", err)
	}
	if sp.Low, err = parseNullDecimal(r.low); err != nil {
		return sp, fmt.Errorf("low: %w", err)
	}
	if sp.Close, err = decimal.NewFromString(r.close); err != nil {
		return sp, fmt.Errorf("close: %w", err)
	}
	sp.AdjustedClose = sp.Close
	if r.adjClose != nil && *r.adjClose != "" {
		if sp.AdjustedClose, err = decimal.NewFromString(*r.adjClose); err != nil {
			return sp, fmt.Errorf("adjusted_close: %w", err)
		}
	}
	return sp, nil
}
