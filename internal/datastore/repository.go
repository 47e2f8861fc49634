package datastore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/chensirou3/Multi-factor-combination/internal/bar"
)

// Querier is the subset of pgxpool.Pool used for reads.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TimescaleRepository loads bars from the joint_bars hypertable.
type TimescaleRepository struct {
	db       Querier
	interval time.Duration
}

// NewTimescaleRepository creates a new TimescaleRepository.
func NewTimescaleRepository(db Querier, interval time.Duration) *TimescaleRepository {
	return &TimescaleRepository{db: db, interval: interval}
}

const selectBarsQuery = `
        SELECT time, open, high, low, close, volume, manip_z, ofi_z, ofi_abs_z
        FROM joint_bars
        WHERE symbol = $1
        ORDER BY time ASC;
    `

// LoadSeries implements Source.
func (r *TimescaleRepository) LoadSeries(ctx context.Context, symbol string) (*bar.Series, error) {
	rows, err := r.db.Query(ctx, selectBarsQuery, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query joint_bars: %w", err)
	}
	defer rows.Close()

	var bars []bar.Bar
	for rows.Next() {
		var b bar.Bar
		var manip, ofi, ofiAbs pgtype.Float8
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &manip, &ofi, &ofiAbs); err != nil {
			return nil, fmt.Errorf("failed to scan joint_bars row: %w", err)
		}
		b.Time = b.Time.UTC()
		b.ManipZ = nullable(manip)
		b.OFIZ = nullable(ofi)
		b.OFIAbsZ = nullable(ofiAbs)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series, err := bar.NewSeries(symbol, r.interval, bars)
	if err != nil {
		return nil, err
	}
	logQuality(series)
	return series, nil
}

func nullable(v pgtype.Float8) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
