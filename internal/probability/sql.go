package probability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Alias1177/RateWatcher/models"
)

// QueryRower is satisfied by *sql.DB and *sql.Tx.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLEstimator runs the estimate as a single aggregate query against the rates table.
type SQLEstimator struct {
	db       QueryRower
	lookback time.Duration
	horizon  time.Duration
	k        float64
}

func NewSQLEstimator(db QueryRower, lookback time.Duration) *SQLEstimator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &SQLEstimator{db: db, lookback: lookback, horizon: Horizon, k: BandWidth}
}

const reversionQuery = `
WITH bands AS (
	SELECT r.timestamp,
	       r.rate,
	       AVG(r.rate) OVER w AS ma,
	       STDDEV_SAMP(r.rate) OVER w AS std,
	       COUNT(*) OVER w AS n
	FROM rates r
	WHERE r.timestamp >= COALESCE((
	          SELECT MIN(p.timestamp)
	          FROM (
	              SELECT timestamp
	              FROM rates
	              WHERE timestamp < $1::timestamptz
	              ORDER BY timestamp DESC
	              LIMIT %d
	          ) p
	      ), $1::timestamptz)
	WINDOW w AS (ORDER BY r.timestamp ROWS BETWEEN %d PRECEDING AND CURRENT ROW)
),
breaks AS (
	SELECT b.timestamp AS break_time,
	       %s AS band
	FROM bands b
	WHERE b.n = %d
	  AND b.timestamp >= $1::timestamptz
	  AND b.timestamp <= $4::timestamptz
	  AND %s BETWEEN $2::double precision - $3::double precision
	             AND $2::double precision + $3::double precision
),
flagged AS (
	SELECT b.break_time,
	       EXISTS (
	           SELECT 1
	           FROM rates r2
	           WHERE r2.timestamp > b.break_time
	             AND r2.timestamp <= b.break_time + $5::double precision * INTERVAL '1 second'
	             AND r2.rate %s b.band
	       ) AS reverted
	FROM breaks b
)
SELECT COUNT(*) AS matched,
       COUNT(*) FILTER (WHERE reverted) AS reverted
FROM flagged`

func buildReversionQuery(side models.BreakoutType, window int) string {
	band := "(b.ma + $6::double precision * b.std)"
	deviation := "b.rate - (b.ma + $6::double precision * b.std)"
	cmp := "<="
	if side == models.LowerBreakout {
		band = "(b.ma - $6::double precision * b.std)"
		deviation = "(b.ma - $6::double precision * b.std) - b.rate"
		cmp = ">="
	}
	return fmt.Sprintf(reversionQuery, window-1, window-1, band, window, deviation, cmp)
}

func (e *SQLEstimator) Estimate(ctx context.Context, q Query) (Result, error) {
	if err := q.validate(); err != nil {
		return Result{}, err
	}
	if q.At.IsZero() {
		q.At = time.Now()
	}

	var matched, reverted int
	err := e.db.QueryRowContext(ctx, buildReversionQuery(q.Side, q.Window),
		q.At.Add(-e.lookback),
		q.Deviation,
		q.Tolerance,
		q.At,
		e.horizon.Seconds(),
		e.k,
	).Scan(&matched, &reverted)
	if err != nil {
		return Result{}, fmt.Errorf("querying reversion probability: %w", err)
	}

	return newResult(matched, reverted), nil
}
