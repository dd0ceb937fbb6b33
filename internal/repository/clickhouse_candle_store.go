package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"QuantDesk/internal/domain/models"
	domrepo "QuantDesk/internal/domain/repository"
	pkgch "QuantDesk/pkg/clickhouse"
	applogger "QuantDesk/pkg/logger"
)

// CHCandleStore implements CandleSource backed by the ClickHouse
// candles_<tf> aggregate tables.
type CHCandleStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), database: ch.Database(), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

const candleColumns = "toUnixTimestamp64Milli(toDateTime64(bucket, 3)) AS ts, open, high, low, close, volume"

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `, candleColumns, table)
	return s.query(ctx, "get_candles", table, symbol, tf, false, q, symbol, from.UTC(), to.UTC())
}

// GetLatestNCandles reads the newest n bars and returns them oldest first.
func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `, candleColumns, table)
	return s.query(ctx, "latest_candles", table, symbol, tf, true, q, symbol, n)
}

func (s *CHCandleStore) query(ctx context.Context, op, table, symbol string, tf domrepo.Timeframe, reverse bool, q string, args ...interface{}) ([]models.Candle, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}
	fail := func(stage string, err error) ([]models.Candle, error) {
		s.l.Error("clickhouse "+op+" "+stage+" error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s %s: %w", op, stage, err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fail("query", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 512)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return fail("scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return fail("rows", err)
	}
	if reverse {
		reverseCandles(out)
	}

	s.l.Debug("clickhouse "+op+" ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

func tableForTF(database string, tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", database, tf), nil
}
