// Package clickhouse wraps the native driver for candle storage. It knows
// the one table layout the tools read and write; query shaping lives here
// so the commands stay thin.
package clickhouse

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

// Config via env, same knobs across all tools.
type Config struct {
	DSN      string
	Database string
	Table    string
	User     string
	Password string
}

func env(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// LoadConfig reads connection settings from the environment with local
// defaults.
func LoadConfig() Config {
	return Config{
		DSN:      env("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000?secure=false&compress=lz4"),
		Database: env("CH_DATABASE", "market"),
		Table:    env("CH_TABLE", "candles"),
		User:     env("CH_USER", "default"),
		Password: env("CH_PASSWORD", ""),
	}
}

// dsnHost extracts host:port from a DSN-like URL for driver bootstrap.
func dsnHost(dsn string) string {
	host := "localhost:9000"
	if i := strings.Index(dsn, "@"); i != -1 {
		rest := dsn[i+1:]
		if j := strings.Index(rest, "?"); j != -1 {
			host = rest[:j]
		} else {
			host = rest
		}
		host = strings.TrimPrefix(host, "/")
		host = strings.TrimPrefix(host, "//")
	}
	return host
}

// Client holds one native connection.
type Client struct {
	conn ch.Conn
	cfg  Config
}

// Open connects and pings.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{dsnHost(cfg.DSN)},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "clickhouse open")
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, pkgerrors.Wrapf(err, "clickhouse ping (%s)", Explain(err))
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// EnsureSchema creates the database and candle table if missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.cfg.Database)); err != nil {
		return pkgerrors.Wrap(err, "create database")
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol String,
			interval LowCardinality(String),
			open_time_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time_ms)
		SETTINGS index_granularity = 8192
	`, c.cfg.Database, c.cfg.Table)
	return pkgerrors.Wrap(c.conn.Exec(ctx, ddl), "create table")
}

// Bars reads an ordered candle range. fromMs/toMs are inclusive open-time
// bounds; pass to <= 0 for an open upper bound.
func (c *Client) Bars(ctx context.Context, symbol, interval string, fromMs, toMs int64) ([]market.Bar, error) {
	q := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ?`, c.cfg.Database, c.cfg.Table)
	args := []any{symbol, interval, uint64(fromMs)}
	if toMs > 0 {
		q += " AND open_time_ms <= ?"
		args = append(args, uint64(toMs))
	}
	q += " ORDER BY open_time_ms"

	rows, err := c.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, pkgerrors.Wrapf(market.ErrData, "candle query: %s", Explain(err))
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var (
			ts             uint64
			o, h, l, cl, v float64
		)
		if err := rows.Scan(&ts, &o, &h, &l, &cl, &v); err != nil {
			return nil, pkgerrors.Wrapf(market.ErrData, "candle scan: %v", err)
		}
		bars = append(bars, market.Bar{
			Timestamp: int64(ts),
			Open:      decimal.NewFromFloat(o),
			High:      decimal.NewFromFloat(h),
			Low:       decimal.NewFromFloat(l),
			Close:     decimal.NewFromFloat(cl),
			Volume:    decimal.NewFromFloat(v),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrapf(market.ErrData, "candle rows: %v", err)
	}
	if len(bars) == 0 {
		return nil, pkgerrors.Wrapf(market.ErrData, "no %s/%s candles in range", symbol, interval)
	}
	return bars, nil
}

// InsertBars writes a batch of candles with dedup on. All rows get the same
// version so ReplacingMergeTree keeps the latest load.
func (c *Client) InsertBars(ctx context.Context, symbol, interval string, bars []market.Bar) error {
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s SETTINGS insert_deduplicate=1", c.cfg.Database, c.cfg.Table))
	if err != nil {
		return pkgerrors.Wrap(err, "prepare batch")
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range bars {
		o, _ := b.Open.Float64()
		h, _ := b.High.Float64()
		l, _ := b.Low.Float64()
		cl, _ := b.Close.Float64()
		v, _ := b.Volume.Float64()
		if err := batch.Append(symbol, interval, uint64(b.Timestamp), o, h, l, cl, v, now, ver); err != nil {
			return pkgerrors.Wrap(err, "batch append")
		}
	}
	return pkgerrors.Wrap(batch.Send(), "batch send")
}

// DeriveTimeframe aggregates a finer interval into a coarser one inside
// ClickHouse, idempotent under re-runs.
func (c *Client) DeriveTimeframe(ctx context.Context, fromInterval, toInterval string) error {
	fromStep, err := timeframe.Parse(fromInterval)
	if err != nil {
		return err
	}
	toStep, err := timeframe.Parse(toInterval)
	if err != nil {
		return err
	}
	if toStep <= fromStep || toStep%fromStep != 0 {
		return pkgerrors.Errorf("cannot derive %s from %s", toInterval, fromInterval)
	}
	minutes := toStep / 60000

	q := fmt.Sprintf(`
        INSERT INTO %s.%s SETTINGS insert_deduplicate=1
        SELECT
            symbol,
            '%s' AS interval,
            toUInt64(toUnixTimestamp(start_ts) * 1000) AS open_time_ms,
            argMin(open, open_time_ms)  AS open,
            max(high)                   AS high,
            min(low)                    AS low,
            argMax(close, open_time_ms) AS close,
            sum(volume)                 AS volume,
            now64(3)                    AS ingested_at,
            toUInt64(toUnixTimestamp64Nano(now64(9))) AS version
        FROM (
            SELECT
                symbol,
                open_time_ms,
                open, high, low, close, volume,
                toStartOfInterval(toDateTime(open_time_ms / 1000), INTERVAL %d MINUTE) AS start_ts
            FROM %s.%s
            WHERE interval = '%s'
        )
        GROUP BY symbol, start_ts
    `, c.cfg.Database, c.cfg.Table, timeframe.Canonical(toStep), minutes, c.cfg.Database, c.cfg.Table, timeframe.Canonical(fromStep))

	return pkgerrors.Wrap(c.conn.Exec(ctx, q), "derive insert")
}

// Explain unwraps server exceptions into a readable form.
func Explain(err error) string {
	var ex *chproto.Exception
	if pkgerrors.As(err, &ex) {
		return fmt.Sprintf("ClickHouse [%d] %s (%s)", ex.Code, ex.Message, ex.Name)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
