// candle_export pulls a candle range out of ClickHouse into the CSV layout
// the signal runner consumes, and can derive coarser intervals in place.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/clickhouse"
)

func main() {
	symbol := flag.String("symbol", "", "Trading symbol")
	interval := flag.String("interval", "5m", "Candle interval")
	from := flag.String("from", "", "Start UTC (YYYY-MM-DD HH:MM:SS), empty for epoch")
	to := flag.String("to", "", "End UTC (YYYY-MM-DD HH:MM:SS), empty for open-ended")
	out := flag.String("out", "", "Output CSV path")
	derive := flag.String("derive", "", "Derive this interval from -interval inside ClickHouse and exit")
	flag.Parse()

	ctx := context.Background()
	cli, err := clickhouse.Open(ctx, clickhouse.LoadConfig())
	if err != nil {
		die(err)
	}
	defer cli.Close()

	if *derive != "" {
		if err := cli.DeriveTimeframe(ctx, *interval, *derive); err != nil {
			die(err)
		}
		fmt.Printf("derived %s from %s\n", *derive, *interval)
		return
	}

	if *symbol == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: candle_export -symbol BTCUSDT -interval 5m [-from ... -to ...] -out bars.csv")
		os.Exit(2)
	}

	fromMs, err := parseUTC(*from, 0)
	if err != nil {
		die(err)
	}
	toMs, err := parseUTC(*to, -1)
	if err != nil {
		die(err)
	}

	bars, err := cli.Bars(ctx, *symbol, *interval, fromMs, toMs)
	if err != nil {
		die(err)
	}

	f, err := os.Create(*out)
	if err != nil {
		die(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	w.WriteString("timestamp,open,high,low,close,volume\n")
	for _, b := range bars {
		fmt.Fprintf(w, "%d,%s,%s,%s,%s,%s\n",
			b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := w.Flush(); err != nil {
		die(err)
	}
	fmt.Printf("exported %d %s/%s bars to %s\n", len(bars), *symbol, *interval, *out)
}

func parseUTC(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC().UnixMilli(), nil
}

func die(err error) {
	fmt.Fprintln(os.Stderr, clickhouse.Explain(err))
	os.Exit(1)
}
