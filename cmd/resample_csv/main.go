// resample_csv aggregates a candle CSV into a coarser cadence with
// epoch-aligned buckets and writes the result as CSV.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/timeframe"
)

func main() {
	in := flag.String("in", "", "Input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	src := flag.String("src", "5m", "Source cadence (e.g. 5m)")
	dst := flag.String("dst", "15m", "Target cadence (e.g. 15m)")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: resample_csv -in bars.csv -out bars_15m.csv -src 5m -dst 15m")
		os.Exit(2)
	}

	srcMs, err := timeframe.Parse(*src)
	if err != nil {
		die(err)
	}
	dstMs, err := timeframe.Parse(*dst)
	if err != nil {
		die(err)
	}
	if dstMs <= srcMs || dstMs%srcMs != 0 {
		die(fmt.Errorf("dst %s must be a coarser multiple of src %s", *dst, *src))
	}

	bars, rep, err := market.LoadCSV(*in)
	if err != nil {
		die(err)
	}
	if rep.CadenceMs != 0 && rep.CadenceMs != srcMs {
		fmt.Fprintf(os.Stderr, "warning: detected cadence %dms differs from -src %dms\n", rep.CadenceMs, srcMs)
	}

	agg := timeframe.Resample(bars, dstMs)

	f, err := os.Create(*out)
	if err != nil {
		die(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	w.WriteString("timestamp,open,high,low,close,volume\n")
	for _, b := range agg {
		fmt.Fprintf(w, "%d,%s,%s,%s,%s,%s\n",
			b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := w.Flush(); err != nil {
		die(err)
	}
	fmt.Printf("wrote %d %s bars from %d %s bars\n", len(agg), *dst, len(bars), *src)
}

func die(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
