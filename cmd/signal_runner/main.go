// signal_runner evaluates a strategy descriptor against a candle CSV and
// prints the signal report as JSON.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mdthewzrd/wzrd-algo-sub001/services/engine"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/logging"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/market"
	"github.com/mdthewzrd/wzrd-algo-sub001/services/strategy"
)

// runConfig mirrors the flag set so runs can be described in a YAML file.
// Flags set explicitly on the command line win over file values.
type runConfig struct {
	Strategy  string `yaml:"strategy"`
	CSV       string `yaml:"csv"`
	Out       string `yaml:"out"`
	EndOfData string `yaml:"end_of_data"`
	Fill      string `yaml:"fill"`
	LogLevel  string `yaml:"log_level"`
}

func main() {
	cfgPath := flag.String("config", "", "Optional YAML run config")
	stratPath := flag.String("strategy", "", "Strategy descriptor JSON")
	csvPath := flag.String("csv", "", "Candle CSV (timestamp,open,high,low,close,volume)")
	outPath := flag.String("out", "", "Report output path (default stdout)")
	eod := flag.String("eod", "", "End-of-data policy: report or drop")
	fill := flag.String("fill", "close", "Entry fill rule: close or next_open")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	cfg := runConfig{Fill: "close", LogLevel: "info"}
	if *cfgPath != "" {
		raw, err := os.ReadFile(*cfgPath)
		if err != nil {
			fatal(fmt.Errorf("read config: %w", err), "")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			fatal(fmt.Errorf("parse config: %w", err), "")
		}
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["strategy"] || cfg.Strategy == "" {
		cfg.Strategy = *stratPath
	}
	if set["csv"] || cfg.CSV == "" {
		cfg.CSV = *csvPath
	}
	if set["out"] {
		cfg.Out = *outPath
	}
	if set["eod"] || cfg.EndOfData == "" {
		cfg.EndOfData = *eod
	}
	if set["fill"] || cfg.Fill == "" {
		cfg.Fill = *fill
	}
	if set["log-level"] || cfg.LogLevel == "" {
		cfg.LogLevel = *logLevel
	}

	if cfg.Strategy == "" || cfg.CSV == "" {
		fmt.Fprintln(os.Stderr, "usage: signal_runner -strategy s.json -csv bars.csv -eod report|drop [-fill close|next_open] [-out report.json]")
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fatal(err, cfg.Out)
	}
	defer log.Sync()

	desc, err := strategy.Load(cfg.Strategy)
	if err != nil {
		fatal(err, cfg.Out)
	}
	compiled, err := desc.Compile()
	if err != nil {
		fatal(err, cfg.Out)
	}

	bars, loadRep, err := market.LoadCSV(cfg.CSV)
	if err != nil {
		fatal(err, cfg.Out)
	}
	log.Info("csv loaded",
		zap.Int("parsed", loadRep.Parsed),
		zap.Int("skipped", loadRep.Skipped),
		zap.Int("deduped", loadRep.Deduped),
		zap.Int64("cadence_ms", loadRep.CadenceMs),
		zap.Int("gaps", len(loadRep.GapStarts)))

	eng, err := engine.New(engine.Config{
		EndOfData: engine.EndOfDataPolicy(cfg.EndOfData),
		Fill:      engine.FillRule(cfg.Fill),
	}, log)
	if err != nil {
		fatal(err, cfg.Out)
	}

	res, err := eng.Run(bars, compiled)
	if err != nil {
		fatal(err, cfg.Out)
	}
	emit(engine.NewReport(res, nil), cfg.Out)
}

// fatal writes an error report in the same envelope as a success and exits
// non-zero, so collaborators always get parseable output.
func fatal(err error, out string) {
	emit(engine.NewReport(nil, err), out)
	os.Exit(1)
}

func emit(rep engine.Report, out string) {
	raw, err := sonic.ConfigStd.MarshalIndent(rep, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
		os.Exit(1)
	}
	raw = append(raw, '\n')
	if out == "" {
		os.Stdout.Write(raw)
		return
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		os.Exit(1)
	}
}
