package market

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestParseCSVBasics(t *testing.T) {
	src := `timestamp,open,high,low,close,volume
300000,10,11,9,10.5,100
0,1,2,0.5,1.5,50
garbage,x,x,x,x,x
600000,10.5,12,10,11,"200"
600000,10.6,12.1,10.1,11.1,201
`
	bars, rep, err := ParseCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("want 3 bars, got %d", len(bars))
	}
	if bars[0].Timestamp != 0 || bars[1].Timestamp != 300000 || bars[2].Timestamp != 600000 {
		t.Fatalf("bars not sorted: %v %v %v", bars[0].Timestamp, bars[1].Timestamp, bars[2].Timestamp)
	}
	// Duplicate 600000 keeps the last row.
	if bars[2].Close.String() != "11.1" {
		t.Fatalf("dedupe should keep last, got close=%s", bars[2].Close)
	}
	if rep.Skipped != 1 {
		t.Errorf("want 1 skipped row, got %d", rep.Skipped)
	}
	if rep.Deduped != 1 {
		t.Errorf("want 1 deduped row, got %d", rep.Deduped)
	}
	if rep.CadenceMs != 300000 {
		t.Errorf("want cadence 300000, got %d", rep.CadenceMs)
	}
}

func TestParseCSVEmpty(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("timestamp,open,high,low,close,volume\n"))
	if !errors.Is(err, ErrData) {
		t.Fatalf("want ErrData for empty input, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrData) {
		t.Fatalf("empty series: want ErrData, got %v", err)
	}
	bad := []Bar{{Timestamp: 100}, {Timestamp: 100}}
	if err := Validate(bad); !errors.Is(err, ErrData) {
		t.Fatalf("duplicate timestamps: want ErrData, got %v", err)
	}
	good := []Bar{{Timestamp: 100}, {Timestamp: 200}}
	if err := Validate(good); err != nil {
		t.Fatalf("valid series: %v", err)
	}
}

func TestDetectCadenceAndGaps(t *testing.T) {
	bars := []Bar{
		{Timestamp: 0}, {Timestamp: 300000}, {Timestamp: 600000},
		{Timestamp: 1500000}, // hole between 600000 and 1500000
		{Timestamp: 1800000},
	}
	if got := DetectCadence(bars, 0); got != 300000 {
		t.Fatalf("cadence: want 300000, got %d", got)
	}
	gaps := DetectGaps(bars, 300000)
	if len(gaps) != 1 || gaps[0] != 600000 {
		t.Fatalf("gaps: want [600000], got %v", gaps)
	}
	if got := DetectCadence([]Bar{{Timestamp: 5}}, 60000); got != 60000 {
		t.Fatalf("short series should fall back, got %d", got)
	}
}

func TestCheckAlignment(t *testing.T) {
	bars := []Bar{{Timestamp: 0}, {Timestamp: 300000}, {Timestamp: 450000}}
	if got := CheckAlignment(bars, 300000); got != 1 {
		t.Fatalf("want 1 misaligned bar, got %d", got)
	}
}
