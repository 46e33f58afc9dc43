package market

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadReport summarizes what the loader saw. Gaps and misalignment are
// tolerated; they are surfaced here so the caller can decide whether the
// dataset is usable.
type LoadReport struct {
	Parsed     int
	Skipped    int
	Deduped    int
	CadenceMs  int64
	GapStarts  []int64
	Misaligned int
}

// LoadCSV reads a timestamp,open,high,low,close,volume file into a sorted,
// deduplicated bar series. UTF-16 files (BOM-prefixed) are decoded
// transparently, headers and malformed rows are skipped, duplicate
// timestamps keep the last occurrence.
func LoadCSV(path string) ([]Bar, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, errors.Wrapf(ErrData, "open %s: %v", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if b, _ := br.Peek(2); len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, LoadReport{}, errors.Wrapf(ErrData, "seek %s: %v", path, err)
		}
		tr := transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReader(tr)
	}

	r := csv.NewReader(br)
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	return parseRecords(r)
}

// ParseCSV is LoadCSV over an arbitrary reader, used by the ClickHouse
// export path and by tests.
func ParseCSV(src io.Reader) ([]Bar, LoadReport, error) {
	r := csv.NewReader(bufio.NewReader(src))
	r.ReuseRecord = false
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return parseRecords(r)
}

func parseRecords(r *csv.Reader) ([]Bar, LoadReport, error) {
	var rep LoadReport
	bars := make([]Bar, 0, 1_000)
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			rep.Skipped++
			continue
		}
		if len(rec) < 6 {
			line++
			rep.Skipped++
			continue
		}
		if line == 0 && (strings.EqualFold(rec[0], "timestamp") || strings.EqualFold(rec[0], "timestamp_ms")) {
			line++
			continue
		}

		tsStr := strings.TrimSpace(strings.TrimPrefix(rec[0], "\ufeff"))
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			line++
			rep.Skipped++
			continue
		}

		b := Bar{Timestamp: ts}
		fields := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close}
		bad := false
		for i, dst := range fields {
			v, err := decimal.NewFromString(strings.TrimSpace(strings.Trim(rec[i+1], `"`)))
			if err != nil {
				bad = true
				break
			}
			*dst = v
		}
		if bad {
			line++
			rep.Skipped++
			continue
		}
		if v, err := decimal.NewFromString(strings.TrimSpace(strings.Trim(rec[5], `"`))); err == nil {
			b.Volume = v
		} else {
			b.Volume = decimal.Zero
		}
		bars = append(bars, b)
		line++
	}

	if len(bars) == 0 {
		return nil, rep, errors.Wrap(ErrData, "no bars parsed from CSV")
	}

	// Sort by timestamp and keep the last row for duplicate timestamps.
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	uniq := bars[:0]
	var lastTs int64 = -1
	for _, b := range bars {
		if b.Timestamp == lastTs {
			uniq[len(uniq)-1] = b
			rep.Deduped++
			continue
		}
		uniq = append(uniq, b)
		lastTs = b.Timestamp
	}
	bars = uniq

	rep.Parsed = len(bars)
	rep.CadenceMs = DetectCadence(bars, 0)
	if rep.CadenceMs > 0 {
		rep.GapStarts = DetectGaps(bars, rep.CadenceMs)
		rep.Misaligned = CheckAlignment(bars, rep.CadenceMs)
	}
	return bars, rep, nil
}
