package rules

import (
	"time"

	"github.com/pkg/errors"
)

// TimeFilter restricts a condition to a time-of-day window in a named zone,
// inclusive on both ends. A window with start > end wraps across midnight.
type TimeFilter struct {
	Zone     string
	startMin int
	endMin   int
	loc      *time.Location
}

// NewTimeFilter parses "HH:MM" bounds and loads the IANA zone. An unknown
// zone is a load-time configuration error.
func NewTimeFilter(start, end, zone string) (*TimeFilter, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, errors.Errorf("invalid time filter timezone %q", zone)
	}
	return &TimeFilter{Zone: zone, startMin: s, endMin: e, loc: loc}, nil
}

// Contains reports whether the timestamp (Unix ms) falls inside the window
// once converted to the filter's zone.
func (f *TimeFilter) Contains(tsMs int64) bool {
	t := time.UnixMilli(tsMs).In(f.loc)
	m := t.Hour()*60 + t.Minute()
	if f.startMin <= f.endMin {
		return m >= f.startMin && m <= f.endMin
	}
	return m >= f.startMin || m <= f.endMin
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Errorf("invalid time filter bound %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
