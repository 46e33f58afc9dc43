package rules

import (
	"testing"
	"time"
)

func msAt(t *testing.T, zone string, y int, mo time.Month, d, h, m int) int64 {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load %s: %v", zone, err)
	}
	return time.Date(y, mo, d, h, m, 0, 0, loc).UnixMilli()
}

func TestTimeFilterContains(t *testing.T) {
	f, err := NewTimeFilter("08:00", "13:00", "America/New_York")
	if err != nil {
		t.Fatalf("NewTimeFilter: %v", err)
	}
	cases := []struct {
		h, m int
		want bool
	}{
		{7, 59, false},
		{8, 0, true},
		{10, 30, true},
		{13, 0, true},
		{13, 1, false},
	}
	for _, c := range cases {
		ts := msAt(t, "America/New_York", 2024, time.January, 2, c.h, c.m)
		if got := f.Contains(ts); got != c.want {
			t.Errorf("Contains(%02d:%02d NY): want %v, got %v", c.h, c.m, c.want, got)
		}
	}
}

func TestTimeFilterDST(t *testing.T) {
	f, err := NewTimeFilter("09:30", "16:00", "America/New_York")
	if err != nil {
		t.Fatalf("NewTimeFilter: %v", err)
	}
	// Same wall-clock time in winter (EST) and summer (EDT) must both pass.
	winter := msAt(t, "America/New_York", 2024, time.January, 2, 10, 0)
	summer := msAt(t, "America/New_York", 2024, time.July, 2, 10, 0)
	if !f.Contains(winter) || !f.Contains(summer) {
		t.Fatalf("wall-clock window should hold across DST")
	}
}

func TestTimeFilterMidnightWrap(t *testing.T) {
	f, err := NewTimeFilter("22:00", "02:00", "UTC")
	if err != nil {
		t.Fatalf("NewTimeFilter: %v", err)
	}
	in := msAt(t, "UTC", 2024, time.January, 2, 23, 0)
	in2 := msAt(t, "UTC", 2024, time.January, 2, 1, 0)
	out := msAt(t, "UTC", 2024, time.January, 2, 12, 0)
	if !f.Contains(in) || !f.Contains(in2) || f.Contains(out) {
		t.Fatalf("midnight wrap window misbehaved")
	}
}

func TestTimeFilterErrors(t *testing.T) {
	if _, err := NewTimeFilter("8:99", "13:00", "UTC"); err == nil {
		t.Errorf("bad clock should error")
	}
	if _, err := NewTimeFilter("08:00", "13:00", "Mars/Olympus"); err == nil {
		t.Errorf("unknown zone should error")
	}
}
