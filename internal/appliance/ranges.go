package appliance

import (
	"fmt"
	"time"
)

// Range is a query-log time window. A zero Since means all time.
type Range struct {
	Name  string
	Label string
	Since time.Time
	Until time.Time
}

// Range names accepted by RangeByName.
const (
	RangeDay   = "24h"
	RangeWeek  = "7d"
	RangeMonth = "30d"
	RangeAll   = "all"
)

// RangeNames lists the supported ranges in menu order.
func RangeNames() []string {
	return []string{RangeDay, RangeWeek, RangeMonth, RangeAll}
}

// RangeByName resolves name relative to now.
func RangeByName(name string, now time.Time) (Range, error) {
	switch name {
	case RangeDay, "":
		return Range{Name: RangeDay, Label: "Last 24 hours", Since: now.Add(-24 * time.Hour), Until: now}, nil
	case RangeWeek:
		return Range{Name: RangeWeek, Label: "Last 7 days", Since: now.Add(-7 * 24 * time.Hour), Until: now}, nil
	case RangeMonth:
		return Range{Name: RangeMonth, Label: "Last 30 days", Since: now.Add(-30 * 24 * time.Hour), Until: now}, nil
	case RangeAll:
		return Range{Name: RangeAll, Label: "All time", Until: now}, nil
	}
	return Range{}, fmt.Errorf("unknown time range %q (want one of 24h, 7d, 30d, all)", name)
}

// bounds returns the unix-second interval for SQL. All-time ranges start at 0.
func (r Range) bounds() (int64, int64) {
	var since int64
	if !r.Since.IsZero() {
		since = r.Since.Unix()
	}
	until := r.Until.Unix()
	if r.Until.IsZero() {
		until = 1<<62 - 1
	}
	return since, until
}
