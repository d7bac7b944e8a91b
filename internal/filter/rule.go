// Package filter manages content filter rules: named groups of domains to
// deny, optionally limited to a daily time window, that are reconciled into
// Pi-hole's deny lists.
package filter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// CategoryCustom marks a rule whose domains were entered by hand.
const CategoryCustom = "custom"

// Rule is one content filter rule as stored in the rules file.
type Rule struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Domains  []string `json:"domains"`
	Schedule Schedule `json:"schedule"`
	Devices  []string `json:"devices"`
	Enabled  bool     `json:"enabled"`
	Created  string   `json:"created,omitempty"`
}

// UnmarshalJSON treats a missing "enabled" as true.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	aux := struct {
		*plain
		Enabled *bool `json:"enabled"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Enabled = aux.Enabled == nil || *aux.Enabled
	return nil
}

func (r Rule) clone() Rule {
	c := r
	c.Domains = slices.Clone(r.Domains)
	c.Devices = slices.Clone(r.Devices)
	c.Schedule.Days = slices.Clone(r.Schedule.Days)
	return c
}

// DevicesLabel renders the device list the way the rules table shows it.
func (r Rule) DevicesLabel() string {
	switch n := len(r.Devices); {
	case n == 0:
		return "All devices"
	case n <= 2:
		return strings.Join(r.Devices, ", ")
	default:
		return fmt.Sprintf("%s +%d", strings.Join(r.Devices[:2], ", "), n-2)
	}
}

// Schedule limits a rule to a daily window. A disabled schedule means the
// rule is always active.
type Schedule struct {
	Enabled   bool     `json:"enabled"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	Days      []string `json:"days,omitempty"`
}

// Day sets offered by the rule editor.
var (
	AllDays  = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri"}
	Weekends = []string{"Sat", "Sun"}
)

// DefaultWindow is the time window offered for new scheduled rules.
const DefaultWindow = "09:00-17:00"

// ParseWindow splits "HH:MM-HH:MM" into a schedule window.
func ParseWindow(s string) (start, end string, err error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return "", "", fmt.Errorf("time window %q must be HH:MM-HH:MM", s)
	}
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if _, err := parseClock(a); err != nil {
		return "", "", err
	}
	if _, err := parseClock(b); err != nil {
		return "", "", err
	}
	return a, b, nil
}

// parseClock returns minutes since midnight for "HH:MM".
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseDay resolves a day name such as "Mon" or "monday".
func ParseDay(s string) (time.Weekday, bool) {
	d, ok := dayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// ParseDays splits a comma-separated day list, rejecting unknown names.
func ParseDays(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, ok := ParseDay(part)
		if !ok {
			return nil, fmt.Errorf("unknown day %q", part)
		}
		out = append(out, AllDays[(int(d)+6)%7])
	}
	return out, nil
}

// Problems lists what is wrong with the schedule; nil means valid.
func (s Schedule) Problems() []string {
	if !s.Enabled {
		return nil
	}
	var out []string
	if _, err := parseClock(s.StartTime); err != nil {
		out = append(out, "start "+err.Error())
	}
	if _, err := parseClock(s.EndTime); err != nil {
		out = append(out, "end "+err.Error())
	}
	for _, d := range s.Days {
		if _, ok := ParseDay(d); !ok {
			out = append(out, fmt.Sprintf("unknown day %q", d))
		}
	}
	return out
}

// ActiveAt reports whether a rule with this schedule applies at t. Windows
// whose end is before their start run past midnight; the early-morning part
// belongs to the previous day's entry in Days. Equal start and end mean the
// whole day. An unparseable schedule counts as always active.
func (s Schedule) ActiveAt(t time.Time) bool {
	if !s.Enabled {
		return true
	}
	start, err1 := parseClock(s.StartTime)
	end, err2 := parseClock(s.EndTime)
	if err1 != nil || err2 != nil {
		return true
	}
	now := t.Hour()*60 + t.Minute()
	today := t.Weekday()
	yesterday := (today + 6) % 7

	switch {
	case start == end:
		return s.onDay(today)
	case start < end:
		return now >= start && now < end && s.onDay(today)
	default:
		if now >= start {
			return s.onDay(today)
		}
		if now < end {
			return s.onDay(yesterday)
		}
		return false
	}
}

func (s Schedule) onDay(d time.Weekday) bool {
	if len(s.Days) == 0 {
		return true
	}
	for _, name := range s.Days {
		if wd, ok := ParseDay(name); ok && wd == d {
			return true
		}
	}
	return false
}

// String renders the schedule for the rules table.
func (s Schedule) String() string {
	if !s.Enabled {
		return "Always"
	}
	start, end := s.StartTime, s.EndTime
	if start == "" {
		start = "00:00"
	}
	if end == "" {
		end = "23:59"
	}
	days := "All"
	if len(s.Days) > 0 {
		days = strings.Join(s.Days, ",")
	}
	return fmt.Sprintf("%s-%s (%s)", start, end, days)
}
