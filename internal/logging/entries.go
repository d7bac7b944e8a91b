package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed debug log line.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	Attrs     map[string]any
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	// MinLevel keeps entries at or above this level.
	MinLevel  string
	Component string
	Since     time.Time
	Contains  string
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadEntries parses <dir>/debug.log. Lines that are not JSON objects are
// skipped so a truncated final line does not hide the rest of the file.
func ReadEntries(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return parseEntries(f)
}

func parseEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		entries = append(entries, toEntry(raw))
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("failed to read debug log: %w", err)
	}
	return entries, nil
}

func toEntry(raw map[string]any) Entry {
	e := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case slogTimeKey:
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				e.Time = t
			}
		case slogLevelKey:
			e.Level = s
		case slogMessageKey:
			e.Message = s
		case "component":
			e.Component = s
		default:
			e.Attrs[k] = v
		}
	}
	return e
}

const (
	slogTimeKey    = "time"
	slogLevelKey   = "level"
	slogMessageKey = "msg"
)

// FilterEntries returns the entries matching f, in input order.
func FilterEntries(entries []Entry, f Filter) []Entry {
	minRank := -1
	if f.MinLevel != "" {
		minRank = levelRank[ParseLevel(f.MinLevel)]
	}
	needle := strings.ToLower(f.Contains)

	var out []Entry
	for _, e := range entries {
		if minRank >= 0 && levelRank[strings.ToUpper(e.Level)] < minRank {
			continue
		}
		if f.Component != "" && e.Component != f.Component {
			continue
		}
		if !f.Since.IsZero() && e.Time.Before(f.Since) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Message), needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// String renders an entry as a single human-readable line.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s", e.Time.Local().Format("2006-01-02 15:04:05"), e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteString(" " + e.Message)
	for _, k := range sortedKeys(e.Attrs) {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
