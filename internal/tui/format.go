package tui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var numbers = message.NewPrinter(language.English)

// Number groups thousands, e.g. 1234567 -> "1,234,567".
func Number[T ~int | ~int64 | ~uint64](n T) string {
	return numbers.Sprintf("%d", n)
}

// Percent formats f with one decimal place.
func Percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f)
}

// Ago describes t relative to now, e.g. "3 minutes ago". The zero time is
// "never".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Bytes formats a size, e.g. 82854982 -> "83 MB".
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}

// Truncate shortens s to at most n runes, ending with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
