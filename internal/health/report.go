package health

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/executor"
)

// FTLLogPath is where pihole-FTL writes its log.
const FTLLogPath = "/var/log/pihole/FTL.log"

// Fact is one labelled system value.
type Fact struct {
	Label string
	Value string
}

// SystemInfo collects uptime, load, memory and disk usage. Values that
// cannot be read are reported as "unknown".
func (c *Checker) SystemInfo(ctx context.Context) []Fact {
	facts := []Fact{
		{"Uptime", c.output(ctx, "uptime", "-p")},
		{"Load Average", c.loadAverage()},
	}
	if fields := lastFields(c.output(ctx, "free", "-h"), "Mem:"); len(fields) >= 3 {
		facts = append(facts, Fact{"Memory", fmt.Sprintf("%s used of %s", fields[2], fields[1])})
	} else {
		facts = append(facts, Fact{"Memory", "unknown"})
	}
	if fields := lastFields(c.output(ctx, "df", "-h", "/"), ""); len(fields) >= 5 {
		facts = append(facts, Fact{"Disk", fmt.Sprintf("%s used of %s (%s)", fields[2], fields[1], fields[4])})
	} else {
		facts = append(facts, Fact{"Disk", "unknown"})
	}
	return facts
}

func (c *Checker) output(ctx context.Context, args ...string) string {
	r := c.runner.Run(ctx, executor.Command{Args: args})
	if !r.Success || r.Stdout == "" {
		return "unknown"
	}
	return r.Stdout
}

func (c *Checker) loadAverage() string {
	data, err := afero.ReadFile(c.fs, "/proc/loadavg")
	if err != nil {
		return "unknown"
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return "unknown"
	}
	return strings.Join(fields[:3], " ")
}

// lastFields returns the fields of the last line of out starting with
// prefix (any line when prefix is empty).
func lastFields(out, prefix string) []string {
	var found []string
	for _, line := range strings.Split(out, "\n") {
		if prefix == "" || strings.HasPrefix(strings.TrimSpace(line), prefix) {
			if f := strings.Fields(line); len(f) > 0 {
				found = f
			}
		}
	}
	return found
}

// RecentErrors returns up to n recent error lines from the FTL log and
// from the system journal.
func (c *Checker) RecentErrors(ctx context.Context, n int) (ftl, system []string) {
	if n <= 0 {
		n = 10
	}
	r := c.runner.Run(ctx, executor.Command{Args: []string{"tail", "-n", "500", FTLLogPath}, Sudo: true})
	if r.Success {
		for _, line := range r.Lines() {
			if strings.Contains(strings.ToLower(line), "error") {
				ftl = append(ftl, line)
			}
		}
		if len(ftl) > n {
			ftl = ftl[len(ftl)-n:]
		}
	}

	r = c.runner.Run(ctx, executor.Command{Args: []string{"journalctl", "-p", "err", "-n", fmt.Sprint(n), "--no-pager"}, Sudo: true})
	if r.Success {
		for _, line := range r.Lines() {
			if !strings.HasPrefix(line, "-- ") {
				system = append(system, line)
			}
		}
	}
	return ftl, system
}

// WriteReport runs every check and writes a plain-text diagnostic report.
func (c *Checker) WriteReport(ctx context.Context, w io.Writer, now time.Time) (Report, error) {
	rep := c.RunAll(ctx)
	ftl, system := c.RecentErrors(ctx, 10)

	var b strings.Builder
	fmt.Fprintf(&b, "Pi-hole Diagnostic Report\nGenerated: %s\n\n", now.Format("2006-01-02 15:04:05"))

	b.WriteString("== System ==\n")
	for _, f := range c.SystemInfo(ctx) {
		fmt.Fprintf(&b, "%-14s %s\n", f.Label+":", f.Value)
	}

	fmt.Fprintf(&b, "\n== Health Checks (%d/%d passed) ==\n", rep.Passed, rep.Total)
	for _, res := range rep.Results {
		fmt.Fprintf(&b, "[%s] %s: %s\n", mark(res.Passed), res.Name, res.Detail)
		for _, it := range res.Items {
			fmt.Fprintf(&b, "    [%s] %s: %s\n", mark(it.OK), it.Label, it.Detail)
		}
	}

	writeSection(&b, "FTL Log Errors", ftl)
	writeSection(&b, "System Errors", system)

	_, err := io.WriteString(w, b.String())
	return rep, err
}

func writeSection(b *strings.Builder, title string, lines []string) {
	fmt.Fprintf(b, "\n== %s ==\n", title)
	if len(lines) == 0 {
		b.WriteString("none\n")
		return
	}
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
}

func mark(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
