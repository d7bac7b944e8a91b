package filter

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/logging"
)

// Comment tags every deny-list entry the filter manages.
const Comment = "Content Filter"

// WildcardToRegex converts a wildcard domain to a Pi-hole regex.
// "*.example.com" matches every subdomain and the domain itself; any other
// "*" matches any run of characters.
func WildcardToRegex(pattern string) string {
	pattern = appliance.NormalizeDomain(pattern)
	if rest, ok := strings.CutPrefix(pattern, "*."); ok && !strings.Contains(rest, "*") {
		return `(^|\.)` + regexp.QuoteMeta(rest) + `$`
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

// IsWildcard reports whether d needs a regex entry.
func IsWildcard(d string) bool { return strings.Contains(d, "*") }

// Entry is one deny-list row a plan wants present.
type Entry struct {
	Source string
	Value  string
	Kind   appliance.DomainKind
	Rules  []int
}

func (e Entry) key() string { return fmt.Sprintf("%d|%s", e.Kind, e.Value) }

// Plan returns the deduplicated deny-list entries for every enabled rule
// that is active at now, sorted by value.
func Plan(rules []Rule, now time.Time) []Entry {
	byKey := map[string]*Entry{}
	for _, r := range rules {
		if !r.Enabled || !r.Schedule.ActiveAt(now) {
			continue
		}
		for _, d := range r.Domains {
			if strings.TrimSpace(d) == "" {
				continue
			}
			e := Entry{Source: d, Kind: appliance.DenyExact, Value: appliance.NormalizeDomain(d)}
			if IsWildcard(d) {
				e.Kind = appliance.DenyRegex
				e.Value = WildcardToRegex(d)
			}
			if existing, ok := byKey[e.key()]; ok {
				if !slices.Contains(existing.Rules, r.ID) {
					existing.Rules = append(existing.Rules, r.ID)
				}
				continue
			}
			e.Rules = []int{r.ID}
			byKey[e.key()] = &e
		}
	}
	out := make([]Entry, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Repository is the part of gravity.db the filter edits.
type Repository interface {
	Domains(ctx context.Context, kind appliance.DomainKind) ([]appliance.DomainEntry, error)
	DomainExists(ctx context.Context, domain string, kinds ...appliance.DomainKind) (bool, error)
	AddDomain(ctx context.Context, kind appliance.DomainKind, domain, comment string) (int64, error)
	RemoveDomain(ctx context.Context, id int64) (appliance.DomainEntry, error)
}

// Reloader makes the resolver pick up list changes.
type Reloader interface {
	ReloadLists(ctx context.Context) error
}

// ApplyResult reports what Apply changed.
type ApplyResult struct {
	Planned  int
	Added    []string
	Removed  []string
	Present  []string
	Rejected []string
	Reloaded bool
}

// Changed reports whether any deny-list row was added or removed.
func (r ApplyResult) Changed() bool { return len(r.Added) > 0 || len(r.Removed) > 0 }

// Apply reconciles the deny lists with Plan(rules, now). Missing entries are
// added with the Comment tag; entries carrying the tag that are no longer
// planned, such as those of a rule outside its schedule window, are removed.
// Entries already on a deny list from another source are left alone. The
// resolver is reloaded when anything changed.
func Apply(ctx context.Context, repo Repository, reloader Reloader, rules []Rule, now time.Time, logger *logging.Logger) (ApplyResult, error) {
	plan := Plan(rules, now)
	res := ApplyResult{Planned: len(plan)}
	planned := make(map[string]bool, len(plan))

	for _, e := range plan {
		planned[e.key()] = true
		exists, err := repo.DomainExists(ctx, e.Value, appliance.DenyExact, appliance.DenyRegex)
		if err != nil {
			return res, err
		}
		if exists {
			res.Present = append(res.Present, e.Value)
			continue
		}
		if _, err := repo.AddDomain(ctx, e.Kind, e.Value, Comment); err != nil {
			if errors.Is(err, errors.ErrInvalidInput) {
				logger.Warn("skipping invalid filter entry", "value", e.Value, "error", err)
				res.Rejected = append(res.Rejected, e.Source)
				continue
			}
			return res, err
		}
		res.Added = append(res.Added, e.Value)
	}

	for _, kind := range []appliance.DomainKind{appliance.DenyExact, appliance.DenyRegex} {
		entries, err := repo.Domains(ctx, kind)
		if err != nil {
			return res, err
		}
		for _, d := range entries {
			if d.Comment != Comment {
				continue
			}
			if planned[Entry{Kind: kind, Value: d.Domain}.key()] {
				continue
			}
			if _, err := repo.RemoveDomain(ctx, d.ID); err != nil {
				return res, err
			}
			res.Removed = append(res.Removed, d.Domain)
		}
	}

	if res.Changed() && reloader != nil {
		if err := reloader.ReloadLists(ctx); err != nil {
			return res, errors.Wrap(err, "reload lists")
		}
		res.Reloaded = true
	}
	logger.Info("content filter applied",
		"planned", res.Planned, "added", len(res.Added), "removed", len(res.Removed), "rejected", len(res.Rejected))
	return res, nil
}

// Report summarizes a rule set for "filter test".
type Report struct {
	Total           int
	Enabled         int
	ActiveNow       int
	Scheduled       int
	DomainsAffected int
	Problems        []string
}

// OK reports whether no problems were found.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// Validate checks every rule and counts what would be applied at now.
func Validate(rules []Rule, now time.Time) Report {
	rep := Report{Total: len(rules)}
	seen := map[int]bool{}
	for _, r := range rules {
		label := fmt.Sprintf("rule %d (%s)", r.ID, r.Name)
		if seen[r.ID] {
			rep.Problems = append(rep.Problems, label+": duplicate id")
		}
		seen[r.ID] = true

		if strings.TrimSpace(r.Name) == "" {
			rep.Problems = append(rep.Problems, label+": name is empty")
		}
		if len(r.Domains) == 0 {
			rep.Problems = append(rep.Problems, label+": no domains")
		}
		for _, d := range r.Domains {
			var err error
			if IsWildcard(d) {
				err = appliance.ValidateRegex(WildcardToRegex(d))
			} else {
				err = appliance.ValidateDomain(d)
			}
			if err != nil {
				rep.Problems = append(rep.Problems, fmt.Sprintf("%s: invalid domain %q", label, d))
			}
		}
		for _, p := range r.Schedule.Problems() {
			rep.Problems = append(rep.Problems, label+": schedule "+p)
		}
		for _, ip := range r.Devices {
			if net.ParseIP(ip) == nil {
				rep.Problems = append(rep.Problems, fmt.Sprintf("%s: invalid device address %q", label, ip))
			}
		}

		if !r.Enabled {
			continue
		}
		rep.Enabled++
		if r.Schedule.Enabled {
			rep.Scheduled++
		}
		if r.Schedule.ActiveAt(now) {
			rep.ActiveNow++
		}
	}
	rep.DomainsAffected = len(Plan(rules, now))
	return rep
}
