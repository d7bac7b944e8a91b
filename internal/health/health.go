// Package health runs the appliance diagnostics: DNS resolution and
// blocking probes against the local resolver, service and network checks
// through the command executor, and database integrity checks.
package health

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/executor"
	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/logging"
)

// Check names, in RunAll order.
const (
	CheckDNS      = "DNS Resolution"
	CheckBlocking = "Blocking Functionality"
	CheckServices = "Service Status"
	CheckNetwork  = "Network Connectivity"
	CheckDatabase = "Database Integrity"
)

var (
	// ResolutionDomains must resolve through the local resolver.
	ResolutionDomains = []string{"google.com", "cloudflare.com", "example.com"}
	// BlockingDomains are well-known ad domains expected to be blocked.
	BlockingDomains = []string{"doubleclick.net", "googleadservices.com"}
	// PingTargets are probed for upstream connectivity.
	PingTargets = []string{"8.8.8.8", "1.1.1.1"}
)

const (
	defaultResolver = "127.0.0.1:53"
	externalDNS     = "1.1.1.1:53"
	defaultTimeout  = 2 * time.Second
)

// Item is one probe within a check.
type Item struct {
	Label  string
	OK     bool
	Detail string
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
	Items  []Item
}

// Report aggregates RunAll.
type Report struct {
	Results []CheckResult
	Passed  int
	Total   int
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Total > 0 && r.Passed == r.Total }

// Checker runs the diagnostics.
type Checker struct {
	resolver   string
	external   string
	client     *dns.Client
	runner     executor.Runner
	control    *appliance.Control
	fs         afero.Fs
	databases  []string
	candidates func(ctx context.Context) []string
	logger     *logging.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithResolver sets the Pi-hole resolver address (host:port).
func WithResolver(addr string) Option { return func(c *Checker) { c.resolver = addr } }

// WithExternalResolver sets the upstream resolver used by the network check.
func WithExternalResolver(addr string) Option { return func(c *Checker) { c.external = addr } }

// WithTimeout bounds each DNS exchange.
func WithTimeout(d time.Duration) Option { return func(c *Checker) { c.client.Timeout = d } }

// WithDatabases lists the SQLite files checked for integrity.
func WithDatabases(paths ...string) Option { return func(c *Checker) { c.databases = paths } }

// WithBlockCandidates adds domains, typically drawn from the deny lists,
// that the blocking check probes before the built-in ones.
func WithBlockCandidates(fn func(ctx context.Context) []string) Option {
	return func(c *Checker) { c.candidates = fn }
}

// WithFs replaces the filesystem used for existence checks and /proc.
func WithFs(fs afero.Fs) Option { return func(c *Checker) { c.fs = fs } }

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(c *Checker) { c.logger = l } }

// New creates a Checker that runs commands through runner.
func New(runner executor.Runner, opts ...Option) *Checker {
	c := &Checker{
		resolver: defaultResolver,
		external: externalDNS,
		client:   &dns.Client{Net: "udp", Timeout: defaultTimeout},
		runner:   runner,
		control:  appliance.NewControl(runner),
		fs:       fsutil.OsFs(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("health")
	return c
}

// RunAll runs every check in order.
func (c *Checker) RunAll(ctx context.Context) Report {
	checks := []func(context.Context) CheckResult{
		c.DNSResolution,
		c.Blocking,
		c.Services,
		c.Network,
		c.Databases,
	}
	var rep Report
	for _, check := range checks {
		res := check(ctx)
		rep.Results = append(rep.Results, res)
		rep.Total++
		if res.Passed {
			rep.Passed++
		}
		c.logger.Info("health check finished", "check", res.Name, "passed", res.Passed)
	}
	return rep
}

func (c *Checker) query(ctx context.Context, server, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	r, _, err := c.client.ExchangeContext(ctx, m, server)
	return r, err
}

// DNSResolution checks that each ResolutionDomains entry resolves.
func (c *Checker) DNSResolution(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckDNS, Passed: true}
	for _, d := range ResolutionDomains {
		item := Item{Label: d}
		r, err := c.query(ctx, c.resolver, d, dns.TypeA)
		switch {
		case err != nil:
			item.Detail = err.Error()
		case r.Rcode != dns.RcodeSuccess:
			item.Detail = dns.RcodeToString[r.Rcode]
		default:
			addrs := answerAddrs(r)
			if len(addrs) == 0 {
				item.Detail = "no answer"
			} else {
				item.OK = true
				item.Detail = strings.Join(addrs, ", ")
			}
		}
		if !item.OK {
			res.Passed = false
		}
		res.Items = append(res.Items, item)
	}
	res.Detail = summarize(res.Items, "resolved")
	return res
}

// Blocking checks that at least one known ad domain is blocked. Blocked
// means NXDOMAIN, an empty NOERROR answer, or an unspecified address.
func (c *Checker) Blocking(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckBlocking}
	var domains []string
	if c.candidates != nil {
		domains = append(domains, c.candidates(ctx)...)
	}
	for _, d := range BlockingDomains {
		if !contains(domains, d) {
			domains = append(domains, d)
		}
	}

	for _, d := range domains {
		item := Item{Label: d}
		r, err := c.query(ctx, c.resolver, d, dns.TypeA)
		switch {
		case err != nil:
			item.Detail = err.Error()
		case IsBlockedResponse(r):
			item.OK = true
			item.Detail = "blocked"
		default:
			item.Detail = "not blocked (" + strings.Join(answerAddrs(r), ", ") + ")"
		}
		if item.OK {
			res.Passed = true
		}
		res.Items = append(res.Items, item)
	}
	res.Detail = summarize(res.Items, "blocked")
	return res
}

// IsBlockedResponse reports whether r looks like a Pi-hole block.
func IsBlockedResponse(r *dns.Msg) bool {
	if r == nil {
		return false
	}
	if r.Rcode == dns.RcodeNameError {
		return true
	}
	if r.Rcode != dns.RcodeSuccess {
		return false
	}
	for _, rr := range r.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if !ip.IsUnspecified() {
			return false
		}
	}
	return true
}

// Services checks that the Pi-hole services are active.
func (c *Checker) Services(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckServices, Passed: true}
	for _, s := range c.control.ServiceStatus(ctx) {
		res.Items = append(res.Items, Item{Label: s.Name, OK: s.Active, Detail: s.State})
		if !s.Active {
			res.Passed = false
		}
	}
	res.Detail = summarize(res.Items, "running")
	return res
}

// Network pings the upstream targets and resolves through an external
// resolver.
func (c *Checker) Network(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckNetwork, Passed: true}
	for _, target := range PingTargets {
		r := c.runner.Run(ctx, executor.Command{Args: []string{"ping", "-c", "2", "-W", "2", target}})
		item := Item{Label: "ping " + target, OK: r.Success}
		if r.Success {
			item.Detail = lastLine(r.Stdout)
		} else {
			item.Detail = firstNonEmpty(r.Stderr, lastLine(r.Stdout), "unreachable")
		}
		res.Items = append(res.Items, item)
	}

	item := Item{Label: "resolve via " + c.external}
	if r, err := c.query(ctx, c.external, ResolutionDomains[0], dns.TypeA); err != nil {
		item.Detail = err.Error()
	} else if addrs := answerAddrs(r); len(addrs) > 0 {
		item.OK = true
		item.Detail = strings.Join(addrs, ", ")
	} else {
		item.Detail = "no answer"
	}
	res.Items = append(res.Items, item)

	for _, it := range res.Items {
		if !it.OK {
			res.Passed = false
		}
	}
	res.Detail = summarize(res.Items, "passed")
	return res
}

// Databases runs PRAGMA integrity_check on every configured database.
func (c *Checker) Databases(ctx context.Context) CheckResult {
	res := CheckResult{Name: CheckDatabase, Passed: true}
	for _, path := range c.databases {
		item := Item{Label: path}
		switch {
		case !fsutil.Exists(c.fs, path):
			item.Detail = "not found"
		default:
			problems, err := appliance.IntegrityCheck(ctx, path)
			switch {
			case err != nil:
				item.Detail = err.Error()
			case len(problems) > 0:
				item.Detail = strings.Join(problems, "; ")
			default:
				item.OK = true
				item.Detail = "ok"
			}
		}
		if !item.OK {
			res.Passed = false
		}
		res.Items = append(res.Items, item)
	}
	res.Detail = summarize(res.Items, "ok")
	return res
}

func answerAddrs(r *dns.Msg) []string {
	var out []string
	if r == nil {
		return out
	}
	for _, rr := range r.Answer {
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		}
	}
	return out
}

func summarize(items []Item, verb string) string {
	ok := 0
	for _, it := range items {
		if it.OK {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d %s", ok, len(items), verb)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
