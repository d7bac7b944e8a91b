package appliance

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/patrickmn/go-cache"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/logging"
)

// FTL query status codes grouped the way the dashboard counts them.
const (
	blockedStatuses   = "1, 4, 5, 6, 7, 8, 9, 10, 11, 15, 16"
	permittedStatuses = "2, 3, 12, 13, 14"
	statusCached      = 3
)

// StatusClass buckets an FTL status code.
type StatusClass string

const (
	ClassBlocked   StatusClass = "blocked"
	ClassCached    StatusClass = "cached"
	ClassForwarded StatusClass = "forwarded"
	ClassUnknown   StatusClass = "unknown"
)

// ClassifyStatus maps an FTL status code to its class.
func ClassifyStatus(status int) StatusClass {
	switch status {
	case 1, 4, 5, 6, 7, 8, 9, 10, 11, 15, 16:
		return ClassBlocked
	case statusCached:
		return ClassCached
	case 2, 12, 13, 14:
		return ClassForwarded
	}
	return ClassUnknown
}

var queryTypeNames = map[int]string{
	1: "A", 2: "AAAA", 3: "ANY", 4: "SRV", 5: "SOA", 6: "PTR", 7: "TXT", 8: "NAPTR",
	9: "MX", 10: "DS", 11: "RRSIG", 12: "DNSKEY", 13: "NS", 14: "OTHER", 15: "SVCB", 16: "HTTPS",
}

// QueryTypeName returns the record type stored as FTL type code t.
func QueryTypeName(t int) string {
	if n, ok := queryTypeNames[t]; ok {
		return n
	}
	return "TYPE" + strconv.Itoa(t)
}

// Summary is the dashboard breakdown for a Range.
type Summary struct {
	Range     Range
	Total     int64
	Blocked   int64
	Permitted int64
	Cached    int64
}

// Forwarded is the number of permitted queries answered upstream.
func (s Summary) Forwarded() int64 { return s.Permitted - s.Cached }

// PercentBlocked is Blocked as a percentage of Total.
func (s Summary) PercentBlocked() float64 { return percent(s.Blocked, s.Total) }

// CacheHitRate is Cached as a percentage of Total.
func (s Summary) CacheHitRate() float64 { return percent(s.Cached, s.Total) }

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// DomainCount is a domain with its query count.
type DomainCount struct {
	Domain string
	Count  int64
}

// ClientCount is a client with its query count and known name.
type ClientCount struct {
	IP    string
	Name  string
	Count int64
}

// TypeCount is a query type with its count.
type TypeCount struct {
	Type  int
	Name  string
	Count int64
}

// Query is one query-log row.
type Query struct {
	Time   time.Time
	Type   int
	Status int
	Domain string
	Client string
}

// Class returns the status class of q.
func (q Query) Class() StatusClass { return ClassifyStatus(q.Status) }

// Device is a client known to FTL's network table.
type Device struct {
	IP         string
	HWAddr     string
	Name       string
	Vendor     string
	FirstSeen  time.Time
	LastQuery  time.Time
	NumQueries int64
}

// DeviceSummary counts one client's queries in a Range.
type DeviceSummary struct {
	Total   int64
	Blocked int64
}

// PercentBlocked is Blocked as a percentage of Total.
func (s DeviceSummary) PercentBlocked() float64 { return percent(s.Blocked, s.Total) }

// FTL wraps pihole-FTL.db. Reads go through a read-only connection.
type FTL struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *logging.Logger
	stats  *cache.Cache
	names  *lru.Cache[string, string]
}

// FTLOption configures an FTL.
type FTLOption func(*ftlOptions)

type ftlOptions struct {
	statsTTL  time.Duration
	nameCache int
	now       func() time.Time
	logger    *logging.Logger
}

// WithStatsTTL sets how long Summary results are reused. Zero disables
// caching.
func WithStatsTTL(d time.Duration) FTLOption { return func(o *ftlOptions) { o.statsTTL = d } }

// WithNameCacheSize bounds the client-name cache.
func WithNameCacheSize(n int) FTLOption { return func(o *ftlOptions) { o.nameCache = n } }

// WithClock overrides the time source used for "now".
func WithClock(now func() time.Time) FTLOption { return func(o *ftlOptions) { o.now = now } }

// WithFTLLogger attaches the debug logger.
func WithFTLLogger(l *logging.Logger) FTLOption { return func(o *ftlOptions) { o.logger = l } }

// OpenFTL opens pihole-FTL.db read-only.
func OpenFTL(ctx context.Context, path string, opts ...FTLOption) (*FTL, error) {
	o := ftlOptions{statsTTL: 10 * time.Second, nameCache: 256, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	db, err := openDB(ctx, "ftl", path, true)
	if err != nil {
		return nil, err
	}
	if o.nameCache <= 0 {
		o.nameCache = 1
	}
	names, err := lru.New[string, string](o.nameCache)
	if err != nil {
		db.Close()
		return nil, err
	}
	f := &FTL{
		db:     db,
		path:   path,
		now:    o.now,
		logger: o.logger.WithComponent("ftl"),
		names:  names,
	}
	if o.statsTTL > 0 {
		f.stats = cache.New(o.statsTTL, 0)
	}
	return f, nil
}

// Path returns the database file path.
func (f *FTL) Path() string { return f.path }

// Close closes the database.
func (f *FTL) Close() error { return f.db.Close() }

// Range resolves a range name against the FTL clock.
func (f *FTL) Range(name string) (Range, error) { return RangeByName(name, f.now()) }

func (f *FTL) fail(msg, query string, err error) error {
	f.logger.Error(msg, "error", err)
	return queryError("ftl", msg, query, err)
}

// Summary returns the query breakdown for r. Results are cached per range
// name for the configured TTL.
func (f *FTL) Summary(ctx context.Context, r Range) (Summary, error) {
	key := r.Name
	if f.stats != nil && key != "" {
		if v, ok := f.stats.Get(key); ok {
			return v.(Summary), nil
		}
	}

	q := `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status IN (` + blockedStatuses + `) THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status IN (` + permittedStatuses + `) THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM queries WHERE timestamp >= ? AND timestamp <= ?`
	since, until := r.bounds()
	s := Summary{Range: r}
	if err := f.db.QueryRowContext(ctx, q, statusCached, since, until).Scan(&s.Total, &s.Blocked, &s.Permitted, &s.Cached); err != nil {
		return Summary{}, f.fail("summary failed", q, err)
	}
	if f.stats != nil && key != "" {
		f.stats.SetDefault(key, s)
	}
	return s, nil
}

// InvalidateStats drops cached summaries.
func (f *FTL) InvalidateStats() {
	if f.stats != nil {
		f.stats.Flush()
	}
}

// TopPermitted returns the n most-queried permitted domains in r.
func (f *FTL) TopPermitted(ctx context.Context, r Range, n int) ([]DomainCount, error) {
	return f.topDomains(ctx, `status IN (`+permittedStatuses+`)`, r, n)
}

// TopBlocked returns the n most-queried blocked domains in r.
func (f *FTL) TopBlocked(ctx context.Context, r Range, n int) ([]DomainCount, error) {
	return f.topDomains(ctx, `status IN (`+blockedStatuses+`)`, r, n)
}

func (f *FTL) topDomains(ctx context.Context, statusClause string, r Range, n int) ([]DomainCount, error) {
	q := `SELECT domain, COUNT(*) AS c FROM queries
		WHERE timestamp >= ? AND timestamp <= ? AND ` + statusClause + `
		GROUP BY domain ORDER BY c DESC, domain LIMIT ?`
	since, until := r.bounds()
	return f.domainCounts(ctx, q, since, until, limit(n))
}

func (f *FTL) domainCounts(ctx context.Context, q string, args ...any) ([]DomainCount, error) {
	rows, err := f.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, f.fail("top domains failed", q, err)
	}
	defer rows.Close()

	var out []DomainCount
	for rows.Next() {
		var d DomainCount
		if err := rows.Scan(&d.Domain, &d.Count); err != nil {
			return nil, f.fail("scan domain count failed", q, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, f.fail("top domains failed", q, err)
	}
	return out, nil
}

// TopClients returns the n busiest clients in r with their known names.
func (f *FTL) TopClients(ctx context.Context, r Range, n int) ([]ClientCount, error) {
	const q = `SELECT client, COUNT(*) AS c FROM queries
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY client ORDER BY c DESC, client LIMIT ?`
	since, until := r.bounds()
	rows, err := f.db.QueryContext(ctx, q, since, until, limit(n))
	if err != nil {
		return nil, f.fail("top clients failed", q, err)
	}
	var out []ClientCount
	for rows.Next() {
		var c ClientCount
		if err := rows.Scan(&c.IP, &c.Count); err != nil {
			rows.Close()
			return nil, f.fail("scan client failed", q, err)
		}
		out = append(out, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, f.fail("top clients failed", q, err)
	}

	// Name lookups need the single connection, so they run after rows close.
	for i := range out {
		out[i].Name = f.ClientName(ctx, out[i].IP)
	}
	return out, nil
}

// ClientName returns the name FTL recorded for ip, or "" if none. Lookups
// are cached.
func (f *FTL) ClientName(ctx context.Context, ip string) string {
	if name, ok := f.names.Get(ip); ok {
		return name
	}
	const q = `SELECT COALESCE(name, '') FROM network_addresses WHERE ip = ?`
	var name string
	err := f.db.QueryRowContext(ctx, q, ip).Scan(&name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		f.logger.Debug("client name lookup failed", "ip", ip, "error", err)
		return ""
	}
	f.names.Add(ip, name)
	return name
}

// QueryTypes returns the count per record type in r, most frequent first.
func (f *FTL) QueryTypes(ctx context.Context, r Range) ([]TypeCount, error) {
	const q = `SELECT type, COUNT(*) AS c FROM queries
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY type ORDER BY c DESC, type`
	since, until := r.bounds()
	rows, err := f.db.QueryContext(ctx, q, since, until)
	if err != nil {
		return nil, f.fail("query types failed", q, err)
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var t TypeCount
		if err := rows.Scan(&t.Type, &t.Count); err != nil {
			return nil, f.fail("scan query type failed", q, err)
		}
		t.Name = QueryTypeName(t.Type)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, f.fail("query types failed", q, err)
	}
	return out, nil
}

// RecentQueries returns the newest n queries.
func (f *FTL) RecentQueries(ctx context.Context, n int) ([]Query, error) {
	const q = `SELECT timestamp, type, status, domain, client FROM queries ORDER BY timestamp DESC, id DESC LIMIT ?`
	return f.queries(ctx, q, limit(n))
}

// DeviceQueries returns the newest n queries from ip.
func (f *FTL) DeviceQueries(ctx context.Context, ip string, n int) ([]Query, error) {
	const q = `SELECT timestamp, type, status, domain, client FROM queries WHERE client = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	return f.queries(ctx, q, ip, limit(n))
}

func (f *FTL) queries(ctx context.Context, q string, args ...any) ([]Query, error) {
	rows, err := f.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, f.fail("query log failed", q, err)
	}
	defer rows.Close()

	var out []Query
	for rows.Next() {
		var row Query
		var ts int64
		if err := rows.Scan(&ts, &row.Type, &row.Status, &row.Domain, &row.Client); err != nil {
			return nil, f.fail("scan query failed", q, err)
		}
		row.Time = time.Unix(ts, 0)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, f.fail("query log failed", q, err)
	}
	return out, nil
}

const deviceColumns = `na.ip, n.hwaddr, COALESCE(na.name, ''), COALESCE(n.macVendor, ''), n.firstSeen, n.lastQuery, n.numQueries
	FROM network_addresses na JOIN network n ON n.id = na.network_id`

// Devices returns every known client ordered by IP.
func (f *FTL) Devices(ctx context.Context) ([]Device, error) {
	const q = `SELECT ` + deviceColumns + ` ORDER BY na.ip`
	return f.devices(ctx, q)
}

// SearchDevices matches term against IP, MAC address and name.
func (f *FTL) SearchDevices(ctx context.Context, term string) ([]Device, error) {
	const q = `SELECT ` + deviceColumns + `
		WHERE na.ip LIKE ? ESCAPE '\' OR n.hwaddr LIKE ? ESCAPE '\' OR na.name LIKE ? ESCAPE '\'
		ORDER BY na.ip`
	pattern := "%" + escapeLike(term) + "%"
	return f.devices(ctx, q, pattern, pattern, pattern)
}

// Device returns the client with ip.
func (f *FTL) Device(ctx context.Context, ip string) (Device, error) {
	const q = `SELECT ` + deviceColumns + ` WHERE na.ip = ?`
	ds, err := f.devices(ctx, q, ip)
	if err != nil {
		return Device{}, err
	}
	if len(ds) == 0 {
		return Device{}, errors.NewNotFoundError("device", ip)
	}
	return ds[0], nil
}

func (f *FTL) devices(ctx context.Context, q string, args ...any) ([]Device, error) {
	rows, err := f.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, f.fail("list devices failed", q, err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		var first, last int64
		if err := rows.Scan(&d.IP, &d.HWAddr, &d.Name, &d.Vendor, &first, &last, &d.NumQueries); err != nil {
			return nil, f.fail("scan device failed", q, err)
		}
		d.FirstSeen = time.Unix(first, 0)
		d.LastQuery = time.Unix(last, 0)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, f.fail("list devices failed", q, err)
	}
	return out, nil
}

// DeviceSummary counts the queries ip made in r.
func (f *FTL) DeviceSummary(ctx context.Context, ip string, r Range) (DeviceSummary, error) {
	q := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status IN (` + blockedStatuses + `) THEN 1 ELSE 0 END), 0)
		FROM queries WHERE client = ? AND timestamp >= ? AND timestamp <= ?`
	since, until := r.bounds()
	var s DeviceSummary
	if err := f.db.QueryRowContext(ctx, q, ip, since, until).Scan(&s.Total, &s.Blocked); err != nil {
		return DeviceSummary{}, f.fail("device summary failed", q, err)
	}
	return s, nil
}

// DeviceTopDomains returns the n domains ip queried most in r.
func (f *FTL) DeviceTopDomains(ctx context.Context, ip string, r Range, n int) ([]DomainCount, error) {
	const q = `SELECT domain, COUNT(*) AS c FROM queries
		WHERE client = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY domain ORDER BY c DESC, domain LIMIT ?`
	since, until := r.bounds()
	return f.domainCounts(ctx, q, ip, since, until, limit(n))
}

// RenameDevice sets the name FTL shows for ip. FTL is otherwise opened
// read-only, so this uses its own short-lived read-write connection.
func (f *FTL) RenameDevice(ctx context.Context, ip, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.NewValidationError("device name is empty").WithField("name")
	}
	db, err := openDB(ctx, "ftl", f.path, false)
	if err != nil {
		return err
	}
	defer db.Close()

	const q = `UPDATE network_addresses SET name = ?, nameUpdated = ? WHERE ip = ?`
	res, err := db.ExecContext(ctx, q, name, f.now().Unix(), ip)
	if err != nil {
		return f.fail("rename device failed", q, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("device", ip)
	}
	f.names.Remove(ip)
	f.logger.Info("device renamed", "ip", ip, "name", name)
	return nil
}

// ExportQueries writes every query in r to w as CSV, newest first, and
// returns the number of rows written.
func (f *FTL) ExportQueries(ctx context.Context, r Range, w io.Writer) (int, error) {
	const q = `SELECT timestamp, client, domain, type, status FROM queries
		WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp DESC, id DESC`
	since, until := r.bounds()
	rows, err := f.db.QueryContext(ctx, q, since, until)
	if err != nil {
		return 0, f.fail("export failed", q, err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "Client", "Domain", "Type", "Status"}); err != nil {
		return 0, err
	}
	var n int
	for rows.Next() {
		var ts int64
		var client, domain string
		var typ, status int
		if err := rows.Scan(&ts, &client, &domain, &typ, &status); err != nil {
			return n, f.fail("scan query failed", q, err)
		}
		rec := []string{
			time.Unix(ts, 0).UTC().Format(time.RFC3339),
			client,
			domain,
			QueryTypeName(typ),
			string(ClassifyStatus(status)),
		}
		if err := cw.Write(rec); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, f.fail("export failed", q, err)
	}
	cw.Flush()
	return n, cw.Error()
}

func limit(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// String renders d as "name (ip)" or just the IP.
func (d Device) String() string {
	if d.Name == "" {
		return d.IP
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.IP)
}
