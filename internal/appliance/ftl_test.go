package appliance

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/testutil"
)

var ftlNow = time.Unix(1_700_000_000, 0)

func q(ago time.Duration, typ, status int, domain, client string) string {
	return fmt.Sprintf(`INSERT INTO queries (timestamp, type, status, domain, client) VALUES (%d, %d, %d, '%s', '%s')`,
		ftlNow.Add(-ago).Unix(), typ, status, domain, client)
}

func ftlSeed() []string {
	return []string{
		q(time.Hour, 1, 2, "example.com", "192.168.1.10"),
		q(2*time.Hour, 1, 3, "example.com", "192.168.1.10"),
		q(3*time.Hour, 2, 2, "example.com", "192.168.1.11"),
		q(4*time.Hour, 1, 1, "ads.example", "192.168.1.10"),
		q(5*time.Hour, 1, 1, "ads.example", "192.168.1.11"),
		q(6*time.Hour, 6, 5, "tracker.example", "192.168.1.10"),
		q(7*time.Hour, 1, 2, "news.example", "192.168.1.12"),
		q(3*24*time.Hour, 1, 1, "old-ad.example", "192.168.1.10"),
		`INSERT INTO network (id, hwaddr, interface, firstSeen, lastQuery, numQueries, macVendor) VALUES
			(1, 'aa:bb:cc:00:00:01', 'eth0', 1690000000, 1699990000, 120, 'Raspberry'),
			(2, 'aa:bb:cc:00:00:02', 'eth0', 1690000000, 1699990000, 40, NULL)`,
		`INSERT INTO network_addresses (network_id, ip, name) VALUES
			(1, '192.168.1.10', 'laptop'),
			(2, '192.168.1.11', NULL)`,
	}
}

func openFTL(t *testing.T, opts ...FTLOption) (*FTL, string) {
	t.Helper()
	path := testutil.NewFTLDB(t, ftlSeed()...)
	opts = append([]FTLOption{WithClock(func() time.Time { return ftlNow })}, opts...)
	f, err := OpenFTL(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, path
}

func dayRange(t *testing.T, f *FTL) Range {
	t.Helper()
	r, err := f.Range(RangeDay)
	require.NoError(t, err)
	return r
}

func TestFTL_Summary(t *testing.T) {
	f, _ := openFTL(t)
	ctx := context.Background()

	s, err := f.Summary(ctx, dayRange(t, f))
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.Total)
	assert.EqualValues(t, 3, s.Blocked)
	assert.EqualValues(t, 4, s.Permitted)
	assert.EqualValues(t, 1, s.Cached)
	assert.EqualValues(t, 3, s.Forwarded())
	assert.InDelta(t, 42.857, s.PercentBlocked(), 0.01)

	all, err := f.Range(RangeAll)
	require.NoError(t, err)
	s, err = f.Summary(ctx, all)
	require.NoError(t, err)
	assert.EqualValues(t, 8, s.Total)
	assert.EqualValues(t, 4, s.Blocked)

	assert.Zero(t, Summary{}.PercentBlocked())
}

func TestFTL_SummaryIsCached(t *testing.T) {
	f, path := openFTL(t, WithStatsTTL(time.Hour))
	ctx := context.Background()
	r := dayRange(t, f)

	first, err := f.Summary(ctx, r)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(q(time.Minute, 1, 1, "late.example", "192.168.1.10"))
	require.NoError(t, err)
	db.Close()

	cached, err := f.Summary(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, first.Total, cached.Total)

	f.InvalidateStats()
	fresh, err := f.Summary(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, first.Total+1, fresh.Total)
}

func TestFTL_TopLists(t *testing.T) {
	f, _ := openFTL(t)
	ctx := context.Background()
	r := dayRange(t, f)

	permitted, err := f.TopPermitted(ctx, r, 10)
	require.NoError(t, err)
	assert.Equal(t, []DomainCount{{"example.com", 3}, {"news.example", 1}}, permitted)

	blocked, err := f.TopBlocked(ctx, r, 1)
	require.NoError(t, err)
	assert.Equal(t, []DomainCount{{"ads.example", 2}}, blocked)

	clients, err := f.TopClients(ctx, r, 10)
	require.NoError(t, err)
	require.Len(t, clients, 3)
	assert.Equal(t, ClientCount{IP: "192.168.1.10", Name: "laptop", Count: 4}, clients[0])
	assert.Equal(t, "", clients[1].Name)

	types, err := f.QueryTypes(ctx, r)
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, "A", types[0].Name)
	assert.EqualValues(t, 5, types[0].Count)
}

func TestFTL_RecentQueries(t *testing.T) {
	f, _ := openFTL(t)
	recent, err := f.RecentQueries(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "example.com", recent[0].Domain)
	assert.Equal(t, ClassForwarded, recent[0].Class())
	assert.Equal(t, ClassCached, recent[1].Class())
}

func TestFTL_Devices(t *testing.T) {
	f, _ := openFTL(t)
	ctx := context.Background()

	devices, err := f.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "laptop (192.168.1.10)", devices[0].String())
	assert.Equal(t, "Raspberry", devices[0].Vendor)
	assert.Equal(t, "192.168.1.11", devices[1].String())

	d, err := f.Device(ctx, "192.168.1.11")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:00:00:02", d.HWAddr)

	_, err = f.Device(ctx, "10.0.0.1")
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	found, err := f.SearchDevices(ctx, "LAP")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = f.SearchDevices(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, found, "LIKE wildcards in the term are literal")

	found, err = f.SearchDevices(ctx, "cc:00:00:02")
	require.NoError(t, err)
	require.Len(t, found, 1)

	sum, err := f.DeviceSummary(ctx, "192.168.1.10", dayRange(t, f))
	require.NoError(t, err)
	assert.Equal(t, DeviceSummary{Total: 4, Blocked: 2}, sum)

	top, err := f.DeviceTopDomains(ctx, "192.168.1.10", dayRange(t, f), 5)
	require.NoError(t, err)
	assert.Equal(t, "example.com", top[0].Domain)

	history, err := f.DeviceQueries(ctx, "192.168.1.11", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFTL_RenameDevice(t *testing.T) {
	f, _ := openFTL(t)
	ctx := context.Background()

	assert.Equal(t, "laptop", f.ClientName(ctx, "192.168.1.10"))
	require.NoError(t, f.RenameDevice(ctx, "192.168.1.10", "work-laptop"))
	assert.Equal(t, "work-laptop", f.ClientName(ctx, "192.168.1.10"), "rename must evict the cached name")

	err := f.RenameDevice(ctx, "10.9.9.9", "ghost")
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	err = f.RenameDevice(ctx, "192.168.1.10", "  ")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestFTL_ExportQueries(t *testing.T) {
	f, _ := openFTL(t)
	var buf bytes.Buffer

	n, err := f.ExportQueries(context.Background(), dayRange(t, f), &buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Timestamp,Client,Domain,Type,Status", lines[0])
	assert.Contains(t, lines[1], ",192.168.1.10,example.com,A,forwarded")
}

func TestRangeByName(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	r, err := RangeByName(RangeWeek, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), r.Since)
	assert.Equal(t, "Last 7 days", r.Label)

	r, err = RangeByName(RangeAll, now)
	require.NoError(t, err)
	since, _ := r.bounds()
	assert.Zero(t, since)

	_, err = RangeByName("1y", now)
	assert.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ClassBlocked, ClassifyStatus(1))
	assert.Equal(t, ClassBlocked, ClassifyStatus(16))
	assert.Equal(t, ClassCached, ClassifyStatus(3))
	assert.Equal(t, ClassForwarded, ClassifyStatus(14))
	assert.Equal(t, ClassUnknown, ClassifyStatus(0))
	assert.Equal(t, "TYPE99", QueryTypeName(99))
}
