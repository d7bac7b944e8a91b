package appliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/testutil"
)

func openGravity(t *testing.T, seed ...string) *Gravity {
	t.Helper()
	path := testutil.NewGravityDB(t, seed...)
	g, err := OpenGravity(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestOpenGravity_Missing(t *testing.T) {
	_, err := OpenGravity(context.Background(), t.TempDir()+"/nope.db", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDatabaseUnavailable))

	var dbErr *errors.DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, "gravity", dbErr.Database)
}

func TestGravity_Adlists(t *testing.T) {
	g := openGravity(t)
	ctx := context.Background()

	id, err := g.AddAdlist(ctx, "https://lists.example/ads.txt", "ads")
	require.NoError(t, err)
	_, err = g.AddAdlist(ctx, "https://lists.example/track.txt", "")
	require.NoError(t, err)

	_, err = g.AddAdlist(ctx, "ftp://nope", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	lists, err := g.Adlists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, id, lists[0].ID)
	assert.Equal(t, "ads", lists[0].Comment)
	assert.True(t, lists[0].Enabled)

	urls, err := g.EnabledAdlistURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://lists.example/ads.txt", "https://lists.example/track.txt"}, urls)

	require.NoError(t, g.RemoveAdlist(ctx, id))
	err = g.RemoveAdlist(ctx, id)
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	lists, err = g.Adlists(ctx)
	require.NoError(t, err)
	assert.Len(t, lists, 1)
}

func TestGravity_ReplaceAdlists(t *testing.T) {
	g := openGravity(t,
		`INSERT INTO adlist (address, comment) VALUES ('https://old.example/1', 'old')`,
		`INSERT INTO adlist (address, comment) VALUES ('https://old.example/2', 'old')`,
	)
	ctx := context.Background()

	err := g.ReplaceAdlists(ctx, []Adlist{
		{Address: "https://new.example/a", Comment: "a", Enabled: true},
		{Address: "https://new.example/b", Comment: "b", Enabled: false},
		{Address: "https://new.example/a", Comment: "dup", Enabled: true},
	})
	require.NoError(t, err)

	lists, err := g.Adlists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "https://new.example/a", lists[0].Address)
	assert.False(t, lists[1].Enabled)

	urls, err := g.EnabledAdlistURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://new.example/a"}, urls)
}

func TestGravity_DomainLists(t *testing.T) {
	g := openGravity(t)
	ctx := context.Background()

	id, err := g.AddDomain(ctx, DenyExact, "  Ads.Example.COM. ", "manual")
	require.NoError(t, err)
	_, err = g.AddDomain(ctx, DenyRegex, `(^|\.)tracker\.example$`, "")
	require.NoError(t, err)
	_, err = g.AddDomain(ctx, AllowExact, "ok.example.com", "")
	require.NoError(t, err)

	_, err = g.AddDomain(ctx, DenyExact, "ads.example.com", "again")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput), "duplicate should be a validation error")
	_, err = g.AddDomain(ctx, DenyExact, "not a domain", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidDomain))
	_, err = g.AddDomain(ctx, DenyRegex, "([", "")
	assert.True(t, errors.Is(err, errors.ErrInvalidDomain))

	deny, err := g.Domains(ctx, DenyExact)
	require.NoError(t, err)
	require.Len(t, deny, 1)
	assert.Equal(t, "ads.example.com", deny[0].Domain)
	assert.Equal(t, "manual", deny[0].Comment)
	assert.Equal(t, DenyExact, deny[0].Kind)

	exists, err := g.DomainExists(ctx, "ads.example.com", DenyExact, DenyRegex)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = g.DomainExists(ctx, "ads.example.com", AllowExact)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = g.DomainExists(ctx, "ok.example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := g.CountDomains(ctx, DenyRegex)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err := g.RemoveDomain(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ads.example.com", removed.Domain)
	_, err = g.DomainByID(ctx, id)
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	cleared, err := g.ClearDomains(ctx, DenyRegex)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)
}

func TestGravity_AddDomains(t *testing.T) {
	g := openGravity(t, `INSERT INTO domainlist (type, domain) VALUES (1, 'dup.example')`)
	ctx := context.Background()

	added, rejected, err := g.AddDomains(ctx, DenyExact, []string{"a.example", "DUP.example", "bad domain", "b.example"}, "import")
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []string{"bad domain"}, rejected)

	enabled, err := g.EnabledDomains(ctx, DenyExact)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example", "dup.example"}, enabled)
}

func TestGravity_CountAndSample(t *testing.T) {
	g := openGravity(t)
	ctx := context.Background()

	d, err := g.SampleGravityDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", d)

	g2 := openGravity(t,
		`INSERT INTO adlist (address) VALUES ('https://x.example')`,
		`INSERT INTO gravity (domain, adlist_id) VALUES ('ad1.example', 1), ('ad2.example', 1)`,
	)
	n, err := g2.GravityCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	d, err = g2.SampleGravityDomain(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"ad1.example", "ad2.example"}, d)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, AllowExact, KindFor(Allow, false))
	assert.Equal(t, AllowRegex, KindFor(Allow, true))
	assert.Equal(t, DenyExact, KindFor(Deny, false))
	assert.Equal(t, DenyRegex, KindFor(Deny, true))
	assert.Equal(t, Deny, DenyRegex.List())
	assert.True(t, AllowRegex.IsRegex())

	lt, err := ParseListType("whitelist")
	require.NoError(t, err)
	assert.Equal(t, Allow, lt)
	_, err = ParseListType("grey")
	assert.Error(t, err)
}

func TestValidateDomain(t *testing.T) {
	valid := []string{"example.com", "a.b.c.example.org", "xn--bcher-kva.example", "host_name.lan", "localhost"}
	for _, d := range valid {
		assert.NoError(t, ValidateDomain(d), d)
	}
	invalid := []string{"", "   ", "has space.com", "*.example.com", "http://example.com", "-lead.example", "a..b", "trail-.example"}
	for _, d := range invalid {
		assert.Error(t, ValidateDomain(d), d)
	}
}

func TestIntegrityCheck(t *testing.T) {
	path := testutil.NewGravityDB(t)
	problems, err := IntegrityCheck(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, problems)

	_, err = IntegrityCheck(context.Background(), t.TempDir()+"/missing.db")
	assert.True(t, errors.Is(err, errors.ErrDatabaseUnavailable))
}
