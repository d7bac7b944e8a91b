package filter

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/testutil"
)

func TestWildcardToRegex(t *testing.T) {
	tests := []struct {
		in, want string
		match    []string
		noMatch  []string
	}{
		{"*.facebook.com", `(^|\.)facebook\.com$`, []string{"facebook.com", "www.facebook.com"}, []string{"notfacebook.com"}},
		{"ads*.example.com", `^ads.*\.example\.com$`, []string{"ads1.example.com", "ads.example.com"}, []string{"xads.example.com"}},
		{"*.*.example", `^.*\..*\.example$`, []string{"a.b.example"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := WildcardToRegex(tt.in)
			assert.Equal(t, tt.want, got)
			re := regexp.MustCompile(got)
			for _, m := range tt.match {
				assert.True(t, re.MatchString(m), m)
			}
			for _, m := range tt.noMatch {
				assert.False(t, re.MatchString(m), m)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	now := at(4, 12, 0)
	rules := []Rule{
		{ID: 1, Name: "social", Enabled: true, Domains: []string{"Facebook.com", "*.facebook.com", ""}},
		{ID: 2, Name: "dup", Enabled: true, Domains: []string{"facebook.com"}},
		{ID: 3, Name: "off", Enabled: false, Domains: []string{"off.example"}},
		{ID: 4, Name: "night", Enabled: true, Domains: []string{"night.example"},
			Schedule: Schedule{Enabled: true, StartTime: "22:00", EndTime: "06:00"}},
	}

	plan := Plan(rules, now)
	require.Len(t, plan, 2)
	assert.Equal(t, Entry{Source: `*.facebook.com`, Value: `(^|\.)facebook\.com$`, Kind: appliance.DenyRegex, Rules: []int{1}}, plan[0])
	assert.Equal(t, "facebook.com", plan[1].Value)
	assert.Equal(t, appliance.DenyExact, plan[1].Kind)
	assert.Equal(t, []int{1, 2}, plan[1].Rules)

	night := Plan(rules, at(4, 23, 0))
	assert.Len(t, night, 3)
}

type recordingReloader struct{ calls int }

func (r *recordingReloader) ReloadLists(context.Context) error {
	r.calls++
	return nil
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	path := testutil.NewGravityDB(t,
		`INSERT INTO domainlist (type, domain, comment) VALUES (1, 'manual.example', 'by hand')`,
		`INSERT INTO domainlist (type, domain, comment) VALUES (1, 'stale.example', 'Content Filter')`,
		`INSERT INTO domainlist (type, domain, comment) VALUES (0, 'allowed.example', 'Content Filter')`,
	)
	g, err := appliance.OpenGravity(ctx, path, nil)
	require.NoError(t, err)
	defer g.Close()

	rules := []Rule{
		{ID: 1, Name: "r", Enabled: true, Domains: []string{"new.example", "*.new.example", "manual.example", "bad domain"}},
	}
	reloader := &recordingReloader{}

	res, err := Apply(ctx, g, reloader, rules, at(4, 12, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Planned)
	assert.ElementsMatch(t, []string{"new.example", `(^|\.)new\.example$`}, res.Added)
	assert.Equal(t, []string{"manual.example"}, res.Present)
	assert.Equal(t, []string{"stale.example"}, res.Removed)
	assert.Equal(t, []string{"bad domain"}, res.Rejected)
	assert.True(t, res.Reloaded)
	assert.Equal(t, 1, reloader.calls)

	exact, err := g.Domains(ctx, appliance.DenyExact)
	require.NoError(t, err)
	var values []string
	for _, e := range exact {
		values = append(values, e.Domain+"/"+e.Comment)
	}
	assert.Equal(t, []string{"manual.example/by hand", "new.example/Content Filter"}, values)

	allow, err := g.Domains(ctx, appliance.AllowExact)
	require.NoError(t, err)
	assert.Len(t, allow, 1, "allow lists are never touched")

	res, err = Apply(ctx, g, reloader, rules, at(4, 12, 0), nil)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.False(t, res.Reloaded)
	assert.Equal(t, 1, reloader.calls, "no reload when nothing changed")

	rules[0].Enabled = false
	res, err = Apply(ctx, g, reloader, rules, at(4, 12, 0), nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"new.example", `(^|\.)new\.example$`}, res.Removed)
}

func TestApply_ReloadsThroughControl(t *testing.T) {
	ctx := context.Background()
	g, err := appliance.OpenGravity(ctx, testutil.NewGravityDB(t), nil)
	require.NoError(t, err)
	defer g.Close()

	runner := testutil.NewFakeRunner()
	_, err = Apply(ctx, g, appliance.NewControl(runner), []Rule{{ID: 1, Name: "r", Enabled: true, Domains: []string{"x.example"}}}, time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, runner.Called("pihole", "restartdns", "reload-lists"))
}

func TestValidate(t *testing.T) {
	rules := []Rule{
		{ID: 1, Name: "ok", Enabled: true, Domains: []string{"a.example", "*.a.example"}, Devices: []string{"192.168.1.5"}},
		{ID: 1, Name: "", Enabled: true, Domains: nil},
		{ID: 3, Name: "bad", Enabled: true, Domains: []string{"not valid"}, Devices: []string{"host"},
			Schedule: Schedule{Enabled: true, StartTime: "09:00", EndTime: "5pm"}},
		{ID: 4, Name: "off", Enabled: false, Domains: []string{"off.example"}},
	}
	rep := Validate(rules, at(4, 12, 0))

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 3, rep.Enabled)
	assert.Equal(t, 1, rep.Scheduled)
	assert.Equal(t, 3, rep.ActiveNow)
	assert.Equal(t, 3, rep.DomainsAffected)
	assert.False(t, rep.OK())
	assert.Len(t, rep.Problems, 6)

	assert.True(t, Validate(rules[:1], at(4, 12, 0)).OK())
}
