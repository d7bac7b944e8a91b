package wizard

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/appliance"
	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/executor"
	"github.com/pihole-manager/pimgr/internal/health"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/settings"
)

// Module names in run order.
const (
	ModSecurityHardening = "security_hardening"
	ModNetworkConfig     = "network_config"
	ModSSHSetup          = "ssh_setup"
	ModPiholeInstall     = "pihole_install"
	ModBlocklistManager  = "blocklist_manager"
	ModPerformanceTuning = "performance_tuning"
	ModHealthCheck       = "health_check"
)

// DefaultProfile is applied when preferences.default_profile is unset.
const DefaultProfile = "moderate"

const (
	installerURL  = "https://install.pi-hole.net"
	installerPath = "/tmp/pihole_install.sh"
)

// Env is what modules act on.
type Env struct {
	Runner      executor.Runner
	Settings    *settings.Store
	Fs          afero.Fs
	GravityDB   string
	ProfilesDir string
	Health      *health.Checker
	// Output receives progress lines for the operator.
	Output func(string)
	Logger *logging.Logger
}

func (e *Env) say(format string, args ...any) {
	if e.Output != nil {
		e.Output(fmt.Sprintf(format, args...))
	}
}

func (e *Env) run(ctx context.Context, s Step) executor.Result {
	c := executor.Command{Args: s.Args, Sudo: s.Sudo, Timeout: s.Timeout}
	if s.Stream {
		return e.Runner.Stream(ctx, c, func(line string) { e.say("  %s", line) })
	}
	return e.Runner.Run(ctx, c)
}

// Step is one command of a module. A failed Optional step is reported and
// skipped.
type Step struct {
	Desc     string
	Args     []string
	Sudo     bool
	Optional bool
	Stream   bool
	Timeout  time.Duration
}

func (e *Env) steps(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := e.run(ctx, s)
		if res.Success {
			e.say("✓ %s", s.Desc)
			continue
		}
		if s.Optional {
			e.say("⚠ %s (skipped: %s)", s.Desc, firstLine(res.Stderr))
			continue
		}
		e.say("✗ %s", s.Desc)
		if res.Err != nil {
			return fmt.Errorf("%s: %w", s.Desc, res.Err)
		}
		return fmt.Errorf("%s: exit status %d", s.Desc, res.ExitCode)
	}
	return nil
}

func stepsModule(name, title string, steps []Step) Module {
	return Module{Name: name, Title: title, Run: func(ctx context.Context, env *Env) error {
		return env.steps(ctx, steps)
	}}
}

// DefaultModules returns the appliance setup in run order.
func DefaultModules() []Module {
	return []Module{
		stepsModule(ModSecurityHardening, "Security Hardening", securitySteps),
		{Name: ModNetworkConfig, Title: "Network Configuration", Run: networkConfig},
		{Name: ModSSHSetup, Title: "SSH Setup", Run: sshSetup},
		{Name: ModPiholeInstall, Title: "Pi-hole Installation", Run: piholeInstall},
		{Name: ModBlocklistManager, Title: "Blocklist Profiles", Run: blocklistManager},
		stepsModule(ModPerformanceTuning, "Performance Tuning", performanceSteps),
		{Name: ModHealthCheck, Title: "Health Check", Run: healthCheck},
	}
}

var securitySteps = []Step{
	{Desc: "Reset firewall rules", Args: []string{"ufw", "--force", "reset"}, Sudo: true, Optional: true},
	{Desc: "Deny incoming by default", Args: []string{"ufw", "default", "deny", "incoming"}, Sudo: true},
	{Desc: "Allow outgoing by default", Args: []string{"ufw", "default", "allow", "outgoing"}, Sudo: true},
	{Desc: "Allow SSH", Args: []string{"ufw", "allow", "22/tcp", "comment", "SSH"}, Sudo: true},
	{Desc: "Allow DNS over TCP", Args: []string{"ufw", "allow", "53/tcp", "comment", "DNS TCP"}, Sudo: true},
	{Desc: "Allow DNS over UDP", Args: []string{"ufw", "allow", "53/udp", "comment", "DNS UDP"}, Sudo: true},
	{Desc: "Allow web interface (HTTP)", Args: []string{"ufw", "allow", "80/tcp", "comment", "Pi-hole Web Interface HTTP"}, Sudo: true},
	{Desc: "Allow web interface (HTTPS)", Args: []string{"ufw", "allow", "443/tcp", "comment", "Pi-hole Web Interface HTTPS"}, Sudo: true},
	{Desc: "Enable firewall", Args: []string{"ufw", "--force", "enable"}, Sudo: true},
	{Desc: "Enable fail2ban", Args: []string{"systemctl", "enable", "--now", "fail2ban"}, Sudo: true, Optional: true},
	{Desc: "Ignore ICMP redirects", Args: []string{"sysctl", "-w", "net.ipv4.conf.all.accept_redirects=0"}, Sudo: true, Optional: true},
	{Desc: "Disable source routing", Args: []string{"sysctl", "-w", "net.ipv4.conf.all.accept_source_route=0"}, Sudo: true, Optional: true},
	{Desc: "Enable SYN cookies", Args: []string{"sysctl", "-w", "net.ipv4.tcp_syncookies=1"}, Sudo: true, Optional: true},
}

var performanceSteps = []Step{
	{Desc: "Lower swappiness", Args: []string{"sysctl", "-w", "vm.swappiness=10"}, Sudo: true},
	{Desc: "Tune VFS cache pressure", Args: []string{"sysctl", "-w", "vm.vfs_cache_pressure=50"}, Sudo: true},
	{Desc: "Cap journal size", Args: []string{"journalctl", "--vacuum-size=50M"}, Sudo: true, Optional: true},
	{Desc: "Clean package cache", Args: []string{"apt-get", "clean"}, Sudo: true, Optional: true},
}

// Route is the detected default route.
type Route struct {
	Address   string
	Gateway   string
	Interface string
}

// ParseDefaultRoute reads `ip -4 route show default` output.
func ParseDefaultRoute(out string) (gateway, iface string, ok bool) {
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) == 0 || f[0] != "default" {
			continue
		}
		for i := 1; i+1 < len(f); i++ {
			switch f[i] {
			case "via":
				gateway = f[i+1]
			case "dev":
				iface = f[i+1]
			}
		}
		return gateway, iface, gateway != ""
	}
	return "", "", false
}

// DetectRoute finds the primary address and default route.
func DetectRoute(ctx context.Context, r executor.Runner) (Route, error) {
	var rt Route
	res := r.Run(ctx, executor.Command{Args: []string{"hostname", "-I"}})
	for _, f := range strings.Fields(res.Stdout) {
		if ip := net.ParseIP(f); ip != nil && ip.To4() != nil {
			rt.Address = f
			break
		}
	}
	res = r.Run(ctx, executor.Command{Args: []string{"ip", "-4", "route", "show", "default"}})
	gw, iface, ok := ParseDefaultRoute(res.Stdout)
	if !ok {
		return rt, errors.New("no default route")
	}
	rt.Gateway, rt.Interface = gw, iface
	if rt.Address == "" {
		return rt, errors.New("no IPv4 address assigned")
	}
	return rt, nil
}

// placeholder reports whether a pihole network value should be replaced
// by the detected one.
func placeholder(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "current", "auto":
		return true
	}
	return false
}

func networkConfig(ctx context.Context, env *Env) error {
	rt, err := DetectRoute(ctx, env.Runner)
	if err != nil {
		return err
	}
	env.say("✓ Address %s via %s on %s", rt.Address, rt.Gateway, rt.Interface)

	if s := env.Settings; s != nil {
		changed := false
		for _, kv := range [][2]string{{"static_ip", rt.Address}, {"gateway", rt.Gateway}, {"interface", rt.Interface}} {
			if placeholder(s.GetString(settings.SectionPihole, kv[0], "")) {
				s.Set(settings.SectionPihole, kv[0], kv[1])
				changed = true
			}
		}
		if changed && !s.Save() {
			return errors.New("failed to save network settings")
		}
	}

	return env.steps(ctx, []Step{
		{Desc: "Reach gateway " + rt.Gateway, Args: []string{"ping", "-c", "2", "-W", "2", rt.Gateway}},
		{Desc: "Reach the internet", Args: []string{"ping", "-c", "2", "-W", "2", "1.1.1.1"}},
	})
}

func sshSetup(ctx context.Context, env *Env) error {
	if err := env.steps(ctx, []Step{
		{Desc: "Validate sshd configuration", Args: []string{"sshd", "-t"}, Sudo: true},
	}); err != nil {
		return err
	}
	// Debian names the unit ssh, other distributions sshd.
	for _, unit := range []string{"ssh", "sshd"} {
		res := env.Runner.Run(ctx, executor.Command{Args: []string{"systemctl", "enable", "--now", unit}, Sudo: true})
		if res.Success {
			env.say("✓ SSH service %s enabled", unit)
			return nil
		}
	}
	return errors.New("could not enable the SSH service")
}

func piholeInstall(ctx context.Context, env *Env) error {
	if env.Runner.Run(ctx, executor.Command{Args: []string{"which", "pihole"}}).Success {
		env.say("Pi-hole is already installed, skipping installer")
		return nil
	}
	return env.steps(ctx, []Step{
		{Desc: "Download installer", Args: []string{"curl", "-sSL", installerURL, "-o", installerPath}, Timeout: 2 * time.Minute},
		{Desc: "Make installer executable", Args: []string{"chmod", "+x", installerPath}},
		{Desc: "Run installer", Args: []string{"bash", installerPath, "--unattended"}, Sudo: true, Stream: true, Timeout: 30 * time.Minute},
		{Desc: "Verify installation", Args: []string{"pihole", "status"}},
	})
}

func blocklistManager(ctx context.Context, env *Env) error {
	name := DefaultProfile
	if env.Settings != nil {
		name = env.Settings.GetString(settings.SectionPreferences, "default_profile", DefaultProfile)
	}
	fs := env.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	profile, err := appliance.LoadProfile(fs, env.ProfilesDir, name)
	if err != nil {
		return err
	}
	lists := profile.Adlists()
	if len(lists) == 0 {
		return errors.NewValidationError("profile has no blocklists").WithField("profile").WithValue(name)
	}

	g, err := appliance.OpenGravity(ctx, env.GravityDB, env.Logger)
	if err != nil {
		return err
	}
	err = g.ReplaceAdlists(ctx, lists)
	_ = g.Close()
	if err != nil {
		return err
	}
	env.say("✓ Installed %d blocklists from the %s profile", len(lists), profile.Name)

	if err := appliance.NewControl(env.Runner).UpdateGravity(ctx, func(line string) { env.say("  %s", line) }); err != nil {
		return errors.Wrap(err, "gravity update")
	}
	if env.Settings != nil {
		env.Settings.Set("blocklists", "active_profile", name)
		env.Settings.Save()
	}
	return nil
}

// criticalChecks must pass for the health module to succeed.
var criticalChecks = []string{health.CheckDNS, health.CheckServices}

func healthCheck(ctx context.Context, env *Env) error {
	if env.Health == nil {
		return errors.New("health checker not configured")
	}
	rep := env.Health.RunAll(ctx)
	var failed []string
	for _, r := range rep.Results {
		mark := "✓"
		if !r.Passed {
			mark = "✗"
			for _, c := range criticalChecks {
				if c == r.Name {
					failed = append(failed, r.Name)
				}
			}
		}
		env.say("%s %s: %s", mark, r.Name, r.Detail)
	}
	env.say("%d/%d checks passed", rep.Passed, rep.Total)
	if len(failed) > 0 {
		return fmt.Errorf("critical checks failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "failed"
	}
	return s
}
