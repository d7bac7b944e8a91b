package appliance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pihole-manager/pimgr/internal/executor"
)

// Services checked by ServiceStatus when none are named.
var DefaultServices = []string{"pihole-FTL", "lighttpd"}

// Control drives the pihole CLI and systemd through an executor.Runner.
type Control struct {
	run executor.Runner
}

// NewControl returns a Control that runs commands with r.
func NewControl(r executor.Runner) *Control {
	return &Control{run: r}
}

func (c *Control) do(ctx context.Context, sudo bool, args ...string) (executor.Result, error) {
	res := c.run.Run(ctx, executor.Command{Args: args, Sudo: sudo})
	return res, res.Err
}

// ReloadLists makes FTL re-read the domain lists.
func (c *Control) ReloadLists(ctx context.Context) error {
	_, err := c.do(ctx, true, "pihole", "restartdns", "reload-lists")
	return err
}

// RestartDNS restarts the FTL resolver.
func (c *Control) RestartDNS(ctx context.Context) error {
	_, err := c.do(ctx, true, "pihole", "restartdns")
	return err
}

// UpdateGravity rebuilds gravity.db from the adlists, streaming progress.
func (c *Control) UpdateGravity(ctx context.Context, onLine func(string)) error {
	res := c.run.Stream(ctx, executor.Command{Args: []string{"pihole", "-g"}, Sudo: true}, onLine)
	return res.Err
}

// Update upgrades Pi-hole itself, streaming progress.
func (c *Control) Update(ctx context.Context, onLine func(string)) error {
	res := c.run.Stream(ctx, executor.Command{Args: []string{"pihole", "-up"}, Sudo: true}, onLine)
	return res.Err
}

// FlushLogs empties the Pi-hole query log.
func (c *Control) FlushLogs(ctx context.Context) error {
	_, err := c.do(ctx, true, "pihole", "flush")
	return err
}

// Version returns the `pihole -v` report.
func (c *Control) Version(ctx context.Context) (string, error) {
	res, err := c.do(ctx, false, "pihole", "-v")
	return res.Stdout, err
}

// Status returns the `pihole status` report.
func (c *Control) Status(ctx context.Context) (string, error) {
	res, err := c.do(ctx, false, "pihole", "status")
	return res.Stdout, err
}

// SetBlocking enables or disables blocking. A positive d disables only for
// that long.
func (c *Control) SetBlocking(ctx context.Context, enabled bool, d time.Duration) error {
	args := []string{"pihole", "enable"}
	if !enabled {
		args = []string{"pihole", "disable"}
		if d > 0 {
			args = append(args, fmt.Sprintf("%ds", int(d.Seconds())))
		}
	}
	_, err := c.do(ctx, true, args...)
	return err
}

// ServiceState is the systemd state of one unit.
type ServiceState struct {
	Name   string
	State  string
	Active bool
}

// ServiceStatus asks systemd whether each service is active. A unit that
// cannot be queried is reported with its raw state rather than an error.
func (c *Control) ServiceStatus(ctx context.Context, services ...string) []ServiceState {
	if len(services) == 0 {
		services = DefaultServices
	}
	out := make([]ServiceState, 0, len(services))
	for _, s := range services {
		res := c.run.Run(ctx, executor.Command{Args: []string{"systemctl", "is-active", s}})
		state := strings.TrimSpace(res.Stdout)
		if state == "" {
			state = "unknown"
		}
		out = append(out, ServiceState{Name: s, State: state, Active: state == "active"})
	}
	return out
}
