// Package router resolves the optional home-router connection. The stored
// password is decrypted only here, at the point of use.
package router

import (
	"context"
	"net"
	"strings"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/executor"
	"github.com/pihole-manager/pimgr/internal/settings"
)

// Prompter asks the operator for a secret. Implementations must not echo
// the answer.
type Prompter interface {
	Secret(prompt string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(prompt string) (string, error)

// Secret implements Prompter.
func (f PrompterFunc) Secret(prompt string) (string, error) { return f(prompt) }

// PasswordPrompt is shown when the router password is not stored.
const PasswordPrompt = "Router password (secure mode)"

// Login is a usable router connection with the plaintext password.
type Login struct {
	Host     string
	Username string
	Password string
	// Prompted is true when the password came from the operator rather than
	// from settings.
	Prompted bool
}

// String never includes the password.
func (l Login) String() string {
	return l.Username + "@" + l.Host
}

// Credentials returns the router login from store. It fails with
// ErrRouterDisabled when router integration is off. An empty password is
// requested from p unless automation mode is on, in which case it is an
// error.
func Credentials(store *settings.Store, p Prompter) (Login, error) {
	rc := store.RouterConnection()
	if rc == nil {
		return Login{}, errors.ErrRouterDisabled
	}
	if strings.TrimSpace(rc.Host) == "" {
		return Login{}, errors.NewValidationError("router host is not set").WithField("router.host")
	}

	login := Login{
		Host:     rc.Host,
		Username: rc.Username,
		Password: store.DecryptPassword(rc.Password),
	}
	if login.Password != "" {
		return login, nil
	}
	if rc.AutomationMode {
		return Login{}, errors.NewValidationError("automation mode needs a stored router password").WithField("router.password")
	}
	if p == nil {
		return Login{}, errors.NewValidationError("router password required").WithField("router.password")
	}

	pw, err := p.Secret(PasswordPrompt)
	if err != nil {
		return Login{}, err
	}
	if pw == "" {
		return Login{}, errors.NewValidationError("router password required").WithField("router.password")
	}
	login.Password = pw
	login.Prompted = true
	return login, nil
}

// ValidHost reports whether host is an IP address or a DNS hostname.
func ValidHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	if host == "" || len(host) > 253 || strings.HasPrefix(host, "-") {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// Ping checks that host answers ICMP echo.
func Ping(ctx context.Context, r executor.Runner, host string) error {
	if !ValidHost(host) {
		return errors.NewValidationError("invalid router host").WithField("router.host").WithValue(host)
	}
	res := r.Run(ctx, executor.Command{Args: []string{"ping", "-c", "2", "-W", "2", host}})
	if !res.Success {
		if res.Err != nil {
			return errors.Wrapf(res.Err, "router %s unreachable", host)
		}
		return errors.Wrapf(errors.ErrCommandFailed, "router %s unreachable", host)
	}
	return nil
}
