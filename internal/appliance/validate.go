package appliance

import (
	"regexp"
	"strings"

	"github.com/pihole-manager/pimgr/internal/errors"
)

const maxDomainLength = 253

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_-]{0,61}[A-Za-z0-9_])?$`)

// NormalizeDomain lowercases d and strips surrounding whitespace and a
// trailing dot.
func NormalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}

// ValidateDomain checks that d is a plausible exact-match domain.
func ValidateDomain(d string) error {
	n := NormalizeDomain(d)
	invalid := func(msg string) error {
		return errors.NewValidationError(msg).WithField("domain").WithValue(d).WithCause(errors.ErrInvalidDomain)
	}
	switch {
	case n == "":
		return invalid("domain is empty")
	case len(n) > maxDomainLength:
		return invalid("domain is longer than 253 characters")
	case strings.ContainsAny(n, " \t/:*"):
		return invalid("domain contains invalid characters")
	}
	for _, label := range strings.Split(n, ".") {
		if !labelPattern.MatchString(label) {
			return invalid("domain label '" + label + "' is invalid")
		}
	}
	return nil
}

// ValidateRegex checks that p compiles. Pi-hole uses POSIX extended
// regexes; RE2 accepts the common subset used in deny lists.
func ValidateRegex(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.NewValidationError("pattern is empty").WithField("pattern").WithCause(errors.ErrInvalidDomain)
	}
	if _, err := regexp.Compile(p); err != nil {
		return errors.NewValidationError(err.Error()).WithField("pattern").WithValue(p).WithCause(errors.ErrInvalidDomain)
	}
	return nil
}
