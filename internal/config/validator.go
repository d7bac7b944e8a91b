package config

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
)

// ValidationError is one invalid configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every failure found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

const maxPathLength = 4096

// Validate returns every problem in c; nil means valid.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validatePaths()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateAppliance()...)
	errs = append(errs, c.validateExecutor()...)
	return errs
}

func (c *Config) validatePaths() []ValidationError {
	var errs []ValidationError
	fields := []struct {
		name, value string
	}{
		{"paths.install_root", c.Paths.InstallRoot},
		{"paths.settings_file", c.Paths.SettingsFile},
		{"paths.progress_file", c.Paths.ProgressFile},
		{"paths.wizard_state_file", c.Paths.WizardStateFile},
		{"paths.rules_file", c.Paths.RulesFile},
		{"paths.log_dir", c.Paths.LogDir},
		{"paths.profiles_dir", c.Paths.ProfilesDir},
		{"appliance.gravity_db", c.Appliance.GravityDB},
		{"appliance.ftl_db", c.Appliance.FTLDB},
	}
	for _, f := range fields {
		if strings.ContainsRune(f.value, '\x00') {
			errs = append(errs, ValidationError{Field: f.name, Value: f.value, Message: "path contains invalid null character"})
		}
		if len(f.value) > maxPathLength {
			errs = append(errs, ValidationError{Field: f.name, Value: f.value, Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength)})
		}
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxSizeMB > 1000 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Value: c.Logging.MaxSizeMB, Message: "must be between 0 and 1000"})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Value: c.Logging.MaxBackups, Message: "must be non-negative"})
	}
	if c.Logging.KeepSessions < 0 {
		errs = append(errs, ValidationError{Field: "logging.keep_sessions", Value: c.Logging.KeepSessions, Message: "must be non-negative"})
	}
	return errs
}

func (c *Config) validateAppliance() []ValidationError {
	var errs []ValidationError

	if c.Appliance.DNSAddr != "" {
		host, port, err := net.SplitHostPort(c.Appliance.DNSAddr)
		if err != nil || host == "" {
			errs = append(errs, ValidationError{Field: "appliance.dns_addr", Value: c.Appliance.DNSAddr, Message: "must be host:port"})
		} else if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			errs = append(errs, ValidationError{Field: "appliance.dns_addr", Value: c.Appliance.DNSAddr, Message: "port must be between 1 and 65535"})
		}
	}
	if c.Appliance.StatsCacheSeconds < 0 {
		errs = append(errs, ValidationError{Field: "appliance.stats_cache_seconds", Value: c.Appliance.StatsCacheSeconds, Message: "must be non-negative"})
	}
	return errs
}

func (c *Config) validateExecutor() []ValidationError {
	var errs []ValidationError
	if c.Executor.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{Field: "executor.timeout_seconds", Value: c.Executor.TimeoutSeconds, Message: "must be non-negative"})
	}
	const maxTimeout = 3600
	if c.Executor.TimeoutSeconds > maxTimeout {
		errs = append(errs, ValidationError{Field: "executor.timeout_seconds", Value: c.Executor.TimeoutSeconds, Message: fmt.Sprintf("exceeds maximum of %d seconds", maxTimeout)})
	}
	return errs
}
