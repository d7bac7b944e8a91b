// Package config holds pimgr's own runtime configuration: where the
// appliance files live, how verbose the debug log is, and how external
// commands run. It is read through viper from flags, PIMGR_* environment
// variables, a .env file and pimgr.yaml, in that order of precedence.
//
// The operator-facing Pi-hole settings (web URL, router connection,
// preferences) are not here; they live in the settings store.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultInstallRoot is where the appliance manager keeps its state.
const DefaultInstallRoot = "/opt/pihole-manager"

// Config is the complete runtime configuration.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Appliance ApplianceConfig `mapstructure:"appliance"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
}

// PathsConfig locates pimgr's files. Empty file paths resolve relative to
// InstallRoot.
type PathsConfig struct {
	InstallRoot     string `mapstructure:"install_root"`
	SettingsFile    string `mapstructure:"settings_file"`
	ProgressFile    string `mapstructure:"progress_file"`
	WizardStateFile string `mapstructure:"wizard_state_file"`
	RulesFile       string `mapstructure:"rules_file"`
	LogDir          string `mapstructure:"log_dir"`
	ProfilesDir     string `mapstructure:"profiles_dir"`
}

// LoggingConfig controls the debug log and session log retention.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error" (default "info").
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates debug.log past this size (default 5).
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated debug logs kept (default 3).
	MaxBackups int `mapstructure:"max_backups"`
	// KeepSessions prunes session logs beyond this count; 0 keeps all.
	KeepSessions int `mapstructure:"keep_sessions"`
}

// ApplianceConfig points at the Pi-hole databases and resolver.
type ApplianceConfig struct {
	GravityDB         string `mapstructure:"gravity_db"`
	FTLDB             string `mapstructure:"ftl_db"`
	DNSAddr           string `mapstructure:"dns_addr"`
	StatsCacheSeconds int    `mapstructure:"stats_cache_seconds"`
}

// ExecutorConfig controls external command execution.
type ExecutorConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	UseSudo        bool `mapstructure:"use_sudo"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			InstallRoot: DefaultInstallRoot,
		},
		Logging: LoggingConfig{
			Level:        "info",
			MaxSizeMB:    5,
			MaxBackups:   3,
			KeepSessions: 50,
		},
		Appliance: ApplianceConfig{
			GravityDB:         "/etc/pihole/gravity.db",
			FTLDB:             "/etc/pihole/pihole-FTL.db",
			DNSAddr:           "127.0.0.1:53",
			StatsCacheSeconds: 10,
		},
		Executor: ExecutorConfig{
			TimeoutSeconds: 30,
			UseSudo:        true,
		},
	}
}

// SetDefaults registers every default with viper so env vars and config
// files can override individual keys.
func SetDefaults() {
	d := Default()

	viper.SetDefault("paths.install_root", d.Paths.InstallRoot)
	viper.SetDefault("paths.settings_file", d.Paths.SettingsFile)
	viper.SetDefault("paths.progress_file", d.Paths.ProgressFile)
	viper.SetDefault("paths.wizard_state_file", d.Paths.WizardStateFile)
	viper.SetDefault("paths.rules_file", d.Paths.RulesFile)
	viper.SetDefault("paths.log_dir", d.Paths.LogDir)
	viper.SetDefault("paths.profiles_dir", d.Paths.ProfilesDir)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.keep_sessions", d.Logging.KeepSessions)

	viper.SetDefault("appliance.gravity_db", d.Appliance.GravityDB)
	viper.SetDefault("appliance.ftl_db", d.Appliance.FTLDB)
	viper.SetDefault("appliance.dns_addr", d.Appliance.DNSAddr)
	viper.SetDefault("appliance.stats_cache_seconds", d.Appliance.StatsCacheSeconds)

	viper.SetDefault("executor.timeout_seconds", d.Executor.TimeoutSeconds)
	viper.SetDefault("executor.use_sudo", d.Executor.UseSudo)
}

// Keys lists every configuration key, in display order.
func Keys() []string {
	return []string{
		"paths.install_root",
		"paths.settings_file",
		"paths.progress_file",
		"paths.wizard_state_file",
		"paths.rules_file",
		"paths.log_dir",
		"paths.profiles_dir",
		"logging.level",
		"logging.max_size_mb",
		"logging.max_backups",
		"logging.keep_sessions",
		"appliance.gravity_db",
		"appliance.ftl_db",
		"appliance.dns_addr",
		"appliance.stats_cache_seconds",
		"executor.timeout_seconds",
		"executor.use_sudo",
	}
}

// Load unmarshals viper's merged view into a Config and validates it.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when it
// does not load.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns pimgr's config directory, honouring XDG_CONFIG_HOME.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pimgr")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pimgr"
	}
	return filepath.Join(home, ".config", "pimgr")
}

// ConfigFile returns the default path of pimgr.yaml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "pimgr.yaml")
}

func (p PathsConfig) root() string {
	if p.InstallRoot == "" {
		return DefaultInstallRoot
	}
	return expandHome(p.InstallRoot)
}

func (p PathsConfig) resolve(path, fallback string) string {
	if path == "" {
		return filepath.Join(p.root(), fallback)
	}
	path = expandHome(path)
	if !filepath.IsAbs(path) {
		return filepath.Join(p.root(), path)
	}
	return path
}

// Settings is the resolved settings store path.
func (p PathsConfig) Settings() string { return p.resolve(p.SettingsFile, "config.yaml") }

// Progress is the resolved progress tracker path.
func (p PathsConfig) Progress() string { return p.resolve(p.ProgressFile, "state.json") }

// WizardState is the resolved setup wizard state path.
func (p PathsConfig) WizardState() string {
	return p.resolve(p.WizardStateFile, "setup_state.json")
}

// Rules is the resolved content filter rules path.
func (p PathsConfig) Rules() string {
	return p.resolve(p.RulesFile, filepath.Join("data", "content_filter_rules.json"))
}

// Logs is the resolved log directory.
func (p PathsConfig) Logs() string { return p.resolve(p.LogDir, "logs") }

// Profiles is the directory holding blocklist profile YAML files.
func (p PathsConfig) Profiles() string { return p.resolve(p.ProfilesDir, "profiles") }

// StatsTTL is the summary cache lifetime.
func (c ApplianceConfig) StatsTTL() time.Duration {
	return time.Duration(c.StatsCacheSeconds) * time.Second
}

// Timeout is the default per-command timeout.
func (c ExecutorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
