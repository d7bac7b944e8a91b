// Package settings is the operator-facing settings store: the Pi-hole web
// URL, the optional router connection and display preferences, kept in a
// YAML file that only its owner can read.
//
// Loading never fails. A missing, unreadable, empty or corrupt file yields
// the default document. Saving reports success as a bool and leaves the
// in-memory document alone either way. Sections and keys pimgr does not
// know about are written back in their original order.
package settings

import (
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/secret"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
)

// Validation messages returned by Store.Validate.
const (
	MsgWebURLMissing     = "Pi-hole web URL is not configured"
	MsgRouterHostMissing = "Router host is not configured"
	MsgRouterUserMissing = "Router username is not configured"
)

// RouterConfig is the router connection as stored. Password is still
// ciphertext; decrypt it with Store.DecryptPassword at the point of use.
type RouterConfig struct {
	Host           string
	Username       string
	Password       string
	AutomationMode bool
}

// Store owns one settings file. Its methods are safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	doc    *Document
	cipher *secret.Cipher
	logger *logging.Logger
	audit  *sessionlog.Log
}

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the filesystem (tests use afero.NewMemMapFs).
func WithFs(fs afero.Fs) Option { return func(s *Store) { s.fs = fs } }

// WithCipher replaces the password cipher.
func WithCipher(c *secret.Cipher) Option { return func(s *Store) { s.cipher = c } }

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(s *Store) { s.logger = l } }

// WithSessionLog records saves and changes in the session log.
func WithSessionLog(l *sessionlog.Log) Option { return func(s *Store) { s.audit = l } }

// Open creates a Store for path and loads it.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		fs:     fsutil.OsFs(),
		path:   path,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cipher == nil {
		s.cipher = secret.NewCipher(nil)
	}
	s.logger = s.logger.WithComponent("settings")
	s.Load()
	return s
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Load re-reads the file, replacing the in-memory document, and returns a
// copy of the result.
func (s *Store) Load() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = s.read()
	return s.doc.Clone()
}

func (s *Store) read() *Document {
	data, err := fsutil.ReadFile(s.fs, s.path)
	if err != nil {
		s.logger.Info("using default settings", "path", s.path, "reason", err.Error())
		return DefaultDocument()
	}
	doc, err := Unmarshal(data)
	if err != nil {
		s.logger.Info("using default settings", "path", s.path, "reason", err.Error())
		return DefaultDocument()
	}
	return doc
}

// Save writes the whole document. It returns false on any failure.
func (s *Store) Save() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := Marshal(s.doc)
	if err != nil {
		s.logger.Error("failed to encode settings", "error", err)
		s.audit.Status("error", "Failed to save settings: "+err.Error())
		return false
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.path, data, fsutil.PrivatePerm); err != nil {
		s.logger.Error("failed to save settings", "path", s.path, "error", err)
		s.audit.Status("error", "Failed to save settings: "+err.Error())
		return false
	}
	s.audit.Config("save", "settings", s.path, false)
	return true
}

// Document returns a copy of the in-memory document.
func (s *Store) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Reset replaces the in-memory document with the defaults. It does not
// save.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = DefaultDocument()
	s.audit.Config("reset", "settings", "defaults", false)
}

// Get returns section.key as a plain Go value, or fallback when missing.
func (s *Store) Get(section, key string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Get(section, key)
	if !ok {
		return fallback
	}
	return v.Interface()
}

// Value returns section.key as a Value.
func (s *Store) Value(section, key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Get(section, key)
}

// GetString returns section.key when it holds a string, else fallback.
func (s *Store) GetString(section, key, fallback string) string {
	v, ok := s.Value(section, key)
	if !ok {
		return fallback
	}
	if str, ok := v.AsString(); ok {
		return str
	}
	return fallback
}

// GetBool returns section.key when it holds a bool, else fallback.
func (s *Store) GetBool(section, key string, fallback bool) bool {
	v, ok := s.Value(section, key)
	if !ok {
		return fallback
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	return fallback
}

// Set stores section.key in memory, creating the section if needed.
// Call Save to persist.
func (s *Store) Set(section, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := ValueOf(value)
	s.doc.Set(section, key, v)
	s.audit.Config("set", section+"."+key, v.String(), isSecretKey(section, key))
}

func isSecretKey(section, key string) bool {
	k := strings.ToLower(key)
	return section == SectionRouter && k == "password" ||
		strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

func (s *Store) truthy(section, key string) bool {
	v, ok := s.doc.Get(section, key)
	return ok && v.Truthy()
}

func (s *Store) str(section, key string) string {
	v, ok := s.doc.Get(section, key)
	if !ok || v.IsNull() {
		return ""
	}
	return v.String()
}

// IsConfigured reports whether a Pi-hole web URL is set.
func (s *Store) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truthy(SectionPihole, "web_url")
}

// Validate returns every structural problem. A router password is not
// required here; a missing one is handled when the router is used.
func (s *Store) Validate() (bool, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []string
	if !s.truthy(SectionPihole, "web_url") {
		errs = append(errs, MsgWebURLMissing)
	}
	if s.truthy(SectionRouter, "enabled") {
		if !s.truthy(SectionRouter, "host") {
			errs = append(errs, MsgRouterHostMissing)
		}
		if !s.truthy(SectionRouter, "username") {
			errs = append(errs, MsgRouterUserMissing)
		}
	}
	return len(errs) == 0, errs
}

// RouterConnection returns the router connection, or nil when the router
// is disabled.
func (s *Store) RouterConnection() *RouterConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.truthy(SectionRouter, "enabled") {
		return nil
	}
	return &RouterConfig{
		Host:           s.str(SectionRouter, "host"),
		Username:       s.str(SectionRouter, "username"),
		Password:       s.str(SectionRouter, "password"),
		AutomationMode: s.truthy(SectionRouter, "automation_mode"),
	}
}

// EncryptPassword returns ciphertext for plain.
func (s *Store) EncryptPassword(plain string) (string, error) {
	return s.cipher.Encrypt(plain)
}

// DecryptPassword returns the plaintext for value. Anything that is not
// ciphertext this machine can open is returned unchanged.
func (s *Store) DecryptPassword(value string) string {
	plain, _ := s.cipher.Decrypt(value)
	return plain
}

// SetRouterPassword encrypts plain and stores it as router.password. An
// empty password clears the field.
func (s *Store) SetRouterPassword(plain string) error {
	if plain == "" {
		s.Set(SectionRouter, "password", "")
		return nil
	}
	ct, err := s.EncryptPassword(plain)
	if err != nil {
		return err
	}
	s.Set(SectionRouter, "password", ct)
	return nil
}
