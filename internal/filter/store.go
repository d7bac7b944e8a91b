package filter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/fsutil"
	"github.com/pihole-manager/pimgr/internal/logging"
	"github.com/pihole-manager/pimgr/internal/sessionlog"
)

// Store owns the rules file. A missing or unreadable file loads as an empty
// rule list; every mutation is written back atomically.
type Store struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	rules  []Rule
	now    func() time.Time
	logger *logging.Logger
	audit  *sessionlog.Log
}

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the filesystem.
func WithFs(fs afero.Fs) Option { return func(s *Store) { s.fs = fs } }

// WithClock replaces time.Now for Created stamps.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger attaches the debug logger.
func WithLogger(l *logging.Logger) Option { return func(s *Store) { s.logger = l } }

// WithSessionLog records rule changes in the session log.
func WithSessionLog(l *sessionlog.Log) Option { return func(s *Store) { s.audit = l } }

// Open creates a Store for path and loads it.
func Open(path string, opts ...Option) *Store {
	s := &Store{
		fs:     fsutil.OsFs(),
		path:   path,
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("filter")
	s.Load()
	return s
}

// Path returns the rules file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether the rules file is present.
func (s *Store) Exists() bool { return fsutil.Exists(s.fs, s.path) }

// Load re-reads the rules file.
func (s *Store) Load() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = s.read()
	return cloneRules(s.rules)
}

func (s *Store) read() []Rule {
	data, err := fsutil.ReadFile(s.fs, s.path)
	if err != nil {
		s.logger.Debug("rules file not loaded", "path", s.path, "error", err)
		return nil
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		s.logger.Warn("rules file is corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}
	return rules
}

func (s *Store) saveLocked() error {
	out := cloneRules(s.rules)
	for i := range out {
		if out[i].Domains == nil {
			out[i].Domains = []string{}
		}
		if out[i].Devices == nil {
			out[i].Devices = []string{}
		}
	}
	if out == nil {
		out = []Rule{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode rules")
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.path, data, fsutil.PrivatePerm); err != nil {
		s.logger.Error("failed to save rules", "path", s.path, "error", err)
		s.audit.Exception(err, "saving content filter rules")
		return errors.Wrapf(err, "save rules to %s", s.path)
	}
	return nil
}

// List returns a copy of every rule in file order.
func (s *Store) List() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRules(s.rules)
}

// Get returns the rule with id.
func (s *Store) Get(id int) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Rule{}, notFound(id)
	}
	return s.rules[i].clone(), nil
}

func (s *Store) indexLocked(id int) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func notFound(id int) error {
	return errors.NewNotFoundError("filter rule", strconv.Itoa(id)).WithCause(errors.ErrRuleNotFound)
}

func checkRule(r Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.NewValidationError("rule name is empty").WithField("name")
	}
	if len(r.Domains) == 0 {
		return errors.NewValidationError("rule has no domains").WithField("domains")
	}
	return nil
}

// Add assigns the next free ID and a Created stamp to r, appends it and
// saves. The stored rule is returned.
func (s *Store) Add(r Rule) (Rule, error) {
	if err := checkRule(r); err != nil {
		return Rule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 0
	for _, existing := range s.rules {
		next = max(next, existing.ID)
	}
	r = r.clone()
	r.ID = next + 1
	if r.Category == "" {
		r.Category = CategoryCustom
	}
	r.Created = s.now().Format(time.RFC3339)
	s.rules = append(s.rules, r)

	s.audit.State("ADD_RULE", r.Name, r.ID)
	s.logger.Info("filter rule added", "id", r.ID, "name", r.Name, "domains", len(r.Domains))
	return r.clone(), s.saveLocked()
}

// Update replaces the rule with the same ID and saves.
func (s *Store) Update(r Rule) error {
	if err := checkRule(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(r.ID)
	if i < 0 {
		return notFound(r.ID)
	}
	if r.Created == "" {
		r.Created = s.rules[i].Created
	}
	s.rules[i] = r.clone()
	s.audit.State("UPDATE_RULE", r.Name, r.ID)
	return s.saveLocked()
}

// Remove deletes the rule with id and saves.
func (s *Store) Remove(id int) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Rule{}, notFound(id)
	}
	removed := s.rules[i]
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	s.audit.State("DELETE_RULE", removed.Name, id)
	return removed, s.saveLocked()
}

// Toggle flips the rule's Enabled flag and saves.
func (s *Store) Toggle(id int) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Rule{}, notFound(id)
	}
	s.rules[i].Enabled = !s.rules[i].Enabled
	s.audit.State("TOGGLE_RULE", s.rules[i].Name, s.rules[i].Enabled)
	return s.rules[i].clone(), s.saveLocked()
}

// QuickBlockCategory adds an always-on rule for a built-in category.
func (s *Store) QuickBlockCategory(key string) (Rule, error) {
	c, ok := CategoryByKey(key)
	if !ok {
		return Rule{}, errors.NewValidationError("unknown category").WithField("category").WithValue(key)
	}
	return s.Add(Rule{
		Name:     "Block " + c.Name,
		Category: c.Key,
		Domains:  c.Domains,
		Enabled:  true,
	})
}

// QuickBlockDomain adds an always-on rule for domain and its subdomains.
func (s *Store) QuickBlockDomain(domain string) (Rule, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return Rule{}, errors.NewValidationError("domain is empty").WithField("domain").WithCause(errors.ErrInvalidDomain)
	}
	return s.Add(Rule{
		Name:     "Block " + domain,
		Category: CategoryCustom,
		Domains:  []string{domain, "*." + domain},
		Enabled:  true,
	})
}

func cloneRules(in []Rule) []Rule {
	if in == nil {
		return nil
	}
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}

// String renders a rule for log and prompt output.
func (r Rule) String() string {
	return fmt.Sprintf("#%d %s (%d domains)", r.ID, r.Name, len(r.Domains))
}
