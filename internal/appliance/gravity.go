package appliance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pihole-manager/pimgr/internal/errors"
	"github.com/pihole-manager/pimgr/internal/logging"
)

// DomainKind is the domainlist.type column.
type DomainKind int

const (
	AllowExact DomainKind = 0
	DenyExact  DomainKind = 1
	AllowRegex DomainKind = 2
	DenyRegex  DomainKind = 3
)

// ListType selects the allow or deny side of the domain lists.
type ListType string

const (
	Allow ListType = "allow"
	Deny  ListType = "deny"
)

// ParseListType accepts allow/deny and the older whitelist/blacklist names.
func ParseListType(s string) (ListType, error) {
	switch strings.ToLower(s) {
	case "allow", "whitelist", "white":
		return Allow, nil
	case "deny", "blacklist", "black", "block":
		return Deny, nil
	}
	return "", errors.NewValidationError("list must be allow or deny").WithField("list").WithValue(s)
}

// KindFor maps a list and match style to its DomainKind.
func KindFor(list ListType, regex bool) DomainKind {
	switch {
	case list == Allow && regex:
		return AllowRegex
	case list == Allow:
		return AllowExact
	case regex:
		return DenyRegex
	default:
		return DenyExact
	}
}

// IsRegex reports whether k holds patterns rather than exact domains.
func (k DomainKind) IsRegex() bool { return k == AllowRegex || k == DenyRegex }

// List returns the side k belongs to.
func (k DomainKind) List() ListType {
	if k == AllowExact || k == AllowRegex {
		return Allow
	}
	return Deny
}

func (k DomainKind) String() string {
	switch k {
	case AllowExact:
		return "allow (exact)"
	case DenyExact:
		return "deny (exact)"
	case AllowRegex:
		return "allow (regex)"
	case DenyRegex:
		return "deny (regex)"
	}
	return fmt.Sprintf("type %d", int(k))
}

// Validate checks value against the rules for k.
func (k DomainKind) Validate(value string) error {
	if k.IsRegex() {
		return ValidateRegex(value)
	}
	return ValidateDomain(value)
}

// Adlist is one configured blocklist source.
type Adlist struct {
	ID      int64
	Address string
	Enabled bool
	Comment string
	Added   time.Time
}

// DomainEntry is one domainlist row.
type DomainEntry struct {
	ID      int64
	Kind    DomainKind
	Domain  string
	Enabled bool
	Comment string
	Added   time.Time
}

// Gravity wraps gravity.db.
type Gravity struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
}

// OpenGravity opens gravity.db read-write. The file must already exist.
func OpenGravity(ctx context.Context, path string, logger *logging.Logger) (*Gravity, error) {
	db, err := openDB(ctx, "gravity", path, false)
	if err != nil {
		return nil, err
	}
	return &Gravity{db: db, path: path, logger: logger.WithComponent("gravity")}, nil
}

// Path returns the database file path.
func (g *Gravity) Path() string { return g.path }

// Close closes the database.
func (g *Gravity) Close() error { return g.db.Close() }

func (g *Gravity) fail(msg, query string, err error) error {
	g.logger.Error(msg, "error", err)
	return queryError("gravity", msg, query, err)
}

// Adlists returns every adlist ordered by id.
func (g *Gravity) Adlists(ctx context.Context) ([]Adlist, error) {
	const q = `SELECT id, address, enabled, COALESCE(comment, ''), date_added FROM adlist ORDER BY id`
	rows, err := g.db.QueryContext(ctx, q)
	if err != nil {
		return nil, g.fail("list adlists failed", q, err)
	}
	defer rows.Close()

	var out []Adlist
	for rows.Next() {
		var a Adlist
		var added int64
		if err := rows.Scan(&a.ID, &a.Address, &a.Enabled, &a.Comment, &added); err != nil {
			return nil, g.fail("scan adlist failed", q, err)
		}
		a.Added = time.Unix(added, 0)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, g.fail("list adlists failed", q, err)
	}
	return out, nil
}

// AddAdlist inserts an enabled adlist and returns its id.
func (g *Gravity) AddAdlist(ctx context.Context, url, comment string) (int64, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "file://") {
		return 0, errors.NewValidationError("adlist address must be an http(s) or file URL").WithField("address").WithValue(url)
	}
	const q = `INSERT INTO adlist (address, enabled, comment) VALUES (?, 1, ?)`
	res, err := g.db.ExecContext(ctx, q, url, comment)
	if err != nil {
		return 0, g.fail("add adlist failed", q, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, g.fail("add adlist failed", q, err)
	}
	g.logger.Info("adlist added", "id", id, "address", url)
	return id, nil
}

// RemoveAdlist deletes the adlist with id and the gravity rows it produced.
func (g *Gravity) RemoveAdlist(ctx context.Context, id int64) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		const q = `DELETE FROM adlist WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, id)
		if err != nil {
			return g.fail("remove adlist failed", q, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewNotFoundError("adlist", fmt.Sprint(id))
		}
		const qg = `DELETE FROM gravity WHERE adlist_id = ?`
		if _, err := tx.ExecContext(ctx, qg, id); err != nil {
			return g.fail("remove adlist failed", qg, err)
		}
		return nil
	})
}

// ReplaceAdlists swaps the whole adlist table for lists in one transaction.
func (g *Gravity) ReplaceAdlists(ctx context.Context, lists []Adlist) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		const qd = `DELETE FROM adlist`
		if _, err := tx.ExecContext(ctx, qd); err != nil {
			return g.fail("clear adlists failed", qd, err)
		}
		const qi = `INSERT OR IGNORE INTO adlist (address, enabled, comment) VALUES (?, ?, ?)`
		for _, a := range lists {
			if _, err := tx.ExecContext(ctx, qi, a.Address, a.Enabled, a.Comment); err != nil {
				return g.fail("insert adlist failed", qi, err)
			}
		}
		g.logger.Info("adlists replaced", "count", len(lists))
		return nil
	})
}

// EnabledAdlistURLs returns the addresses of enabled adlists.
func (g *Gravity) EnabledAdlistURLs(ctx context.Context) ([]string, error) {
	const q = `SELECT address FROM adlist WHERE enabled = 1 ORDER BY id`
	return g.strings(ctx, q)
}

// GravityCount returns the number of domains in the compiled gravity table.
func (g *Gravity) GravityCount(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM gravity`
	var n int64
	if err := g.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, g.fail("count gravity failed", q, err)
	}
	return n, nil
}

// Domains returns the entries of kind ordered by domain.
func (g *Gravity) Domains(ctx context.Context, kind DomainKind) ([]DomainEntry, error) {
	const q = `SELECT id, type, domain, enabled, COALESCE(comment, ''), date_added FROM domainlist WHERE type = ? ORDER BY domain`
	rows, err := g.db.QueryContext(ctx, q, int(kind))
	if err != nil {
		return nil, g.fail("list domains failed", q, err)
	}
	defer rows.Close()

	var out []DomainEntry
	for rows.Next() {
		e, err := scanDomain(rows)
		if err != nil {
			return nil, g.fail("scan domain failed", q, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, g.fail("list domains failed", q, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDomain(s scanner) (DomainEntry, error) {
	var e DomainEntry
	var kind int
	var added int64
	if err := s.Scan(&e.ID, &kind, &e.Domain, &e.Enabled, &e.Comment, &added); err != nil {
		return DomainEntry{}, err
	}
	e.Kind = DomainKind(kind)
	e.Added = time.Unix(added, 0)
	return e, nil
}

// DomainByID returns one domainlist entry.
func (g *Gravity) DomainByID(ctx context.Context, id int64) (DomainEntry, error) {
	const q = `SELECT id, type, domain, enabled, COALESCE(comment, ''), date_added FROM domainlist WHERE id = ?`
	e, err := scanDomain(g.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return DomainEntry{}, errors.NewNotFoundError("domain entry", fmt.Sprint(id))
	}
	if err != nil {
		return DomainEntry{}, g.fail("get domain failed", q, err)
	}
	return e, nil
}

// AddDomain validates and inserts an enabled entry, returning its id.
func (g *Gravity) AddDomain(ctx context.Context, kind DomainKind, domain, comment string) (int64, error) {
	if !kind.IsRegex() {
		domain = NormalizeDomain(domain)
	}
	if err := kind.Validate(domain); err != nil {
		return 0, err
	}
	const q = `INSERT INTO domainlist (type, domain, enabled, comment) VALUES (?, ?, 1, ?)`
	res, err := g.db.ExecContext(ctx, q, int(kind), domain, comment)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, errors.NewValidationError("entry already exists").WithField("domain").WithValue(domain)
		}
		return 0, g.fail("add domain failed", q, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, g.fail("add domain failed", q, err)
	}
	g.logger.Info("domain added", "id", id, "kind", int(kind), "domain", domain)
	return id, nil
}

// AddDomains inserts every valid domain of kind, skipping duplicates and
// invalid values. It returns how many rows were added and the values that
// were rejected.
func (g *Gravity) AddDomains(ctx context.Context, kind DomainKind, domains []string, comment string) (int, []string, error) {
	var added int
	var rejected []string
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		const q = `INSERT OR IGNORE INTO domainlist (type, domain, enabled, comment) VALUES (?, ?, 1, ?)`
		for _, d := range domains {
			if !kind.IsRegex() {
				d = NormalizeDomain(d)
			}
			if kind.Validate(d) != nil {
				rejected = append(rejected, d)
				continue
			}
			res, err := tx.ExecContext(ctx, q, int(kind), d, comment)
			if err != nil {
				return g.fail("add domain failed", q, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return added, rejected, nil
}

// RemoveDomain deletes the entry with id and returns what was removed.
func (g *Gravity) RemoveDomain(ctx context.Context, id int64) (DomainEntry, error) {
	e, err := g.DomainByID(ctx, id)
	if err != nil {
		return DomainEntry{}, err
	}
	const q = `DELETE FROM domainlist WHERE id = ?`
	if _, err := g.db.ExecContext(ctx, q, id); err != nil {
		return DomainEntry{}, g.fail("remove domain failed", q, err)
	}
	g.logger.Info("domain removed", "id", id, "domain", e.Domain)
	return e, nil
}

// CountDomains returns the number of entries of kind.
func (g *Gravity) CountDomains(ctx context.Context, kind DomainKind) (int64, error) {
	const q = `SELECT COUNT(*) FROM domainlist WHERE type = ?`
	var n int64
	if err := g.db.QueryRowContext(ctx, q, int(kind)).Scan(&n); err != nil {
		return 0, g.fail("count domains failed", q, err)
	}
	return n, nil
}

// ClearDomains deletes every entry of kind and returns how many went.
func (g *Gravity) ClearDomains(ctx context.Context, kind DomainKind) (int64, error) {
	const q = `DELETE FROM domainlist WHERE type = ?`
	res, err := g.db.ExecContext(ctx, q, int(kind))
	if err != nil {
		return 0, g.fail("clear domains failed", q, err)
	}
	n, _ := res.RowsAffected()
	g.logger.Info("domains cleared", "kind", int(kind), "count", n)
	return n, nil
}

// DomainExists reports whether domain is present in any of kinds, or in
// any list when kinds is empty.
func (g *Gravity) DomainExists(ctx context.Context, domain string, kinds ...DomainKind) (bool, error) {
	q := `SELECT COUNT(*) FROM domainlist WHERE domain = ?`
	args := []any{domain}
	if len(kinds) > 0 {
		q += ` AND type IN (?` + strings.Repeat(`, ?`, len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, int(k))
		}
	}
	var n int64
	if err := g.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, g.fail("lookup domain failed", q, err)
	}
	return n > 0, nil
}

// EnabledDomains returns the values of enabled entries of kind.
func (g *Gravity) EnabledDomains(ctx context.Context, kind DomainKind) ([]string, error) {
	const q = `SELECT domain FROM domainlist WHERE type = ? AND enabled = 1 ORDER BY domain`
	return g.strings(ctx, q, int(kind))
}

// SampleGravityDomain returns one domain from the compiled blocklist, or ""
// when gravity is empty.
func (g *Gravity) SampleGravityDomain(ctx context.Context) (string, error) {
	const q = `SELECT domain FROM gravity LIMIT 1`
	var d string
	err := g.db.QueryRowContext(ctx, q).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", g.fail("sample gravity failed", q, err)
	}
	return d, nil
}

func (g *Gravity) strings(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, g.fail("query failed", q, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, g.fail("scan failed", q, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, g.fail("query failed", q, err)
	}
	return out, nil
}

func (g *Gravity) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return g.fail("begin transaction failed", "BEGIN", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return g.fail("commit failed", "COMMIT", err)
	}
	return nil
}
