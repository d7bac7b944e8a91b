// Package appliance reads and edits the Pi-hole databases (gravity.db and
// pihole-FTL.db) and drives the pihole CLI. Every statement uses bound
// parameters.
package appliance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pihole-manager/pimgr/internal/errors"
)

const busyTimeoutMS = 5000

// dsn builds a go-sqlite3 URI. The databases belong to Pi-hole, so pimgr
// never creates them.
func dsn(path string, readOnly bool) string {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}
	return fmt.Sprintf("file:%s?mode=%s&_busy_timeout=%d", path, mode, busyTimeoutMS)
}

func openDB(ctx context.Context, name, path string, readOnly bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, readOnly))
	if err != nil {
		return nil, errors.NewDatabaseError(name, "open failed", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError(name, "open failed", errors.Join(errors.ErrDatabaseUnavailable, err))
	}
	return db, nil
}

// IntegrityCheck runs PRAGMA integrity_check on the database at path. It
// returns the problems SQLite reports, or nil when the database is "ok".
func IntegrityCheck(ctx context.Context, path string) ([]string, error) {
	db, err := openDB(ctx, path, path, true)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return nil, errors.NewDatabaseError(path, "integrity check failed", err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, errors.NewDatabaseError(path, "integrity check failed", err)
		}
		if !strings.EqualFold(strings.TrimSpace(line), "ok") {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError(path, "integrity check failed", err)
	}
	return problems, nil
}

func queryError(db, msg, query string, err error) error {
	return errors.NewDatabaseError(db, msg, err).WithQuery(query)
}
