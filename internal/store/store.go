package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
)

//go:embed schema.sql
var schemaSQL string

// setting is a connection pragma applied by Open.
type setting struct {
	name  string
	value string
}

// settings favour a single writer streaming batches while `paysim runs`
// reads finished runs from another process.
var settings = []setting{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a database created by an older schema.sql. Each one
// runs in its own transaction together with the user_version bump.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "index records by action",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_records_run_action ON records(run_id, action)`,
	},
}

// schemaVersion is the user_version of a fully migrated database.
var schemaVersion = migrations[len(migrations)-1].version

// Store persists consumed record streams in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path (":memory:" for a private
// in-memory one), applies settings, the schema and pending migrations.
// Opening an up-to-date database changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fail := func(what string, err error) (*Store, error) {
		return nil, multierr.Append(fmt.Errorf("%s: %w", what, err), db.Close())
	}

	if err := db.Ping(); err != nil {
		return fail("failed to connect to database", err)
	}

	// one connection: the records of a run are written in order by a
	// single goroutine and an in-memory database lives on its connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, s := range settings {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", s.name, s.value)); err != nil {
			return fail("failed to apply pragmas", fmt.Errorf("%s: %w", s.name, err))
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fail("failed to apply schema", err)
	}

	if err := migrate(db); err != nil {
		return fail("failed to migrate schema", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	if _, err := tx.Exec(m.stmt); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
	}
	// PRAGMA does not take bound parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migration %d (%s): set user_version: %w", m.version, m.name, err)
	}
	return tx.Commit()
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
