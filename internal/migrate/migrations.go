package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"travelcatalog/internal/logging"
)

//go:embed sql/*.sql
var embedded embed.FS

// Migration is one schema step read from a file named NNNN_description.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type options struct {
	logger logging.Logger
	now    func() time.Time
}

// Option tunes Migrate.
type Option func(*options)

// WithLogger reports each applied step and the resulting schema version.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock stamps applied_at rows; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Load returns the embedded migrations ordered by version.
func Load() ([]Migration, error) {
	return load(embedded, "sql")
}

func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	byVersion := map[int]string{}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &v); err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", e.Name())
		}
		if prev, dup := byVersion[v]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), v)
		}
		byVersion[v] = e.Name()
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("migration %s is empty", e.Name())
		}
		out = append(out, Migration{Version: v, Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Version reports the highest applied migration, 0 for a fresh database.
func Version(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Migrate applies pending embedded migrations inside one transaction and
// records each one in schema_migrations.
func Migrate(db *sql.DB, opts ...Option) error {
	o := options{logger: logging.NoOp(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	migrations, err := Load()
	if err != nil {
		return err
	}
	return apply(db, migrations, o)
}

func apply(db *sql.DB, migrations []Migration, o options) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	var current sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	from := int(current.Int64)
	var applied []Migration
	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version,name,applied_at) VALUES (?,?,?)`,
			m.Version, m.Name, o.now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		applied = append(applied, m)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, m := range applied {
		o.logger.Info("applied migration", "version", m.Version, "name", m.Name)
	}
	to := from
	if n := len(migrations); n > 0 && migrations[n-1].Version > to {
		to = migrations[n-1].Version
	}
	if len(applied) > 0 {
		o.logger.Info("schema migrated", "from", from, "to", to, "applied", len(applied))
	} else {
		o.logger.Debug("schema up to date", "version", to)
	}
	return nil
}
