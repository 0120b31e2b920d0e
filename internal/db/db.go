package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".tcat"
	fileName = "catalog.db"
)

// Config locates the workspace database.
type Config struct {
	Workspace string
	// BusyTimeoutMS bounds how long a writer waits on a locked database; 5000 when zero.
	BusyTimeoutMS int
}

func (c Config) workspace() string {
	if c.Workspace == "" {
		return "."
	}
	return c.Workspace
}

func (c Config) dsn() string {
	timeout := c.BusyTimeoutMS
	if timeout <= 0 {
		timeout = 5000
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + Path(c.workspace()) + "?" + q.Encode()
}

// EnsureWorkspace creates <workspace>/.tcat and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace state dir: %w", err)
	}
	return dir, nil
}

// Open opens the database backing the sqlite content backend and the event
// log. The connection is pinged so a bad path fails here, not on first query.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.workspace()); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", Path(cfg.workspace()), err)
	}
	return conn, nil
}

// Path is where the workspace database lives.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir, fileName)
}
