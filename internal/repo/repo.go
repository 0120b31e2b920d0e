package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"travelcatalog/internal/domain"
	"travelcatalog/internal/store"
)

// Repo is the SQLite content backend plus event log queries.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Load implements store.Store over the documents table.
func (r Repo) Load(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := r.DB.QueryRowContext(ctx, `SELECT body FROM documents WHERE path=?`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r Repo) GetDocument(ctx context.Context, path string) (domain.Document, error) {
	var d domain.Document
	err := r.DB.QueryRowContext(ctx, `SELECT path,body,content_type,updated_at FROM documents WHERE path=?`, path).
		Scan(&d.Path, &d.Body, &d.ContentType, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) UpsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(path,body,content_type,updated_at) VALUES (?,?,?,?)
ON CONFLICT(path) DO UPDATE SET body=excluded.body, content_type=excluded.content_type, updated_at=excluded.updated_at`,
		d.Path, d.Body, d.ContentType, d.UpdatedAt)
	return err
}

func (r Repo) DeleteDocumentTx(ctx context.Context, tx *sql.Tx, path string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path=?`, path)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns document metadata (no bodies) whose path starts with prefix.
// substr and length both count characters, so the prefix length is measured in SQL.
func (r Repo) ListDocuments(ctx context.Context, prefix string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT path,content_type,updated_at FROM documents WHERE substr(path,1,length(?1))=?1 ORDER BY path`,
		prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.Path, &d.ContentType, &d.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest n events, optionally filtered by type and entity id.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	var (
		where []string
		args  []any
	)
	if evtType != "" {
		where = append(where, "type=?")
		args = append(args, evtType)
	}
	if entityID != "" {
		where = append(where, "entity_id=?")
		args = append(args, entityID)
	}
	q := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		res = append(res, e)
	}
	return res, rows.Err()
}
