package engine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"travelcatalog/internal/domain"
	"travelcatalog/internal/events"
	"travelcatalog/internal/logging"
	"travelcatalog/internal/repo"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeMarkdown = "text/markdown"
)

// Engine is the write side of the sqlite content backend.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Logger logging.Logger
	Now    func() time.Time
}

func New(db *sql.DB, logger logging.Logger) Engine {
	if logger == nil {
		logger = logging.NoOp()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// eventWriter stamps entries with the engine clock.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// ImportReport summarizes one import run.
type ImportReport struct {
	BatchID  string   `json:"batch_id"`
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
}

// ImportDir loads every .json and .md file under dir into the documents table
// in a single transaction. Markdown files are stored under their .json path,
// so a directory holding both foo.md and foo.json is rejected.
func (e Engine) ImportDir(ctx context.Context, dir, actorID string) (ImportReport, error) {
	report := ImportReport{BatchID: uuid.NewString(), Imported: []string{}, Skipped: []string{}}
	logger := logging.WithFields(e.Logger, map[string]any{"batch_id": report.BatchID, "dir": dir})
	fsys := os.DirFS(dir)
	sources := map[string]string{}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		doc, ok, err := documentFromFile(p, data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if !ok {
			logger.Debug("skipping file", "path", p)
			report.Skipped = append(report.Skipped, p)
			return nil
		}
		if prev, dup := sources[doc.Path]; dup {
			return fmt.Errorf("%s and %s both import to %s", prev, p, doc.Path)
		}
		sources[doc.Path] = p
		if err := e.putTx(ctx, tx, doc, actorID, report.BatchID, p); err != nil {
			return err
		}
		report.Imported = append(report.Imported, doc.Path)
		return nil
	})
	if err != nil {
		return report, err
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	logger.Info("import finished", "imported", len(report.Imported), "skipped", len(report.Skipped))
	return report, nil
}

// PutDocument stores one JSON document at docPath.
func (e Engine) PutDocument(ctx context.Context, docPath string, body []byte, actorID string) (domain.Document, error) {
	docPath, err := cleanPath(docPath)
	if err != nil {
		return domain.Document{}, err
	}
	if !isJSONObject(body) {
		return domain.Document{}, fmt.Errorf("invalid document %s: body must be a JSON object", docPath)
	}
	doc := domain.Document{Path: docPath, Body: body, ContentType: contentTypeJSON}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()
	if err := e.putTx(ctx, tx, doc, actorID, "", ""); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return e.Repo.GetDocument(ctx, docPath)
}

func (e Engine) putTx(ctx context.Context, tx *sql.Tx, doc domain.Document, actorID, batchID, source string) error {
	doc.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpsertDocumentTx(ctx, tx, doc); err != nil {
		return fmt.Errorf("upsert %s: %w", doc.Path, err)
	}
	payload := events.Payload{"content_type": doc.ContentType, "bytes": len(doc.Body)}
	if batchID != "" {
		payload["batch_id"] = batchID
	}
	if source != "" {
		payload["source"] = source
	}
	return e.eventWriter().Record(ctx, tx, events.Change{Type: events.DocumentImported, Path: doc.Path, Actor: actorID, Payload: payload})
}

// RemoveDocument deletes a document; repo.ErrNotFound when absent.
func (e Engine) RemoveDocument(ctx context.Context, docPath, actorID string) error {
	docPath, err := cleanPath(docPath)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDocumentTx(ctx, tx, docPath); err != nil {
		return err
	}
	if err := e.eventWriter().Record(ctx, tx, events.Change{Type: events.DocumentRemoved, Path: docPath, Actor: actorID}); err != nil {
		return err
	}
	return tx.Commit()
}

func cleanPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(strings.TrimSpace(p))), "/")
	if p == "" || !fs.ValidPath(p) {
		return "", errors.New("invalid document path")
	}
	return p, nil
}

func isJSONObject(b []byte) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(b, &m) == nil && m != nil
}

// documentFromFile maps a content file to a stored document. ok is false for
// files that are not content (images, notes, ...).
func documentFromFile(p string, data []byte) (domain.Document, bool, error) {
	switch strings.ToLower(path.Ext(p)) {
	case ".json":
		if !json.Valid(data) {
			return domain.Document{}, false, errors.New("invalid JSON")
		}
		if !isJSONObject(data) {
			return domain.Document{}, false, errors.New("document must be a JSON object")
		}
		return domain.Document{Path: p, Body: data, ContentType: contentTypeJSON}, true, nil
	case ".md", ".markdown":
		body, err := markdownToJSON(p, data)
		if err != nil {
			return domain.Document{}, false, err
		}
		jsonPath := strings.TrimSuffix(p, path.Ext(p)) + ".json"
		return domain.Document{Path: jsonPath, Body: body, ContentType: contentTypeMarkdown}, true, nil
	default:
		return domain.Document{}, false, nil
	}
}

var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// markdownToJSON turns front matter into record fields and the Markdown body
// into long_description. A missing slug defaults to the file name.
func markdownToJSON(p string, data []byte) ([]byte, error) {
	fields := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(data), &fields, yamlFormat)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if _, ok := fields["slug"]; !ok {
		fields["slug"] = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		fields["long_description"] = text
	}
	return json.Marshal(fields)
}
