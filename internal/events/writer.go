package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types recorded for catalog documents.
const (
	DocumentImported = "document.imported"
	DocumentRemoved  = "document.removed"
)

// EntityDocument is the only entity kind the catalog logs today.
const EntityDocument = "document"

// DefaultActor is recorded when a change carries no actor.
const DefaultActor = "local-user"

var knownTypes = map[string]bool{DocumentImported: true, DocumentRemoved: true}

// Payload is free-form event detail stored as JSON.
type Payload map[string]any

// Change is one document mutation to record.
type Change struct {
	Type    string
	Path    string
	Actor   string
	Payload Payload
}

// Writer appends changes to the events table inside the caller's transaction,
// so an event exists exactly when its document change commits.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Record(ctx context.Context, tx *sql.Tx, c Change) error {
	if !knownTypes[c.Type] {
		return fmt.Errorf("unknown event type %q", c.Type)
	}
	if c.Path == "" {
		return fmt.Errorf("%s event needs a document path", c.Type)
	}
	if c.Actor == "" {
		c.Actor = DefaultActor
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := c.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.Type, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), c.Type, EntityDocument, c.Path, c.Actor, string(data))
	if err != nil {
		return fmt.Errorf("record %s %s: %w", c.Type, c.Path, err)
	}
	return nil
}
