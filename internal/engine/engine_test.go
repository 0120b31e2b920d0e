package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"travelcatalog/internal/db"
	"travelcatalog/internal/engine"
	"travelcatalog/internal/events"
	"travelcatalog/internal/migrate"
	"travelcatalog/internal/repo"
	"travelcatalog/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDir(t *testing.T) {
	env := newTestEnv(t)
	src := t.TempDir()
	writeFile(t, src, "crafts/en/index.json", `{"title":"Crafts","cards":[]}`)
	writeFile(t, src, "crafts/en/blue-pottery.md", "---\ntitle: Blue Pottery\ntags: [jaipur, ceramics]\nmajor_centres:\n  - Jaipur\n---\n\n# Blue Pottery\n\nTurquoise glazes.\n")
	writeFile(t, src, "crafts/en/hero.png", "png")
	writeFile(t, src, ".git/config", "ignored")

	report, err := env.Engine.ImportDir(env.Ctx, src, "importer")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.BatchID == "" || len(report.Imported) != 2 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	data, err := env.Engine.Repo.Load(env.Ctx, "crafts/en/blue-pottery.json")
	if err != nil {
		t.Fatalf("load converted markdown: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatal(err)
	}
	if rec["slug"] != "blue-pottery" || rec["title"] != "Blue Pottery" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["long_description"] != "# Blue Pottery\n\nTurquoise glazes." {
		t.Fatalf("unexpected body %q", rec["long_description"])
	}
	if centres, ok := rec["major_centres"].([]any); !ok || len(centres) != 1 {
		t.Fatalf("front matter attributes lost: %v", rec)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, events.DocumentImported, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 || evts[0].ActorID != "importer" || evts[0].TS != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected events %+v", evts)
	}
	var payload map[string]any
	if err := json.Unmarshal(evts[0].Payload, &payload); err != nil || payload["batch_id"] != report.BatchID {
		t.Fatalf("expected batch id in payload, got %s", evts[0].Payload)
	}
}

func TestImportDirRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	src := t.TempDir()
	writeFile(t, src, "crafts/en/index.json", `{"title":"Crafts"}`)
	writeFile(t, src, "crafts/en/zz-broken.json", `{"title":`)
	if _, err := env.Engine.ImportDir(env.Ctx, src, ""); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
	if _, err := env.Engine.Repo.Load(env.Ctx, "crafts/en/index.json"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("failed import must not be partially applied, got %v", err)
	}
}

func TestImportDirRejectsNonObjectJSON(t *testing.T) {
	for name, body := range map[string]string{
		"array":  `[{"slug":"blue-pottery"}]`,
		"null":   `null`,
		"string": `"blue-pottery"`,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			src := t.TempDir()
			writeFile(t, src, "crafts/en/index.json", `{"title":"Crafts","cards":[]}`)
			writeFile(t, src, "crafts/en/blue-pottery.json", body)
			_, err := env.Engine.ImportDir(env.Ctx, src, "")
			if err == nil || !strings.Contains(err.Error(), "JSON object") {
				t.Fatalf("expected object requirement, got %v", err)
			}
			if _, err := env.Engine.Repo.Load(env.Ctx, "crafts/en/index.json"); !errors.Is(err, store.ErrNotExist) {
				t.Fatalf("failed import must not be partially applied, got %v", err)
			}
		})
	}
}

func TestImportDirRejectsCollidingTargets(t *testing.T) {
	env := newTestEnv(t)
	src := t.TempDir()
	writeFile(t, src, "crafts/en/blue-pottery.json", `{"slug":"blue-pottery","title":"From JSON"}`)
	writeFile(t, src, "crafts/en/blue-pottery.md", "---\ntitle: From Markdown\n---\nGlaze.\n")
	_, err := env.Engine.ImportDir(env.Ctx, src, "")
	if err == nil || !strings.Contains(err.Error(), "both import to crafts/en/blue-pottery.json") {
		t.Fatalf("expected collision error, got %v", err)
	}
	if _, err := env.Engine.Repo.Load(env.Ctx, "crafts/en/blue-pottery.json"); !errors.Is(err, store.ErrNotExist) {
		t.Fatalf("colliding import must not be applied, got %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, events.DocumentImported, "")
	if err != nil || len(evts) != 0 {
		t.Fatalf("expected no events, got %+v %v", evts, err)
	}
}

func TestListDocumentsNonASCIIPrefix(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"crafts/hi/मधुबनी.json", "crafts/hi/मिट्टी.json", "crafts/en/madhubani.json"} {
		if _, err := env.Engine.PutDocument(env.Ctx, p, []byte(`{"slug":"x","title":"X"}`), ""); err != nil {
			t.Fatalf("put %s: %v", p, err)
		}
	}
	cases := map[string][]string{
		"crafts/hi/मधु": {"crafts/hi/मधुबनी.json"},
		"crafts/hi/":    {"crafts/hi/मधुबनी.json", "crafts/hi/मिट्टी.json"},
		"crafts/":       {"crafts/en/madhubani.json", "crafts/hi/मधुबनी.json", "crafts/hi/मिट्टी.json"},
		"":              {"crafts/en/madhubani.json", "crafts/hi/मधुबनी.json", "crafts/hi/मिट्टी.json"},
		"crafts/ta/":    nil,
	}
	for prefix, want := range cases {
		docs, err := env.Engine.Repo.ListDocuments(env.Ctx, prefix)
		if err != nil {
			t.Fatalf("list %q: %v", prefix, err)
		}
		var got []string
		for _, d := range docs {
			got = append(got, d.Path)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("prefix %q: expected %v, got %v", prefix, want, got)
		}
	}
}

func TestPutAndRemoveDocument(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.PutDocument(env.Ctx, "treks/en/x.json", []byte(`[1]`), ""); err == nil {
		t.Fatalf("expected object requirement")
	}
	if _, err := env.Engine.PutDocument(env.Ctx, "../escape.json", []byte(`{}`), ""); err != nil {
		t.Fatalf("cleaned path should be accepted: %v", err)
	}
	doc, err := env.Engine.PutDocument(env.Ctx, "/treks/en/hampta-pass.json", []byte(`{"slug":"hampta-pass","title":"Hampta Pass"}`), "editor")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if doc.Path != "treks/en/hampta-pass.json" || doc.UpdatedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected document %+v", doc)
	}
	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, "treks/")
	if err != nil || len(docs) != 1 {
		t.Fatalf("list: %+v %v", docs, err)
	}
	if err := env.Engine.RemoveDocument(env.Ctx, "treks/en/hampta-pass.json", "editor"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.Engine.RemoveDocument(env.Ctx, "treks/en/hampta-pass.json", "editor"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 1, "", "treks/en/hampta-pass.json")
	if err != nil || len(evts) != 1 || evts[0].Type != events.DocumentRemoved {
		t.Fatalf("expected removal event, got %+v %v", evts, err)
	}
}
