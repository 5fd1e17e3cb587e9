package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeEmbedder struct {
	calls    int
	failures int // first N calls fail
	err      error
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.err != nil && e.calls <= e.failures {
		return nil, e.err
	}
	if e.err != nil && e.failures == 0 {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeWriter struct {
	recreatedSize int
	upserts       []struct{ id, content, source string }
}

func (w *fakeWriter) Recreate(_ context.Context, vectorSize int) error {
	w.recreatedSize = vectorSize
	return nil
}

func (w *fakeWriter) UpsertChunk(_ context.Context, id string, _ []float32, content, source string) error {
	w.upserts = append(w.upserts, struct{ id, content, source string }{id, content, source})
	return nil
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(dir string) Config {
	return Config{DocsDir: dir, ChunkSize: 1000, ChunkOverlap: 200, EmbedRetries: 1}
}

func TestRegenerateWalksAndUpserts(t *testing.T) {
	dir := writeDocs(t, map[string]string{
		"prices.md":          "Маникюр — 2000 рублей.\n\nПедикюр — 2500 рублей.",
		"services/hair.txt":  "Стрижка и окрашивание волос.",
		"ignored/notes.json": `{"skip": true}`,
	})

	embedder := &fakeEmbedder{}
	writer := &fakeWriter{}
	mgr := NewRegenerationManager(embedder, writer, testConfig(dir))

	n, err := mgr.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if n != 2 {
		t.Fatalf("written = %d, want 2", n)
	}
	if writer.recreatedSize != 3 {
		t.Errorf("recreated vector size = %d, want 3", writer.recreatedSize)
	}

	sources := map[string]bool{}
	for _, u := range writer.upserts {
		sources[u.source] = true
		if u.id == "" || len(u.id) != 36 {
			t.Errorf("id %q is not UUID-shaped", u.id)
		}
	}
	if !sources["prices.md"] || !sources[filepath.Join("services", "hair.txt")] {
		t.Errorf("sources = %v", sources)
	}
}

func TestRegenerateDeterministicIDs(t *testing.T) {
	if chunkID("prices.md", 0) != chunkID("prices.md", 0) {
		t.Error("same source and index must yield the same id")
	}
	if chunkID("prices.md", 0) == chunkID("prices.md", 1) {
		t.Error("different indexes must yield different ids")
	}
}

func TestRegenerateEmptyDirFails(t *testing.T) {
	mgr := NewRegenerationManager(&fakeEmbedder{}, &fakeWriter{}, testConfig(t.TempDir()))
	if _, err := mgr.Regenerate(context.Background()); err == nil {
		t.Fatal("expected an error for an empty docs dir")
	}
}

func TestRegenerateLeavesCollectionOnEmbedFailure(t *testing.T) {
	dir := writeDocs(t, map[string]string{"doc.md": "текст"})
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	writer := &fakeWriter{}
	mgr := NewRegenerationManager(embedder, writer, testConfig(dir))

	_, err := mgr.Regenerate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err = %v", err)
	}
	if writer.recreatedSize != 0 {
		t.Error("collection must not be recreated when the probe embedding fails")
	}
	if len(writer.upserts) != 0 {
		t.Error("no chunks should be upserted on embed failure")
	}
}

func TestRegenerateRetriesTransientEmbedFailures(t *testing.T) {
	dir := writeDocs(t, map[string]string{"doc.md": "текст"})
	embedder := &fakeEmbedder{err: errors.New("temporarily unavailable"), failures: 2}
	writer := &fakeWriter{}

	cfg := testConfig(dir)
	cfg.EmbedRetries = 3
	cfg.EmbedBackoff = time.Millisecond
	mgr := NewRegenerationManager(embedder, writer, cfg)

	n, err := mgr.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if n != 1 {
		t.Errorf("written = %d, want 1", n)
	}
	if embedder.calls != 3 {
		t.Errorf("embed calls = %d, want 3 (two failures then success)", embedder.calls)
	}
}

func TestRegenerateEnforcesMinInterval(t *testing.T) {
	dir := writeDocs(t, map[string]string{"doc.md": "текст"})
	cfg := testConfig(dir)
	cfg.MinInterval = time.Hour
	mgr := NewRegenerationManager(&fakeEmbedder{}, &fakeWriter{}, cfg)

	if _, err := mgr.Regenerate(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := mgr.Regenerate(context.Background()); err == nil {
		t.Fatal("second run within the interval must be rejected")
	}
}

func TestRegenerateRejectsConcurrentRun(t *testing.T) {
	mgr := NewRegenerationManager(&fakeEmbedder{}, &fakeWriter{}, testConfig(t.TempDir()))
	if err := mgr.begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer mgr.finish()

	if _, err := mgr.Regenerate(context.Background()); err == nil {
		t.Fatal("a second rebuild must be rejected while one is in progress")
	}
}
