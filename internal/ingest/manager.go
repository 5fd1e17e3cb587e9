package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iteira-dev/consult-agent/internal/retrieval"
	logx "github.com/iteira-dev/consult-agent/pkg/logger"
)

// Config tunes the regeneration run.
type Config struct {
	DocsDir      string `envconfig:"KB_DOCS_DIR" default:"./knowledge"`
	ChunkSize    int    `envconfig:"KB_CHUNK_SIZE" default:"1000"`
	ChunkOverlap int    `envconfig:"KB_CHUNK_OVERLAP" default:"200"`

	// MinInterval bounds how often a full rebuild may run.
	MinInterval time.Duration `envconfig:"KB_MIN_REBUILD_INTERVAL" default:"1m"`

	// EmbedRetries is the per-chunk embedding attempt count.
	EmbedRetries int           `envconfig:"KB_EMBED_RETRIES" default:"3"`
	EmbedBackoff time.Duration `envconfig:"KB_EMBED_BACKOFF" default:"2s"`
}

// VectorWriter is the ingestion-side surface of the vector store.
type VectorWriter interface {
	Recreate(ctx context.Context, vectorSize int) error
	UpsertChunk(ctx context.Context, id string, vector []float32, content, source string) error
}

// RegenerationManager rebuilds the knowledge-base collection from scratch:
// every .md/.txt document under DocsDir is chunked, embedded and upserted.
// At most one rebuild runs at a time, and rebuilds closer together than
// MinInterval are rejected. Chunk IDs are derived from source+index, so
// re-running over unchanged documents writes identical points.
type RegenerationManager struct {
	embedder retrieval.Embedder
	writer   VectorWriter
	cfg      Config

	mu      sync.Mutex
	busy    bool
	lastRun time.Time
}

func NewRegenerationManager(embedder retrieval.Embedder, writer VectorWriter, cfg Config) *RegenerationManager {
	if cfg.EmbedRetries <= 0 {
		cfg.EmbedRetries = 1
	}
	return &RegenerationManager{embedder: embedder, writer: writer, cfg: cfg}
}

// Regenerate rebuilds the collection and returns the number of chunks
// written. The old collection is dropped only after the first embedding
// succeeds, so an unreachable embedder leaves existing data intact.
func (m *RegenerationManager) Regenerate(ctx context.Context) (int, error) {
	if err := m.begin(); err != nil {
		return 0, err
	}
	defer m.finish()

	chunks, err := m.collectChunks()
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no documents found under %s", m.cfg.DocsDir)
	}

	first, err := m.embed(ctx, chunks[0].Content)
	if err != nil {
		return 0, fmt.Errorf("embed probe chunk: %w", err)
	}
	if err := m.writer.Recreate(ctx, len(first)); err != nil {
		return 0, err
	}

	written := 0
	for i, chunk := range chunks {
		vector := first
		if i > 0 {
			vector, err = m.embed(ctx, chunk.Content)
			if err != nil {
				return written, fmt.Errorf("embed chunk %d of %s: %w", chunk.Index, chunk.Source, err)
			}
		}
		id := chunkID(chunk.Source, chunk.Index)
		if err := m.writer.UpsertChunk(ctx, id, vector, chunk.Content, chunk.Source); err != nil {
			return written, err
		}
		written++
	}

	logx.Info().Int("chunks", written).Str("docs_dir", m.cfg.DocsDir).Msg("knowledge base regenerated")
	return written, nil
}

// begin claims the single rebuild slot and enforces the inter-rebuild interval.
func (m *RegenerationManager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return fmt.Errorf("a rebuild is already in progress")
	}
	if !m.lastRun.IsZero() {
		if wait := m.cfg.MinInterval - time.Since(m.lastRun); wait > 0 {
			return fmt.Errorf("rebuild ran recently, retry in %s", wait.Round(time.Second))
		}
	}
	m.busy = true
	return nil
}

func (m *RegenerationManager) finish() {
	m.mu.Lock()
	m.busy = false
	m.lastRun = time.Now()
	m.mu.Unlock()
}

// embed calls the embedder with bounded retries; transient provider failures
// during a long rebuild should not abort the whole run.
func (m *RegenerationManager) embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.EmbedRetries; attempt++ {
		vector, err := m.embedder.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		logx.Warn().Err(err).Int("attempt", attempt).Msg("embedding attempt failed")

		if attempt < m.cfg.EmbedRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.cfg.EmbedBackoff * time.Duration(attempt)):
			}
		}
	}
	return nil, lastErr
}

func (m *RegenerationManager) collectChunks() ([]Chunk, error) {
	var chunks []Chunk

	err := filepath.WalkDir(m.cfg.DocsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isDocument(path) {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		source, err := filepath.Rel(m.cfg.DocsDir, path)
		if err != nil {
			source = filepath.Base(path)
		}

		for i, content := range ChunkText(string(raw), m.cfg.ChunkSize, m.cfg.ChunkOverlap) {
			chunks = append(chunks, Chunk{Content: content, Source: source, Index: i})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", m.cfg.DocsDir, err)
	}
	return chunks, nil
}

func isDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		return true
	}
	return false
}

// chunkID derives a stable UUID-shaped id from the chunk's identity.
func chunkID(source string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	hex := fmt.Sprintf("%x", sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", hex[0:8], hex[8:12], hex[12:16], hex[16:20], hex[20:32])
}
