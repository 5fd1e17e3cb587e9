// Package retrieval defines the knowledge-base search surface the agent
// consumes: text query in, scored passages out. Vector math and storage live
// behind the Embedder/VectorStore seams so tests can swap them out.
package retrieval

import (
	"context"
	"fmt"
)

// Document is one retrieved knowledge-base passage.
type Document struct {
	ID      string
	Content string
	Source  string
	Score   float32
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs nearest-neighbor search over stored passages.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Document, error)
}

// Searcher is what the agent's knowledge-search tool depends on.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
}

// VectorSearcher composes an embedder with a vector store.
type VectorSearcher struct {
	embedder Embedder
	store    VectorStore
}

func NewVectorSearcher(embedder Embedder, store VectorStore) *VectorSearcher {
	return &VectorSearcher{embedder: embedder, store: store}
}

func (s *VectorSearcher) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := s.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return docs, nil
}

var _ Searcher = (*VectorSearcher)(nil)
