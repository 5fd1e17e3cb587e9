// Package qdrant implements the vector store over a Qdrant collection. One
// point per knowledge-base chunk; payload carries the chunk text and its
// source document name.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/iteira-dev/consult-agent/internal/retrieval"
)

const (
	payloadContent = "content"
	payloadSource  = "source"
)

// Config holds Qdrant connection configuration.
type Config struct {
	// URL is the Qdrant server address (e.g. "https://example.qdrant.io:6334").
	URL string `envconfig:"QDRANT_URL" required:"true"`

	// Collection is the knowledge-base collection name.
	Collection string `envconfig:"QDRANT_COLLECTION" default:"salon_knowledge"`

	// APIKey is an optional API key for authentication.
	APIKey string `envconfig:"QDRANT_API_KEY"`
}

// Client wraps the Qdrant gRPC client for one collection. It serves both
// consultation-time search and ingestion-time collection management.
type Client struct {
	client     *qdrant.Client
	collection string
}

// New creates a Qdrant client from cfg. The URL is parsed for host, port and
// TLS; the gRPC port 6334 is assumed when none is given.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	parsedURL := cfg.URL
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}

	u, err := url.Parse(parsedURL)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &Client{client: qc, collection: cfg.Collection}, nil
}

// Search implements retrieval.VectorStore.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.Document, error) {
	limit := uint64(topK)
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	docs := make([]retrieval.Document, 0, len(points))
	for _, point := range points {
		doc := retrieval.Document{Score: point.Score}
		if point.Id != nil {
			if uuid := point.Id.GetUuid(); uuid != "" {
				doc.ID = uuid
			} else {
				doc.ID = fmt.Sprintf("%d", point.Id.GetNum())
			}
		}
		for k, v := range point.Payload {
			switch k {
			case payloadContent:
				doc.Content = v.GetStringValue()
			case payloadSource:
				doc.Source = v.GetStringValue()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Recreate drops and recreates the collection with the given vector size.
// Ingestion calls this to rebuild the knowledge base from scratch.
func (c *Client) Recreate(ctx context.Context, vectorSize int) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		if err := c.client.DeleteCollection(ctx, c.collection); err != nil {
			return fmt.Errorf("delete collection: %w", err)
		}
	}

	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// UpsertChunk writes one embedded chunk into the collection.
func (c *Client) UpsertChunk(ctx context.Context, id string, vector []float32, content, source string) error {
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectors(vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadContent: content,
					payloadSource:  source,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (c *Client) Count(ctx context.Context) (uint64, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return n, nil
}

var _ retrieval.VectorStore = (*Client)(nil)
