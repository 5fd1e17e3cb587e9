// Package ingest rebuilds the knowledge-base collection from the salon's
// source documents: chunking, embedding and upserting into the vector store.
package ingest

import (
	"strings"
)

// Chunk is one embeddable slice of a source document.
type Chunk struct {
	Content string
	Source  string
	Index   int
}

// ChunkText splits text into overlapping chunks of at most chunkSize runes.
// Splitting prefers paragraph boundaries; a paragraph longer than chunkSize
// is split mid-text. Overlap carries the tail of each chunk into the next so
// answers spanning a boundary stay retrievable.
func ChunkText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)

	var chunks []string
	var current []rune
	for _, p := range paragraphs {
		runes := []rune(p)

		// Oversized paragraph: flush what we have and hard-split it.
		if len(runes) > chunkSize {
			if len(current) > 0 {
				chunks = append(chunks, string(current))
				current = tail(current, overlap)
			}
			for len(runes) > chunkSize {
				chunks = append(chunks, string(runes[:chunkSize]))
				runes = runes[chunkSize-overlap:]
			}
			current = appendParagraph(current, runes)
			continue
		}

		if len(current)+len(runes)+2 > chunkSize && len(current) > 0 {
			chunks = append(chunks, string(current))
			current = tail(current, overlap)
		}
		current = appendParagraph(current, runes)
	}
	if strings.TrimSpace(string(current)) != "" {
		chunks = append(chunks, string(current))
	}
	return chunks
}

func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func appendParagraph(current, paragraph []rune) []rune {
	if len(current) > 0 {
		current = append(current, '\n', '\n')
	}
	return append(current, paragraph...)
}

func tail(runes []rune, n int) []rune {
	if n <= 0 || len(runes) <= n {
		return nil
	}
	out := make([]rune, n)
	copy(out, runes[len(runes)-n:])
	return out
}
