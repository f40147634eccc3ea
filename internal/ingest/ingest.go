// Package ingest populates the knowledge store: chunk source documents on
// their section structure, embed document-side in batch, and bulk-insert.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ecodesk/internal/embedding"
	"ecodesk/internal/logging"
	"ecodesk/internal/store"
)

const sectionDelimiter = "### SECTION:"

// Chunk is one ingestible unit of text with its section provenance.
type Chunk struct {
	Content      string
	SourceName   string
	SectionTitle string
	Ordinal      int
}

// ChunkText splits a document into chunks: first on section headers
// (`### SECTION: ... ###`), then on blank-line paragraphs within each
// section. A section carrying only a title yields the title itself as a
// single chunk.
func ChunkText(sourceName, text string) []Chunk {
	var chunks []Chunk

	sections := strings.Split(text, sectionDelimiter)
	for _, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}

		var title, body string
		if idx := strings.Index(section, "\n"); idx != -1 {
			title = strings.TrimSpace(strings.ReplaceAll(section[:idx], "###", ""))
			body = strings.TrimSpace(section[idx:])
		} else {
			title = strings.TrimSpace(strings.ReplaceAll(section, "###", ""))
		}

		var paragraphs []string
		for _, p := range strings.Split(body, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				paragraphs = append(paragraphs, p)
			}
		}

		if len(paragraphs) == 0 && title != "" {
			chunks = append(chunks, Chunk{
				Content:      title,
				SourceName:   sourceName,
				SectionTitle: title,
			})
			continue
		}

		for i, p := range paragraphs {
			chunks = append(chunks, Chunk{
				Content:      p,
				SourceName:   sourceName,
				SectionTitle: title,
				Ordinal:      i,
			})
		}
	}

	return chunks
}

// Builder ingests documents into store collections.
type Builder struct {
	engine embedding.EmbeddingEngine
	store  *store.KnowledgeStore
}

// NewBuilder creates an ingestion builder.
func NewBuilder(engine embedding.EmbeddingEngine, s *store.KnowledgeStore) *Builder {
	return &Builder{engine: engine, store: s}
}

// Ingest reads a file, chunks it, embeds the chunks in batch, and inserts
// them into the named collection. Returns the number of chunks stored.
func (b *Builder) Ingest(ctx context.Context, collection, path string) (int, error) {
	log := logging.Get(logging.CategoryIngest)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	chunks := ChunkText(filepath.Base(path), string(data))
	if len(chunks) == 0 {
		log.Warn("No chunks produced from %s", path)
		return 0, nil
	}
	log.Info("Chunked %s into %d chunks", path, len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := b.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}

	passages := make([]store.StoredPassage, len(chunks))
	for i, c := range chunks {
		passages[i] = store.StoredPassage{
			Content:        c.Content,
			SourceDocument: c.SourceName,
			SectionTitle:   c.SectionTitle,
			Ordinal:        c.Ordinal,
			Embedding:      vectors[i],
		}
	}

	if err := b.store.AddPassages(ctx, collection, passages); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	log.Info("Ingested %d chunks into %q", len(chunks), collection)
	return len(chunks), nil
}
