// Package retrieval provides the retrieval tool used by domain responders:
// embed the query, search one store collection, and format the matched
// passages for grounded generation.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecodesk/internal/embedding"
	"ecodesk/internal/logging"
	"ecodesk/internal/store"
	"ecodesk/internal/types"
)

// Searcher is the slice of the knowledge store the tool depends on.
type Searcher interface {
	Query(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]store.PassageMatch, error)
}

// Tool retrieves passages from a single collection.
type Tool struct {
	collection string
	engine     embedding.EmbeddingEngine
	searcher   Searcher
	topK       int
	timeout    time.Duration
}

// NewTool creates a retrieval tool bound to one collection.
func NewTool(collection string, engine embedding.EmbeddingEngine, searcher Searcher, topK int, timeout time.Duration) *Tool {
	if topK <= 0 {
		topK = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tool{
		collection: collection,
		engine:     engine,
		searcher:   searcher,
		topK:       topK,
		timeout:    timeout,
	}
}

// Collection returns the collection this tool searches.
func (t *Tool) Collection() string {
	return t.collection
}

// Query embeds the text and returns the top matching passages in rank order.
// An empty result is not an error. Store unavailability propagates as
// ErrStoreUnavailable for the responder to handle.
func (t *Tool) Query(ctx context.Context, text string) ([]types.RetrievedPassage, error) {
	log := logging.Get(logging.CategoryRetrieval)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	vec, err := t.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := t.searcher.Query(ctx, t.collection, vec, t.topK)
	if err != nil {
		return nil, err
	}

	log.Debug("Retrieved %d passages from %q", len(matches), t.collection)

	passages := make([]types.RetrievedPassage, len(matches))
	for i, m := range matches {
		passages[i] = m.Passage
	}
	return passages, nil
}

// FormatPassages concatenates passages in return order, each demarcated with
// a context segment header. No truncation or summarization.
func FormatPassages(passages []types.RetrievedPassage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("--- Context Segment ---\n")
		b.WriteString(p.Text)
	}
	return b.String()
}

// NotFoundSentinel is the deterministic text a responder answers with when
// retrieval returns nothing for the query.
func NotFoundSentinel(displayName string) string {
	return fmt.Sprintf("I don't have specific information about that in the %s knowledge base.", displayName)
}
