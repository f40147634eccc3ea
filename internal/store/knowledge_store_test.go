package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecodesk/internal/types"
)

func newTestStore(t *testing.T) *KnowledgeStore {
	t.Helper()
	s, err := NewKnowledgeStore(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewKnowledgeStore_RequiresPath(t *testing.T) {
	_, err := NewKnowledgeStore("", 3)
	assert.Error(t, err)
}

func TestQuery_UnknownCollection(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Query(context.Background(), "nonexistent", []float32{1, 0, 0}, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.GetOrCreateCollection(ctx, "product"))

	matches, err := s.Query(ctx, "product", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAddAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	passages := []StoredPassage{
		{Content: "compost bins", SourceDocument: "products.md", SectionTitle: "Compost", Ordinal: 0, Embedding: []float32{1, 0, 0}},
		{Content: "rain barrels", SourceDocument: "products.md", SectionTitle: "Water", Ordinal: 1, Embedding: []float32{0, 1, 0}},
		{Content: "seed starter kits", SourceDocument: "products.md", SectionTitle: "Seeds", Ordinal: 2, Embedding: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, s.AddPassages(ctx, "product", passages))

	matches, err := s.Query(ctx, "product", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "compost bins", matches[0].Passage.Text)
	assert.Equal(t, "seed starter kits", matches[1].Passage.Text)
	assert.Equal(t, 1, matches[0].Rank)
	assert.Equal(t, 2, matches[1].Rank)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
	assert.Equal(t, "products.md", matches[0].Passage.SourceDocument)
	assert.Equal(t, "Compost", matches[0].Passage.SectionTitle)
}

func TestQuery_TieBreaksByInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	passages := []StoredPassage{
		{Content: "first", Embedding: []float32{1, 0, 0}},
		{Content: "second", Embedding: []float32{1, 0, 0}},
	}
	require.NoError(t, s.AddPassages(ctx, "support", passages))

	matches, err := s.Query(ctx, "support", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Passage.Text)
	assert.Equal(t, "second", matches[1].Passage.Text)
}

func TestAddPassages_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	err := s.AddPassages(context.Background(), "product", []StoredPassage{
		{Content: "bad", Embedding: []float32{1, 0}},
	})
	assert.Error(t, err)
}

func TestCountAndCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddPassages(ctx, "product", []StoredPassage{
		{Content: "a", Embedding: []float32{1, 0, 0}},
		{Content: "b", Embedding: []float32{0, 1, 0}},
	}))
	require.NoError(t, s.GetOrCreateCollection(ctx, "support"))

	n, err := s.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"product", "support"}, names)

	exists, err := s.HasCollection(ctx, "product")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.HasCollection(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Query(context.Background(), "product", []float32{1, 0, 0}, 3)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))
}

func TestBlobRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.75}
	blob := encodeFloat32SliceToBlob(vec)
	require.Len(t, blob, 12)
	assert.Equal(t, vec, decodeFloat32SliceFromBlob(blob))

	assert.Nil(t, decodeFloat32SliceFromBlob(nil))
	assert.Nil(t, decodeFloat32SliceFromBlob([]byte{1, 2, 3}))
}
