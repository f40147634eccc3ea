// Package store implements the SQLite-backed vector knowledge store.
// Passages are stored with their embeddings; search uses sqlite-vec ANN
// when the extension is available and falls back to a brute-force cosine
// scan otherwise.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"ecodesk/internal/embedding"
	"ecodesk/internal/logging"
	"ecodesk/internal/types"
)

// PassageMatch is a search hit: a retrieved passage plus its similarity score.
type PassageMatch struct {
	Passage    types.RetrievedPassage
	Similarity float64
	Rank       int // 1-based
}

// KnowledgeStore provides collection-scoped vector search over ingested passages.
type KnowledgeStore struct {
	db     *sql.DB
	dbPath string
	dims   int
	mu     sync.RWMutex
}

// NewKnowledgeStore creates or opens the knowledge store.
// Creates the database and schema if it doesn't exist.
//
// Parameters:
//   - dbPath: Path to the SQLite database file (e.g., "data/ecodesk.db")
//   - dims: Embedding dimensionality for the vec0 table
func NewKnowledgeStore(dbPath string, dims int) (*KnowledgeStore, error) {
	log := logging.Get(logging.CategoryStore)

	if dbPath == "" {
		return nil, fmt.Errorf("database path required")
	}
	if dims <= 0 {
		dims = 768
	}

	log.Info("Initializing knowledge store at: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Error("Failed to open knowledge store database: %v", err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		log.Error("Failed to ping knowledge store database: %v", err)
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &KnowledgeStore{
		db:     db,
		dbPath: dbPath,
		dims:   dims,
	}

	if err := s.initializeSchema(); err != nil {
		db.Close()
		log.Error("Failed to initialize knowledge store schema: %v", err)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("Knowledge store initialized successfully")
	return s, nil
}

func (s *KnowledgeStore) initializeSchema() error {
	log := logging.Get(logging.CategoryStore)

	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS passages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		content TEXT NOT NULL,
		source_document TEXT,
		section_title TEXT,
		ordinal INTEGER DEFAULT 0,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_passages_collection ON passages(collection);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create passages tables: %w", err)
	}

	vecTable := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS vec_passages USING vec0(
		embedding float[%d],
		passage_id INTEGER,
		collection TEXT
	);
	`, s.dims)

	if _, err := s.db.Exec(vecTable); err != nil {
		// Don't fail - vec extension might not be available; search falls
		// back to a brute-force scan.
		log.Warn("Failed to create vec_passages table (sqlite-vec may not be available): %v", err)
	} else {
		log.Debug("sqlite-vec table created with %d dimensions", s.dims)
	}

	return nil
}

// GetOrCreateCollection registers a collection if it does not exist.
func (s *KnowledgeStore) GetOrCreateCollection(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collection name required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return types.ErrStoreUnavailable
	}

	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, name)
	if err != nil {
		return fmt.Errorf("failed to register collection %q: %w", name, err)
	}
	return nil
}

// HasCollection reports whether the named collection exists.
func (s *KnowledgeStore) HasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return false, types.ErrStoreUnavailable
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %q: %w", name, err)
	}
	return n > 0, nil
}

// StoredPassage is a passage plus its embedding, ready for insertion.
type StoredPassage struct {
	Content        string
	SourceDocument string
	SectionTitle   string
	Ordinal        int
	Embedding      []float32
}

// AddPassages inserts passages and their embeddings into a collection.
// The collection is created if it does not exist. All inserts run in one
// transaction.
func (s *KnowledgeStore) AddPassages(ctx context.Context, collection string, passages []StoredPassage) error {
	log := logging.Get(logging.CategoryStore)

	if collection == "" {
		return fmt.Errorf("collection name required")
	}
	if len(passages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return types.ErrStoreUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name) VALUES (?)`, collection); err != nil {
		return fmt.Errorf("failed to register collection %q: %w", collection, err)
	}

	vecOK := s.vecAvailable()

	for _, p := range passages {
		if p.Content == "" {
			continue
		}
		if len(p.Embedding) != s.dims {
			return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(p.Embedding), s.dims)
		}

		blob := encodeFloat32SliceToBlob(p.Embedding)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO passages (collection, content, source_document, section_title, ordinal, embedding)
			VALUES (?, ?, ?, ?, ?, ?)`,
			collection, p.Content, p.SourceDocument, p.SectionTitle, p.Ordinal, blob)
		if err != nil {
			return fmt.Errorf("failed to insert passage: %w", err)
		}

		if vecOK {
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get passage id: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vec_passages (embedding, passage_id, collection)
				VALUES (?, ?, ?)`,
				blob, id, collection); err != nil {
				return fmt.Errorf("failed to insert vec row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit passages: %w", err)
	}

	log.Info("Added %d passages to collection %q", len(passages), collection)
	return nil
}

// Query performs a similarity search in a collection.
// Returns up to topK matches ordered by descending similarity; ties break by
// insertion order. Querying a collection that was never created returns
// ErrStoreUnavailable. An existing but empty collection returns an empty
// slice.
func (s *KnowledgeStore) Query(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]PassageMatch, error) {
	log := logging.Get(logging.CategoryStore)

	if topK <= 0 {
		topK = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, types.ErrStoreUnavailable
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE name = ?`, collection).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to check collection %q: %w", collection, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("unknown collection %q: %w", collection, types.ErrStoreUnavailable)
	}

	queryBlob := encodeFloat32SliceToBlob(queryEmbedding)

	// Try vec table first (fast ANN search)
	matches, err := s.searchVec(ctx, collection, queryBlob, topK)
	if err != nil {
		log.Debug("Falling back to brute-force search: %v", err)
		return s.searchBruteForce(ctx, collection, queryEmbedding, topK)
	}

	log.Debug("Collection %q search returned %d matches", collection, len(matches))
	return matches, nil
}

// searchVec performs ANN search using sqlite-vec.
func (s *KnowledgeStore) searchVec(ctx context.Context, collection string, queryBlob []byte, topK int) ([]PassageMatch, error) {
	query := `
		SELECT
			p.content,
			p.source_document,
			p.section_title,
			p.ordinal,
			vec_distance_cosine(vp.embedding, ?) AS distance
		FROM vec_passages vp
		JOIN passages p ON vp.passage_id = p.id
		WHERE vp.collection = ?
		ORDER BY distance ASC, p.id ASC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, queryBlob, collection, topK)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var matches []PassageMatch
	rank := 1
	for rows.Next() {
		var m PassageMatch
		var source, section sql.NullString
		var distance float64

		if err := rows.Scan(&m.Passage.Text, &source, &section, &m.Passage.Ordinal, &distance); err != nil {
			logging.Get(logging.CategoryStore).Warn("Failed to scan passage row: %v", err)
			continue
		}

		m.Passage.SourceDocument = source.String
		m.Passage.SectionTitle = section.String
		m.Similarity = 1.0 - distance
		m.Rank = rank
		rank++

		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// searchBruteForce performs brute-force cosine similarity search.
// Used as fallback when sqlite-vec is not available.
func (s *KnowledgeStore) searchBruteForce(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]PassageMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, source_document, section_title, ordinal, embedding
		FROM passages
		WHERE collection = ?
		ORDER BY id ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id    int64
		match PassageMatch
	}

	var candidates []candidate

	for rows.Next() {
		var id int64
		var content string
		var source, section sql.NullString
		var ordinal int
		var blob []byte

		if err := rows.Scan(&id, &content, &source, &section, &ordinal, &blob); err != nil {
			continue
		}

		vec := decodeFloat32SliceFromBlob(blob)
		if len(vec) == 0 {
			continue
		}

		similarity, err := embedding.CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			continue
		}

		candidates = append(candidates, candidate{
			id: id,
			match: PassageMatch{
				Passage: types.RetrievedPassage{
					Text:           content,
					SourceDocument: source.String,
					SectionTitle:   section.String,
					Ordinal:        ordinal,
				},
				Similarity: similarity,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending; earlier insertion wins ties
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].match.Similarity > candidates[i].match.Similarity ||
				(candidates[j].match.Similarity == candidates[i].match.Similarity && candidates[j].id < candidates[i].id) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	matches := make([]PassageMatch, len(candidates))
	for i, c := range candidates {
		c.match.Rank = i + 1
		matches[i] = c.match
	}

	return matches, nil
}

// Count returns the number of passages in a collection.
func (s *KnowledgeStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, types.ErrStoreUnavailable
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// Collections returns the names of all registered collections.
func (s *KnowledgeStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, types.ErrStoreUnavailable
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// vecAvailable reports whether the vec_passages virtual table is usable.
func (s *KnowledgeStore) vecAvailable() bool {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = 'vec_passages'`).Scan(&n)
	return err == nil && n > 0
}

// Close closes the underlying database.
func (s *KnowledgeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// encodeFloat32SliceToBlob encodes a float32 slice as a binary blob for sqlite-vec.
// Uses little-endian encoding as expected by sqlite-vec.
func encodeFloat32SliceToBlob(vec []float32) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		// Should never happen with bytes.Buffer
		return nil
	}
	return buf.Bytes()
}

// decodeFloat32SliceFromBlob decodes a little-endian float32 blob.
func decodeFloat32SliceFromBlob(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}
