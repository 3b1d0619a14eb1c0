// Package index is the vector index over code chunks: named collections
// backed by an embedding driver and a vector store driver.
package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/contracts"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// DefaultTopK is used when a search asks for zero or fewer results.
const DefaultTopK = 5

var (
	// ErrEmbedding is returned when the embedding provider fails.
	ErrEmbedding = errors.New("embedding error")
	// ErrStorage is returned when the vector store fails.
	ErrStorage = errors.New("vector store error")
)

// chunkNamespace seeds the deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c1c55-7f3e-4bd4-9d0e-2b8c3a1f0e42")

// ChunkID returns the stable id of a chunk: re-indexing the same file
// overwrites its records instead of duplicating them.
func ChunkID(collection string, c models.CodeChunk) string {
	return uuid.NewSHA1(chunkNamespace, []byte(collection+"\x00"+c.SourcePath+"\x00"+strconv.Itoa(c.SequenceIndex))).String()
}

// Collection is one named index. Writes are serialised; searches run
// concurrently with each other.
type Collection struct {
	name       string
	embeddings contracts.EmbeddingDriver
	store      contracts.VectorStoreDriver
	mu         sync.RWMutex
}

// NewCollection creates a collection handle. No state is created until the
// first Upsert.
func NewCollection(name string, emb contracts.EmbeddingDriver, store contracts.VectorStoreDriver) *Collection {
	return &Collection{name: name, embeddings: emb, store: store}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// MaxBatchSize is the largest number of chunks one Upsert call accepts.
func (c *Collection) MaxBatchSize() int { return c.embeddings.MaxBatchSize() }

// Reset drops every record so the next Upsert starts from an empty
// collection.
func (c *Collection) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Drop(ctx, c.name); err != nil {
		return fmt.Errorf("%w: drop %s: %v", ErrStorage, c.name, err)
	}
	log.Info().Str("collection", c.name).Msg("Collection reset")
	return nil
}

// Clear is Reset under the name used by the HTTP and CLI surfaces.
func (c *Collection) Clear(ctx context.Context) error {
	return c.Reset(ctx)
}

// Upsert embeds the chunks and stores them. Either every chunk of the call
// is stored or, on embedding failure, none is.
func (c *Collection) Upsert(ctx context.Context, chunks []models.CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	vectors, err := c.embeddings.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbedding, len(vectors), len(chunks))
	}

	docs := make([]models.VectorDoc, len(chunks))
	for i, ch := range chunks {
		docs[i] = models.VectorDoc{
			ID:       ChunkID(c.name, ch),
			Content:  ch.Content,
			Metadata: chunkMetadata(ch),
			Vector:   vectors[i],
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Upsert(ctx, c.name, docs); err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrStorage, err)
	}
	return nil
}

// Search returns up to topK chunks ordered by descending similarity to the
// query. An empty collection returns no results without calling the
// embedding provider.
func (c *Collection) Search(ctx context.Context, query string, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n, err := c.store.Count(ctx, c.name)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrStorage, err)
	}
	if n == 0 {
		return []models.ScoredChunk{}, nil
	}

	vectors, err := c.embeddings.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for query", ErrEmbedding, len(vectors))
	}

	hits, err := c.store.Search(ctx, c.name, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	results := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.ScoredChunk{Chunk: chunkFromDoc(h.Doc), Score: h.Score})
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.store.Count(ctx, c.name)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStorage, err)
	}
	return n, nil
}

// ── Helpers ─────────────────────────────────────────────────

func chunkMetadata(c models.CodeChunk) map[string]string {
	return map[string]string{
		"source_path":    c.SourcePath,
		"language":       string(c.Language),
		"sequence_index": strconv.Itoa(c.SequenceIndex),
		"size":           strconv.Itoa(c.Size),
		"overlap":        strconv.Itoa(c.Overlap),
	}
}

func chunkFromDoc(d models.VectorDoc) models.CodeChunk {
	seq, _ := strconv.Atoi(d.Metadata["sequence_index"])
	size, _ := strconv.Atoi(d.Metadata["size"])
	overlap, _ := strconv.Atoi(d.Metadata["overlap"])
	return models.CodeChunk{
		SourcePath:    d.Metadata["source_path"],
		Language:      models.Language(d.Metadata["language"]),
		SequenceIndex: seq,
		Content:       d.Content,
		Size:          size,
		Overlap:       overlap,
	}
}
