package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// DefaultMaxVectors is the default cap for the memory store (50K).
const DefaultMaxVectors = 50_000

// MemoryStore is an in-memory vector store using brute-force cosine
// similarity search. Contents are lost on restart; use bolt or pgvector to
// keep an index across runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*models.VectorDoc // collection → id → doc
	total       int
	maxVectors  int
}

// MemoryOption configures the memory store.
type MemoryOption func(*MemoryStore)

// WithMaxVectors sets the maximum number of vectors across all collections.
func WithMaxVectors(max int) MemoryOption {
	return func(s *MemoryStore) { s.maxVectors = max }
}

// NewMemoryStore creates an in-memory vector store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections: make(map[string]map[string]*models.VectorDoc),
		maxVectors:  DefaultMaxVectors,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_vectors", s.maxVectors).Msg("Memory vector store initialized")
	return s
}

func (s *MemoryStore) Kind() string { return "memory" }

func (s *MemoryStore) Upsert(_ context.Context, collection string, docs []models.VectorDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[collection]
	fresh := make(map[string]struct{})
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("memory store: document without id")
		}
		if _, exists := coll[d.ID]; !exists {
			fresh[d.ID] = struct{}{}
		}
	}
	newCount := len(fresh)
	if s.total+newCount > s.maxVectors {
		return fmt.Errorf("memory vector store capacity exceeded: %d > %d", s.total+newCount, s.maxVectors)
	}

	if coll == nil {
		coll = make(map[string]*models.VectorDoc)
		s.collections[collection] = coll
	}
	now := time.Now()
	for _, d := range docs {
		cp := d
		cp.Collection = collection
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		coll[cp.ID] = &cp
	}
	s.total += newCount
	return nil
}

func (s *MemoryStore) Search(_ context.Context, collection string, vector []float64, topK int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.SearchResult
	for _, d := range s.collections[collection] {
		if len(d.Vector) != len(vector) {
			continue
		}
		candidates = append(candidates, models.SearchResult{Doc: *d, Score: cosineSimilarity(vector, d.Vector)})
	}
	return topResults(candidates, topK), nil
}

func (s *MemoryStore) Drop(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total -= len(s.collections[collection])
	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}

func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// ── Helpers ─────────────────────────────────────────────────

// topResults sorts by descending score, ties broken by id, and keeps topK.
func topResults(candidates []models.SearchResult, topK int) []models.SearchResult {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Doc.ID < candidates[j].Doc.ID
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}
	return candidates
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
