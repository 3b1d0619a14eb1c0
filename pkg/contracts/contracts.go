// Package contracts defines the service interfaces for ragjenkins.
//
// The concrete drivers live under internal/. The agent, the ingester and the
// HTTP handlers depend on these interfaces only, so a test fake or an
// alternative backend is a single line change in the wiring code
// (pkg/server).
package contracts

import (
	"context"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// ── Embedding Driver ────────────────────────────────────────

// EmbeddingDriver turns text into vectors.
// Ships: openai (text-embedding-3-*), ollama (all-minilm, nomic-embed-text).
type EmbeddingDriver interface {
	// Kind returns the driver identifier (e.g., "openai").
	Kind() string

	// Dimensions returns the vector length produced by the configured model.
	Dimensions() int

	// MaxBatchSize returns the maximum number of texts per Embed call.
	MaxBatchSize() int

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Vector Store Driver ─────────────────────────────────────

// VectorStoreDriver stores chunk records and their vectors, partitioned by
// collection name.
// Ships: memory (brute force), bolt (on-disk bbolt), pgvector.
type VectorStoreDriver interface {
	Kind() string

	// Upsert writes docs into the collection, overwriting records with the same ID.
	Upsert(ctx context.Context, collection string, docs []models.VectorDoc) error

	// Search returns up to topK records ordered by descending cosine similarity.
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]models.SearchResult, error)

	// Drop removes every record of the collection. Dropping a missing
	// collection is not an error.
	Drop(ctx context.Context, collection string) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)

	HealthCheck(ctx context.Context) error
}

// ── Model Router ────────────────────────────────────────────

// ChatModel sends a chat transcript to a language model.
// Implementation: internal/router.ModelRouter
type ChatModel interface {
	Chat(ctx context.Context, req *models.RouteRequest) (*models.RouteResponse, error)
}

// ── Agent Tool Backends ─────────────────────────────────────

// CodeSearcher is the read path of a code index.
// Implementation: internal/index.Collection
type CodeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.ScoredChunk, error)
}

// JenkinsService drives a Jenkins server.
// Implementation: internal/jenkins.Client
type JenkinsService interface {
	EnsureJob(ctx context.Context, name, template string) (*models.JenkinsJob, error)
	TriggerBuild(ctx context.Context, job *models.JenkinsJob) (int, error)
	GetStatus(ctx context.Context, job *models.JenkinsJob, build int) (models.BuildStatus, error)
	FetchConsole(ctx context.Context, job *models.JenkinsJob, build int) (string, error)
}
