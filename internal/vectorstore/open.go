// Package vectorstore provides the vector store drivers: memory (brute
// force, process lifetime), bolt (brute force over a bbolt file) and
// pgvector (user-provided PostgreSQL).
package vectorstore

import (
	"context"
	"fmt"

	"github.com/agentoven/ragjenkins/pkg/contracts"
)

// Open builds the driver selected by kind. dimensions sizes the pgvector
// column and is ignored by the other drivers.
func Open(ctx context.Context, kind, path, pgURL string, dimensions int) (contracts.VectorStoreDriver, error) {
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "bolt", "":
		return NewBoltStore(path)
	case "pgvector":
		return NewPgvectorStore(ctx, pgURL, dimensions)
	default:
		return nil, fmt.Errorf("unknown vector store %q", kind)
	}
}
