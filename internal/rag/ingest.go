package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentoven/ragjenkins/internal/archive"
	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// ErrNoSupportedFiles is returned when an archive holds nothing the filter
// accepts. The collection is left empty.
var ErrNoSupportedFiles = errors.New("no supported code files found for indexing")

// ChunkCounter is notified of every stored batch.
type ChunkCounter interface {
	ChunksIndexed(ctx context.Context, n int)
}

// Ingester handles archive ingestion: extract → walk → chunk → embed → upsert.
type Ingester struct {
	walker    *Walker
	archive   archive.Options
	batchSize int
	counter   ChunkCounter
}

// IngesterOption configures the ingester.
type IngesterOption func(*Ingester)

// WithBatchSize caps the number of chunks per embedding call. The
// collection's own MaxBatchSize still applies.
func WithBatchSize(n int) IngesterOption {
	return func(ing *Ingester) { ing.batchSize = n }
}

// WithArchiveOptions sets extraction limits.
func WithArchiveOptions(opts archive.Options) IngesterOption {
	return func(ing *Ingester) { ing.archive = opts }
}

// WithChunkCounter reports stored chunk counts, e.g. to a metrics sink.
func WithChunkCounter(c ChunkCounter) IngesterOption {
	return func(ing *Ingester) { ing.counter = c }
}

// NewIngester creates an archive ingester.
func NewIngester(walker *Walker, opts ...IngesterOption) *Ingester {
	ing := &Ingester{
		walker:    walker,
		archive:   archive.DefaultOptions(),
		batchSize: 64,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IndexArchive replaces the contents of coll with the chunks of the ZIP
// archive in data. The scratch directory is removed on every path.
func (ing *Ingester) IndexArchive(ctx context.Context, coll *index.Collection, data []byte, filter models.LanguageFilter) (result *models.IndexResult, err error) {
	start := time.Now()

	ctx, span := otel.Tracer("ragjenkins/rag").Start(ctx, "rag.index_archive", trace.WithAttributes(
		attribute.String("ragjenkins.collection", coll.Name()),
		attribute.String("rag.filter", string(filter)),
		attribute.Int("rag.archive_bytes", len(data)),
	))
	defer func() {
		if result != nil {
			span.SetAttributes(
				attribute.Int("rag.files_indexed", result.FilesIndexed),
				attribute.Int("rag.chunks_stored", result.ChunksStored),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ws, err := archive.Extract(ctx, data, ing.archive)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn().Err(err).Str("dir", ws.Dir).Msg("Scratch cleanup failed")
		}
	}()

	if err := coll.Reset(ctx); err != nil {
		return nil, err
	}

	result, err = ing.IndexDir(ctx, coll, ws.Dir, filter)
	if result != nil {
		result.LatencyMs = time.Since(start).Milliseconds()
	}
	return result, err
}

// IndexDir adds the chunks of every accepted file under dir to coll. It
// does not reset the collection.
func (ing *Ingester) IndexDir(ctx context.Context, coll *index.Collection, dir string, filter models.LanguageFilter) (*models.IndexResult, error) {
	start := time.Now()

	batchSize := ing.batchSize
	if max := coll.MaxBatchSize(); max > 0 && (batchSize <= 0 || max < batchSize) {
		batchSize = max
	}

	var stats WalkStats
	stored := 0
	batch := make([]models.CodeChunk, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := coll.Upsert(ctx, batch); err != nil {
			return err
		}
		stored += len(batch)
		if ing.counter != nil {
			ing.counter.ChunksIndexed(ctx, len(batch))
		}
		batch = batch[:0]
		return nil
	}

	for chunk, err := range ing.walker.Walk(dir, filter, &stats) {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", archive.ErrStorage, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch = append(batch, chunk)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	result := &models.IndexResult{
		Collection:   coll.Name(),
		Filter:       filter,
		FilesIndexed: stats.FilesIndexed,
		FilesSkipped: stats.FilesSkipped,
		ChunksStored: stored,
		LatencyMs:    time.Since(start).Milliseconds(),
	}

	if stored == 0 {
		result.StatusMessage = "No supported code files found for indexing."
		return result, ErrNoSupportedFiles
	}
	result.StatusMessage = fmt.Sprintf("Indexed %d files and stored %d document chunks.", stats.FilesIndexed, stored)

	log.Info().
		Str("collection", coll.Name()).
		Str("filter", string(filter)).
		Int("files", stats.FilesIndexed).
		Int("skipped", stats.FilesSkipped).
		Int("chunks", stored).
		Int64("latency_ms", result.LatencyMs).
		Msg("Ingestion complete")
	return result, nil
}
