package rag_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/agentoven/ragjenkins/internal/archive"
	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/internal/rag"
	"github.com/agentoven/ragjenkins/internal/vectorstore"
	"github.com/agentoven/ragjenkins/pkg/models"
)

type lengthEmbedder struct{ batches []int }

func (e *lengthEmbedder) Kind() string                      { return "length" }
func (e *lengthEmbedder) Dimensions() int                   { return 2 }
func (e *lengthEmbedder) MaxBatchSize() int                 { return 2 }
func (e *lengthEmbedder) HealthCheck(context.Context) error { return nil }

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.batches = append(e.batches, len(texts))
	out := make([][]float64, len(texts))
	for i, s := range texts {
		out[i] = []float64{float64(len(s)), 1}
	}
	return out, nil
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newIngester(t *testing.T, scratch string) *rag.Ingester {
	t.Helper()
	w, err := rag.NewWalker(rag.DefaultChunkerConfig())
	if err != nil {
		t.Fatalf("NewWalker() error = %v", err)
	}
	opts := archive.DefaultOptions()
	opts.ScratchDir = scratch
	return rag.NewIngester(w, rag.WithArchiveOptions(opts), rag.WithBatchSize(64))
}

func TestIndexArchive_ReplacesCollection(t *testing.T) {
	ctx := context.Background()
	emb := &lengthEmbedder{}
	coll := index.NewCollection("code", emb, vectorstore.NewMemoryStore())
	scratch := t.TempDir()
	ing := newIngester(t, scratch)

	first := zipOf(t, map[string]string{"old.py": "x = 1\n", "a.py": "a\n", "b.py": "b\n"})
	if _, err := ing.IndexArchive(ctx, coll, first, models.FilterPython); err != nil {
		t.Fatalf("IndexArchive() error = %v", err)
	}

	second := zipOf(t, map[string]string{"new.py": "y = 2\n", "notes.md": "# notes\n"})
	result, err := ing.IndexArchive(ctx, coll, second, models.FilterPython)
	if err != nil {
		t.Fatalf("IndexArchive() error = %v", err)
	}
	if result.FilesIndexed != 1 || result.ChunksStored != 1 {
		t.Errorf("result = %+v, want 1 file and 1 chunk", result)
	}
	if result.StatusMessage != "Indexed 1 files and stored 1 document chunks." {
		t.Errorf("StatusMessage = %q", result.StatusMessage)
	}
	if n, _ := coll.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1 after re-index", n)
	}
	for _, size := range emb.batches {
		if size > 2 {
			t.Errorf("embedding batch of %d exceeds MaxBatchSize 2", size)
		}
	}
	if left, _ := os.ReadDir(scratch); len(left) != 0 {
		t.Errorf("scratch dir holds %d entries after indexing", len(left))
	}
}

func TestIndexArchive_NoSupportedFiles(t *testing.T) {
	ctx := context.Background()
	coll := index.NewCollection("code", &lengthEmbedder{}, vectorstore.NewMemoryStore())
	ing := newIngester(t, t.TempDir())

	result, err := ing.IndexArchive(ctx, coll, zipOf(t, map[string]string{"logo.png": "png"}), models.FilterAll)
	if !errors.Is(err, rag.ErrNoSupportedFiles) {
		t.Fatalf("IndexArchive() error = %v, want ErrNoSupportedFiles", err)
	}
	if result == nil || result.StatusMessage != "No supported code files found for indexing." {
		t.Errorf("result = %+v", result)
	}
}

func TestIndexArchive_InvalidArchive(t *testing.T) {
	coll := index.NewCollection("code", &lengthEmbedder{}, vectorstore.NewMemoryStore())
	_, err := newIngester(t, t.TempDir()).IndexArchive(context.Background(), coll, []byte("nope"), models.FilterAll)
	if !errors.Is(err, archive.ErrInvalidArchive) {
		t.Errorf("IndexArchive() error = %v, want ErrInvalidArchive", err)
	}
}

func TestExtractWalk_ChunksReconstructFiles(t *testing.T) {
	var py strings.Builder
	for i := range 40 {
		py.WriteString("def handler_")
		py.WriteString(strings.Repeat("x", i%7))
		py.WriteString("():\n    return 'ok'\n")
	}
	files := map[string]string{
		"src/app.py":      py.String(),
		"src/long.js":     "const s = '" + strings.Repeat("é€", 150) + "';\nexport default s\n",
		"docs/README.md":  "# 日本語\r\n\r\n" + strings.Repeat("テキストの行です。\r\n", 30),
		"notes/todo.txt":  "no trailing newline",
		"src/empty.py":    "   \n",
		"src/tiny/one.ts": "export const one = 1\n",
	}

	ws, err := archive.Extract(context.Background(), zipOf(t, files), archive.Options{
		ScratchDir:           t.TempDir(),
		MaxEntries:           100,
		MaxUncompressedBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	t.Cleanup(func() { ws.Cleanup() })

	w, err := rag.NewWalker(rag.ChunkerConfig{ChunkSize: 64, OverlapLines: 2})
	if err != nil {
		t.Fatalf("NewWalker() error = %v", err)
	}
	bodies := map[string]*strings.Builder{}
	next := map[string]int{}
	for c, err := range w.Walk(ws.Dir, models.FilterAll, nil) {
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		if c.SequenceIndex != next[c.SourcePath] {
			t.Fatalf("%s: SequenceIndex = %d, want %d", c.SourcePath, c.SequenceIndex, next[c.SourcePath])
		}
		next[c.SourcePath]++
		if c.Size > 64 {
			t.Errorf("%s[%d]: Size = %d, want <= 64", c.SourcePath, c.SequenceIndex, c.Size)
		}
		if bodies[c.SourcePath] == nil {
			bodies[c.SourcePath] = &strings.Builder{}
		}
		bodies[c.SourcePath].WriteString(c.Body())
	}

	for name, want := range files {
		if strings.TrimSpace(want) == "" {
			if _, ok := bodies[name]; ok {
				t.Errorf("%s: blank file produced chunks", name)
			}
			continue
		}
		got, ok := bodies[name]
		if !ok {
			t.Errorf("%s: no chunks", name)
			continue
		}
		if got.String() != want {
			t.Errorf("%s: reconstructed %q, want %q", name, got.String(), want)
		}
	}
	for _, name := range []string{"src/app.py", "src/long.js", "docs/README.md"} {
		if next[name] < 2 {
			t.Errorf("%s: %d chunks, want several", name, next[name])
		}
	}
}
