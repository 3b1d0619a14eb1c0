// Package archive extracts uploaded ZIP codebases into scratch directories.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// scratchPrefix names every extraction directory, so the janitor only ever
// touches its own leftovers.
const scratchPrefix = "ragjenkins-"

var (
	// ErrInvalidArchive is returned for corrupt archives and for entries that
	// would escape the extraction directory.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrStorage is returned when the scratch directory cannot be written.
	ErrStorage = errors.New("storage error")
)

// Options bounds an extraction.
type Options struct {
	// ScratchDir is the parent of the per-request directory; empty means os.TempDir().
	ScratchDir           string
	MaxEntries           int
	MaxUncompressedBytes int64
}

// DefaultOptions returns limits suitable for source archives.
func DefaultOptions() Options {
	return Options{
		MaxEntries:           20000,
		MaxUncompressedBytes: 1 << 30,
	}
}

// Workspace is an extracted archive on disk. Call Cleanup when done with it.
type Workspace struct {
	Dir   string
	Files int
	Bytes int64
}

// Cleanup removes the extraction directory.
func (w *Workspace) Cleanup() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrStorage, w.Dir, err)
	}
	return nil
}

// Extract writes the archive into a fresh scratch directory and returns it.
// On failure nothing is left on disk.
func Extract(ctx context.Context, data []byte, opts Options) (*Workspace, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if opts.MaxEntries > 0 && len(zr.File) > opts.MaxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds limit of %d", ErrInvalidArchive, len(zr.File), opts.MaxEntries)
	}

	// Validate every name before touching the disk.
	var declared uint64
	for _, f := range zr.File {
		if _, err := safeRelPath(f.Name); err != nil {
			return nil, err
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			return nil, fmt.Errorf("%w: symlink entry %q", ErrInvalidArchive, f.Name)
		}
		declared += f.UncompressedSize64
	}
	if opts.MaxUncompressedBytes > 0 && declared > uint64(opts.MaxUncompressedBytes) {
		return nil, fmt.Errorf("%w: uncompressed size %d exceeds limit of %d", ErrInvalidArchive, declared, opts.MaxUncompressedBytes)
	}

	dir, err := os.MkdirTemp(opts.ScratchDir, scratchPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: create scratch dir: %v", ErrStorage, err)
	}
	ws := &Workspace{Dir: dir}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			ws.Cleanup()
			return nil, err
		}
		n, err := extractEntry(dir, f, remaining(opts.MaxUncompressedBytes, ws.Bytes))
		if err != nil {
			ws.Cleanup()
			return nil, err
		}
		if !f.FileInfo().IsDir() {
			ws.Files++
			ws.Bytes += n
		}
	}

	log.Debug().
		Str("dir", dir).
		Int("files", ws.Files).
		Int64("bytes", ws.Bytes).
		Msg("Archive extracted")
	return ws, nil
}

func extractEntry(root string, f *zip.File, budget int64) (int64, error) {
	rel, err := safeRelPath(f.Name)
	if err != nil {
		return 0, err
	}
	if rel == "" {
		return 0, nil
	}
	target := filepath.Join(root, filepath.FromSlash(rel))

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return 0, fmt.Errorf("%w: mkdir %s: %v", ErrStorage, rel, err)
		}
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("%w: mkdir %s: %v", ErrStorage, path.Dir(rel), err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open entry %q: %v", ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrStorage, rel, err)
	}

	var src io.Reader = rc
	if budget >= 0 {
		// Declared sizes can lie; read one byte past the budget to detect it.
		src = io.LimitReader(rc, budget+1)
	}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr != nil {
		if errors.Is(copyErr, zip.ErrChecksum) || errors.Is(copyErr, zip.ErrFormat) || errors.Is(copyErr, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: entry %q: %v", ErrInvalidArchive, f.Name, copyErr)
		}
		return 0, fmt.Errorf("%w: write %s: %v", ErrStorage, rel, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("%w: close %s: %v", ErrStorage, rel, closeErr)
	}
	if budget >= 0 && n > budget {
		return 0, fmt.Errorf("%w: uncompressed size exceeds limit", ErrInvalidArchive)
	}
	return n, nil
}

// safeRelPath cleans an entry name and rejects anything that would land
// outside the extraction root.
func safeRelPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || (len(name) >= 2 && name[1] == ':') {
		return "", fmt.Errorf("%w: absolute entry path %q", ErrInvalidArchive, name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: entry %q escapes the target directory", ErrInvalidArchive, name)
	}
	return cleaned, nil
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
