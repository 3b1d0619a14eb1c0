package rag

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8000

var (
	errBinary   = errors.New("binary content")
	errEncoding = errors.New("not valid UTF-8")
	errTooLarge = errors.New("file too large")
)

// WalkStats counts the files seen by a walk.
type WalkStats struct {
	FilesIndexed int
	FilesSkipped int
}

// Walker turns a directory tree into code chunks.
type Walker struct {
	config   ChunkerConfig
	excludes []glob.Glob
}

// NewWalker creates a walker. With no excludes, DefaultExcludes apply.
func NewWalker(config ChunkerConfig, excludes ...string) (*Walker, error) {
	if len(excludes) == 0 {
		excludes = DefaultExcludes
	}
	globs, err := compileGlobs(excludes)
	if err != nil {
		return nil, err
	}
	return &Walker{config: config, excludes: globs}, nil
}

// Walk yields the chunks of every file under root accepted by filter, in
// lexical path order, lazily. Unreadable, binary and empty files are logged
// and skipped; the iteration only yields an error when the tree itself
// cannot be walked, and stops after it. stats may be nil.
func (w *Walker) Walk(root string, filter models.LanguageFilter, stats *WalkStats) iter.Seq2[models.CodeChunk, error] {
	if stats == nil {
		stats = &WalkStats{}
	}
	return func(yield func(models.CodeChunk, error) bool) {
		match, err := compileFilter(filter)
		if err != nil {
			yield(models.CodeChunk{}, err)
			return
		}

		stopped := false
		walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == root {
					return err
				}
				log.Warn().Err(err).Str("path", p).Msg("Skipping unreadable path")
				return nil
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if w.excluded("/" + rel + "/") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || w.excluded("/"+rel) {
				return nil
			}
			if !match.Match(strings.ToLower(rel)) {
				return nil
			}
			lang, _ := LanguageOf(rel)

			text, err := w.readText(p)
			if err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("Skipping file")
				stats.FilesSkipped++
				return nil
			}
			if strings.TrimSpace(text) == "" {
				stats.FilesSkipped++
				return nil
			}

			stats.FilesIndexed++
			for i, win := range ChunkText(text, w.config) {
				chunk := models.CodeChunk{
					SourcePath:    rel,
					Language:      lang,
					SequenceIndex: i,
					Content:       win.Text,
					Size:          utf8.RuneCountInString(win.Text),
					Overlap:       win.Overlap,
				}
				if !yield(chunk, nil) {
					stopped = true
					return filepath.SkipAll
				}
			}
			return nil
		})
		if walkErr != nil && !stopped {
			yield(models.CodeChunk{}, fmt.Errorf("walk %s: %w", root, walkErr))
		}
	}
}

func (w *Walker) excluded(rel string) bool {
	for _, g := range w.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (w *Walker) readText(p string) (string, error) {
	if w.config.MaxFileBytes > 0 {
		info, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		if info.Size() > w.config.MaxFileBytes {
			return "", fmt.Errorf("%w: %d bytes", errTooLarge, info.Size())
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", errBinary
	}
	if !utf8.Valid(data) {
		return "", errEncoding
	}
	return string(data), nil
}
