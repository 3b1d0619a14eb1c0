// Package rag turns extracted source trees into code chunks and feeds them
// through the embedding driver into an index collection.
package rag

import (
	"strings"
	"unicode/utf8"
)

// ChunkerConfig configures the text chunker.
type ChunkerConfig struct {
	ChunkSize    int   // Maximum chunk size in characters (default 1000)
	OverlapLines int   // Lines of the previous chunk repeated at the start of the next (default 1)
	MaxFileBytes int64 // Files larger than this are skipped (default 2 MiB)
}

// DefaultChunkerConfig returns the defaults used for source code.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    1000,
		OverlapLines: 1,
		MaxFileBytes: 2 << 20,
	}
}

// Window is one chunk of a file's text. The first Overlap runes of Text
// repeat the end of the previous window.
type Window struct {
	Text    string
	Overlap int
}

// ChunkText splits text into contiguous windows of at most ChunkSize runes.
// Windows break at line ends; a single line longer than ChunkSize is cut at
// rune boundaries. Dropping each window's overlap prefix and concatenating
// the rest reproduces text exactly.
func ChunkText(text string, config ChunkerConfig) []Window {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.OverlapLines < 0 {
		config.OverlapLines = 0
	}
	if text == "" {
		return nil
	}

	segments := lineSegments(text, config.ChunkSize)

	var windows []Window
	var current strings.Builder
	currentRunes := 0
	overlap := 0
	var body []string // segments of the current window after the overlap

	for _, seg := range segments {
		segRunes := utf8.RuneCountInString(seg)

		if currentRunes+segRunes > config.ChunkSize && len(body) > 0 {
			windows = append(windows, Window{Text: current.String(), Overlap: overlap})

			tail := overlapTail(body, config.OverlapLines, config.ChunkSize-segRunes)
			current.Reset()
			current.WriteString(tail)
			overlap = utf8.RuneCountInString(tail)
			currentRunes = overlap
			body = body[:0]
		}

		current.WriteString(seg)
		currentRunes += segRunes
		body = append(body, seg)
	}
	if len(body) > 0 {
		windows = append(windows, Window{Text: current.String(), Overlap: overlap})
	}
	return windows
}

// lineSegments splits text after every newline and cuts lines longer than
// max runes into max-sized pieces.
func lineSegments(text string, max int) []string {
	var segments []string
	for len(text) > 0 {
		end := strings.IndexByte(text, '\n')
		var line string
		if end < 0 {
			line, text = text, ""
		} else {
			line, text = text[:end+1], text[end+1:]
		}
		if utf8.RuneCountInString(line) <= max {
			segments = append(segments, line)
			continue
		}
		segments = append(segments, splitByRunes(line, max)...)
	}
	return segments
}

// overlapTail returns up to n trailing segments of body whose combined
// length fits in budget runes. It never returns all of body when body is
// a single cut fragment of a long line.
func overlapTail(body []string, n, budget int) string {
	if n <= 0 || budget <= 0 {
		return ""
	}
	start := len(body) - n
	if start < 0 {
		start = 0
	}
	for ; start < len(body); start++ {
		tail := strings.Join(body[start:], "")
		if utf8.RuneCountInString(tail) <= budget {
			if !strings.HasSuffix(tail, "\n") {
				// Mid-line fragments make poor context.
				return ""
			}
			return tail
		}
	}
	return ""
}

// splitByRunes splits text into segments of n runes each.
func splitByRunes(text string, n int) []string {
	runes := []rune(text)
	var segments []string
	for i := 0; i < len(runes); i += n {
		end := i + n
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[i:end]))
	}
	return segments
}
