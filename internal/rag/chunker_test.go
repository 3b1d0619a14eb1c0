package rag_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/agentoven/ragjenkins/internal/rag"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// reassemble drops each window's overlap and concatenates the rest.
func reassemble(windows []rag.Window) string {
	var sb strings.Builder
	for _, w := range windows {
		sb.WriteString(models.CodeChunk{Content: w.Text, Overlap: w.Overlap}.Body())
	}
	return sb.String()
}

func TestChunkText_Reconstructs(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, strings.Repeat("x", i%37)+" line")
	}
	long := strings.Repeat("é", 130)

	tests := []struct {
		name string
		text string
		cfg  rag.ChunkerConfig
	}{
		{"short", "print('hi')\n", rag.ChunkerConfig{ChunkSize: 100, OverlapLines: 1}},
		{"many lines", strings.Join(lines, "\n"), rag.ChunkerConfig{ChunkSize: 120, OverlapLines: 1}},
		{"no trailing newline", "a\nb\nc", rag.ChunkerConfig{ChunkSize: 3, OverlapLines: 1}},
		{"long multibyte line", "start\n" + long + "\nend\n", rag.ChunkerConfig{ChunkSize: 50, OverlapLines: 1}},
		{"no overlap", strings.Join(lines, "\n"), rag.ChunkerConfig{ChunkSize: 80}},
		{"two overlap lines", strings.Join(lines, "\n"), rag.ChunkerConfig{ChunkSize: 90, OverlapLines: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := rag.ChunkText(tt.text, tt.cfg)
			if got := reassemble(windows); got != tt.text {
				t.Fatalf("reassembled text differs from input:\n got %q\nwant %q", got, tt.text)
			}
			for i, w := range windows {
				if n := utf8.RuneCountInString(w.Text); n > tt.cfg.ChunkSize {
					t.Errorf("window %d has %d runes, want <= %d", i, n, tt.cfg.ChunkSize)
				}
				if i == 0 && w.Overlap != 0 {
					t.Errorf("first window Overlap = %d, want 0", w.Overlap)
				}
			}
		})
	}
}

func TestChunkText_OverlapRepeatsPreviousLine(t *testing.T) {
	windows := rag.ChunkText("aaaa\nbbbb\ncccc\n", rag.ChunkerConfig{ChunkSize: 10, OverlapLines: 1})
	if len(windows) != 2 {
		t.Fatalf("ChunkText() returned %d windows, want 2", len(windows))
	}
	if windows[1].Text != "bbbb\ncccc\n" {
		t.Errorf("second window = %q, want %q", windows[1].Text, "bbbb\ncccc\n")
	}
	if windows[1].Overlap != 5 {
		t.Errorf("Overlap = %d, want 5", windows[1].Overlap)
	}
}

func TestChunkText_Empty(t *testing.T) {
	if got := rag.ChunkText("", rag.DefaultChunkerConfig()); len(got) != 0 {
		t.Errorf("ChunkText(\"\") = %v, want none", got)
	}
}
