// Package models defines the domain types shared by the ragjenkins packages:
// code chunks and their scored search results, Jenkins jobs and build
// statuses, agent turns, and the chat types exchanged with the model router.
package models

import (
	"time"
	"unicode/utf8"
)

// ── Code Chunks ──────────────────────────────────────────────

// Language identifies the language of an indexed source file.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageMarkdown   Language = "markdown"
	LanguageText       Language = "text"
	LanguageOther      Language = "other"
)

// LanguageFilter selects which files an index pass picks up.
// FilterAll accepts every supported extension.
type LanguageFilter string

const (
	FilterAll        LanguageFilter = "all"
	FilterPython     LanguageFilter = "python"
	FilterJavaScript LanguageFilter = "javascript"
	FilterTypeScript LanguageFilter = "typescript"
	FilterJava       LanguageFilter = "java"
	FilterMarkdown   LanguageFilter = "markdown"
	FilterText       LanguageFilter = "text"
)

// CodeChunk is a bounded slice of one source file.
//
// Size is the rune count of Content and never exceeds the configured chunk
// size. Overlap is the number of leading runes of Content repeated from the
// previous chunk of the same file.
type CodeChunk struct {
	SourcePath    string   `json:"source_path"`
	Language      Language `json:"language"`
	SequenceIndex int      `json:"sequence_index"`
	Content       string   `json:"content"`
	Size          int      `json:"size"`
	Overlap       int      `json:"overlap,omitempty"`
}

// Body returns Content without the overlap prefix.
func (c CodeChunk) Body() string {
	if c.Overlap <= 0 {
		return c.Content
	}
	skip := 0
	for i := 0; i < c.Overlap && skip < len(c.Content); i++ {
		_, n := utf8.DecodeRuneInString(c.Content[skip:])
		skip += n
	}
	return c.Content[skip:]
}

// ScoredChunk is a single search hit, ordered by descending Score.
type ScoredChunk struct {
	Chunk CodeChunk `json:"chunk"`
	Score float64   `json:"score"`
}

// VectorDoc is a chunk record as stored by a vector store driver.
type VectorDoc struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []float64         `json:"vector"`
	CreatedAt  time.Time         `json:"created_at"`
}

// SearchResult is a single vector store hit.
type SearchResult struct {
	Doc   VectorDoc `json:"doc"`
	Score float64   `json:"score"`
}

// IndexResult summarises one index pass.
type IndexResult struct {
	Collection    string         `json:"collection"`
	Filter        LanguageFilter `json:"filter"`
	FilesIndexed  int            `json:"files_indexed"`
	FilesSkipped  int            `json:"files_skipped"`
	ChunksStored  int            `json:"chunks_stored"`
	LatencyMs     int64          `json:"latency_ms"`
	StatusMessage string         `json:"status"`
}

// ── Jenkins ──────────────────────────────────────────────────

// JenkinsJob is a job on the configured Jenkins server.
type JenkinsJob struct {
	Name            string `json:"name"`
	URL             string `json:"url,omitempty"`
	NextBuildNumber int    `json:"next_build_number,omitempty"`
	LastBuildNumber *int   `json:"last_build_number,omitempty"`
	InQueue         bool   `json:"in_queue"`
}

// BuildStatus is the coarse state of one Jenkins build.
type BuildStatus string

const (
	BuildQueued  BuildStatus = "queued"
	BuildRunning BuildStatus = "running"
	BuildSuccess BuildStatus = "success"
	BuildFailure BuildStatus = "failure"
	BuildUnknown BuildStatus = "unknown"
)

// ── Agent ────────────────────────────────────────────────────

// AgentState is a state of the orchestrator loop.
type AgentState string

const (
	StateThinking     AgentState = "thinking"
	StateToolSelected AgentState = "tool_selected"
	StateToolExecuted AgentState = "tool_executed"
	StateDone         AgentState = "done"
	StateFailed       AgentState = "failed"
)

// ToolInvocation records one tool call and what it returned.
type ToolInvocation struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result"`
	IsError   bool           `json:"is_error"`
	LatencyMs int64          `json:"latency_ms"`
}

// AgentTurn is the full record of one instruction's run.
type AgentTurn struct {
	ID          string           `json:"id"`
	Instruction string           `json:"instruction"`
	JobName     string           `json:"job_name,omitempty"`
	Invocations []ToolInvocation `json:"tool_invocations"`
	FinalAnswer string           `json:"final_answer,omitempty"`
	State       AgentState       `json:"state"`
	Iterations  int              `json:"iterations"`
	Error       string           `json:"error,omitempty"`
	Usage       TokenUsage       `json:"usage"`
	TotalMs     int64            `json:"total_ms"`
}

// AgentRunRequest is the body of POST /api/agent/run.
type AgentRunRequest struct {
	Instruction string `json:"instruction"`
	JobName     string `json:"job_name,omitempty"`
}

// ── Model Routing ────────────────────────────────────────────

// ChatMessage is one message of a chat transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RouteRequest is a chat completion request sent through the model router.
type RouteRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// RouteResponse is the provider's reply.
type RouteResponse struct {
	Provider     string     `json:"provider"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        TokenUsage `json:"usage"`
	LatencyMs    int64      `json:"latency_ms"`
}

// TokenUsage counts tokens reported by the provider.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ModelProvider is a configured chat completion backend.
type ModelProvider struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"` // "openai" or "ollama"
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"-"`
	Model    string `json:"model"`
}
