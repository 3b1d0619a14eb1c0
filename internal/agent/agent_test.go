package agent_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentoven/ragjenkins/internal/agent"
	"github.com/agentoven/ragjenkins/internal/jenkins"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// scriptedModel replies with the given contents in order, repeating the
// last one.
type scriptedModel struct {
	replies []string
	calls   int
	seen    [][]models.ChatMessage
	err     error
}

func (m *scriptedModel) Chat(_ context.Context, req *models.RouteRequest) (*models.RouteResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.seen = append(m.seen, req.Messages)
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return &models.RouteResponse{Content: m.replies[i], Usage: models.TokenUsage{TotalTokens: 10}}, nil
}

type fakeSearcher struct {
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string, topK int) ([]models.ScoredChunk, error) {
	s.queries = append(s.queries, query)
	return []models.ScoredChunk{{
		Chunk: models.CodeChunk{SourcePath: "app/util.py", Language: models.LanguagePython, Content: "def parse_config():\n    pass\n"},
		Score: 0.91,
	}}, nil
}

type fakeJenkins struct {
	mu          sync.Mutex
	ensured     []string
	statusErrs  int
	statusCalls int
}

func (j *fakeJenkins) EnsureJob(_ context.Context, name, _ string) (*models.JenkinsJob, error) {
	j.ensured = append(j.ensured, name)
	return &models.JenkinsJob{Name: name, NextBuildNumber: 1}, nil
}

func (j *fakeJenkins) TriggerBuild(_ context.Context, job *models.JenkinsJob) (int, error) {
	return 7, nil
}

func (j *fakeJenkins) GetStatus(_ context.Context, job *models.JenkinsJob, build int) (models.BuildStatus, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.statusCalls++
	if j.statusCalls <= j.statusErrs {
		return models.BuildUnknown, jenkins.ErrUnreachable
	}
	return models.BuildSuccess, nil
}

func (j *fakeJenkins) FetchConsole(_ context.Context, job *models.JenkinsJob, build int) (string, error) {
	return "npm ERR! missing script: test", nil
}

type recorder struct {
	states []models.AgentState
	tools  []string
	done   *models.AgentTurn
}

func (r *recorder) StateChanged(_ context.Context, _ string, state models.AgentState, _ string) {
	r.states = append(r.states, state)
}
func (r *recorder) ToolCalled(_ context.Context, _ string, inv models.ToolInvocation) {
	r.tools = append(r.tools, inv.Tool)
}
func (r *recorder) RunFinished(_ context.Context, turn *models.AgentTurn) { r.done = turn }

func fastConfig() agent.Config {
	cfg := agent.DefaultConfig()
	cfg.StatusRetryDelay = time.Millisecond
	return cfg
}

func TestRun_SearchThenAnswer(t *testing.T) {
	model := &scriptedModel{replies: []string{
		`{"tool": "search", "arguments": {"query": "functions named parse_config"}}`,
		"parse_config is defined in app/util.py.",
	}}
	search := &fakeSearcher{}
	rec := &recorder{}
	o := agent.New(model, search, agent.WithObserver(rec), agent.WithConfig(fastConfig()))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "Find functions named parse_config"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if turn.State != models.StateDone {
		t.Errorf("State = %q, want done", turn.State)
	}
	if len(search.queries) != 1 {
		t.Fatalf("search called %d times, want 1", len(search.queries))
	}
	if len(turn.Invocations) != 1 || turn.Invocations[0].Tool != "search" {
		t.Errorf("Invocations = %+v, want one search", turn.Invocations)
	}
	if turn.FinalAnswer != "parse_config is defined in app/util.py." {
		t.Errorf("FinalAnswer = %q", turn.FinalAnswer)
	}
	if turn.Usage.TotalTokens != 20 {
		t.Errorf("Usage.TotalTokens = %d, want 20", turn.Usage.TotalTokens)
	}
	if turn.JobName != "rag-agent-job" {
		t.Errorf("JobName = %q, want the default job", turn.JobName)
	}

	// The tool result is fed back to the model.
	last := model.seen[1][len(model.seen[1])-1].Content
	if !strings.Contains(last, "app/util.py") {
		t.Errorf("tool result message %q does not mention the hit", last)
	}
	wantStates := []models.AgentState{
		models.StateThinking, models.StateToolSelected, models.StateToolExecuted,
		models.StateThinking, models.StateDone,
	}
	if len(rec.states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", rec.states, wantStates)
	}
	for i := range wantStates {
		if rec.states[i] != wantStates[i] {
			t.Errorf("states[%d] = %q, want %q", i, rec.states[i], wantStates[i])
		}
	}
	if rec.done != turn {
		t.Error("RunFinished not called with the returned turn")
	}
}

func TestRun_MalformedCallsExhaustBudget(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "search", "arguments": {"query": "x", "bogus": 1}}`}}
	cfg := fastConfig()
	cfg.MaxIterations = 3
	o := agent.New(model, &fakeSearcher{}, agent.WithConfig(cfg))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "loop"})
	if !errors.Is(err, agent.ErrBudgetExceeded) {
		t.Fatalf("Run() error = %v, want ErrBudgetExceeded", err)
	}
	if turn.State != models.StateFailed {
		t.Errorf("State = %q, want failed", turn.State)
	}
	if len(turn.Invocations) != 3 {
		t.Errorf("Invocations = %d, want 3", len(turn.Invocations))
	}
	for _, inv := range turn.Invocations {
		if !inv.IsError || !strings.Contains(inv.Result, `"error":"invalid_tool_call"`) {
			t.Errorf("invocation result = %q, want invalid_tool_call", inv.Result)
		}
	}
}

func TestRun_UnparseableJSONIsMalformed(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "search", "arguments": `, "done"}}
	o := agent.New(model, &fakeSearcher{}, agent.WithConfig(fastConfig()))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(turn.Invocations) != 1 || !strings.Contains(turn.Invocations[0].Result, "invalid_tool_call") {
		t.Errorf("Invocations = %+v, want one invalid_tool_call", turn.Invocations)
	}
}

func TestRun_JenkinsUnavailable(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "trigger_build", "arguments": {}}`, "cannot build"}}
	o := agent.New(model, &fakeSearcher{}, agent.WithConfig(fastConfig()))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "build it"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(turn.Invocations[0].Result, "tool_unavailable") {
		t.Errorf("Result = %q, want tool_unavailable", turn.Invocations[0].Result)
	}
	if strings.Contains(model.seen[0][0].Content, "trigger_build") {
		t.Error("system prompt lists Jenkins tools without Jenkins")
	}
}

func TestRun_JenkinsFlowUsesDefaultJob(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```json\n{\"tool\": \"ensure_job\", \"arguments\": {}}\n```",
		`{"tool_calls": [{"name": "trigger_build", "arguments": "{}"}]}`,
		`{"tool": "get_status", "arguments": {"build": 7}}`,
		`{"tool": "fetch_console", "arguments": {"build": 7}}`,
		"Build 7 succeeded.",
	}}
	j := &fakeJenkins{statusErrs: 2}
	o := agent.New(model, &fakeSearcher{}, agent.WithJenkins(j), agent.WithConfig(fastConfig()))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "run the build", JobName: "my-job"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(j.ensured) != 1 || j.ensured[0] != "my-job" {
		t.Errorf("EnsureJob names = %v, want [my-job]", j.ensured)
	}
	if j.statusCalls != 3 {
		t.Errorf("GetStatus called %d times, want 3 (two retries)", j.statusCalls)
	}
	results := make([]string, len(turn.Invocations))
	for i, inv := range turn.Invocations {
		if inv.IsError {
			t.Errorf("invocation %d (%s) failed: %s", i, inv.Tool, inv.Result)
		}
		results[i] = inv.Result
	}
	if !strings.Contains(results[1], "#7") {
		t.Errorf("trigger result = %q, want build #7", results[1])
	}
	if !strings.Contains(results[2], "success") {
		t.Errorf("status result = %q, want success", results[2])
	}
	if !strings.Contains(results[3], "Detected issues: Build Tool Error, Dependency Issue") {
		t.Errorf("console result = %q", results[3])
	}
}

func TestRun_StatusRetriesExhausted(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "get_status", "arguments": {"build": 1}}`, "unknown"}}
	j := &fakeJenkins{statusErrs: 100}
	cfg := fastConfig()
	cfg.StatusRetries = 2
	o := agent.New(model, &fakeSearcher{}, agent.WithJenkins(j), agent.WithConfig(cfg))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "status"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if j.statusCalls != 3 {
		t.Errorf("GetStatus called %d times, want 3", j.statusCalls)
	}
	if !strings.Contains(turn.Invocations[0].Result, "unknown") {
		t.Errorf("Result = %q, want unknown status", turn.Invocations[0].Result)
	}
}

func TestRun_LanguageModelError(t *testing.T) {
	o := agent.New(&scriptedModel{err: errors.New("503")}, &fakeSearcher{})
	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "x"})
	if !errors.Is(err, agent.ErrLanguageModel) {
		t.Fatalf("Run() error = %v, want ErrLanguageModel", err)
	}
	if turn.State != models.StateDone || turn.FinalAnswer != "cannot build" {
		t.Errorf("turn = %+v, want done with the model's answer", turn)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "rm_rf", "arguments": {}}`, "ok"}}
	o := agent.New(model, &fakeSearcher{})
	turn, _ := o.Run(context.Background(), models.AgentRunRequest{Instruction: "x"})
	if !strings.Contains(turn.Invocations[0].Result, "unknown_tool") {
		t.Errorf("Result = %q, want unknown_tool", turn.Invocations[0].Result)
	}
}

func TestRun_AnswerQuotingJSONIsFinal(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"fenced object inside prose", "The project config is:\n```json\n{\"name\": \"demo\", \"version\": \"1.0.0\"}\n```\nThat is all."},
		{"bare object without tool key", `{"name": "demo", "version": "1.0.0"}`},
		{"fenced object without tool key", "```json\n{\"name\": \"demo\"}\n```"},
		{"object followed by prose", `{"tool": "search"} is how I would call it.`},
		{"prose starting with a brace", "{braces} are used for blocks in Java."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{replies: []string{tt.reply}}
			o := agent.New(model, &fakeSearcher{}, agent.WithConfig(fastConfig()))

			turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "show the package.json"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if turn.State != models.StateDone {
				t.Errorf("State = %q, want done", turn.State)
			}
			if len(turn.Invocations) != 0 {
				t.Errorf("Invocations = %+v, want none", turn.Invocations)
			}
			if turn.FinalAnswer != strings.TrimSpace(tt.reply) {
				t.Errorf("FinalAnswer = %q, want %q", turn.FinalAnswer, tt.reply)
			}
			if model.calls != 1 {
				t.Errorf("model calls = %d, want 1", model.calls)
			}
		})
	}
}

func TestRun_ToolRequestForms(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"bare", `{"tool": "search", "arguments": {"query": "parse"}}`},
		{"fenced", "```json\n{\"tool\": \"search\", \"arguments\": {\"query\": \"parse\"}}\n```"},
		{"tool_calls with string arguments", `{"tool_calls": [{"name": "search", "arguments": "{\"query\": \"parse\"}"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{replies: []string{tt.reply, "found it"}}
			search := &fakeSearcher{}
			o := agent.New(model, search, agent.WithConfig(fastConfig()))

			turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "find parse"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(search.queries) != 1 || search.queries[0] != "parse" {
				t.Errorf("search queries = %v, want [parse]", search.queries)
			}
			if turn.FinalAnswer != "found it" {
				t.Errorf("FinalAnswer = %q, want %q", turn.FinalAnswer, "found it")
			}
		})
	}
}

func TestRun_EmptyToolNameIsMalformed(t *testing.T) {
	model := &scriptedModel{replies: []string{`{"tool": "", "arguments": {}}`, "done"}}
	o := agent.New(model, &fakeSearcher{}, agent.WithConfig(fastConfig()))

	turn, err := o.Run(context.Background(), models.AgentRunRequest{Instruction: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(turn.Invocations) != 1 || !strings.Contains(turn.Invocations[0].Result, "invalid_tool_call") {
		t.Errorf("Invocations = %+v, want one invalid_tool_call", turn.Invocations)
	}
}
