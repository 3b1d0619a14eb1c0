// Package agent implements the orchestrator loop that answers an
// instruction with code search and Jenkins tools:
//
//	system prompt + instruction → model → tool request? → run tool →
//	feed result back → repeat until a plain-text answer or the budget
//	is spent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentoven/ragjenkins/internal/jenkins"
	"github.com/agentoven/ragjenkins/pkg/contracts"
	"github.com/agentoven/ragjenkins/pkg/models"
)

var (
	// ErrBudgetExceeded is returned when the run uses up its tool budget
	// without a final answer.
	ErrBudgetExceeded = errors.New("agent iteration budget exceeded")
	// ErrLanguageModel is returned when the model router fails.
	ErrLanguageModel = errors.New("language model error")
)

// Config bounds one run.
type Config struct {
	MaxIterations    int
	StatusRetries    int
	StatusRetryDelay time.Duration
	SearchTopK       int
	DefaultJob       string
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    12,
		StatusRetries:    3,
		StatusRetryDelay: 2 * time.Second,
		SearchTopK:       5,
		DefaultJob:       "rag-agent-job",
	}
}

// Observer is told about state transitions and finished runs.
type Observer interface {
	StateChanged(ctx context.Context, runID string, state models.AgentState, detail string)
	ToolCalled(ctx context.Context, runID string, inv models.ToolInvocation)
	RunFinished(ctx context.Context, turn *models.AgentTurn)
}

// Orchestrator runs instructions. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	model     contracts.ChatModel
	search    contracts.CodeSearcher
	jenkins   contracts.JenkinsService // nil when Jenkins is not configured
	config    Config
	observers []Observer
	tracer    trace.Tracer
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithJenkins enables the Jenkins tools.
func WithJenkins(j contracts.JenkinsService) Option {
	return func(o *Orchestrator) { o.jenkins = j }
}

// WithObserver adds an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithConfig replaces the default limits.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// New creates an orchestrator.
func New(model contracts.ChatModel, search contracts.CodeSearcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:  model,
		search: search,
		config: DefaultConfig(),
		tracer: otel.Tracer("ragjenkins/agent"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.config.MaxIterations <= 0 {
		o.config.MaxIterations = DefaultConfig().MaxIterations
	}
	if o.config.SearchTopK <= 0 {
		o.config.SearchTopK = DefaultConfig().SearchTopK
	}
	return o
}

// JenkinsEnabled reports whether the Jenkins tools are available.
func (o *Orchestrator) JenkinsEnabled() bool { return o.jenkins != nil }

// run is the state of one Run call.
type run struct {
	turn    *models.AgentTurn
	jobName string
}

// Run answers one instruction. The returned turn is never nil; on
// ErrBudgetExceeded or ErrLanguageModel it records the partial run.
func (o *Orchestrator) Run(ctx context.Context, req models.AgentRunRequest) (*models.AgentTurn, error) {
	start := time.Now()
	r := &run{
		turn: &models.AgentTurn{
			ID:          uuid.NewString(),
			Instruction: req.Instruction,
			Invocations: []models.ToolInvocation{},
		},
		jobName: strings.TrimSpace(req.JobName),
	}
	if r.jobName == "" {
		r.jobName = o.config.DefaultJob
	}
	r.turn.JobName = r.jobName

	ctx, span := o.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.run_id", r.turn.ID),
		attribute.String("agent.job", r.jobName),
	))
	defer span.End()

	err := o.loop(ctx, r)

	r.turn.TotalMs = time.Since(start).Milliseconds()
	if err != nil {
		r.turn.State = models.StateFailed
		r.turn.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.stateChanged(ctx, r, models.StateFailed, err.Error())
	} else {
		r.turn.State = models.StateDone
		o.stateChanged(ctx, r, models.StateDone, "")
	}
	for _, obs := range o.observers {
		obs.RunFinished(ctx, r.turn)
	}

	log.Info().
		Str("run", r.turn.ID).
		Str("state", string(r.turn.State)).
		Int("iterations", r.turn.Iterations).
		Int("tool_calls", len(r.turn.Invocations)).
		Int64("total_ms", r.turn.TotalMs).
		Msg("Agent run complete")
	return r.turn, err
}

func (o *Orchestrator) loop(ctx context.Context, r *run) error {
	messages := []models.ChatMessage{
		{Role: "system", Content: o.systemPrompt(r.jobName)},
		{Role: "user", Content: r.turn.Instruction},
	}

	for {
		o.stateChanged(ctx, r, models.StateThinking, "")
		resp, err := o.model.Chat(ctx, &models.RouteRequest{Messages: messages})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrLanguageModel, err)
		}
		r.turn.Usage.InputTokens += resp.Usage.InputTokens
		r.turn.Usage.OutputTokens += resp.Usage.OutputTokens
		r.turn.Usage.TotalTokens += resp.Usage.TotalTokens

		call, parseErr := parseReply(resp.Content)
		if call == nil && parseErr == nil {
			r.turn.FinalAnswer = strings.TrimSpace(resp.Content)
			return nil
		}

		if r.turn.Iterations >= o.config.MaxIterations {
			return fmt.Errorf("%w: %d tool calls without a final answer", ErrBudgetExceeded, r.turn.Iterations)
		}
		r.turn.Iterations++

		var inv models.ToolInvocation
		if parseErr != nil {
			inv = models.ToolInvocation{
				Result:  toolError{Code: errInvalidToolCall, Detail: parseErr.Error()}.String(),
				IsError: true,
			}
		} else {
			o.stateChanged(ctx, r, models.StateToolSelected, string(call.Tool))
			inv = o.execute(ctx, r, call)
		}
		r.turn.Invocations = append(r.turn.Invocations, inv)
		for _, obs := range o.observers {
			obs.ToolCalled(ctx, r.turn.ID, inv)
		}
		o.stateChanged(ctx, r, models.StateToolExecuted, inv.Tool)

		messages = append(messages,
			models.ChatMessage{Role: "assistant", Content: resp.Content},
			models.ChatMessage{Role: "user", Content: fmt.Sprintf("[Tool result: %s]\n%s", toolLabel(inv.Tool), inv.Result)},
		)
	}
}

// execute validates and runs one tool call. Failures become structured
// error results, never Go errors.
func (o *Orchestrator) execute(ctx context.Context, r *run, call *toolCall) models.ToolInvocation {
	start := time.Now()
	inv := models.ToolInvocation{Tool: string(call.Tool)}
	if len(call.Arguments) > 0 {
		var args map[string]any
		if json.Unmarshal(call.Arguments, &args) == nil {
			inv.Arguments = args
		}
	}

	ctx, span := o.tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("agent.tool", string(call.Tool))))
	defer span.End()

	result, err := o.dispatch(ctx, r, call)
	if err != nil {
		inv.IsError = true
		var te toolError
		if errors.As(err, &te) {
			inv.Result = te.String()
		} else {
			inv.Result = toolError{Code: errToolFailed, Detail: err.Error()}.String()
		}
		span.SetStatus(codes.Error, inv.Result)
	} else {
		inv.Result = result
	}
	inv.LatencyMs = time.Since(start).Milliseconds()

	log.Debug().
		Str("run", r.turn.ID).
		Str("tool", inv.Tool).
		Bool("error", inv.IsError).
		Int64("latency_ms", inv.LatencyMs).
		Msg("Tool executed")
	return inv
}

func (o *Orchestrator) dispatch(ctx context.Context, r *run, call *toolCall) (string, error) {
	if !call.Tool.valid() {
		return "", toolError{Code: errUnknownTool, Detail: fmt.Sprintf("%q is not one of %s", call.Tool, toolNames(o.tools()))}
	}
	if call.Tool.Jenkins() && o.jenkins == nil {
		return "", toolError{Code: errToolUnavailable, Detail: "Jenkins is not configured"}
	}
	invalid := func(err error) error {
		return toolError{Code: errInvalidToolCall, Detail: err.Error()}
	}

	switch call.Tool {
	case ToolSearch:
		var args searchArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", invalid(err)
		}
		if err := args.validate(); err != nil {
			return "", invalid(err)
		}
		return o.runSearch(ctx, args)

	case ToolEnsureJob:
		var args ensureJobArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", invalid(err)
		}
		job, err := o.jenkins.EnsureJob(ctx, r.job(args.Job), args.Template)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Job '%s' is ready. Next build number: %d. URL: %s", job.Name, job.NextBuildNumber, job.URL), nil

	case ToolTriggerBuild:
		var args triggerBuildArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", invalid(err)
		}
		n, err := o.jenkins.TriggerBuild(ctx, &models.JenkinsJob{Name: r.job(args.Job)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Triggered build #%d of job '%s'.", n, r.job(args.Job)), nil

	case ToolGetStatus:
		var args buildArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", invalid(err)
		}
		if err := args.validate(); err != nil {
			return "", invalid(err)
		}
		return o.runGetStatus(ctx, r.job(args.Job), args.Build)

	case ToolFetchConsole:
		var args buildArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return "", invalid(err)
		}
		if err := args.validate(); err != nil {
			return "", invalid(err)
		}
		job := &models.JenkinsJob{Name: r.job(args.Job)}
		text, err := o.jenkins.FetchConsole(ctx, job, args.Build)
		if err != nil {
			return "", err
		}
		issues := jenkins.AnalyzeConsole(text)
		summary := "No common errors detected."
		if len(issues) > 0 {
			summary = "Detected issues: " + strings.Join(issues, ", ")
		}
		return fmt.Sprintf("Console output of '%s' build #%d:\n%s\n\n%s", job.Name, args.Build, text, summary), nil
	}
	return "", toolError{Code: errUnknownTool, Detail: string(call.Tool)}
}

func (o *Orchestrator) runSearch(ctx context.Context, args searchArgs) (string, error) {
	k := args.TopK
	if k == 0 {
		k = o.config.SearchTopK
	}
	hits, err := o.search.Search(ctx, args.Query, k)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No matching code found. The index may be empty.", nil
	}
	var sb strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] %s (chunk %d, %s, score %.3f)\n```\n%s\n```\n", i+1,
			h.Chunk.SourcePath, h.Chunk.SequenceIndex, h.Chunk.Language, h.Score, strings.TrimRight(h.Chunk.Content, "\n"))
	}
	return sb.String(), nil
}

// runGetStatus polls once, retrying failed reads with a constant delay.
// When every attempt fails the status is reported as unknown.
func (o *Orchestrator) runGetStatus(ctx context.Context, jobName string, build int) (string, error) {
	job := &models.JenkinsJob{Name: jobName}
	var status models.BuildStatus

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.config.StatusRetryDelay), uint64(max(o.config.StatusRetries, 0))),
		ctx,
	)
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		s, err := o.jenkins.GetStatus(ctx, job, build)
		if err != nil {
			if errors.Is(err, jenkins.ErrJobNotFound) || errors.Is(err, jenkins.ErrAuth) {
				return backoff.Permanent(err)
			}
			return err
		}
		status = s
		return nil
	}, policy)

	if err != nil {
		if errors.Is(err, jenkins.ErrJobNotFound) || errors.Is(err, jenkins.ErrAuth) || ctx.Err() != nil {
			return "", err
		}
		log.Warn().Err(err).Str("job", jobName).Int("build", build).Int("attempts", attempts).Msg("Build status unavailable")
		return fmt.Sprintf("Build #%d of job '%s': %s (status could not be read after %d attempts: %v)",
			build, jobName, models.BuildUnknown, attempts, err), nil
	}
	return fmt.Sprintf("Build #%d of job '%s': %s", build, jobName, status), nil
}

// ── Helpers ─────────────────────────────────────────────────

func (r *run) job(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return r.jobName
}

func (o *Orchestrator) stateChanged(ctx context.Context, r *run, state models.AgentState, detail string) {
	r.turn.State = state
	for _, obs := range o.observers {
		obs.StateChanged(ctx, r.turn.ID, state, detail)
	}
}

func (o *Orchestrator) tools() []ToolKind {
	if o.jenkins != nil {
		return Tools
	}
	return []ToolKind{ToolSearch}
}

func toolNames(kinds []ToolKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func toolLabel(tool string) string {
	if tool == "" {
		return "invalid"
	}
	return tool
}
