package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/agentoven/ragjenkins/pkg/models"
)

// MeterName is the instrumentation scope of the service's own instruments.
const MeterName = "github.com/agentoven/ragjenkins"

// InitMetrics installs a MeterProvider backed by a Prometheus exporter on a
// dedicated registry. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), provider.Shutdown, nil
}

// Metrics holds the service counters. It is notified by the ingester and
// the agent orchestrator.
type Metrics struct {
	chunks    metric.Int64Counter
	runs      metric.Int64Counter
	toolCalls metric.Int64Counter
}

// NewMetrics creates the counters on meter. The Prometheus exporter appends
// the _total suffix.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	chunks, err := meter.Int64Counter("ragjenkins_chunks_indexed",
		metric.WithDescription("Code chunks stored in the vector index."))
	if err != nil {
		return nil, fmt.Errorf("chunks counter: %w", err)
	}
	runs, err := meter.Int64Counter("ragjenkins_agent_runs",
		metric.WithDescription("Agent runs by outcome."))
	if err != nil {
		return nil, fmt.Errorf("runs counter: %w", err)
	}
	toolCalls, err := meter.Int64Counter("ragjenkins_tool_calls",
		metric.WithDescription("Agent tool invocations by tool."))
	if err != nil {
		return nil, fmt.Errorf("tool calls counter: %w", err)
	}
	return &Metrics{chunks: chunks, runs: runs, toolCalls: toolCalls}, nil
}

// ChunksIndexed implements rag.ChunkCounter.
func (m *Metrics) ChunksIndexed(ctx context.Context, n int) {
	m.chunks.Add(ctx, int64(n))
}

// StateChanged implements agent.Observer.
func (m *Metrics) StateChanged(context.Context, string, models.AgentState, string) {}

// ToolCalled implements agent.Observer.
func (m *Metrics) ToolCalled(ctx context.Context, _ string, inv models.ToolInvocation) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", inv.Tool),
		attribute.Bool("error", inv.IsError),
	))
}

// RunFinished implements agent.Observer.
func (m *Metrics) RunFinished(ctx context.Context, turn *models.AgentTurn) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(turn.State))))
}
