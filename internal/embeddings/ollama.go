package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaModel is the local embedding model used when none is configured.
const DefaultOllamaModel = "all-minilm"

// OllamaDriver implements EmbeddingDriver for Ollama's /api/embed endpoint.
type OllamaDriver struct {
	endpoint   string // e.g. http://localhost:11434
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
}

// OllamaOption configures the Ollama driver.
type OllamaOption func(*OllamaDriver)

// WithOllamaBatchSize sets the max texts per Embed call.
func WithOllamaBatchSize(size int) OllamaOption {
	return func(d *OllamaDriver) { d.batchSize = size }
}

// NewOllamaDriver creates an Ollama embedding driver.
func NewOllamaDriver(endpoint, model string, opts ...OllamaOption) *OllamaDriver {
	if model == "" {
		model = DefaultOllamaModel
	}
	dims := 384
	switch model {
	case "nomic-embed-text":
		dims = 768
	case "mxbai-embed-large":
		dims = 1024
	}
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	d := &OllamaDriver{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		dimensions: dims,
		batchSize:  128,
		client:     &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OllamaDriver) Kind() string      { return "ollama" }
func (d *OllamaDriver) Dimensions() int   { return d.dimensions }
func (d *OllamaDriver) MaxBatchSize() int { return d.batchSize }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed generates one vector per text in a single /api/embed call.
func (d *OllamaDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	var result ollamaEmbedResponse
	if err := postJSON(ctx, d.client, d.endpoint+"/api/embed", nil, ollamaEmbedRequest{Model: d.model, Input: texts}, &result); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// HealthCheck verifies Ollama is reachable.
func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned %d", resp.StatusCode)
	}
	return nil
}
