package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIModel is used when EMBEDDING_MODEL is unset.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIDriver implements EmbeddingDriver for the OpenAI embeddings API and
// compatible servers reachable through OPENAI_BASE_URL.
type OpenAIDriver struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	batchSize  int
	client     *http.Client
}

// OpenAIOption configures the OpenAI driver.
type OpenAIOption func(*OpenAIDriver)

// WithOpenAIBaseURL points the driver at a proxy or compatible server.
// The URL is the API root, e.g. https://api.openai.com/v1.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(d *OpenAIDriver) { d.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithOpenAIBatchSize sets the max texts per Embed call.
func WithOpenAIBatchSize(size int) OpenAIOption {
	return func(d *OpenAIDriver) { d.batchSize = size }
}

// NewOpenAIDriver creates an OpenAI embedding driver. An empty model selects
// DefaultOpenAIModel.
func NewOpenAIDriver(apiKey, model string, opts ...OpenAIOption) *OpenAIDriver {
	if model == "" {
		model = DefaultOpenAIModel
	}
	dims := 1536
	if model == "text-embedding-3-large" {
		dims = 3072
	}

	d := &OpenAIDriver{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.openai.com/v1",
		dimensions: dims,
		batchSize:  256,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *OpenAIDriver) Kind() string      { return "openai" }
func (d *OpenAIDriver) Dimensions() int   { return d.dimensions }
func (d *OpenAIDriver) MaxBatchSize() int { return d.batchSize }

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns one vector per text, reordered by the response index.
func (d *OpenAIDriver) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > d.batchSize {
		return nil, fmt.Errorf("batch size %d exceeds max %d", len(texts), d.batchSize)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.apiKey)

	var result openAIEmbedResponse
	if err := postJSON(ctx, d.client, d.baseURL+"/embeddings", header, openAIEmbedRequest{Input: texts, Model: d.model}, &result); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("openai embeddings: %s (%s)", result.Error.Message, result.Error.Type)
	}

	vectors := make([][]float64, len(texts))
	for _, item := range result.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai embeddings: no vector for input %d", i)
		}
	}
	return vectors, nil
}

// HealthCheck verifies the API key by embedding a test string.
func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	_, err := d.Embed(ctx, []string{"health check"})
	return err
}
