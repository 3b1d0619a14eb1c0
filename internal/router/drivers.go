package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentoven/ragjenkins/pkg/models"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// ── OpenAI-compatible ───────────────────────────────────────

type openAIRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message      models.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type openAIDriver struct {
	client *http.Client
}

func (d *openAIDriver) Kind() string { return "openai" }

func (d *openAIDriver) Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	if provider.APIKey == "" {
		return nil, fmt.Errorf("openai: api key not configured for provider %s", provider.Name)
	}
	endpoint := provider.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	model := modelFor(provider, req)

	body := openAIRequest{Model: model, Messages: req.Messages, Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+provider.APIKey)

	var out openAIResponse
	if err := postJSON(ctx, d.client, strings.TrimRight(endpoint, "/")+"/chat/completions", header, body, &out); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}
	return &models.RouteResponse{
		Provider:     provider.Name,
		Model:        model,
		Content:      out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
		Usage: models.TokenUsage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
			TotalTokens:  out.Usage.TotalTokens,
		},
	}, nil
}

func (d *openAIDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	one := 1
	_, err := d.Call(ctx, provider, &models.RouteRequest{
		Messages:  []models.ChatMessage{{Role: "user", Content: "Say OK"}},
		MaxTokens: &one,
	})
	return err
}

// ── Ollama ──────────────────────────────────────────────────

type ollamaRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  map[string]any       `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         models.ChatMessage `json:"message"`
	DoneReason      string             `json:"done_reason"`
	PromptEvalCount int64              `json:"prompt_eval_count"`
	EvalCount       int64              `json:"eval_count"`
}

type ollamaDriver struct {
	client *http.Client
}

func (d *ollamaDriver) Kind() string { return "ollama" }

func (d *ollamaDriver) Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	endpoint := provider.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := modelFor(provider, req)

	body := ollamaRequest{Model: model, Messages: req.Messages}
	if req.Temperature != nil {
		body.Options = map[string]any{"temperature": *req.Temperature}
	}

	var out ollamaResponse
	if err := postJSON(ctx, d.client, strings.TrimRight(endpoint, "/")+"/api/chat", nil, body, &out); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &models.RouteResponse{
		Provider:     provider.Name,
		Model:        model,
		Content:      out.Message.Content,
		FinishReason: out.DoneReason,
		Usage: models.TokenUsage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
			TotalTokens:  out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

func (d *ollamaDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	endpoint := provider.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}

// ── Helpers ─────────────────────────────────────────────────

func modelFor(provider *models.ModelProvider, req *models.RouteRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return provider.Model
}

func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
