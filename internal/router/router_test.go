package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/internal/router"
	"github.com/agentoven/ragjenkins/pkg/models"
)

// mockDriver is a test ProviderDriver.
type mockDriver struct {
	kind string
	err  error
}

func (d *mockDriver) Kind() string { return d.kind }
func (d *mockDriver) Call(ctx context.Context, provider *models.ModelProvider, req *models.RouteRequest) (*models.RouteResponse, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &models.RouteResponse{
		Provider: provider.Name,
		Model:    provider.Model,
		Content:  "mock response from " + d.kind,
	}, nil
}
func (d *mockDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	return d.err
}

func TestBuiltinDriversRegistered(t *testing.T) {
	mr := router.NewModelRouter()

	for _, kind := range []string{"openai", "ollama"} {
		d := mr.GetDriver(kind)
		if d == nil {
			t.Fatalf("GetDriver(%q) = nil, want built-in driver", kind)
		}
		if d.Kind() != kind {
			t.Errorf("GetDriver(%q).Kind() = %q", kind, d.Kind())
		}
	}
}

func TestRegisterDriver_Overrides(t *testing.T) {
	mr := router.NewModelRouter()
	mr.RegisterDriver(&mockDriver{kind: "openai"})

	got := mr.GetDriver("openai")
	if got == nil {
		t.Fatal("GetDriver() returned nil after override")
	}
	resp, err := got.Call(context.Background(), &models.ModelProvider{Name: "test"}, &models.RouteRequest{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Content != "mock response from openai" {
		t.Errorf("Call().Content = %q, want %q", resp.Content, "mock response from openai")
	}
}

func TestGetDriver_NotFound(t *testing.T) {
	if got := router.NewModelRouter().GetDriver("nonexistent"); got != nil {
		t.Errorf("GetDriver() for nonexistent should return nil, got %v", got)
	}
}

func TestChat_NoProviders(t *testing.T) {
	_, err := router.NewModelRouter().Chat(context.Background(), &models.RouteRequest{})
	if !errors.Is(err, router.ErrNoProviders) {
		t.Errorf("Chat() error = %v, want ErrNoProviders", err)
	}
}

func TestChat_FallsBack(t *testing.T) {
	mr := router.NewModelRouter()
	mr.RegisterDriver(&mockDriver{kind: "broken", err: errors.New("503")})
	mr.RegisterDriver(&mockDriver{kind: "working"})
	mr.AddProvider(models.ModelProvider{Name: "primary", Kind: "broken"})
	mr.AddProvider(models.ModelProvider{Name: "secondary", Kind: "working"})

	resp, err := mr.Chat(context.Background(), &models.RouteRequest{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("Provider = %q, want secondary", resp.Provider)
	}
}

func TestChat_AllFail(t *testing.T) {
	mr := router.NewModelRouter()
	mr.RegisterDriver(&mockDriver{kind: "broken", err: errors.New("503")})
	mr.AddProvider(models.ModelProvider{Name: "a", Kind: "broken"})
	mr.AddProvider(models.ModelProvider{Name: "b", Kind: "missing-driver"})

	if _, err := mr.Chat(context.Background(), &models.RouteRequest{}); err == nil {
		t.Error("Chat() should fail when every provider fails")
	}
}

func TestOpenAIDriver_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Model       string   `json:"model"`
			Temperature *float64 `json:"temperature"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", req.Model)
		}
		if req.Temperature == nil || *req.Temperature != 0.1 {
			t.Errorf("temperature = %v, want 0.1", req.Temperature)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.OpenAI = config.OpenAIConfig{APIKey: "sk", BaseURL: srv.URL + "/v1", ChatModel: "gpt-4o-mini", Temperature: 0.1}
	mr := router.FromConfig(cfg)

	resp, err := mr.Chat(context.Background(), &models.RouteRequest{Messages: []models.ChatMessage{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "hello" || resp.Usage.TotalTokens != 4 {
		t.Errorf("Chat() = %+v", resp)
	}
}

func TestOllamaDriver_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"local"},"done_reason":"stop","prompt_eval_count":2,"eval_count":1}`))
	}))
	defer srv.Close()

	cfg := &config.Config{}
	cfg.Ollama = config.OllamaConfig{URL: srv.URL, ChatModel: "llama3.1"}
	mr := router.FromConfig(cfg)

	resp, err := mr.Chat(context.Background(), &models.RouteRequest{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Provider != "ollama" || resp.Content != "local" || resp.Usage.TotalTokens != 3 {
		t.Errorf("Chat() = %+v", resp)
	}
}
