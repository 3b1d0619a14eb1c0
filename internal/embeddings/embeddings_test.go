package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/internal/embeddings"
)

func TestOpenAIDriver_EmbedReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q, want /v1/embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sk-test")
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != embeddings.DefaultOpenAIModel {
			t.Errorf("model = %q, want %q", req.Model, embeddings.DefaultOpenAIModel)
		}
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	d := embeddings.NewOpenAIDriver("sk-test", "", embeddings.WithOpenAIBaseURL(srv.URL+"/v1/"))
	vectors, err := d.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("Embed() = %v, want [[1 0] [0 1]]", vectors)
	}
}

func TestOpenAIDriver_EmbedErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`},
		{"api error", http.StatusOK, `{"error":{"message":"quota","type":"insufficient_quota"}}`},
		{"missing vector", http.StatusOK, `{"data":[{"index":0,"embedding":[1]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			d := embeddings.NewOpenAIDriver("k", "", embeddings.WithOpenAIBaseURL(srv.URL))
			if _, err := d.Embed(context.Background(), []string{"a", "b"}); err == nil {
				t.Error("Embed() should fail")
			}
		})
	}
}

func TestOpenAIDriver_BatchLimit(t *testing.T) {
	d := embeddings.NewOpenAIDriver("k", "", embeddings.WithOpenAIBatchSize(1))
	if _, err := d.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("Embed() over MaxBatchSize should fail")
	}
}

func TestOllamaDriver_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			w.Write([]byte(`{"embeddings":[[0.5,0.5]]}`))
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := embeddings.NewOllamaDriver(srv.URL, "")
	if d.Dimensions() != 384 {
		t.Errorf("Dimensions() = %d, want 384", d.Dimensions())
	}
	vectors, err := d.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != 2 {
		t.Errorf("Embed() = %v, want one 2-d vector", vectors)
	}
	if err := d.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embedding.Provider = "ollama"
	d, err := embeddings.Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if d.Kind() != "ollama" {
		t.Errorf("Kind() = %q, want ollama", d.Kind())
	}

	cfg.Embedding.Provider = "bedrock"
	if _, err := embeddings.Open(cfg); err == nil {
		t.Error("Open(bedrock) should fail")
	}
}
