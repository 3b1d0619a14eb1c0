package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/agentoven/ragjenkins/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JENKINS_USERNAME", "")
	t.Setenv("JENKINS_API_TOKEN", "")

	cfg := config.Load()

	if cfg.Chunker.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want 1000", cfg.Chunker.ChunkSize)
	}
	if cfg.Jenkins.MaxConsole != 2000 {
		t.Errorf("MaxConsole = %d, want 2000", cfg.Jenkins.MaxConsole)
	}
	if cfg.Jenkins.DefaultJob != "rag-agent-job" {
		t.Errorf("DefaultJob = %q, want %q", cfg.Jenkins.DefaultJob, "rag-agent-job")
	}
	if cfg.Jenkins.Enabled() {
		t.Error("Jenkins should be disabled without credentials")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("JENKINS_URL", "http://jenkins:8080/")
	t.Setenv("JENKINS_USERNAME", "admin")
	t.Setenv("JENKINS_API_TOKEN", "token")
	t.Setenv("AGENT_STATUS_RETRY_DELAY", "150ms")
	t.Setenv("RAGJENKINS_API_KEYS", "a, b,,c")

	cfg := config.Load()

	if cfg.Jenkins.URL != "http://jenkins:8080" {
		t.Errorf("Jenkins.URL = %q, want trailing slash trimmed", cfg.Jenkins.URL)
	}
	if !cfg.Jenkins.Enabled() {
		t.Error("Jenkins should be enabled with URL, username and token")
	}
	if cfg.Agent.StatusRetryDelay != 150*time.Millisecond {
		t.Errorf("StatusRetryDelay = %v, want 150ms", cfg.Agent.StatusRetryDelay)
	}
	if len(cfg.Auth.APIKeys) != 3 {
		t.Errorf("APIKeys = %v, want 3 keys", cfg.Auth.APIKeys)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("VECTOR_STORE", "pgvector")
	t.Setenv("PGVECTOR_URL", "")

	err := config.Load().Validate()
	if err == nil {
		t.Fatal("Validate() should fail without OPENAI_API_KEY")
	}
	for _, want := range []string{"OPENAI_API_KEY", "PGVECTOR_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %s", err, want)
		}
	}
}

func TestValidate_LocalOllama(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	t.Setenv("VECTOR_STORE", "memory")

	if err := config.Load().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for a local Ollama setup", err)
	}
}

func TestValidate_MaxConsole(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VECTOR_STORE", "memory")

	t.Setenv("JENKINS_MAX_CONSOLE", "0")
	if err := config.Load().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for JENKINS_MAX_CONSOLE=0", err)
	}

	t.Setenv("JENKINS_MAX_CONSOLE", "-1")
	err := config.Load().Validate()
	if err == nil || !strings.Contains(err.Error(), "JENKINS_MAX_CONSOLE") {
		t.Errorf("Validate() error = %v, want JENKINS_MAX_CONSOLE complaint", err)
	}
}
