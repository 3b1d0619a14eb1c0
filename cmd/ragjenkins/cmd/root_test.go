package cmd

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

// setupEnv points the CLI at a fake OpenAI server and a bolt file in a temp
// dir, so state survives between commands like it does for a user.
func setupEnv(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"index":     i,
				"embedding": []float64{float64(strings.Count(text, "parse")) + 0.1, 0.1},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", api.URL)
	t.Setenv("VECTOR_STORE", "bolt")
	t.Setenv("VECTOR_STORE_PATH", filepath.Join(dir, "index.db"))
	t.Setenv("JENKINS_USERNAME", "")
	t.Setenv("JENKINS_API_TOKEN", "")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SCRATCH_DIR", t.TempDir())
	resetViper()
	t.Cleanup(resetViper)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, _ := zw.Create(name)
		w.Write([]byte(content))
	}
	zw.Close()
	p := filepath.Join(dir, "project.zip")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestSearch_EmptyCollection(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "search", "parse", "config")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "No results") {
		t.Errorf("output = %q, want 'No results'", out)
	}
}

func TestIndexThenSearch(t *testing.T) {
	dir := setupEnv(t)
	archive := writeZip(t, dir, map[string]string{
		"app/config.py": "def parse_config(path):\n    return open(path).read()\n",
		"README.md":     "# Project\n",
	})

	out, err := run(t, "index", archive, "--language", "python")
	if err != nil {
		t.Fatalf("index error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Indexed 1 files") {
		t.Errorf("index output = %q, want 'Indexed 1 files'", out)
	}

	out, err = run(t, "search", "parse", "-k", "1")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	if !strings.Contains(out, "app/config.py") {
		t.Errorf("search output = %q, want app/config.py", out)
	}
	if strings.Contains(out, "README.md") {
		t.Errorf("search output = %q, README.md should be filtered out", out)
	}

	out, err = run(t, "clear")
	if err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if !strings.Contains(out, `"default" cleared`) {
		t.Errorf("clear output = %q", out)
	}

	out, _ = run(t, "search", "parse")
	if !strings.Contains(out, "No results") {
		t.Errorf("search after clear = %q, want 'No results'", out)
	}
}

func TestIndex_UnknownLanguage(t *testing.T) {
	dir := setupEnv(t)
	archive := writeZip(t, dir, map[string]string{"a.py": "x = 1\n"})

	if _, err := run(t, "index", archive, "--language", "cobol"); err == nil {
		t.Error("index with unknown language should fail")
	}
	// Flags persist on the global command between runs.
	indexCmd.Flags().Set("language", "all")
}

func TestLoadConfig_ViperOverlay(t *testing.T) {
	setupEnv(t)
	viper.Set("vector_store", "memory")
	viper.Set("llm_model", "gpt-test")
	viper.Set("port", 9000)

	cfg := loadConfig()
	if cfg.Vector.Store != "memory" {
		t.Errorf("Vector.Store = %q, want %q", cfg.Vector.Store, "memory")
	}
	if cfg.OpenAI.ChatModel != "gpt-test" {
		t.Errorf("OpenAI.ChatModel = %q, want %q", cfg.OpenAI.ChatModel, "gpt-test")
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("OpenAI.APIKey = %q, want env value", cfg.OpenAI.APIKey)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"index", "search", "ask", "clear", "serve"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
