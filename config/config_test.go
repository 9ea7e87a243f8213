package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLoader(t *testing.T) (*Loader, string, string) {
	t.Helper()
	home := t.TempDir()
	project := t.TempDir()
	l := NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.home = home
	l.cwd = project
	return l, home, project
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Graph.Backend != BackendNeo4j {
		t.Errorf("expected neo4j backend, got %s", cfg.Graph.Backend)
	}
	if cfg.Graph.Neo4j.URL != "bolt://localhost:7687" {
		t.Errorf("expected bolt://localhost:7687, got %s", cfg.Graph.Neo4j.URL)
	}
	if cfg.Chunk.ChunkSize != 1024 || cfg.Chunk.ChunkOverlap != 20 {
		t.Errorf("expected chunking 1024/20, got %d/%d", cfg.Chunk.ChunkSize, cfg.Chunk.ChunkOverlap)
	}
	if !cfg.Query.IncludeText || cfg.Query.SimilarityTopK != 2 {
		t.Errorf("expected include_text and similarity_top_k 2, got %v/%d", cfg.Query.IncludeText, cfg.Query.SimilarityTopK)
	}
	if cfg.Questions.File != "sample_qs.txt" {
		t.Errorf("expected sample_qs.txt, got %s", cfg.Questions.File)
	}
	if cfg.Cache.Enabled() {
		t.Error("expected cache disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"memory backend", func(c *Config) { c.Graph.Backend = BackendMemory }, false},
		{"nats backend", func(c *Config) { c.Graph.Backend = BackendNATS }, false},
		{"unknown backend", func(c *Config) { c.Graph.Backend = "sqlite" }, true},
		{"bad neo4j scheme", func(c *Config) { c.Graph.Neo4j.URL = "http://localhost:7474" }, true},
		{"overlap not below size", func(c *Config) { c.Chunk.ChunkOverlap = c.Chunk.ChunkSize }, true},
		{"page range reversed", func(c *Config) { c.KB.FirstPage = 3; c.KB.LastPage = 1 }, true},
		{"missing model", func(c *Config) { c.Model = nil }, true},
		{"no retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"hash embedder needs no url", func(c *Config) { c.Embedding.Provider = EmbeddingHash; c.Embedding.URL = "" }, false},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "cohere" }, true},
		{"zero top k", func(c *Config) { c.Query.SimilarityTopK = 0 }, true},
		{"no question file", func(c *Config) { c.Questions.File = "" }, true},
		{"bad redis url", func(c *Config) { c.Cache.RedisURL = "http://nope" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("KBQA_TEST_SESSION", "abc123")

	content := `
kb:
  base_url: "https://support.example.com"
  session_id: "${KBQA_TEST_SESSION}"
  last_page: 4
graph:
  backend: nats
  neo4j:
    password: "${KBQA_TEST_UNSET:-s3cret}"
nats:
  embedded: true
query:
  similarity_top_k: 5
cache:
  redis_url: "redis://localhost:6379/0"
  ttl: 2h
model:
  endpoints:
    mistral-7b:
      provider: ollama
      url: http://gpu:11434/v1
      model: mistral:7b-instruct
`
	writeConfig(t, configPath, content)

	cfg, err := loadFile(configPath)
	if err != nil {
		t.Fatalf("loadFile() error = %v", err)
	}

	if cfg.KB.BaseURL != "https://support.example.com" {
		t.Errorf("expected base url override, got %s", cfg.KB.BaseURL)
	}
	if cfg.KB.SessionID != "abc123" {
		t.Errorf("expected session from env, got %q", cfg.KB.SessionID)
	}
	if cfg.KB.Category != "AppResponse" {
		t.Errorf("expected default category kept, got %s", cfg.KB.Category)
	}
	if cfg.KB.LastPage != 4 {
		t.Errorf("expected last_page 4, got %d", cfg.KB.LastPage)
	}
	if cfg.Graph.Backend != BackendNATS || !cfg.NATS.Embedded {
		t.Errorf("expected embedded nats backend, got %s/%v", cfg.Graph.Backend, cfg.NATS.Embedded)
	}
	if cfg.Graph.Neo4j.Password != "s3cret" {
		t.Errorf("expected env default password, got %q", cfg.Graph.Neo4j.Password)
	}
	if cfg.Graph.Neo4j.Username != "neo4j" {
		t.Errorf("expected default username kept, got %s", cfg.Graph.Neo4j.Username)
	}
	if cfg.Query.SimilarityTopK != 5 || !cfg.Query.IncludeText {
		t.Errorf("expected top k 5 with include_text kept, got %d/%v", cfg.Query.SimilarityTopK, cfg.Query.IncludeText)
	}
	if cfg.Cache.TTL != 2*time.Hour {
		t.Errorf("expected ttl 2h, got %v", cfg.Cache.TTL)
	}
	if ep := cfg.Model.Endpoints["mistral-7b"]; ep == nil || ep.Provider != "ollama" {
		t.Errorf("expected mistral-7b endpoint override, got %+v", ep)
	}
	if _, ok := cfg.Model.Endpoints["ollama-mistral"]; !ok {
		t.Error("expected default fallback endpoint kept")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := loadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, bad, "kb: [unclosed")
	if _, err := loadFile(bad); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoaderLayers(t *testing.T) {
	l, home, project := testLoader(t)

	writeConfig(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
kb:
  category: NetProfiler
  last_page: 2
graph:
  backend: memory
`)
	nested := filepath.Join(project, "a", "b")
	writeConfig(t, filepath.Join(project, ProjectConfigFile), `
kb:
  last_page: 7
`)
	l.cwd = nested
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	explicit := filepath.Join(t.TempDir(), "run.yaml")
	writeConfig(t, explicit, `
query:
  include_text: false
`)

	cfg, err := l.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KB.Category != "NetProfiler" {
		t.Errorf("expected user category, got %s", cfg.KB.Category)
	}
	if cfg.KB.LastPage != 7 {
		t.Errorf("expected project last_page to win, got %d", cfg.KB.LastPage)
	}
	if cfg.Graph.Backend != BackendMemory {
		t.Errorf("expected user backend, got %s", cfg.Graph.Backend)
	}
	if cfg.Query.IncludeText {
		t.Error("expected explicit include_text false")
	}
}

func TestLoader_BrokenLayers(t *testing.T) {
	l, home, project := testLoader(t)
	writeConfig(t, filepath.Join(home, UserConfigDir, UserConfigFile), "kb: [")
	writeConfig(t, filepath.Join(project, ProjectConfigFile), "graph: [")

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("broken user and project files should be skipped: %v", err)
	}
	if cfg.Graph.Backend != BackendNeo4j {
		t.Errorf("expected default backend, got %s", cfg.Graph.Backend)
	}

	if _, err := l.Load(filepath.Join(project, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoader_InvalidResult(t *testing.T) {
	l, _, project := testLoader(t)
	writeConfig(t, filepath.Join(project, ProjectConfigFile), "graph:\n  backend: sqlite\n")

	if _, err := l.Load(""); err == nil {
		t.Error("expected validation error")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	l, home, _ := testLoader(t)

	path, err := l.EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	if path != filepath.Join(home, UserConfigDir, UserConfigFile) {
		t.Errorf("unexpected path %s", path)
	}

	loaded, err := loadFile(path)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("saved defaults should validate: %v", err)
	}
	if loaded.Query.SimilarityTopK != 2 {
		t.Errorf("expected similarity_top_k 2, got %d", loaded.Query.SimilarityTopK)
	}

	// A second call keeps the existing file.
	writeConfig(t, path, "kb:\n  category: Custom\n")
	if _, err := l.EnsureUserConfig(); err != nil {
		t.Fatal(err)
	}
	kept, err := loadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if kept.KB.Category != "Custom" {
		t.Errorf("expected existing file kept, got %s", kept.KB.Category)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("KBQA_SET", "value")
	t.Setenv("KBQA_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${KBQA_SET}", "value"},
		{"${KBQA_SET:-other}", "value"},
		{"${KBQA_EMPTY:-fallback}", "fallback"},
		{"${KBQA_UNSET_VAR}", ""},
		{"${KBQA_UNSET_VAR:-}", ""},
		{"pre-${KBQA_SET}-post", "pre-value-post"},
		{"$KBQA_SET stays", "$KBQA_SET stays"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
