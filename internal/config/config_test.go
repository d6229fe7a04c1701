package config

import (
	"os"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Paths.DataDir != "data" {
		t.Errorf("expected DataDir='data', got %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.IndexDir != "data/index" {
		t.Errorf("expected IndexDir='data/index', got %q", cfg.Paths.IndexDir)
	}
	if cfg.Splitter.XThreshold != 2280 || cfg.Splitter.XDeviation != 240 {
		t.Errorf("unexpected x window: %d±%d", cfg.Splitter.XThreshold, cfg.Splitter.XDeviation)
	}
	if cfg.Splitter.YThreshold != 3103 || cfg.Splitter.YDeviation != 299 {
		t.Errorf("unexpected y window: %d±%d", cfg.Splitter.YThreshold, cfg.Splitter.YDeviation)
	}
	if cfg.Chunking.TargetChars != 800 || cfg.Chunking.MaxChars != 1200 {
		t.Errorf("unexpected chunking bounds: %d/%d", cfg.Chunking.TargetChars, cfg.Chunking.MaxChars)
	}
	if cfg.Embedding.Model != "text-embedding-004" {
		t.Errorf("expected default embed model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected Dimensions=768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 32 {
		t.Errorf("expected BatchSize=32, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Caption.MaxChars != 320 {
		t.Errorf("expected caption MaxChars=320, got %d", cfg.Caption.MaxChars)
	}
	if cfg.Search.TopK != 8 || cfg.Search.PresearchFactor != 3 {
		t.Errorf("unexpected search defaults: %d/%d", cfg.Search.TopK, cfg.Search.PresearchFactor)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		Paths:    PathsConfig{DataDir: "/srv/manuals", IndexDir: "/mnt/index"},
		Chunking: ChunkingConfig{TargetChars: 600, MaxChars: 1000},
		Search:   SearchConfig{TopK: 12},
	}
	cfg.ApplyDefaults()

	if cfg.Paths.IndexDir != "/mnt/index" {
		t.Errorf("expected IndexDir='/mnt/index', got %q", cfg.Paths.IndexDir)
	}
	if cfg.Paths.ChunksDir != "/srv/manuals/chunks" {
		t.Errorf("expected ChunksDir under DataDir, got %q", cfg.Paths.ChunksDir)
	}
	if cfg.Chunking.TargetChars != 600 {
		t.Errorf("expected TargetChars=600, got %d", cfg.Chunking.TargetChars)
	}
	if cfg.Search.TopK != 12 {
		t.Errorf("expected TopK=12, got %d", cfg.Search.TopK)
	}
}

func TestValidate_BadNamespace(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Splitter.Namespace = "not-a-uuid"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid namespace uuid")
	}
}

func TestValidate_ChunkBounds(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Chunking.TargetChars = 1500

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for target above max")
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MANUALDEX_TEST_KEY", "sk-123")

	in := []byte("api_key: ${MANUALDEX_TEST_KEY}\nbase_url: ${MANUALDEX_TEST_URL:-https://api.example.com/v1}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: sk-123\nbase_url: https://api.example.com/v1\n" {
		t.Errorf("unexpected expansion:\n%s", out)
	}
}

func TestGetEnv(t *testing.T) {
	old := os.Getenv("ENV")
	defer os.Setenv("ENV", old)

	os.Unsetenv("ENV")
	if got := GetEnv(); got != "local" {
		t.Errorf("expected 'local', got %q", got)
	}

	os.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("expected 'prod', got %q", got)
	}
}
