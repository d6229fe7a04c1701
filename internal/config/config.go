package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the manualdex pipeline and search configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Parser    ParserConfig    `yaml:"parser"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Caption   CaptionConfig   `yaml:"caption"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings for the search endpoint.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// PathsConfig holds the data directory layout. Empty subdirectories are
// derived from data_dir.
type PathsConfig struct {
	DataDir    string `yaml:"data_dir"`
	RawDir     string `yaml:"raw_dir"`     // source PDFs
	ParsedDir  string `yaml:"parsed_dir"`  // parser output per document
	PagesDir   string `yaml:"pages_dir"`   // splitter output
	CaptionDir string `yaml:"caption_dir"` // caption-ready staging area
	ChunksDir  string `yaml:"chunks_dir"`  // chunk logs and stage reports
	IndexDir   string `yaml:"index_dir"`   // index, metadata log, manifest
}

// ParserConfig holds the layout-analysis provider settings.
type ParserConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	PagesPerRequest int    `yaml:"pages_per_request"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	MaxRetries      int    `yaml:"max_retries"`
}

// SplitterConfig holds the calibrated single-page window per axis and the
// document identity settings.
type SplitterConfig struct {
	XThreshold int    `yaml:"x_threshold"`
	XDeviation int    `yaml:"x_deviation"`
	YThreshold int    `yaml:"y_threshold"`
	YDeviation int    `yaml:"y_deviation"`
	Language   string `yaml:"language"`
	Namespace  string `yaml:"namespace_uuid"` // UUIDv5 namespace for doc ids
}

// CaptionConfig holds the caption provider settings.
type CaptionConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	MaxChars     int    `yaml:"max_chars"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBaseSec int    `yaml:"retry_base_sec"`
	ContextChars int    `yaml:"context_chars"`
}

// ChunkingConfig holds the text packing bounds.
type ChunkingConfig struct {
	TargetChars int `yaml:"target_chars"`
	MaxChars    int `yaml:"max_chars"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	BatchSize    int    `yaml:"batch_size"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBaseSec int    `yaml:"retry_base_sec"`
	Workers      int    `yaml:"workers"`
}

// SearchConfig holds retrieval and reranking settings.
type SearchConfig struct {
	TopK            int `yaml:"top_k"`
	PresearchFactor int `yaml:"presearch_factor"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// LoadDotenv loads a local .env file into the process environment when one
// exists. Must run before Load so ${VAR} expansion sees the values.
func LoadDotenv() {
	_ = godotenv.Load()
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "data"
	}
	if c.Paths.RawDir == "" {
		c.Paths.RawDir = filepath.Join(c.Paths.DataDir, "raw")
	}
	if c.Paths.ParsedDir == "" {
		c.Paths.ParsedDir = filepath.Join(c.Paths.DataDir, "parsed")
	}
	if c.Paths.PagesDir == "" {
		c.Paths.PagesDir = filepath.Join(c.Paths.DataDir, "pages")
	}
	if c.Paths.CaptionDir == "" {
		c.Paths.CaptionDir = filepath.Join(c.Paths.DataDir, "caption_images")
	}
	if c.Paths.ChunksDir == "" {
		c.Paths.ChunksDir = filepath.Join(c.Paths.DataDir, "chunks")
	}
	if c.Paths.IndexDir == "" {
		c.Paths.IndexDir = filepath.Join(c.Paths.DataDir, "index")
	}
	if c.Parser.PagesPerRequest <= 0 {
		c.Parser.PagesPerRequest = 10
	}
	if c.Parser.TimeoutSec <= 0 {
		c.Parser.TimeoutSec = 120
	}
	if c.Parser.MaxRetries <= 0 {
		c.Parser.MaxRetries = 3
	}
	if c.Splitter.XThreshold <= 0 {
		c.Splitter.XThreshold = 2280
	}
	if c.Splitter.XDeviation <= 0 {
		c.Splitter.XDeviation = 240
	}
	if c.Splitter.YThreshold <= 0 {
		c.Splitter.YThreshold = 3103
	}
	if c.Splitter.YDeviation <= 0 {
		c.Splitter.YDeviation = 299
	}
	if c.Splitter.Language == "" {
		c.Splitter.Language = "ko"
	}
	if c.Splitter.Namespace == "" {
		c.Splitter.Namespace = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	}
	if c.Caption.Model == "" {
		c.Caption.Model = "gpt-4o-mini"
	}
	if c.Caption.MaxChars <= 0 {
		c.Caption.MaxChars = 320
	}
	if c.Caption.MaxRetries <= 0 {
		c.Caption.MaxRetries = 3
	}
	if c.Caption.RetryBaseSec <= 0 {
		c.Caption.RetryBaseSec = 5
	}
	if c.Caption.ContextChars <= 0 {
		c.Caption.ContextChars = 1000
	}
	if c.Chunking.TargetChars <= 0 {
		c.Chunking.TargetChars = 800
	}
	if c.Chunking.MaxChars <= 0 {
		c.Chunking.MaxChars = 1200
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-004"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RetryBaseSec <= 0 {
		c.Embedding.RetryBaseSec = 2
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 4
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 8
	}
	if c.Search.PresearchFactor <= 0 {
		c.Search.PresearchFactor = 3
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port != 0 && (c.HTTP.Port < 0 || c.HTTP.Port > 65535) {
		return fmt.Errorf("http.port must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if _, err := uuid.Parse(c.Splitter.Namespace); err != nil {
		return fmt.Errorf("splitter.namespace_uuid is not a valid UUID: %w", err)
	}
	if c.Splitter.XDeviation >= c.Splitter.XThreshold {
		return fmt.Errorf("splitter.x_deviation %d must be below x_threshold %d",
			c.Splitter.XDeviation, c.Splitter.XThreshold)
	}
	if c.Splitter.YDeviation >= c.Splitter.YThreshold {
		return fmt.Errorf("splitter.y_deviation %d must be below y_threshold %d",
			c.Splitter.YDeviation, c.Splitter.YThreshold)
	}
	if c.Chunking.TargetChars >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.target_chars %d must be below max_chars %d",
			c.Chunking.TargetChars, c.Chunking.MaxChars)
	}
	return nil
}

// NamespaceUUID returns the parsed doc-id namespace. Validate guarantees it parses.
func (c *SplitterConfig) NamespaceUUID() uuid.UUID {
	return uuid.MustParse(c.Namespace)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
