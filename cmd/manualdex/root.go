package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/caption"
	"github.com/kailas-cloud/manualdex/internal/config"
	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/embed"
	"github.com/kailas-cloud/manualdex/internal/index"
	logpkg "github.com/kailas-cloud/manualdex/internal/logger"
	"github.com/kailas-cloud/manualdex/internal/metrics"
	"github.com/kailas-cloud/manualdex/internal/parser"
	"github.com/kailas-cloud/manualdex/internal/search"
	"github.com/kailas-cloud/manualdex/internal/version"
)

var (
	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "manualdex",
	Short:        "Product manual ingestion and retrieval pipeline",
	SilenceUsage: true,
	Version:      fmt.Sprintf("%s (%s, %s)", version.Version, version.Commit, version.Date),
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		config.LoadDotenv()
		env := config.GetEnv()

		var err error
		cfg, err = config.Load(env)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err = logpkg.NewLogger(env, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		metrics.RegisterPipelineMetrics()
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// docRef pairs a pipeline document id with its source PDF.
type docRef struct {
	ID  string
	PDF string
}

// docIDForPDF derives the pipeline document id from the source filename stem.
func docIDForPDF(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// selectDocs lists the raw-dir PDFs, narrowed to the given doc ids when set.
func selectDocs(docIDs []string) ([]docRef, error) {
	pdfs, err := filepath.Glob(filepath.Join(cfg.Paths.RawDir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("list raw pdfs: %w", err)
	}
	sort.Strings(pdfs)

	var want map[string]bool
	if len(docIDs) > 0 {
		want = make(map[string]bool, len(docIDs))
		for _, id := range docIDs {
			want[id] = true
		}
	}

	var docs []docRef
	for _, pdf := range pdfs {
		id := docIDForPDF(pdf)
		if want != nil && !want[id] {
			continue
		}
		docs = append(docs, docRef{ID: id, PDF: pdf})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", cfg.Paths.RawDir)
	}
	return docs, nil
}

func newParserService() (*parser.Service, error) {
	client, err := parser.NewClient(parser.ClientConfig{
		BaseURL:         cfg.Parser.BaseURL,
		APIKey:          cfg.Parser.APIKey,
		PagesPerRequest: cfg.Parser.PagesPerRequest,
		Timeout:         time.Duration(cfg.Parser.TimeoutSec) * time.Second,
		MaxRetries:      cfg.Parser.MaxRetries,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return parser.NewService(client, cfg.Paths.ParsedDir, logger), nil
}

func newCaptionService() (*caption.Service, error) {
	if cfg.Caption.APIKey == "" {
		return nil, fmt.Errorf("%w: caption provider api key", domain.ErrMissingCredentials)
	}
	captioner := caption.NewOpenAICaptioner(&caption.OpenAIConfig{
		APIKey:  cfg.Caption.APIKey,
		BaseURL: cfg.Caption.BaseURL,
		Model:   cfg.Caption.Model,
		Logger:  logger,
	})
	return caption.NewService(caption.ServiceConfig{
		Captioner:  captioner,
		Model:      cfg.Caption.Model,
		ReportDir:  cfg.Paths.ChunksDir,
		MaxRetries: cfg.Caption.MaxRetries,
		RetryBase:  time.Duration(cfg.Caption.RetryBaseSec) * time.Second,
		Logger:     logger,
	}), nil
}

func newQueryEmbedder() (domain.Embedder, error) {
	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding provider api key", domain.ErrMissingCredentials)
	}
	return embed.NewOpenAIEmbedder(&embed.OpenAIConfig{
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Provider: cfg.Embedding.Provider,
		Logger:   logger,
	}), nil
}

func newBatcher(batchSize int) (*embed.Batcher, error) {
	provider, err := newQueryEmbedder()
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = cfg.Embedding.BatchSize
	}
	return embed.NewBatcher(embed.BatcherConfig{
		Provider:     provider,
		ProviderName: cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		BatchSize:    batchSize,
		MaxRetries:   cfg.Embedding.MaxRetries,
		RetryBase:    time.Duration(cfg.Embedding.RetryBaseSec) * time.Second,
		Workers:      cfg.Embedding.Workers,
		Logger:       logger,
	}), nil
}

func newIndexManager(batcher index.BatchEmbedder, model string, dim int) *index.Manager {
	if model == "" {
		model = cfg.Embedding.Model
	}
	if dim <= 0 {
		dim = cfg.Embedding.Dimensions
	}
	return index.NewManager(index.ManagerConfig{
		Dir:     cfg.Paths.IndexDir,
		Model:   model,
		Dim:     dim,
		Batcher: batcher,
		Logger:  logger,
	})
}

func newSession() (*search.Session, error) {
	embedder, err := newQueryEmbedder()
	if err != nil {
		return nil, err
	}
	searcher := search.NewSearcher(search.SearcherConfig{
		Loader:          newIndexManager(nil, "", 0),
		Embedder:        embedder,
		Dim:             cfg.Embedding.Dimensions,
		TopK:            cfg.Search.TopK,
		PresearchFactor: cfg.Search.PresearchFactor,
		Logger:          logger,
	})
	if err := searcher.Rebuild(); err != nil {
		return nil, err
	}
	return search.NewSession(searcher, logger), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
