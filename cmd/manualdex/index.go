package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/chunk"
	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/index"
)

var (
	indexDocIDs       []string
	indexOverwrite    bool
	indexReplaceDocID string
	indexBatchSize    int
	indexDim          int
	indexModel        string
	indexTextOnly     bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed chunk logs and publish the vector index",
	Long: `Embeds the selected documents' chunks and publishes the flat index,
the metadata log and the manifest atomically. By default new chunks are
appended; --overwrite rebuilds from scratch and --replace-doc-id swaps
one document in place.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringArrayVar(&indexDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	indexCmd.Flags().BoolVar(&indexOverwrite, "overwrite", false, "rebuild the index from scratch")
	indexCmd.Flags().StringVar(&indexReplaceDocID, "replace-doc-id", "", "replace one document's vectors in place")
	indexCmd.Flags().IntVar(&indexBatchSize, "batch-size", 0, "embedding batch size (default from config)")
	indexCmd.Flags().IntVar(&indexDim, "dim", 0, "embedding dimensionality (default from config)")
	indexCmd.Flags().StringVar(&indexModel, "model", "", "embedding model (default from config)")
	indexCmd.Flags().BoolVar(&indexTextOnly, "text-only", false, "index text chunks only")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	batcher, err := newBatcher(indexBatchSize)
	if err != nil {
		return err
	}
	mgr := newIndexManager(batcher, indexModel, indexDim)

	if indexReplaceDocID != "" {
		if indexOverwrite {
			logger.Warn("both --replace-doc-id and --overwrite set, replacing")
		}
		indexDocIDs = []string{indexReplaceDocID}
	}

	docs, err := selectDocs(indexDocIDs)
	if err != nil {
		return err
	}

	var chunks []domain.Chunk
	sources := make(map[string]string, len(docs))
	for _, doc := range docs {
		docChunks, err := loadDocChunks(doc.ID)
		if err != nil {
			logger.Error("no chunk logs for document, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		chunks = append(chunks, docChunks...)
		sources[doc.ID] = filepath.Base(doc.PDF)
	}

	ctx := cmd.Context()
	chunkDirs := []string{cfg.Paths.ChunksDir}

	var manifest *index.Manifest
	switch {
	case indexReplaceDocID != "":
		manifest, err = mgr.ReplaceDoc(ctx, indexReplaceDocID, chunks, sources, chunkDirs)
	case indexOverwrite:
		manifest, err = mgr.Build(ctx, chunks, sources, chunkDirs)
	default:
		manifest, err = mgr.Append(ctx, chunks, sources, chunkDirs)
	}
	if err != nil {
		return err
	}

	logger.Info("index published",
		zap.Int("num_vectors", manifest.NumVectors),
		zap.Int("text_chunks", manifest.NumTextChunks),
		zap.Int("figure_chunks", manifest.NumFigureChunks),
		zap.String("model", manifest.EmbedModel),
	)
	return nil
}

// loadDocChunks reads a document's chunk logs. The text log is required,
// the figure log is optional.
func loadDocChunks(docID string) ([]domain.Chunk, error) {
	chunks, err := chunk.ReadLog(chunk.TextLogPath(cfg.Paths.ChunksDir, docID))
	if err != nil {
		return nil, err
	}
	if !indexTextOnly {
		if figs, err := chunk.ReadLog(chunk.FigureLogPath(cfg.Paths.ChunksDir, docID)); err == nil {
			chunks = append(chunks, figs...)
		}
	}
	return chunks, nil
}
