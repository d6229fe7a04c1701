package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/chunk"
	"github.com/kailas-cloud/manualdex/internal/figure"
	"github.com/kailas-cloud/manualdex/internal/normalize"
)

var (
	chunkDocIDs []string
	chunkForce  bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Normalize page text and build the chunk logs",
	Long: `Cleans each document's page markdown, packs paragraphs into text chunks
and turns captioned figures into figure chunks. Outputs go to the chunk
log directory as JSON Lines.`,
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().StringArrayVar(&chunkDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	chunkCmd.Flags().BoolVar(&chunkForce, "force", false, "rebuild chunk logs that already exist")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(_ *cobra.Command, _ []string) error {
	parserSvc, err := newParserService()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.ChunksDir, 0o755); err != nil {
		return err
	}
	normalizer := normalize.New(logger)
	builder := chunk.NewBuilder(cfg.Chunking.TargetChars, cfg.Chunking.MaxChars, logger)

	docs, err := selectDocs(chunkDocIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		textLog := chunk.TextLogPath(cfg.Paths.ChunksDir, doc.ID)
		if fileExists(textLog) && !chunkForce {
			logger.Info("chunk logs exist, skipping", zap.String("doc_id", doc.ID))
			continue
		}

		raw, err := os.ReadFile(parserSvc.ContentPath(doc.ID))
		if err != nil {
			logger.Error("no page markdown for document, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
			continue
		}

		normalized, stats := normalizer.Run(doc.ID, string(raw))
		if err := normalizer.WriteReport(cfg.Paths.ChunksDir, stats); err != nil {
			logger.Warn("write normalize report failed",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}

		textChunks := builder.BuildText(doc.ID, normalized)
		if err := chunk.WriteLog(textLog, textChunks); err != nil {
			logger.Error("write text chunk log failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
			continue
		}

		if err := writeFigureChunks(doc.ID); err != nil {
			logger.Warn("no figure chunks for document",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	logger.Info("chunk stage finished",
		zap.Int("documents", len(docs)), zap.Int("failed", failed))
	return nil
}

// writeFigureChunks builds the figure chunk log from the captioned report.
// Documents without figures simply have no report.
func writeFigureChunks(docID string) error {
	reportPath := filepath.Join(cfg.Paths.ChunksDir, docID+"_figures_captioned.json")
	captioned, err := figure.LoadReport(reportPath)
	if err != nil {
		return err
	}
	figureChunks := chunk.BuildFigures(docID, captioned.Images, logger)
	return chunk.WriteLog(chunk.FigureLogPath(cfg.Paths.ChunksDir, docID), figureChunks)
}
