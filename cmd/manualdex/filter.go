package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/figure"
)

var (
	filterDocIDs []string
	filterForce  bool
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Classify extracted figures and stage the caption-worthy ones",
	RunE:  runFilter,
}

func init() {
	filterCmd.Flags().StringArrayVar(&filterDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	filterCmd.Flags().BoolVar(&filterForce, "force", false, "re-classify documents with an existing report")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, _ []string) error {
	parserSvc, err := newParserService()
	if err != nil {
		return err
	}
	filter := figure.NewFilter(cfg.Paths.CaptionDir, cfg.Paths.ChunksDir, logger)

	docs, err := selectDocs(filterDocIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		figures, err := parserSvc.LoadFigures(doc.ID)
		if err != nil {
			logger.Error("no figure metadata for document, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
			continue
		}
		if _, err := filter.Run(cmd.Context(), doc.ID, figures.Images, filterForce); err != nil {
			logger.Error("filter failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
		}
	}
	logger.Info("filter stage finished",
		zap.Int("documents", len(docs)), zap.Int("failed", failed))
	return nil
}
