package main

import (
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	parseDocIDs []string
	parseForce  bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Run layout analysis over the raw PDFs",
	Long: `Submits each PDF to the layout-analysis provider, merges the page-window
responses and writes page markdown, element metadata and figure images
under the parsed directory.`,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringArrayVar(&parseDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	parseCmd.Flags().BoolVar(&parseForce, "force", false, "re-parse documents with existing output")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, _ []string) error {
	svc, err := newParserService()
	if err != nil {
		return err
	}
	docs, err := selectDocs(parseDocIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		if err := svc.Run(cmd.Context(), doc.ID, doc.PDF, parseForce); err != nil {
			logger.Error("parse failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
		}
	}
	logger.Info("parse stage finished",
		zap.Int("documents", len(docs)), zap.Int("failed", failed))
	return nil
}
