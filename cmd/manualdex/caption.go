package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/caption"
	"github.com/kailas-cloud/manualdex/internal/figure"
	"github.com/kailas-cloud/manualdex/internal/parser"
)

var (
	captionDocIDs      []string
	captionForce       bool
	captionRetryFailed bool
)

var captionCmd = &cobra.Command{
	Use:   "caption",
	Short: "Caption staged figures with the vision provider",
	Long: `Sends each kept figure to the vision chat provider together with the
surrounding manual text and records the caption, or a fallback reason
when the provider cannot produce one.`,
	RunE: runCaption,
}

func init() {
	captionCmd.Flags().StringArrayVar(&captionDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	captionCmd.Flags().BoolVar(&captionForce, "force", false, "re-caption documents with an existing report")
	captionCmd.Flags().BoolVar(&captionRetryFailed, "retry-failed", false, "retry only figures with a transient fallback reason")
	rootCmd.AddCommand(captionCmd)
}

func runCaption(cmd *cobra.Command, _ []string) error {
	parserSvc, err := newParserService()
	if err != nil {
		return err
	}
	captionSvc, err := newCaptionService()
	if err != nil {
		return err
	}
	filter := figure.NewFilter(cfg.Paths.CaptionDir, cfg.Paths.ChunksDir, logger)

	docs, err := selectDocs(captionDocIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		filtered, err := figure.LoadReport(filter.ReportPath(doc.ID))
		if err != nil {
			logger.Error("no filter report for document, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
			continue
		}

		pageText := map[int]string{}
		if raw, err := os.ReadFile(parserSvc.ContentPath(doc.ID)); err == nil {
			pageText = parser.PageTexts(string(raw))
		} else {
			logger.Warn("no page markdown for caption context",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}

		_, err = captionSvc.Run(cmd.Context(), doc.ID, filtered, pageText, caption.Options{
			Force:       captionForce,
			RetryFailed: captionRetryFailed,
		})
		if err != nil {
			logger.Error("caption failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
		}
	}
	logger.Info("caption stage finished",
		zap.Int("documents", len(docs)), zap.Int("failed", failed))
	return nil
}
