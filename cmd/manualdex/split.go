package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/pagesplit"
)

var splitDocIDs []string

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Slice composite scanned page images into single pages",
	Long: `Detects the page grid of oversized composite scans next to each source
PDF and writes one PNG per recovered page plus a slice record file.`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringArrayVar(&splitDocIDs, "doc-id", nil, "restrict to these document ids (repeatable)")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(_ *cobra.Command, _ []string) error {
	splitter := pagesplit.New(pagesplit.Config{
		XWindow:   pagesplit.Window{Threshold: cfg.Splitter.XThreshold, Deviation: cfg.Splitter.XDeviation},
		YWindow:   pagesplit.Window{Threshold: cfg.Splitter.YThreshold, Deviation: cfg.Splitter.YDeviation},
		Language:  cfg.Splitter.Language,
		Namespace: cfg.Splitter.NamespaceUUID(),
		Logger:    logger,
	})

	docs, err := selectDocs(splitDocIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, doc := range docs {
		images := compositeImages(doc.PDF)
		if len(images) == 0 {
			logger.Warn("no composite scans for document, skipping",
				zap.String("doc_id", doc.ID))
			continue
		}
		records, err := splitter.Run(doc.PDF, images, cfg.Paths.PagesDir)
		if err != nil {
			logger.Error("split failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
			continue
		}
		if err := writeSliceRecords(doc.PDF, records); err != nil {
			logger.Error("write slice records failed, continuing",
				zap.String("doc_id", doc.ID), zap.Error(err))
			failed++
		}
	}
	logger.Info("split stage finished",
		zap.Int("documents", len(docs)), zap.Int("failed", failed))
	return nil
}

// compositeImages lists the scanned images belonging to a source PDF, in
// page order.
func compositeImages(pdfPath string) []string {
	stem := strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath))
	var images []string
	for _, ext := range []string{".png", ".jpg", ".jpeg"} {
		matches, _ := filepath.Glob(stem + "*" + ext)
		images = append(images, matches...)
	}
	sort.Strings(images)
	return images
}

func writeSliceRecords(pdfPath string, records []pagesplit.SliceRecord) error {
	if len(records) == 0 {
		return nil
	}
	path := filepath.Join(cfg.Paths.PagesDir, docIDForPDF(pdfPath)+"_slices.json")
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode slice records: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
