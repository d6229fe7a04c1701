package figure

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

// Filter runs the classification stage for one document: it tags every
// extracted figure, copies kept ones into the caption staging area, and
// writes the audit report.
type Filter struct {
	captionDir string
	reportDir  string
	logger     *zap.Logger
}

// NewFilter creates the classification stage.
func NewFilter(captionDir, reportDir string, logger *zap.Logger) *Filter {
	return &Filter{captionDir: captionDir, reportDir: reportDir, logger: logger}
}

// Report is the persisted output of the filter stage.
type Report struct {
	DocID          string                `json:"doc_id"`
	NumImagesTotal int                   `json:"num_images_total"`
	NumImagesKept  int                   `json:"num_images_kept"`
	Config         ReportConfig          `json:"config"`
	Images         []domain.FigureRecord `json:"images"`
}

// ReportConfig echoes the classifier calibration into the report for audit.
type ReportConfig struct {
	SmallIconMaxDim int     `json:"small_icon_max_dim"`
	InkThreshold    int     `json:"ink_intensity_threshold"`
	BannerMinAspect float64 `json:"procedure_banner_min_aspect"`
	BannerMaxInk    float64 `json:"procedure_banner_max_ink"`
	BannerMinLine   float64 `json:"min_table_line_ratio"`
}

// ReportPath returns the filter report location for a document.
func (f *Filter) ReportPath(docID string) string {
	return filepath.Join(f.reportDir, docID+"_figures_filtered.json")
}

// Run classifies all figures of one document. Existing output short-circuits
// the stage unless force is set.
func (f *Filter) Run(ctx context.Context, docID string, figures []domain.RawFigure, force bool) (*Report, error) {
	reportPath := f.ReportPath(docID)
	if !force {
		if existing, err := LoadReport(reportPath); err == nil {
			f.logger.Info("filter output exists, skipping", zap.String("doc_id", docID))
			return existing, nil
		}
	}

	stagingDir := filepath.Join(f.captionDir, docID)
	if err := resetDir(stagingDir); err != nil {
		return nil, fmt.Errorf("reset staging dir: %w", err)
	}

	report := &Report{
		DocID:          docID,
		NumImagesTotal: len(figures),
		Config: ReportConfig{
			SmallIconMaxDim: smallIconMaxDim,
			InkThreshold:    inkThreshold,
			BannerMinAspect: bannerMinAspect,
			BannerMaxInk:    bannerMaxInk,
			BannerMinLine:   bannerMinLine,
		},
	}

	for _, fig := range figures {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("filter cancelled: %w", err)
		}
		rec := f.classifyOne(docID, fig, stagingDir)
		if rec.KeepForCaption {
			report.NumImagesKept++
		}
		report.Images = append(report.Images, rec)
	}

	if err := writeJSON(reportPath, report); err != nil {
		return nil, fmt.Errorf("write filter report: %w", err)
	}

	f.logger.Info("figures classified",
		zap.String("doc_id", docID),
		zap.Int("total", report.NumImagesTotal),
		zap.Int("kept", report.NumImagesKept),
	)
	return report, nil
}

func (f *Filter) classifyOne(docID string, fig domain.RawFigure, stagingDir string) domain.FigureRecord {
	rec := domain.FigureRecord{
		DocID:      docID,
		Page:       fig.Page,
		Index:      fig.Index,
		File:       fig.File,
		BBoxNorm:   fig.BBoxNorm,
		CenterNorm: fig.CenterNorm,
	}

	img, err := loadImage(fig.File)
	if err != nil {
		metrics.FigureLoadErrorsTotal.Inc()
		f.logger.Warn("unreadable figure image",
			zap.String("doc_id", docID), zap.String("file", fig.File), zap.Error(err))
		rec.Category = domain.CategoryMissingFile
		rec.Tags = []string{domain.CategoryMissingFile}
		return rec
	}

	m := Measure(img)
	category, keep := Classify(img, m)
	rec.Metrics = m
	rec.Category = category
	rec.KeepForCaption = keep
	rec.Tags = []string{category}

	if keep {
		dst := filepath.Join(stagingDir, filepath.Base(fig.File))
		if err := copyFile(fig.File, dst); err != nil {
			f.logger.Warn("failed to stage kept figure",
				zap.String("doc_id", docID), zap.String("file", fig.File), zap.Error(err))
			rec.KeepForCaption = false
			return rec
		}
		rec.CaptionFile = dst
	}
	return rec
}

// LoadReport reads a previously written filter report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// SaveReport rewrites a filter report, used by the caption stage to merge
// captions back.
func SaveReport(path string, r *Report) error {
	return writeJSON(path, r)
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return nil
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
