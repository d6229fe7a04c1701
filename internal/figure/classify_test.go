package figure

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

func grayImage(w, h int, fill uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return img
}

func TestClassify_SmallIcon(t *testing.T) {
	img := grayImage(60, 60, 255)
	// A faint dot, nothing that could look like a QR or a banner.
	img.SetGray(30, 30, color.Gray{Y: 0})

	m := Measure(img)
	category, keep := Classify(img, m)
	if category != domain.CategorySmallIcon {
		t.Fatalf("category = %q, want small_icon", category)
	}
	if keep {
		t.Error("small icons must not be kept for captioning")
	}
}

func TestClassify_ProcedureBanner(t *testing.T) {
	// 1600x300, a thin horizontal rule: low ink, long-run line pixels.
	img := grayImage(1600, 300, 255)
	for y := 140; y < 155; y++ {
		for x := 0; x < 1600; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	m := Measure(img)
	if m.InkRatio > bannerMaxInk {
		t.Fatalf("test image ink ratio %f exceeds banner bound", m.InkRatio)
	}
	if m.LineRatio < bannerMinLine {
		t.Fatalf("test image line ratio %f below banner bound", m.LineRatio)
	}

	category, keep := Classify(img, m)
	if category != domain.CategoryProcedureBanner {
		t.Fatalf("category = %q, want procedure_banner", category)
	}
	if keep {
		t.Error("banners must not be kept for captioning")
	}
}

func TestClassify_PhotoOrDiagramKept(t *testing.T) {
	// 500x500 gradient: moderate ink, too large for the QR window.
	img := image.NewGray(image.Rect(0, 0, 500, 500))
	for y := 0; y < 500; y++ {
		for x := 0; x < 500; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}

	m := Measure(img)
	category, keep := Classify(img, m)
	if category != domain.CategoryPhotoOrDiagram {
		t.Fatalf("category = %q, want photo_or_diagram", category)
	}
	if !keep {
		t.Error("photos must be kept for captioning")
	}
}

func TestMeasure_InkRatio(t *testing.T) {
	img := grayImage(100, 100, 255)
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	m := Measure(img)
	if m.InkRatio < 0.49 || m.InkRatio > 0.51 {
		t.Errorf("ink ratio = %f, want ~0.5", m.InkRatio)
	}
	if m.Width != 100 || m.Height != 100 || m.Aspect != 1.0 {
		t.Errorf("unexpected dimensions: %+v", m)
	}
}

func TestFilterRun_MissingFile(t *testing.T) {
	dir := t.TempDir()
	f := NewFilter(filepath.Join(dir, "staging"), dir, zap.NewNop())

	figures := []domain.RawFigure{{Page: 1, Index: 0, File: filepath.Join(dir, "gone.png")}}
	report, err := f.Run(context.Background(), "doc-x", figures, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.NumImagesTotal != 1 || report.NumImagesKept != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Images[0].Category != domain.CategoryMissingFile {
		t.Errorf("category = %q, want missing_file", report.Images[0].Category)
	}
	if report.Images[0].KeepForCaption {
		t.Error("missing files must not be kept")
	}
}

func TestFilterRun_KeepsAndStages(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "fig0.png")
	writeTestPNG(t, imgPath)

	staging := filepath.Join(dir, "staging")
	f := NewFilter(staging, dir, zap.NewNop())

	figures := []domain.RawFigure{{Page: 2, Index: 0, File: imgPath}}
	report, err := f.Run(context.Background(), "doc-y", figures, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.NumImagesKept != 1 {
		t.Fatalf("expected 1 kept image, got %d", report.NumImagesKept)
	}
	staged := report.Images[0].CaptionFile
	if staged == "" {
		t.Fatal("kept figure has no caption_file")
	}
	if _, err := os.Stat(staged); err != nil {
		t.Errorf("staged copy missing: %v", err)
	}

	// Second run without force reuses the report.
	again, err := f.Run(context.Background(), "doc-y", nil, false)
	if err != nil {
		t.Fatalf("unexpected error on rerun: %v", err)
	}
	if again.NumImagesTotal != report.NumImagesTotal {
		t.Error("rerun without force must return the existing report")
	}
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 400, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 400; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * y) % 256)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}
