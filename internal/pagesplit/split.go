package pagesplit

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // page scans may arrive as JPEG
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// maxStemLen bounds the source filename stem used in slice names.
const maxStemLen = 100

// Window is the calibrated single-page dimension window [Threshold-Deviation,
// Threshold+Deviation] for one axis.
type Window struct {
	Threshold int
	Deviation int
}

// Contains reports whether a dimension falls inside the window.
func (w Window) Contains(v int) bool {
	return v >= w.Threshold-w.Deviation && v <= w.Threshold+w.Deviation
}

// Config holds the splitter settings.
type Config struct {
	XWindow   Window
	YWindow   Window
	Language  string
	Namespace uuid.UUID
	Logger    *zap.Logger
}

// Splitter recovers individually scanned pages merged into oversized composite
// images by detecting an x×y grid and slicing it.
type Splitter struct {
	x         Window
	y         Window
	language  string
	namespace uuid.UUID
	logger    *zap.Logger
}

// New creates a Splitter.
func New(cfg Config) *Splitter {
	return &Splitter{
		x:         cfg.XWindow,
		y:         cfg.YWindow,
		language:  cfg.Language,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
	}
}

// axisResult is the outcome of grid detection along one axis. Done means a
// halving undershot the window, so the axis is accepted as a single page
// instead of failing.
type axisResult struct {
	Pages int
	Done  bool
}

// axisPages doubles the page count and halves the dimension until the value
// lands inside the window. An undershoot resolves to one page.
func axisPages(value int, w Window) axisResult {
	pages := 1
	v := float64(value)
	lo := float64(w.Threshold - w.Deviation)
	hi := float64(w.Threshold + w.Deviation)
	for {
		if v >= lo && v <= hi {
			return axisResult{Pages: pages}
		}
		pages *= 2
		v = math.Round(v / 2)
		if v < lo {
			return axisResult{Pages: 1, Done: true}
		}
	}
}

// Grid returns the detected page grid (columns, rows) for an image size.
func (s *Splitter) Grid(width, height int) (gx, gy int) {
	rx := axisPages(width, s.x)
	ry := axisPages(height, s.y)
	return rx.Pages, ry.Pages
}

// cellSize halves the dimension once per grid doubling, rounding up to even
// before each further halving so cell boundaries stay aligned.
func cellSize(value, grid int) int {
	v := value
	for g := grid; g > 1; g /= 2 {
		if v%2 == 1 {
			v++
		}
		v /= 2
	}
	return v
}

// Slice cuts the composite image into its grid cells, row-major.
func (s *Splitter) Slice(img image.Image) []image.Image {
	b := img.Bounds()
	gx, gy := s.Grid(b.Dx(), b.Dy())
	if gx == 1 && gy == 1 {
		return []image.Image{img}
	}

	cw := cellSize(b.Dx(), gx)
	ch := cellSize(b.Dy(), gy)

	out := make([]image.Image, 0, gx*gy)
	for row := 0; row < gy; row++ {
		for col := 0; col < gx; col++ {
			r := image.Rect(
				b.Min.X+col*cw,
				b.Min.Y+row*ch,
				b.Min.X+(col+1)*cw,
				b.Min.Y+(row+1)*ch,
			).Intersect(b)
			cell := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
			draw.Draw(cell, cell.Bounds(), img, r.Min, draw.Src)
			out = append(out, cell)
		}
	}
	return out
}

// SliceRecord describes one logical page produced by the splitter.
type SliceRecord struct {
	DocID      string `json:"doc_id"`
	Page       int    `json:"page"`
	SliceIndex int    `json:"slice_index"`
	Language   string `json:"language"`
	SourcePath string `json:"source_path"`
	Image      string `json:"image"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Run splits every composite page image of one source document and writes the
// slices plus their records. imagePaths must be in page order.
func (s *Splitter) Run(sourcePDF string, imagePaths []string, outDir string) ([]SliceRecord, error) {
	stem := strings.TrimSuffix(filepath.Base(sourcePDF), filepath.Ext(sourcePDF))
	if len(stem) > maxStemLen {
		s.logger.Warn("source filename stem too long, skipping document",
			zap.String("source", sourcePDF), zap.Int("len", len(stem)))
		return nil, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	docID := domain.DeriveDocID(s.namespace, sourcePDF)
	modifiedAt, err := ModifiedAt(sourcePDF)
	if err != nil {
		s.logger.Warn("no modification date in pdf", zap.String("source", sourcePDF), zap.Error(err))
	}

	var records []SliceRecord
	page := 1
	for _, path := range imagePaths {
		img, err := loadImage(path)
		if err != nil {
			s.logger.Warn("unreadable page image, skipping",
				zap.String("image", path), zap.Error(err))
			continue
		}

		for _, cell := range s.Slice(img) {
			name := fmt.Sprintf("%s_%s_p%d_%d.png", stem, s.language, page, len(records))
			outPath := filepath.Join(outDir, name)
			if err := savePNG(outPath, cell); err != nil {
				return nil, fmt.Errorf("write slice %s: %w", outPath, err)
			}
			records = append(records, SliceRecord{
				DocID:      docID,
				Page:       page,
				SliceIndex: len(records),
				Language:   s.language,
				SourcePath: sourcePDF,
				Image:      outPath,
				ModifiedAt: modifiedAt,
			})
			page++
		}
	}

	s.logger.Info("document split",
		zap.String("doc_id", docID),
		zap.Int("composite_images", len(imagePaths)),
		zap.Int("pages", len(records)),
	)
	return records, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}
