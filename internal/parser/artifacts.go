package parser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"

	_ "image/jpeg"
)

const (
	contentFileName    = "content.md"
	elementsFileName   = "elements.json"
	figuresDirName     = "figures"
	figuresMetaName    = "figures.json"
	figureCategoryName = "figure"
)

// Service runs the parse stage for one document: provider call, page
// markdown, element metadata and extracted figure images.
type Service struct {
	client    *Client
	parsedDir string
	logger    *zap.Logger
}

func NewService(client *Client, parsedDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, parsedDir: parsedDir, logger: logger}
}

// ElementsFile is the persisted elements.json payload.
type ElementsFile struct {
	DocID    string             `json:"doc_id"`
	Elements []domain.LayoutBox `json:"elements"`
}

// FiguresFile is the persisted figures.json payload.
type FiguresFile struct {
	DocID      string             `json:"doc_id"`
	SourcePDF  string             `json:"source_pdf"`
	NumFigures int                `json:"num_figures"`
	Images     []domain.RawFigure `json:"images"`
}

func (s *Service) DocDir(docID string) string { return filepath.Join(s.parsedDir, docID) }

func (s *Service) done(docID string) bool {
	dir := s.DocDir(docID)
	for _, name := range []string{contentFileName, elementsFileName, figuresMetaName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Run parses pdfPath and writes all artifacts under parsedDir/docID.
// Existing output is reused unless force is set.
func (s *Service) Run(ctx context.Context, docID, pdfPath string, force bool) error {
	dir := s.DocDir(docID)
	if s.done(docID) && !force {
		s.logger.Info("parse output exists, skipping", zap.String("doc_id", docID))
		return nil
	}
	if force {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear parse output: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, figuresDirName), 0o755); err != nil {
		return err
	}

	elements, err := s.client.Parse(ctx, pdfPath)
	if err != nil {
		return err
	}
	if len(elements) == 0 {
		s.logger.Warn("layout provider returned no elements", zap.String("doc_id", docID))
	}

	if err := s.writeContent(dir, elements); err != nil {
		return err
	}
	if err := s.writeElements(dir, docID, elements); err != nil {
		return err
	}
	figures, err := s.writeFigures(dir, docID, pdfPath, elements)
	if err != nil {
		return err
	}
	s.logger.Info("document parsed",
		zap.String("doc_id", docID),
		zap.Int("elements", len(elements)),
		zap.Int("figures", figures))
	return nil
}

// writeContent joins element markdown per page under a page marker line.
func (s *Service) writeContent(dir string, elements []Element) error {
	byPage := map[int][]string{}
	for _, el := range elements {
		text := el.Content.Markdown
		if text == "" {
			text = el.Content.Text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		byPage[el.Page] = append(byPage[el.Page], text)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "# [p%d]\n", p)
		b.WriteString(strings.TrimSpace(strings.Join(byPage[p], " ")))
		b.WriteString("\n\n")
	}
	return os.WriteFile(filepath.Join(dir, contentFileName), []byte(b.String()), 0o644)
}

func (s *Service) writeElements(dir, docID string, elements []Element) error {
	out := ElementsFile{DocID: docID, Elements: make([]domain.LayoutBox, 0, len(elements))}
	for _, el := range elements {
		box := domain.LayoutBox{
			Category: el.Category,
			Page:     el.Page,
			Text:     el.Content.Markdown,
		}
		if bbox, ok := boundingBox(el.Coordinates); ok {
			box.BBox = bbox
		}
		out.Elements = append(out.Elements, box)
	}
	return writeJSONFile(filepath.Join(dir, elementsFileName), out)
}

// writeFigures decodes each base64 figure, re-encodes it as PNG and records
// page, index and normalized geometry. Undecodable figures are logged and
// skipped.
func (s *Service) writeFigures(dir, docID, pdfPath string, elements []Element) (int, error) {
	figDir := filepath.Join(dir, figuresDirName)
	out := FiguresFile{DocID: docID, SourcePDF: pdfPath}
	index := 0
	for _, el := range elements {
		if el.Category != figureCategoryName || el.Base64Encoding == "" {
			continue
		}
		img, err := decodeBase64Image(el.Base64Encoding)
		if err != nil {
			s.logger.Warn("figure decode failed",
				zap.String("doc_id", docID),
				zap.Int("page", el.Page),
				zap.Error(err))
			continue
		}
		index++
		name := fmt.Sprintf("page_%03d_figure_%03d.png", el.Page, index)
		if err := savePNGFile(filepath.Join(figDir, name), img); err != nil {
			return 0, err
		}
		fig := domain.RawFigure{
			Page:  el.Page,
			Index: index,
			File:  filepath.Join(figuresDirName, name),
		}
		if bbox, ok := boundingBox(el.Coordinates); ok {
			fig.BBoxNorm = bbox
			fig.CenterNorm = [2]float64{(bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2}
		}
		out.Images = append(out.Images, fig)
	}
	out.NumFigures = len(out.Images)
	if err := writeJSONFile(filepath.Join(dir, figuresMetaName), out); err != nil {
		return 0, err
	}
	return out.NumFigures, nil
}

// LoadFigures reads a previously written figures.json.
func (s *Service) LoadFigures(docID string) (*FiguresFile, error) {
	raw, err := os.ReadFile(filepath.Join(s.DocDir(docID), figuresMetaName))
	if err != nil {
		return nil, err
	}
	var out FiguresFile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode figures metadata: %w", err)
	}
	return &out, nil
}

// ContentPath returns the page markdown path for a document.
func (s *Service) ContentPath(docID string) string {
	return filepath.Join(s.DocDir(docID), contentFileName)
}

var pageMarkerRegex = regexp.MustCompile(`^#\s*\[p(\d+)\]`)

// PageTexts splits page markdown back into per-page text keyed by page
// number. Text before the first marker is dropped.
func PageTexts(content string) map[int]string {
	out := make(map[int]string)
	page := 0
	var b strings.Builder
	flush := func() {
		if page > 0 {
			out[page] = strings.TrimSpace(b.String())
		}
		b.Reset()
	}
	for _, line := range strings.Split(content, "\n") {
		if m := pageMarkerRegex.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			page, _ = strconv.Atoi(m[1])
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	flush()
	return out
}

func boundingBox(points []Point) ([4]float64, bool) {
	if len(points) == 0 {
		return [4]float64{}, false
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return [4]float64{minX, minY, maxX, maxY}, true
}

func decodeBase64Image(encoded string) (image.Image, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func savePNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
