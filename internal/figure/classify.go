package figure

import (
	"image"
	"image/color"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// Classifier calibration. The window sizes mirror the scan profile of the
// manuals this pipeline was tuned on.
const (
	smallIconMaxDim  = 96
	smallIconMaxArea = 96 * 96

	inkThreshold = 190 // gray below this counts as ink

	bannerMinAspect = 4.0
	bannerMaxInk    = 0.20
	bannerMinLine   = 0.03

	qrMinDim       = 80
	qrMaxDim       = 300
	qrAspectSlack  = 0.15
	qrMinEdgeRatio = 0.15
	qrMinLineRatio = 0.20
	qrMinInkRatio  = 0.30

	edgeGradientThreshold = 100
)

// Measure computes the image statistics the classifier decides on.
func Measure(img image.Image) domain.FigureMetrics {
	gray := toGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	m := domain.FigureMetrics{Width: w, Height: h}
	if w == 0 || h == 0 {
		return m
	}
	m.Aspect = float64(w) / float64(h)
	m.InkRatio = inkRatio(gray)
	m.EdgeRatio = edgeRatio(gray)
	m.LineRatio = lineRatio(gray)
	return m
}

// Classify assigns a category in priority order: QR, small icon, procedural
// banner, then kept photo/diagram. The second return is keep_for_caption.
func Classify(img image.Image, m domain.FigureMetrics) (string, bool) {
	if decodeQR(img) {
		return domain.CategoryQRCode, false
	}
	if looksLikeQR(m) {
		return domain.CategoryQRCodeHeuristic, false
	}
	if isSmallIcon(m) {
		return domain.CategorySmallIcon, false
	}
	if isProcedureBanner(m) {
		return domain.CategoryProcedureBanner, false
	}
	return domain.CategoryPhotoOrDiagram, true
}

func isSmallIcon(m domain.FigureMetrics) bool {
	maxDim := m.Width
	if m.Height > maxDim {
		maxDim = m.Height
	}
	return maxDim < smallIconMaxDim || m.Width*m.Height < smallIconMaxArea
}

func isProcedureBanner(m domain.FigureMetrics) bool {
	return m.Aspect >= bannerMinAspect && m.InkRatio <= bannerMaxInk && m.LineRatio >= bannerMinLine
}

// looksLikeQR matches undecodable QR prints: near-square, calibrated size,
// simultaneously high edge, line and ink density.
func looksLikeQR(m domain.FigureMetrics) bool {
	minDim := m.Width
	if m.Height < minDim {
		minDim = m.Height
	}
	if minDim < qrMinDim || minDim > qrMaxDim {
		return false
	}
	if m.Aspect == 0 || m.Aspect < 1-qrAspectSlack || m.Aspect > 1+qrAspectSlack {
		return false
	}
	return m.EdgeRatio >= qrMinEdgeRatio && m.LineRatio >= qrMinLineRatio && m.InkRatio >= qrMinInkRatio
}

func decodeQR(img image.Image) bool {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return false
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	return err == nil && res != nil && res.GetText() != ""
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

func inkRatio(gray *image.Gray) float64 {
	b := gray.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	ink := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if gray.GrayAt(x, y).Y < inkThreshold {
				ink++
			}
		}
	}
	return float64(ink) / float64(total)
}

// edgeRatio counts pixels whose Sobel gradient magnitude crosses the
// calibrated threshold.
func edgeRatio(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	at := func(x, y int) int {
		return int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}
	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy >= edgeGradientThreshold*4 {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

// lineRatio isolates long horizontal and vertical runs: a morphological
// opening with line kernels sized relative to the image, then the union.
func lineRatio(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	threshold := otsuThreshold(gray)
	fg := make([]bool, w*h) // dark foreground
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fg[y*w+x] = gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y < threshold
		}
	}

	kh := w / 30
	if kh < 10 {
		kh = 10
	}
	kv := h / 30
	if kv < 10 {
		kv = 10
	}

	kept := make([]bool, w*h)
	// Horizontal opening: runs of foreground at least kh long survive.
	for y := 0; y < h; y++ {
		run := 0
		for x := 0; x <= w; x++ {
			if x < w && fg[y*w+x] {
				run++
				continue
			}
			if run >= kh {
				for i := x - run; i < x; i++ {
					kept[y*w+i] = true
				}
			}
			run = 0
		}
	}
	// Vertical opening.
	for x := 0; x < w; x++ {
		run := 0
		for y := 0; y <= h; y++ {
			if y < h && fg[y*w+x] {
				run++
				continue
			}
			if run >= kv {
				for i := y - run; i < y; i++ {
					kept[i*w+x] = true
				}
			}
			run = 0
		}
	}

	count := 0
	for _, k := range kept {
		if k {
			count++
		}
	}
	return float64(count) / float64(w*h)
}

// otsuThreshold picks the gray level separating ink from background by
// maximizing between-class variance.
func otsuThreshold(gray *image.Gray) uint8 {
	b := gray.Bounds()
	var hist [256]int
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return inkThreshold
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	var best float64
	threshold := uint8(inkThreshold)
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(i)
		}
	}
	return threshold
}
