package pagesplit

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	testXWindow = Window{Threshold: 2280, Deviation: 240}
	testYWindow = Window{Threshold: 3103, Deviation: 299}
)

func testSplitter() *Splitter {
	return New(Config{
		XWindow:   testXWindow,
		YWindow:   testYWindow,
		Language:  "ko",
		Namespace: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Logger:    zap.NewNop(),
	})
}

func TestAxisPages_SinglePage(t *testing.T) {
	res := axisPages(2280, testXWindow)
	if res.Pages != 1 || res.Done {
		t.Fatalf("expected 1 page, got %+v", res)
	}
}

func TestAxisPages_PowerOfTwoRecovery(t *testing.T) {
	tests := []struct {
		name  string
		value int
		want  int
	}{
		{"two pages", 2 * 2280, 2},
		{"four pages", 4 * 2280, 4},
		{"eight pages", 8 * 2280, 8},
		{"two pages off nominal", 2 * 2400, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := axisPages(tc.value, testXWindow)
			if res.Done {
				t.Fatalf("unexpected done for %d", tc.value)
			}
			if res.Pages != tc.want {
				t.Errorf("axisPages(%d) = %d, want %d", tc.value, res.Pages, tc.want)
			}
		})
	}
}

func TestAxisPages_UndershootAcceptsSinglePage(t *testing.T) {
	// Below the window from the start: the first halving undershoots.
	res := axisPages(900, testXWindow)
	if !res.Done {
		t.Fatal("expected done result")
	}
	if res.Pages != 1 {
		t.Errorf("expected 1 page, got %d", res.Pages)
	}

	// Slightly above the window but not near a doubling: halving undershoots too.
	res = axisPages(2600, testXWindow)
	if !res.Done || res.Pages != 1 {
		t.Errorf("expected single-page fallback, got %+v", res)
	}
}

func TestCellSize_AlignsToEven(t *testing.T) {
	if got := cellSize(4000, 2); got != 2000 {
		t.Errorf("cellSize(4000,2) = %d", got)
	}
	// Odd dimension is bumped to even before halving.
	if got := cellSize(4001, 2); got != 2001 {
		t.Errorf("cellSize(4001,2) = %d", got)
	}
	if got := cellSize(9120, 4); got != 2280 {
		t.Errorf("cellSize(9120,4) = %d", got)
	}
	if got := cellSize(9121, 4); got != 2281 {
		t.Errorf("cellSize(9121,4) = %d", got)
	}
}

func TestSlice_GridRecovery(t *testing.T) {
	// A 2x2 composite of nominal pages.
	img := image.NewGray(image.Rect(0, 0, 2*2280, 2*3103))
	s := testSplitter()

	slices := s.Slice(img)
	if len(slices) != 4 {
		t.Fatalf("expected 4 slices, got %d", len(slices))
	}

	var wsum, hsum int
	for i, sl := range slices {
		b := sl.Bounds()
		if b.Dx() != 2280 || b.Dy() != 3103 {
			t.Errorf("slice %d is %dx%d, want 2280x3103", i, b.Dx(), b.Dy())
		}
		if i < 2 {
			wsum += b.Dx()
		}
		if i%2 == 0 {
			hsum += b.Dy()
		}
	}
	if wsum != 2*2280 || hsum != 2*3103 {
		t.Errorf("slices do not cover the composite: %d/%d", wsum, hsum)
	}
}

func TestSlice_SinglePage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2280, 3103))
	s := testSplitter()

	slices := s.Slice(img)
	if len(slices) != 1 {
		t.Fatalf("expected the image untouched, got %d slices", len(slices))
	}
}

func TestSlice_RowMajorOrder(t *testing.T) {
	// Mark each quadrant with a distinct gray level and check slice order.
	w, h := 2*2280, 2*3103
	img := image.NewGray(image.Rect(0, 0, w, h))
	levels := []uint8{10, 60, 120, 200} // TL, TR, BL, BR
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if x >= w/2 {
				q++
			}
			if y >= h/2 {
				q += 2
			}
			img.SetGray(x, y, color.Gray{Y: levels[q]})
		}
	}

	slices := testSplitter().Slice(img)
	if len(slices) != 4 {
		t.Fatalf("expected 4 slices, got %d", len(slices))
	}
	for i, sl := range slices {
		c := color.GrayModel.Convert(sl.At(5, 5)).(color.Gray)
		if c.Y != levels[i] {
			t.Errorf("slice %d starts with level %d, want %d", i, c.Y, levels[i])
		}
	}
}

func TestParsePDFDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"kst offset", "<< /ModDate (D:20240115093045+09'00') >>", "2024-01-15T00:30:45Z"},
		{"utc", "<< /ModDate (D:20240115093045Z) >>", "2024-01-15T09:30:45Z"},
		{"negative offset", "<< /ModDate (D:20240115093045-05'30') >>", "2024-01-15T15:00:45Z"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePDFDate([]byte(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("parsePDFDate = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParsePDFDate_Missing(t *testing.T) {
	if _, err := parsePDFDate([]byte("%PDF-1.7 no dates here")); err == nil {
		t.Fatal("expected error for missing ModDate")
	}
}
