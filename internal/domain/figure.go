package domain

// Figure categories assigned by the classifier, in priority order.
const (
	CategoryQRCode          = "qr_code"
	CategoryQRCodeHeuristic = "qr_code_heuristic"
	CategorySmallIcon       = "small_icon"
	CategoryProcedureBanner = "procedure_banner"
	CategoryPhotoOrDiagram  = "photo_or_diagram"
	CategoryMissingFile     = "missing_file"
)

// FigureMetrics are the measured image statistics the classifier decides on.
type FigureMetrics struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Aspect    float64 `json:"aspect"`
	InkRatio  float64 `json:"ink_ratio"`
	EdgeRatio float64 `json:"edge_ratio"`
	LineRatio float64 `json:"line_ratio"`
}

// FigureRecord is the audit record of one extracted figure through the
// filter and caption stages.
type FigureRecord struct {
	DocID          string        `json:"doc_id"`
	Page           int           `json:"page"`
	Index          int           `json:"figure_index"`
	File           string        `json:"file"`
	Category       string        `json:"category"`
	KeepForCaption bool          `json:"keep_for_caption"`
	Tags           []string      `json:"tags,omitempty"`
	Metrics        FigureMetrics `json:"metrics"`
	BBoxNorm       [4]float64    `json:"bbox_norm,omitempty"`
	CenterNorm     [2]float64    `json:"bbox_center_norm,omitempty"`
	CaptionFile    string        `json:"caption_file,omitempty"`
	Caption        string        `json:"caption_short,omitempty"`
	CaptionModel   string        `json:"caption_model,omitempty"`
	FallbackReason string        `json:"caption_fallback_reason,omitempty"`
}

// Captionable reports whether the figure should produce a figure chunk.
func (f *FigureRecord) Captionable() bool {
	return f.KeepForCaption && f.Caption != ""
}
