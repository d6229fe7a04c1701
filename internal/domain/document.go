package domain

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Document is one ingested manual. Created once; mutated only via explicit replace.
type Document struct {
	DocID      string `json:"doc_id"`
	SourcePath string `json:"source_path"`
	PageCount  int    `json:"page_count"`
	Language   string `json:"language"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Page holds the parsed content of one logical page.
type Page struct {
	Number   int         `json:"page"`
	Text     string      `json:"text"`
	Elements []LayoutBox `json:"elements,omitempty"`
	Figures  []RawFigure `json:"figures,omitempty"`
}

// LayoutBox is one layout element with normalized coordinates in [0,1].
type LayoutBox struct {
	Category string     `json:"category"`
	Page     int        `json:"page"`
	Text     string     `json:"text,omitempty"`
	BBox     [4]float64 `json:"bbox_norm"`
}

// RawFigure is an extracted figure image before classification.
type RawFigure struct {
	Page       int        `json:"page"`
	Index      int        `json:"index"`
	File       string     `json:"file"`
	BBoxNorm   [4]float64 `json:"bbox_norm,omitempty"`
	CenterNorm [2]float64 `json:"bbox_center_norm,omitempty"`
}

// DeriveDocID produces the stable per-document identifier from the source
// filename: a v5 UUID of the base name (without extension) under the
// configured namespace.
func DeriveDocID(namespace uuid.UUID, sourcePath string) string {
	name := filepath.Base(sourcePath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
