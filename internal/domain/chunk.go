package domain

import (
	"errors"
	"fmt"
)

// ChunkType discriminates the two chunk variants.
type ChunkType string

const (
	// ChunkText is a packed paragraph chunk.
	ChunkText ChunkType = "text"
	// ChunkFigure is a captioned figure chunk.
	ChunkFigure ChunkType = "figure"
)

// Chunk is the atomic embed/retrieve unit: a bounded text passage or one
// figure caption. The Type field selects which optional fields are meaningful.
type Chunk struct {
	UID     string    `json:"chunk_id"`
	DocID   string    `json:"doc_id"`
	Type    ChunkType `json:"type"`
	Text    string    `json:"content"`
	CharLen int       `json:"char_len"`

	// Text variant.
	PageStart    int    `json:"page_start,omitempty"`
	PageEnd      int    `json:"page_end,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`

	// Figure variant.
	Page           int      `json:"page,omitempty"`
	FigureIndex    int      `json:"figure_index,omitempty"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	ImageFile      string   `json:"image_file,omitempty"`
	OrigImageFile  string   `json:"orig_image_file,omitempty"`
	CaptionModel   string   `json:"caption_model,omitempty"`
	FallbackReason string   `json:"caption_fallback_reason,omitempty"`
}

// TextChunkUID formats the uid of the idx-th text chunk of a document.
func TextChunkUID(docID string, idx int) string {
	return fmt.Sprintf("%s_text_%04d", docID, idx)
}

// FigureChunkUID formats the uid of the idx-th figure chunk of a document.
func FigureChunkUID(docID string, idx int) string {
	return fmt.Sprintf("%s:figure:%04d", docID, idx)
}

// Validate checks the chunk invariants.
func (c *Chunk) Validate() error {
	if c.UID == "" {
		return errors.New("chunk uid is empty")
	}
	if c.DocID == "" {
		return errors.New("chunk doc_id is empty")
	}
	if c.Text == "" {
		return errors.New("chunk content is empty")
	}
	if c.CharLen != len(c.Text) {
		return fmt.Errorf("chunk %s: char_len %d does not match content length %d", c.UID, c.CharLen, len(c.Text))
	}
	switch c.Type {
	case ChunkText:
		if c.PageStart > c.PageEnd {
			return fmt.Errorf("chunk %s: page_start %d after page_end %d", c.UID, c.PageStart, c.PageEnd)
		}
	case ChunkFigure:
		if c.Page <= 0 {
			return fmt.Errorf("chunk %s: figure chunk without a page", c.UID)
		}
	default:
		return fmt.Errorf("chunk %s: unknown type %q", c.UID, c.Type)
	}
	return nil
}
