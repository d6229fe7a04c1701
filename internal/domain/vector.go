package domain

// VectorRecord is the metadata-log line for one vector. Its VectorIndex is the
// position of the vector in the index; records are dense and contiguous from 0,
// and the record count always equals the index vector count.
type VectorRecord struct {
	VectorIndex    int       `json:"vector_index"`
	UID            string    `json:"chunk_id"`
	DocID          string    `json:"doc_id"`
	Type           ChunkType `json:"type"`
	Text           string    `json:"content"`
	CharLen        int       `json:"char_len,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	PageStart      int       `json:"page_start,omitempty"`
	PageEnd        int       `json:"page_end,omitempty"`
	SectionTitle   string    `json:"section_title,omitempty"`
	Page           int       `json:"page,omitempty"`
	FigureIndex    int       `json:"figure_index,omitempty"`
	Category       string    `json:"category,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	ImageFile      string    `json:"image_file,omitempty"`
	OrigImageFile  string    `json:"orig_image_file,omitempty"`
	FallbackReason string    `json:"caption_fallback_reason,omitempty"`
}

// RecordFromChunk builds the metadata record for a chunk at an index position.
func RecordFromChunk(c *Chunk, position int, fileName string) VectorRecord {
	return VectorRecord{
		VectorIndex:    position,
		UID:            c.UID,
		DocID:          c.DocID,
		Type:           c.Type,
		Text:           c.Text,
		CharLen:        c.CharLen,
		FileName:       fileName,
		PageStart:      c.PageStart,
		PageEnd:        c.PageEnd,
		SectionTitle:   c.SectionTitle,
		Page:           c.Page,
		FigureIndex:    c.FigureIndex,
		Category:       c.Category,
		Tags:           c.Tags,
		ImageFile:      c.ImageFile,
		OrigImageFile:  c.OrigImageFile,
		FallbackReason: c.FallbackReason,
	}
}

// ScoredChunk is one reranked search hit.
type ScoredChunk struct {
	Record   VectorRecord `json:"record"`
	RawScore float64      `json:"raw_score"`
	Score    float64      `json:"score"`
}

// SearchResult is the ranked answer set handed to the answering layer.
type SearchResult struct {
	Query      string        `json:"query"`
	TopK       int           `json:"top_k"`
	Candidates int           `json:"candidates"`
	Hits       []ScoredChunk `json:"hits"`
}
