package chunk

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// BuildFigures turns kept, captioned figures into figure chunks: exactly one
// chunk per figure, embedding text is the caption. Kept figures without a
// caption are excluded here but stay retryable in the filter-stage record.
func BuildFigures(docID string, figures []domain.FigureRecord, logger *zap.Logger) []domain.Chunk {
	var chunks []domain.Chunk
	skipped := 0
	for _, f := range figures {
		if !f.Captionable() {
			if f.KeepForCaption {
				skipped++
			}
			continue
		}
		chunks = append(chunks, domain.Chunk{
			UID:            domain.FigureChunkUID(docID, len(chunks)),
			DocID:          docID,
			Type:           domain.ChunkFigure,
			Text:           f.Caption,
			CharLen:        len(f.Caption),
			Page:           f.Page,
			FigureIndex:    f.Index,
			Category:       f.Category,
			Tags:           f.Tags,
			ImageFile:      f.CaptionFile,
			OrigImageFile:  f.File,
			CaptionModel:   f.CaptionModel,
			FallbackReason: f.FallbackReason,
		})
	}

	if logger != nil {
		logger.Info("figure chunks built",
			zap.String("doc_id", docID),
			zap.Int("chunks", len(chunks)),
			zap.Int("uncaptioned_kept", skipped),
		)
	}
	return chunks
}
