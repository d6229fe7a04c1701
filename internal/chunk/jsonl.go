package chunk

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// TextLogPath returns the text chunk log location for a document.
func TextLogPath(dir, docID string) string {
	return filepath.Join(dir, docID+"_text.jsonl")
}

// FigureLogPath returns the figure chunk log location for a document.
func FigureLogPath(dir, docID string) string {
	return filepath.Join(dir, docID+"_figure.jsonl")
}

// WriteLog writes chunks as JSON Lines, one record per line.
func WriteLog(path string, chunks []domain.Chunk) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create chunk log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range chunks {
		if err := enc.Encode(&chunks[i]); err != nil {
			return fmt.Errorf("encode chunk %s: %w", chunks[i].UID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush chunk log: %w", err)
	}
	return nil
}

// ReadLog reads a JSON Lines chunk log.
func ReadLog(path string) ([]domain.Chunk, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open chunk log: %w", err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("parse chunk log %s line %d: %w", path, line, err)
		}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan chunk log: %w", err)
	}
	return chunks, nil
}
