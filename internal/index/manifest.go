package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IndexType identifies the storage/search structure in the manifest.
const IndexType = "flat_ip_l2norm"

// Manifest describes the published index artifacts.
type Manifest struct {
	EmbedModel           string   `json:"embed_model"`
	OutputDimensionality int      `json:"output_dimensionality"`
	IndexType            string   `json:"index_type"`
	NumVectors           int      `json:"num_vectors"`
	NumTextChunks        int      `json:"num_text_chunks"`
	NumFigureChunks      int      `json:"num_figure_chunks"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
	ChunkDirs            []string `json:"chunk_dirs,omitempty"`
	Note                 string   `json:"note,omitempty"`
}

func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
