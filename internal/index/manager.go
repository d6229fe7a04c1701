package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

const (
	indexFileName    = "manual_index.bin"
	metaFileName     = "vectors_meta.jsonl"
	manifestFileName = "manifest.json"
)

// Manager owns the three index artifacts (binary vectors, metadata log,
// manifest) under a single directory. All mutations go through one mutex
// and publish via staged write plus rename, so readers never observe a
// half-written artifact set.
type Manager struct {
	dir     string
	model   string
	dim     int
	batcher BatchEmbedder
	logger  *zap.Logger

	mu sync.Mutex
}

type ManagerConfig struct {
	Dir     string
	Model   string
	Dim     int
	Batcher BatchEmbedder
	Logger  *zap.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		dir:     cfg.Dir,
		model:   cfg.Model,
		dim:     cfg.Dim,
		batcher: cfg.Batcher,
		logger:  log,
	}
}

func (m *Manager) IndexPath() string    { return filepath.Join(m.dir, indexFileName) }
func (m *Manager) MetaPath() string     { return filepath.Join(m.dir, metaFileName) }
func (m *Manager) ManifestPath() string { return filepath.Join(m.dir, manifestFileName) }

// Load reads the published artifacts for search. It does not take the
// writer lock; rename publication keeps concurrent reads consistent.
func (m *Manager) Load() (*Flat, []domain.VectorRecord, *Manifest, error) {
	if !fileExists(m.IndexPath()) || !fileExists(m.MetaPath()) {
		return nil, nil, nil, fmt.Errorf("%w: %s", domain.ErrIndexNotInitialized, m.dir)
	}
	flat, err := LoadFlat(m.IndexPath())
	if err != nil {
		return nil, nil, nil, err
	}
	records, err := readRecords(m.MetaPath())
	if err != nil {
		return nil, nil, nil, err
	}
	if flat.Len() != len(records) {
		m.logger.Warn("index and metadata counts differ",
			zap.Int("index_vectors", flat.Len()),
			zap.Int("meta_records", len(records)))
	}
	manifest, err := LoadManifest(m.ManifestPath())
	if err != nil {
		m.logger.Warn("manifest unreadable, continuing without it", zap.Error(err))
		manifest = &Manifest{EmbedModel: m.model, OutputDimensionality: m.dim, IndexType: IndexType}
	}
	return flat, records, manifest, nil
}

// Build embeds the given chunks and writes a fresh artifact set,
// replacing whatever was published before.
func (m *Manager) Build(ctx context.Context, chunks []domain.Chunk, sources map[string]string, chunkDirs []string) (*Manifest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunks) == 0 {
		metrics.IndexOperationsTotal.WithLabelValues("build", "error").Inc()
		return nil, domain.ErrNoChunks
	}
	vectors, kept, err := m.embedChunks(ctx, chunks)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("build", "error").Inc()
		return nil, err
	}
	if len(kept) == 0 {
		metrics.IndexOperationsTotal.WithLabelValues("build", "error").Inc()
		return nil, fmt.Errorf("%w: all embedding batches failed", domain.ErrEmbeddingProviderError)
	}

	flat := NewFlat(m.dim)
	if err := flat.Add(vectors); err != nil {
		return nil, err
	}
	records := make([]domain.VectorRecord, 0, len(kept))
	for _, c := range kept {
		records = append(records, domain.RecordFromChunk(&c, len(records), sources[c.DocID]))
	}

	manifest := m.newManifest(records, chunkDirs)
	manifest.CreatedAt = nowISO()
	if err := m.publish(flat, records, manifest); err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("build", "error").Inc()
		return nil, err
	}
	metrics.IndexOperationsTotal.WithLabelValues("build", "ok").Inc()
	metrics.IndexVectors.Set(float64(flat.Len()))
	m.logger.Info("index built",
		zap.Int("vectors", flat.Len()),
		zap.Int("chunks_in", len(chunks)))
	return manifest, nil
}

// Append adds chunks whose UIDs are not already indexed. With no existing
// index it degenerates to Build.
func (m *Manager) Append(ctx context.Context, chunks []domain.Chunk, sources map[string]string, chunkDirs []string) (*Manifest, error) {
	m.mu.Lock()
	existing, records, manifest, err := m.Load()
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotInitialized) {
			m.mu.Unlock()
			m.logger.Info("no index found, building from scratch")
			return m.Build(ctx, chunks, sources, chunkDirs)
		}
		m.mu.Unlock()
		return nil, err
	}
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.UID] = struct{}{}
	}
	fresh := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, dup := seen[c.UID]; !dup {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		m.logger.Info("append found no new chunks", zap.Int("offered", len(chunks)))
		metrics.IndexOperationsTotal.WithLabelValues("append", "ok").Inc()
		return manifest, nil
	}

	vectors, kept, err := m.embedChunks(ctx, fresh)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("append", "error").Inc()
		return nil, err
	}
	if err := existing.Add(vectors); err != nil {
		return nil, err
	}
	for _, c := range kept {
		records = append(records, domain.RecordFromChunk(&c, len(records), sources[c.DocID]))
	}

	updated := m.mergeManifest(manifest, records, chunkDirs)
	if err := m.publish(existing, records, updated); err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("append", "error").Inc()
		return nil, err
	}
	metrics.IndexOperationsTotal.WithLabelValues("append", "ok").Inc()
	metrics.IndexVectors.Set(float64(existing.Len()))
	m.logger.Info("index appended",
		zap.Int("added", len(kept)),
		zap.Int("skipped_duplicates", len(chunks)-len(fresh)),
		zap.Int("vectors", existing.Len()))
	return updated, nil
}

// ReplaceDoc removes every vector belonging to docID, keeps the rest
// untouched, and indexes the given chunks in their place. Without an
// existing index it builds fresh; when the document is absent it appends.
func (m *Manager) ReplaceDoc(ctx context.Context, docID string, chunks []domain.Chunk, sources map[string]string, chunkDirs []string) (*Manifest, error) {
	m.mu.Lock()
	existing, records, manifest, err := m.Load()
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotInitialized) {
			m.mu.Unlock()
			m.logger.Info("no index found, building from scratch", zap.String("doc_id", docID))
			return m.Build(ctx, chunks, sources, chunkDirs)
		}
		m.mu.Unlock()
		return nil, err
	}

	removed := 0
	for _, r := range records {
		if r.DocID == docID {
			removed++
		}
	}
	if removed == 0 {
		m.mu.Unlock()
		m.logger.Info("document not indexed, appending instead", zap.String("doc_id", docID))
		return m.Append(ctx, chunks, sources, chunkDirs)
	}
	defer m.mu.Unlock()

	keptRecords := make([]domain.VectorRecord, 0, len(records)-removed)
	flat := NewFlat(m.dim)
	for line, r := range records {
		if r.DocID == docID {
			continue
		}
		pos := r.VectorIndex
		row, ok := existing.At(pos)
		if !ok {
			// Older logs may lack a stored position; fall back to the
			// line number before giving up on the record.
			row, ok = existing.At(line)
			pos = line
		}
		if !ok {
			m.logger.Warn("vector position out of range, dropping record",
				zap.String("uid", r.UID),
				zap.Int("vector_index", pos))
			continue
		}
		if err := flat.Add([][]float32{row}); err != nil {
			return nil, err
		}
		r.VectorIndex = flat.Len() - 1
		keptRecords = append(keptRecords, r)
	}

	newRecords := keptRecords
	addedCount := 0
	if len(chunks) > 0 {
		vectors, kept, err := m.embedChunks(ctx, chunks)
		if err != nil {
			metrics.IndexOperationsTotal.WithLabelValues("replace", "error").Inc()
			return nil, err
		}
		if err := flat.Add(vectors); err != nil {
			return nil, err
		}
		for _, c := range kept {
			newRecords = append(newRecords, domain.RecordFromChunk(&c, len(newRecords), sources[c.DocID]))
		}
		addedCount = len(kept)
	}

	updated := m.mergeManifest(manifest, newRecords, chunkDirs)
	if err := m.publish(flat, newRecords, updated); err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("replace", "error").Inc()
		return nil, err
	}
	metrics.IndexOperationsTotal.WithLabelValues("replace", "ok").Inc()
	metrics.IndexVectors.Set(float64(flat.Len()))
	m.logger.Info("document replaced in index",
		zap.String("doc_id", docID),
		zap.Int("removed", removed),
		zap.Int("added", addedCount),
		zap.Int("vectors", flat.Len()))
	return updated, nil
}

func (m *Manager) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, []domain.Chunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	res, err := m.batcher.EmbedAll(ctx, texts, m.dim)
	if err != nil {
		return nil, nil, err
	}
	kept := make([]domain.Chunk, len(res.Positions))
	for i, pos := range res.Positions {
		kept[i] = chunks[pos]
	}
	if res.Dropped > 0 {
		m.logger.Warn("some embedding batches were dropped",
			zap.Int("dropped_batches", res.Dropped),
			zap.Int("embedded", len(kept)))
	}
	return res.Vectors, kept, nil
}

func (m *Manager) newManifest(records []domain.VectorRecord, chunkDirs []string) *Manifest {
	manifest := &Manifest{
		EmbedModel:           m.model,
		OutputDimensionality: m.dim,
		IndexType:            IndexType,
		ChunkDirs:            chunkDirs,
	}
	fillCounts(manifest, records)
	manifest.UpdatedAt = nowISO()
	return manifest
}

func (m *Manager) mergeManifest(prev *Manifest, records []domain.VectorRecord, chunkDirs []string) *Manifest {
	manifest := m.newManifest(records, mergeDirs(prev.ChunkDirs, chunkDirs))
	manifest.CreatedAt = prev.CreatedAt
	if manifest.CreatedAt == "" {
		manifest.CreatedAt = manifest.UpdatedAt
	}
	manifest.Note = prev.Note
	return manifest
}

func fillCounts(manifest *Manifest, records []domain.VectorRecord) {
	manifest.NumVectors = len(records)
	manifest.NumTextChunks = 0
	manifest.NumFigureChunks = 0
	for _, r := range records {
		switch r.Type {
		case domain.ChunkFigure:
			manifest.NumFigureChunks++
		default:
			manifest.NumTextChunks++
		}
	}
}

func mergeDirs(prev, next []string) []string {
	seen := make(map[string]struct{}, len(prev)+len(next))
	out := make([]string, 0, len(prev)+len(next))
	for _, d := range append(append([]string{}, prev...), next...) {
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// publish stages all three artifacts next to their final paths and then
// renames each into place.
func (m *Manager) publish(flat *Flat, records []domain.VectorRecord, manifest *Manifest) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	stagedIndex := m.IndexPath() + ".tmp"
	stagedMeta := m.MetaPath() + ".tmp"
	stagedManifest := m.ManifestPath() + ".tmp"

	if err := flat.Save(stagedIndex); err != nil {
		return err
	}
	if err := writeRecords(stagedMeta, records); err != nil {
		return err
	}
	if err := manifest.save(stagedManifest); err != nil {
		return err
	}
	for _, p := range [][2]string{
		{stagedIndex, m.IndexPath()},
		{stagedMeta, m.MetaPath()},
		{stagedManifest, m.ManifestPath()},
	} {
		if err := os.Rename(p[0], p[1]); err != nil {
			return fmt.Errorf("publish %s: %w", filepath.Base(p[1]), err)
		}
	}
	return nil
}

func readRecords(path string) ([]domain.VectorRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata log: %w", err)
	}
	defer f.Close()

	var out []domain.VectorRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r domain.VectorRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode metadata line %d: %w", len(out)+1, err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read metadata log: %w", err)
	}
	return out, nil
}

func writeRecords(path string, records []domain.VectorRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metadata log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode metadata record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush metadata log: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
