package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

// Flat index file framing: magic, version, dimension, count, then contiguous
// little-endian float32 rows. Flat storage keeps reconstruct-by-position O(1),
// which per-document replacement depends on.
const (
	flatMagic   uint32 = 0x4D445846 // "MDXF"
	flatVersion uint16 = 1
)

// Flat is a brute-force inner-product index over L2-normalized vectors.
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty index of the given dimensionality.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the vector dimensionality.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.vectors) }

// Add appends vectors in order.
func (f *Flat) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector has dim %d, index has %d: %w",
				len(v), f.dim, domain.ErrVectorDimMismatch)
		}
		f.vectors = append(f.vectors, v)
	}
	return nil
}

// At reconstructs the vector at a position. The returned slice is the stored
// row; callers must not mutate it.
func (f *Flat) At(position int) ([]float32, bool) {
	if position < 0 || position >= len(f.vectors) {
		return nil, false
	}
	return f.vectors[position], true
}

// Hit is one nearest neighbor.
type Hit struct {
	Position int
	Score    float64
}

// Search returns the k highest inner products against the query.
func (f *Flat) Search(query []float32, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}
	hits := make([]Hit, 0, len(f.vectors))
	for i, v := range f.vectors {
		hits = append(hits, Hit{Position: i, Score: domain.Dot(query, v)})
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// Save writes the index to a file.
func (f *Flat) Save(path string) error {
	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	header := []any{flatMagic, flatVersion, uint32(f.dim), uint64(len(f.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	buf := make([]byte, 4)
	for _, v := range f.vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return nil
}

// LoadFlat reads an index file.
func LoadFlat(path string) (*Flat, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var (
		magic   uint32
		version uint16
		dim     uint32
		count   uint64
	)
	for _, h := range []any{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, h); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if magic != flatMagic {
		return nil, fmt.Errorf("not an index file: magic %#x", magic)
	}
	if version != flatVersion {
		return nil, fmt.Errorf("unsupported index version %d", version)
	}

	f := NewFlat(int(dim))
	buf := make([]byte, 4*int(dim))
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		f.vectors = append(f.vectors, v)
	}
	return f, nil
}
