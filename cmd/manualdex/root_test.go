package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocIDForPDF(t *testing.T) {
	assert.Equal(t, "WN2200MR manual", docIDForPDF("/data/raw/WN2200MR manual.pdf"))
	assert.Equal(t, "manual", docIDForPDF("manual.pdf"))
}

func TestSelectDocs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"washer.pdf", "dryer.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	cfg.Paths.RawDir = dir

	docs, err := selectDocs(nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "dryer", docs[0].ID)
	assert.Equal(t, "washer", docs[1].ID)

	docs, err = selectDocs([]string{"washer"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "washer", docs[0].ID)

	_, err = selectDocs([]string{"missing"})
	assert.Error(t, err)
}

func TestCompositeImagesSorted(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "washer.pdf")
	for _, name := range []string{"washer_2.png", "washer_1.png", "other.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	images := compositeImages(pdf)
	require.Len(t, images, 2)
	assert.Equal(t, filepath.Join(dir, "washer_1.png"), images[0])
	assert.Equal(t, filepath.Join(dir, "washer_2.png"), images[1])
}
