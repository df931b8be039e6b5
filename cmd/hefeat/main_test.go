package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeROIFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegionsClassifiesUntypedByName(t *testing.T) {
	path := writeROIFile(t, `{"regions": [
		{"name": "Nucleus_3", "boundary": [{"x":0,"y":0},{"x":4,"y":0},{"x":4,"y":4},{"x":0,"y":4}]},
		{"name": "Cytoplasm_3", "boundary": [{"x":0,"y":0},{"x":8,"y":0},{"x":8,"y":8},{"x":0,"y":8}]},
		{"name": "Cell_1", "boundary": [{"x":0,"y":0},{"x":8,"y":0},{"x":8,"y":8},{"x":0,"y":8}]},
		{"name": "blob_7", "boundary": [{"x":0,"y":0},{"x":2,"y":0},{"x":2,"y":2},{"x":0,"y":2}]}
	]}`)

	c, err := loadRegions(path)
	require.NoError(t, err)

	require.Len(t, c.Nuclei, 1)
	assert.Equal(t, "Nucleus_3", c.Nuclei[0].Name)
	require.Len(t, c.Cytoplasms, 1)
	require.Len(t, c.Cells, 1)

	// Names with no recognized prefix still land in the vessel collection.
	require.Len(t, c.Vessels, 1)
	assert.Equal(t, "blob_7", c.Vessels[0].Name)
}

func TestLoadRegionsExplicitTypeWins(t *testing.T) {
	path := writeROIFile(t, `{"regions": [
		{"name": "Nucleus_9", "type": "vessel", "boundary": [{"x":0,"y":0},{"x":4,"y":0},{"x":4,"y":4},{"x":0,"y":4}]}
	]}`)

	c, err := loadRegions(path)
	require.NoError(t, err)

	assert.Empty(t, c.Nuclei, "an explicit type overrides the name prefix")
	require.Len(t, c.Vessels, 1)
	assert.Equal(t, "Nucleus_9", c.Vessels[0].Name)
}

func TestLoadRegionsRejectsUnknownType(t *testing.T) {
	path := writeROIFile(t, `{"regions": [
		{"name": "Nucleus_1", "type": "mitochondrion"}
	]}`)

	_, err := loadRegions(path)
	assert.Error(t, err)
}

func TestImageID(t *testing.T) {
	assert.Equal(t, "slide.tiff", imageID("/data/slides/slide.tiff"))
	assert.Equal(t, "slide.tiff", imageID("slide.tiff"))
}
