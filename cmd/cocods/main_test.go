package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorable/cocods"
)

const testInstances = `{
  "images": [
    {"id": 1, "file_name": "a.png", "width": 8, "height": 8},
    {"id": 2, "file_name": "empty.png", "width": 8, "height": 8},
    {"id": 3, "file_name": "gone.png", "width": 8, "height": 8}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 1, "bbox": [0, 0, 4, 4], "area": 16, "iscrowd": 0},
    {"id": 11, "image_id": 3, "category_id": 1, "bbox": [0, 0, 4, 4], "area": 16, "iscrowd": 0}
  ],
  "categories": [{"id": 1, "name": "person", "supercategory": "person"}]
}`

// writeDataset writes a val split with one annotated image, one image without annotations and one
// annotated image whose file is missing.
func writeDataset(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "annotations"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "val2017"), 0755))
	require.NoError(t, os.WriteFile(cocods.AnnotationFilePath(dir, "val"), []byte(testInstances), 0644))

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	for _, name := range []string{"a.png", "empty.png"} {
		f, err := os.Create(cocods.ImagePath(dir, "val", name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	return dir
}

func TestExportTFRecord(t *testing.T) {
	dir := writeDataset(t)
	out := t.TempDir()

	split = "val"
	tfRecordOutFilePath = filepath.Join(out, "coco.record")
	tfRecordLabelMapFilePath = filepath.Join(out, "labels.yaml")
	numShardFiles = 1
	defer func() { tfRecordOutFilePath, tfRecordLabelMapFilePath = "", "" }()

	cfg := cocods.DefaultConfig()
	cfg.DataDir = dir

	require.True(t, filterRequireLabel, "images without annotations are not exported by default")
	written, err := exportTFRecord(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, written, "the empty image is filtered and the missing one is skipped")
	assert.FileExists(t, tfRecordOutFilePath)
	assert.FileExists(t, tfRecordLabelMapFilePath)

	filterRequireLabel = false
	defer func() { filterRequireLabel = true }()
	written, err = exportTFRecord(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
}
