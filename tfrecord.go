package cocods

// TFRecord export of normalised object detection labels.

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	tensorflow "github.com/ryszard/tfutils/proto/tensorflow/core/example"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// LabelMapItem is one entry of the label map written next to the TFRecord files.
type LabelMapItem struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// toTFRecord converts the intermediate representation for a single file to a TFRecord feature
// map. Boxes are stored normalised in center format, like the pipeline yields them.
func toTFRecord(fileData AnnotatedFile, names map[int64]string) (TFFeatureMap, error) {
	// Get the image width and height.
	img, format, err := decodeImageConfig(fileData.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode the image metadata")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, errors.Errorf("invalid image dimensions %dx%d", img.Width, img.Height)
	}

	// Read the image data.
	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the image")
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = fileData.FilePath
	f["image/source_id"] = strconv.FormatInt(fileData.ImageID, 10)
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xcs := make([]float32, numLabels)
	ycs := make([]float32, numLabels)
	widths := make([]float32, numLabels)
	heights := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	crowd := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		nb := NormalizeBox(a.Box, img.Height, img.Width)
		xcs[i] = float32(nb[0])
		ycs[i] = float32(nb[1])
		widths[i] = float32(nb[2])
		heights[i] = float32(nb[3])
		classIDs[i] = a.CategoryID
		if name, ok := names[a.CategoryID]; ok {
			classes[i] = name
		} else {
			classes[i] = ClassName(a.CategoryID)
		}
		if a.IsCrowd {
			crowd[i] = 1
		}
	}
	f["image/object/bbox/xc"] = xcs
	f["image/object/bbox/yc"] = ycs
	f["image/object/bbox/w"] = widths
	f["image/object/bbox/h"] = heights
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs
	f["image/object/is_crowd"] = crowd

	return f, nil
}

// WriteCustomTFRecord works like WriteTFRecord, except that it allows for the TFFeatureMap to be
// customised.
//
// Before generating a tensorflow.Example from each AnnotatedFile and writing it to the TFRecord
// file, the source data and TFFeatureMap containing the default conversion are passed to
// customiseFeature, which may modify the feature map to its liking, as long as all of its values
// can be converted to tensorflow.Feature.
func WriteCustomTFRecord(recordFilePath, labelMapPath string, data []AnnotatedFile,
		categories []COCOCategory, numShards int,
		customiseFeature func(f AnnotatedFile, m TFFeatureMap)) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		err := shardFile.Close()
		shardFile = nil
		return err
	}
	defer closeWithErrCheck(closerFunc(closeShard), &err)

	shardIdx := -1
	openNextShard := func() error {
		shardIdx++
		if err := closeShard(); err != nil {
			return errors.Wrap(err, "failed to close shard")
		}

		shardPath := recordFilePath
		if numShards > 1 {
			shardPath += fmtShardSuffix(shardIdx)
		}
		f, err := os.Create(shardPath)
		if err != nil {
			return errors.Wrapf(err, "failed to create shard at %q", shardPath)
		}
		shardFile = f
		return nil
	}

	written := 0

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Spread the files evenly over the shards.
		for target := i * numShards / len(data); shardIdx < target; {
			if err := openNextShard(); err != nil {
				return err
			}
		}

		// Convert the file data to an example.
		features, err := toTFRecord(fileData, names)
		if err != nil {
			Log().Warn("Failed to convert", zap.String("path", fileData.FilePath), zap.Error(err))
			continue
		}
		if customiseFeature != nil {
			customiseFeature(fileData, features)
		}
		tfExample := example.New(features)

		// Write the example.
		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return errors.Wrapf(err, "failed to write example for %q", fileData.FilePath)
		}
		written++
	}

	// Every shard file exists, even when there are fewer files than shards.
	for shardIdx < numShards-1 {
		if err := openNextShard(); err != nil {
			return err
		}
	}

	Log().Info("Wrote TFRecord examples",
		zap.String("path", recordFilePath), zap.Int("examples", written), zap.Int("shards", shardIdx+1))

	return saveLabelMap(labelMapPath, categories)
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// The categories are written as a label map to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data []AnnotatedFile,
		categories []COCOCategory, numShards int) error {
	return WriteCustomTFRecord(recordFilePath, labelMapPath, data, categories, numShards, nil)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveLabelMap writes the categories to path as a YAML list of id and name pairs.
func saveLabelMap(path string, categories []COCOCategory) error {
	items := make([]LabelMapItem, len(categories))
	for i, c := range categories {
		items[i] = LabelMapItem{ID: c.ID, Name: c.Name}
	}

	enc, err := yaml.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "failed to encode the label map")
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return errors.Wrapf(err, "failed to write the label map %q", path)
	}

	return nil
}
