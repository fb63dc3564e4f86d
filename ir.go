package cocods

// The intermediate annotation metadata representation.

import (
	"go.uber.org/zap"
)

// Box is an absolute bounding box in pixels: the top-left corner x, y followed by width, height.
// This is the layout of the COCO "bbox" field.
type Box [4]float64

// Width is the box width.
func (b Box) Width() float64 {
	return b[2]
}

// Height is the box height.
func (b Box) Height() float64 {
	return b[3]
}

// Corners returns the absolute x1, y1, x2, y2 offsets from the top-left image corner.
func (b Box) Corners() [4]float64 {
	return [4]float64{b[0], b[1], b[0] + b[2], b[1] + b[3]}
}

// NormBox is a bounding box as center x, center y, width, height, each a fraction of the image
// width or height.
type NormBox [4]float64

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Box        Box
	CategoryID int64
	IsCrowd    bool
}

// AnnotatedFile is the intermediate representation of an image and its labels.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations.
	FilePath    string       // The annotated image file.
	ImageID     int64        // The COCO image id.
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// Filter filters out annotations whose category is not in categoryIDs, that have a bounding box
// with less than minBboxWidth or minBboxHeight, or that are crowd annotations when dropCrowd is
// set. An empty categoryIDs keeps all categories.
//
// Files left without annotations are removed when requireLabel is true.
func (data *AnnotatedFiles) Filter(categoryIDs []int64, minBboxWidth, minBboxHeight float64,
		dropCrowd, requireLabel bool) {

	keepCategory := make(map[int64]bool, len(categoryIDs))
	for _, id := range categoryIDs {
		keepCategory[id] = true
	}

	numFiles := len(*data)
	numLabelsBeforeFilter := 0
	numLabelsAfterFilter := 0

	kept := (*data)[:0]
	for _, d := range *data {
		numLabelsBeforeFilter += len(d.Annotations)

		annotations := d.Annotations[:0]
		for _, a := range d.Annotations {
			if len(keepCategory) > 0 && !keepCategory[a.CategoryID] {
				continue
			}
			if minBboxWidth > a.Box.Width() || minBboxHeight > a.Box.Height() {
				continue
			}
			if dropCrowd && a.IsCrowd {
				continue
			}
			annotations = append(annotations, a)
		}
		d.Annotations = annotations
		numLabelsAfterFilter += len(d.Annotations)

		if requireLabel && len(d.Annotations) == 0 {
			continue
		}
		kept = append(kept, d)
	}
	*data = kept

	Log().Info("Filtered annotations",
		zap.Int("labels", numLabelsBeforeFilter-numLabelsAfterFilter),
		zap.Int("files", numFiles-len(*data)))
}
