package cocods

import (
	"github.com/pkg/errors"
)

// Labels are the normalised targets of a single image.
type Labels struct {
	Boxes   [][4]float32 // Center x, center y, width, height as fractions of the image size.
	Classes []int32      // The COCO category id of each box.
	Crowd   bool         // At least one annotation is marked "iscrowd".
}

// NormalizeBox converts an absolute box to center coordinates relative to the image size.
//
// Only the image dimensions are divided by, so degenerate boxes with zero width or height map to
// zero-area boxes.
func NormalizeBox(b Box, height, width int) NormBox {
	w := float64(width)
	h := float64(height)
	return NormBox{
		(b[0] + b[2]/2) / w,
		(b[1] + b[3]/2) / h,
		b[2] / w,
		b[3] / h,
	}
}

// DenormalizeBox is the inverse of NormalizeBox.
func DenormalizeBox(nb NormBox, height, width int) Box {
	w := float64(width)
	h := float64(height)
	bw := nb[2] * w
	bh := nb[3] * h
	return Box{
		nb[0]*w - bw/2,
		nb[1]*h - bh/2,
		bw,
		bh,
	}
}

// NormalizeLabels converts the annotations of an image with the given dimensions to Labels.
func NormalizeLabels(anns []COCOAnnotation, height, width int) (Labels, error) {
	if height <= 0 || width <= 0 {
		return Labels{}, errors.Errorf("invalid image dimensions %dx%d", width, height)
	}

	labels := Labels{
		Boxes:   make([][4]float32, 0, len(anns)),
		Classes: make([]int32, 0, len(anns)),
	}
	for _, a := range anns {
		if a.IsCrowd != 0 {
			labels.Crowd = true
		}

		nb := NormalizeBox(Box(a.BBox), height, width)
		labels.Boxes = append(labels.Boxes,
			[4]float32{float32(nb[0]), float32(nb[1]), float32(nb[2]), float32(nb[3])})
		labels.Classes = append(labels.Classes, int32(a.CategoryID))
	}

	return labels, nil
}
