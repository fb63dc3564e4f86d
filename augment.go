package cocods

// Training-time augmentation of images together with their normalised boxes.

import (
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
)

// AugmentConfig configures the random augmentations applied to training samples.
type AugmentConfig struct {
	FlipProb     float64 `yaml:"flip_prob"`      // Probability of a horizontal flip.
	Scales       []int   `yaml:"scales"`         // Shorter side lengths to pick from (empty disables).
	MaxSize      int     `yaml:"max_size"`       // Upper bound for the longer side after scaling.
	CropProb     float64 `yaml:"crop_prob"`      // Probability of a random crop.
	CropMinScale float64 `yaml:"crop_min_scale"` // Min. crop side as a fraction of the image side.
	Brightness   float64 `yaml:"brightness"`     // Max. absolute brightness change in percent.
	Contrast     float64 `yaml:"contrast"`       // Max. absolute contrast change in percent.
	Saturation   float64 `yaml:"saturation"`     // Max. absolute saturation change in percent.
}

// augmentSample applies flip, crop, rescale and color jitter to img and its labels.
//
// Boxes are normalised, so rescaling leaves them unchanged. Cropping drops boxes that end up
// without area, along with their classes.
func augmentSample(img *image.NRGBA, labels Labels, cfg AugmentConfig, rng *rand.Rand) (
		*image.NRGBA, Labels) {

	if cfg.FlipProb > 0 && rng.Float64() < cfg.FlipProb {
		img, labels = flipHorizontal(img, labels)
	}

	if cfg.CropProb > 0 && rng.Float64() < cfg.CropProb {
		img, labels = randomCrop(img, labels, cfg.CropMinScale, rng)
	}

	if len(cfg.Scales) > 0 {
		img = resizeShorterSide(img, cfg.Scales[rng.Intn(len(cfg.Scales))], cfg.MaxSize)
	}

	img = colorJitter(img, cfg, rng)

	return img, labels
}

// flipHorizontal mirrors img left to right and moves the box centers accordingly.
func flipHorizontal(img *image.NRGBA, labels Labels) (*image.NRGBA, Labels) {
	flipped := Labels{
		Boxes:   make([][4]float32, len(labels.Boxes)),
		Classes: labels.Classes,
		Crowd:   labels.Crowd,
	}
	for i, b := range labels.Boxes {
		flipped.Boxes[i] = [4]float32{1 - b[0], b[1], b[2], b[3]}
	}

	return imaging.FlipH(img), flipped
}

// randomCrop cuts a random window, with sides of at least minScale of the image sides, out of img.
// Boxes are clipped to the window and re-normalised to its size.
func randomCrop(img *image.NRGBA, labels Labels, minScale float64, rng *rand.Rand) (
		*image.NRGBA, Labels) {

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if minScale <= 0 || minScale > 1 {
		minScale = 1
	}

	// Select the window.
	cropWidth := int(math.Round(float64(width) * (minScale + rng.Float64()*(1-minScale))))
	cropHeight := int(math.Round(float64(height) * (minScale + rng.Float64()*(1-minScale))))
	if cropWidth < 1 {
		cropWidth = 1
	}
	if cropHeight < 1 {
		cropHeight = 1
	}
	x0 := rng.Intn(width - cropWidth + 1)
	y0 := rng.Intn(height - cropHeight + 1)
	window := image.Rect(x0, y0, x0+cropWidth, y0+cropHeight)

	return imaging.Crop(img, window), cropLabels(labels, width, height, window)
}

// cropLabels clips the boxes of labels, normalised to an image of width x height, to window and
// normalises them to the window size. Boxes without area after clipping are removed.
func cropLabels(labels Labels, width, height int, window image.Rectangle) Labels {
	cropped := Labels{
		Boxes:   make([][4]float32, 0, len(labels.Boxes)),
		Classes: make([]int32, 0, len(labels.Classes)),
		Crowd:   labels.Crowd,
	}

	wx0, wy0 := float64(window.Min.X), float64(window.Min.Y)
	wx1, wy1 := float64(window.Max.X), float64(window.Max.Y)
	for i, b := range labels.Boxes {
		abs := DenormalizeBox(NormBox{float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])},
			height, width)
		c := abs.Corners()

		// Clip to the window.
		x1 := math.Max(c[0], wx0)
		y1 := math.Max(c[1], wy0)
		x2 := math.Min(c[2], wx1)
		y2 := math.Min(c[3], wy1)
		if x2 <= x1 || y2 <= y1 {
			continue
		}

		nb := NormalizeBox(Box{x1 - wx0, y1 - wy0, x2 - x1, y2 - y1}, window.Dy(), window.Dx())
		cropped.Boxes = append(cropped.Boxes,
			[4]float32{float32(nb[0]), float32(nb[1]), float32(nb[2]), float32(nb[3])})
		cropped.Classes = append(cropped.Classes, labels.Classes[i])
	}

	return cropped
}

// colorJitter randomly changes brightness, contrast and saturation within the configured ranges.
func colorJitter(img *image.NRGBA, cfg AugmentConfig, rng *rand.Rand) *image.NRGBA {
	jitter := func(maxDelta float64) float64 {
		return (2*rng.Float64() - 1) * maxDelta
	}

	if cfg.Brightness > 0 {
		img = imaging.AdjustBrightness(img, jitter(cfg.Brightness))
	}
	if cfg.Contrast > 0 {
		img = imaging.AdjustContrast(img, jitter(cfg.Contrast))
	}
	if cfg.Saturation > 0 {
		img = imaging.AdjustSaturation(img, jitter(cfg.Saturation))
	}

	return img
}

// letterboxLabels re-normalises boxes of an image of width x height that is placed at the top left
// corner of a canvas of the given size.
func letterboxLabels(labels Labels, width, height int, canvas Size) Labels {
	sx := float32(width) / float32(canvas.Width)
	sy := float32(height) / float32(canvas.Height)

	boxed := Labels{
		Boxes:   make([][4]float32, len(labels.Boxes)),
		Classes: labels.Classes,
		Crowd:   labels.Crowd,
	}
	for i, b := range labels.Boxes {
		boxed.Boxes[i] = [4]float32{b[0] * sx, b[1] * sy, b[2] * sx, b[3] * sy}
	}

	return boxed
}

// letterboxPixels copies normalised HWC pixels of a width x height image to the top left corner of a
// zero filled canvas.
func letterboxPixels(pixels []float32, width, height int, canvas Size) []float32 {
	if width == canvas.Width && height == canvas.Height {
		return pixels
	}

	out := make([]float32, canvas.Height*canvas.Width*3)
	for y := 0; y < height; y++ {
		copy(out[y*canvas.Width*3:], pixels[y*width*3:(y+1)*width*3])
	}

	return out
}
