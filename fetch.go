package cocods

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// Sample is a decoded, augmented and normalised image with its labels.
type Sample struct {
	ImageID int64
	Image   []float32 // Height x Width x 3, normalised.
	Height  int
	Width   int
	Boxes   [][4]float32 // Normalised center x, center y, width, height.
	Classes []int64
	Crowd   bool // At least one annotation of the image is a crowd annotation.
}

// Fetcher loads samples by image id.
type Fetcher struct {
	cfg     *Config
	index   *COCOIndex
	split   string
	augment bool
}

// NewFetcher returns a Fetcher reading the images of split from cfg.DataDir. Augmentation is
// applied when augment is true.
func NewFetcher(index *COCOIndex, cfg *Config, split string, augment bool) *Fetcher {
	return &Fetcher{cfg: cfg, index: index, split: split, augment: augment}
}

// Fetch loads, labels, augments, resizes and normalises the image with the given id.
//
// Augmentation draws from rng. A nil rng is replaced with one seeded from the clock. Images without
// boxes are never augmented.
func (f *Fetcher) Fetch(ctx context.Context, imageID int64, rng *rand.Rand) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, ok := f.index.Image(imageID)
	if !ok {
		return nil, errors.Errorf("unknown image id %d", imageID)
	}

	// Read the image.
	path := ImagePath(f.cfg.DataDir, f.split, meta.FileName)
	decoded, _, err := loadImage(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load image %q", path)
	}
	img := toRGB(decoded)

	// Normalise the labels against the decoded dimensions.
	bounds := img.Bounds()
	labels, err := NormalizeLabels(f.index.Annotations(imageID), bounds.Dy(), bounds.Dx())
	if err != nil {
		return nil, errors.WithMessagef(err, "image %d", imageID)
	}

	augmented := f.augment && len(labels.Boxes) > 0
	if augmented {
		if rng == nil {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		img, labels = augmentSample(img, labels, f.cfg.Augmentation, rng)
	}

	// Bring all samples to a common size so they can be batched. A randomly rescaled image keeps
	// its scale and is padded instead of stretched.
	size := f.cfg.TargetSize
	letterbox := augmented && len(f.cfg.Augmentation.Scales) > 0
	if letterbox {
		img = fitWithin(img, size.Width, size.Height)
		labels = letterboxLabels(labels, img.Bounds().Dx(), img.Bounds().Dy(), size)
	} else if b := img.Bounds(); b.Dx() != size.Width || b.Dy() != size.Height {
		img = resizeImage(img, size.Width, size.Height)
	}

	pixels, err := normalizePixels(img, f.cfg.Normalization)
	if err != nil {
		return nil, err
	}
	if letterbox {
		pixels = letterboxPixels(pixels, img.Bounds().Dx(), img.Bounds().Dy(), size)
	}

	classes := make([]int64, len(labels.Classes))
	for i, c := range labels.Classes {
		classes[i] = int64(c)
	}

	return &Sample{
		ImageID: imageID,
		Image:   pixels,
		Height:  size.Height,
		Width:   size.Width,
		Boxes:   labels.Boxes,
		Classes: classes,
		Crowd:   labels.Crowd,
	}, nil
}
