package cocods

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlipHorizontal(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	labels := Labels{
		Boxes:   [][4]float32{{0.25, 0.5, 0.1, 0.2}, {0.5, 0.1, 1, 0.2}},
		Classes: []int32{1, 2},
		Crowd:   true,
	}

	flipped, flippedLabels := flipHorizontal(img, labels)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, flipped.NRGBAAt(3, 0))
	assert.Equal(t, color.NRGBA{}, flipped.NRGBAAt(0, 0))

	assert.Equal(t, [4]float32{0.75, 0.5, 0.1, 0.2}, flippedLabels.Boxes[0])
	assert.Equal(t, [4]float32{0.5, 0.1, 1, 0.2}, flippedLabels.Boxes[1])
	assert.Equal(t, []int32{1, 2}, flippedLabels.Classes)
	assert.True(t, flippedLabels.Crowd)

	// The input labels are left untouched.
	assert.Equal(t, [4]float32{0.25, 0.5, 0.1, 0.2}, labels.Boxes[0])
}

func TestCropLabels(t *testing.T) {
	labels := Labels{
		Boxes: [][4]float32{
			{0.2, 0.2, 0.2, 0.2},   // (10,10)-(30,30), inside the window.
			{0.5, 0.5, 0.2, 0.2},   // (40,40)-(60,60), clipped to (40,40)-(50,50).
			{0.75, 0.75, 0.1, 0.1}, // (70,70)-(80,80), outside.
		},
		Classes: []int32{1, 2, 3},
	}

	cropped := cropLabels(labels, 100, 100, image.Rect(0, 0, 50, 50))
	require.Len(t, cropped.Boxes, 2)
	assert.Equal(t, []int32{1, 2}, cropped.Classes)

	want := [][4]float32{{0.4, 0.4, 0.4, 0.4}, {0.9, 0.9, 0.2, 0.2}}
	for i := range want {
		for j := range want[i] {
			assert.InDelta(t, want[i][j], cropped.Boxes[i][j], 1e-5)
		}
	}
}

func TestCropLabelsOffsetWindow(t *testing.T) {
	labels := Labels{
		Boxes:   [][4]float32{{0.5, 0.5, 0.2, 0.2}}, // (80,40)-(120,60) in 200x100.
		Classes: []int32{7},
	}

	cropped := cropLabels(labels, 200, 100, image.Rect(100, 0, 200, 100))
	require.Len(t, cropped.Boxes, 1)
	// Clipped to (100,40)-(120,60), relative (0,40)-(20,60) in a 100x100 window.
	want := [4]float32{0.1, 0.5, 0.2, 0.2}
	for j := range want {
		assert.InDelta(t, want[j], cropped.Boxes[0][j], 1e-5)
	}
}

func TestRandomCropStaysInBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 60, 40))
	labels := Labels{Boxes: [][4]float32{{0.5, 0.5, 1, 1}}, Classes: []int32{1}}
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 20; i++ {
		cropped, croppedLabels := randomCrop(img, labels, 0.5, rng)
		b := cropped.Bounds()
		assert.True(t, b.Dx() >= 30 && b.Dx() <= 60, "width %d", b.Dx())
		assert.True(t, b.Dy() >= 20 && b.Dy() <= 40, "height %d", b.Dy())

		// A box covering the whole image covers the whole crop.
		require.Len(t, croppedLabels.Boxes, 1)
		for j, v := range [4]float32{0.5, 0.5, 1, 1} {
			assert.InDelta(t, v, croppedLabels.Boxes[0][j], 1e-5)
		}
	}
}

func TestAugmentSampleRescales(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	labels := Labels{Boxes: [][4]float32{{0.3, 0.4, 0.2, 0.1}}, Classes: []int32{5}}
	cfg := AugmentConfig{Scales: []int{20}}

	out, outLabels := augmentSample(img, labels, cfg, rand.New(rand.NewSource(1)))
	assert.Equal(t, 27, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
	assert.Equal(t, labels.Boxes, outLabels.Boxes)
	assert.Equal(t, labels.Classes, outLabels.Classes)
}

func TestAugmentSampleMaxSize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 30, 90))
	cfg := AugmentConfig{Scales: []int{20}, MaxSize: 45}

	out, _ := augmentSample(img, Labels{}, cfg, rand.New(rand.NewSource(1)))
	assert.Equal(t, 15, out.Bounds().Dx())
	assert.Equal(t, 45, out.Bounds().Dy())
}

func TestAugmentSampleAlwaysFlips(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	labels := Labels{Boxes: [][4]float32{{0.1, 0.5, 0.2, 0.2}}, Classes: []int32{1}}
	cfg := AugmentConfig{FlipProb: 1}

	_, outLabels := augmentSample(img, labels, cfg, rand.New(rand.NewSource(1)))
	assert.InDelta(t, 0.9, outLabels.Boxes[0][0], 1e-6)
}

func TestColorJitter(t *testing.T) {
	// A colour gradient, so that every adjustment has pixels to act on.
	img := image.NewNRGBA(image.Rect(0, 0, 7, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 36), G: uint8(y * 50), B: uint8(255 - x*36), A: 255})
		}
	}

	for name, cfg := range map[string]AugmentConfig{
		"brightness": {Brightness: 50},
		"contrast":   {Contrast: 50},
		"saturation": {Saturation: 50},
		"all":        {Brightness: 20, Contrast: 20, Saturation: 20},
	} {
		t.Run(name, func(t *testing.T) {
			out := colorJitter(img, cfg, rand.New(rand.NewSource(9)))
			assert.Equal(t, img.Bounds(), out.Bounds())
			assert.NotEqual(t, img.Pix, out.Pix)
		})
	}

	out := colorJitter(img, AugmentConfig{}, rand.New(rand.NewSource(9)))
	assert.Equal(t, img.Pix, out.Pix, "no jitter configured")
}
