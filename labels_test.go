package cocods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBox(t *testing.T) {
	// 640 wide, 480 high.
	nb := NormalizeBox(Box{100, 50, 200, 100}, 480, 640)
	assert.InDelta(t, 200.0/640, nb[0], 1e-12)
	assert.InDelta(t, 100.0/480, nb[1], 1e-12)
	assert.InDelta(t, 200.0/640, nb[2], 1e-12)
	assert.InDelta(t, 100.0/480, nb[3], 1e-12)

	full := NormalizeBox(Box{0, 0, 640, 480}, 480, 640)
	assert.Equal(t, NormBox{0.5, 0.5, 1, 1}, full)
}

func TestNormalizeBoxRoundTrip(t *testing.T) {
	boxes := []Box{
		{0, 0, 1, 1},
		{12.5, 33.25, 100.75, 7},
		{639, 479, 1, 1},
		{3.3, 2.2, 600.1, 470.9},
	}
	for _, b := range boxes {
		got := DenormalizeBox(NormalizeBox(b, 480, 640), 480, 640)
		for i := range b {
			assert.InDelta(t, b[i], got[i], 1e-9, "box %v component %d", b, i)
		}
	}
}

func TestNormalizeBoxDegenerate(t *testing.T) {
	nb := NormalizeBox(Box{320, 240, 0, 0}, 480, 640)
	assert.Equal(t, NormBox{0.5, 0.5, 0, 0}, nb)

	nb = NormalizeBox(Box{10, 20, 0, 30}, 100, 100)
	assert.Equal(t, 0.0, nb[2])
	assert.InDelta(t, 0.3, nb[3], 1e-12)

	back := DenormalizeBox(nb, 100, 100)
	assert.InDelta(t, 10, back[0], 1e-9)
	assert.InDelta(t, 20, back[1], 1e-9)
	assert.Equal(t, 0.0, back.Width())
}

func TestNormalizeLabels(t *testing.T) {
	anns := []COCOAnnotation{
		ann(1, 1, 18, 0, 0, 50, 100, false),
		ann(2, 1, 3, 25, 50, 0, 0, false),
	}

	labels, err := NormalizeLabels(anns, 200, 100)
	require.NoError(t, err)
	assert.False(t, labels.Crowd)
	assert.Equal(t, []int32{18, 3}, labels.Classes)
	require.Len(t, labels.Boxes, 2)
	assert.Equal(t, [4]float32{0.25, 0.25, 0.5, 0.5}, labels.Boxes[0])
	assert.Equal(t, [4]float32{0.25, 0.25, 0, 0}, labels.Boxes[1])

	anns = append(anns, ann(3, 1, 1, 0, 0, 10, 10, true))
	labels, err = NormalizeLabels(anns, 200, 100)
	require.NoError(t, err)
	assert.True(t, labels.Crowd)
	assert.Len(t, labels.Boxes, 3)
}

func TestNormalizeLabelsEmpty(t *testing.T) {
	labels, err := NormalizeLabels(nil, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, labels.Boxes)
	assert.Empty(t, labels.Classes)
	assert.False(t, labels.Crowd)
}

func TestNormalizeLabelsInvalidDimensions(t *testing.T) {
	_, err := NormalizeLabels(nil, 0, 10)
	assert.Error(t, err)
	_, err = NormalizeLabels(nil, 10, -1)
	assert.Error(t, err)
}
