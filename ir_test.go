package cocods

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox(t *testing.T) {
	b := Box{10, 20, 30, 40}
	assert.Equal(t, 30.0, b.Width())
	assert.Equal(t, 40.0, b.Height())
	assert.Equal(t, [4]float64{10, 20, 40, 60}, b.Corners())
}

func testFiles() AnnotatedFiles {
	return AnnotatedFiles{
		{
			ImageID: 1,
			Annotations: []Annotation{
				{Box: Box{0, 0, 10, 10}, CategoryID: 1},
				{Box: Box{0, 0, 2, 10}, CategoryID: 1},
				{Box: Box{0, 0, 10, 10}, CategoryID: 3, IsCrowd: true},
			},
		},
		{
			ImageID:     2,
			Annotations: []Annotation{{Box: Box{5, 5, 20, 20}, CategoryID: 3}},
		},
		{ImageID: 3},
	}
}

func TestFilterKeepsAllByDefault(t *testing.T) {
	data := testFiles()
	data.Filter(nil, 0, 0, false, false)
	require.Len(t, data, 3)
	assert.Len(t, data[0].Annotations, 3)
}

func TestFilterBySizeAndCrowd(t *testing.T) {
	data := testFiles()
	data.Filter(nil, 5, 5, true, false)
	require.Len(t, data, 3)
	require.Len(t, data[0].Annotations, 1)
	assert.Equal(t, Box{0, 0, 10, 10}, data[0].Annotations[0].Box)
	assert.False(t, data[0].Annotations[0].IsCrowd)
}

func TestFilterByCategoryRequiringLabels(t *testing.T) {
	data := testFiles()
	data.Filter([]int64{3}, 0, 0, false, true)
	require.Len(t, data, 2)
	assert.Equal(t, int64(1), data[0].ImageID)
	assert.Len(t, data[0].Annotations, 1)
	assert.Equal(t, int64(2), data[1].ImageID)
}
