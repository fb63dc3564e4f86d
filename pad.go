package cocods

// MaxBoxes is the default fixed number of label rows per sample, including the header row.
const MaxBoxes = 100

// padLabels lays out boxes and classes in maxBoxes fixed rows.
//
// Row 0 is a header holding the number of boxes n in the first box column and class 0. Rows 1 to n
// hold the boxes and their classes and the remaining rows are zero. Boxes beyond maxBoxes-1 are
// dropped and their count is returned as truncated.
func padLabels(boxes [][4]float32, classes []int64, maxBoxes int) (
		paddedBoxes []float32, paddedClasses []int64, truncated int) {

	n := len(boxes)
	if n > maxBoxes-1 {
		truncated = n - (maxBoxes - 1)
		n = maxBoxes - 1
	}

	paddedBoxes = make([]float32, maxBoxes*4)
	paddedClasses = make([]int64, maxBoxes)

	paddedBoxes[0] = float32(n)
	for i := 0; i < n; i++ {
		copy(paddedBoxes[(i+1)*4:(i+2)*4], boxes[i][:])
		paddedClasses[i+1] = classes[i]
	}

	return paddedBoxes, paddedClasses, truncated
}
