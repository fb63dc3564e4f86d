package cocods

// BackgroundClass is the class id reserved for "no object". It is one past the largest COCO
// category id.
const BackgroundClass = 91

// ClassNames maps COCO category ids to names. Unused ids are "N/A" and the background class is
// "back".
var ClassNames = []string{
	"N/A", "person", "bicycle", "car", "motorcycle", "airplane", "bus",
	"train", "truck", "boat", "traffic light", "fire hydrant", "N/A",
	"stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "N/A", "backpack",
	"umbrella", "N/A", "N/A", "handbag", "tie", "suitcase", "frisbee", "skis",
	"snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "N/A", "wine glass",
	"cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake",
	"chair", "couch", "potted plant", "bed", "N/A", "dining table", "N/A",
	"N/A", "toilet", "N/A", "tv", "laptop", "mouse", "remote", "keyboard",
	"cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "N/A",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush", "back",
}

// ClassName returns the name for the category id, or "N/A" if it is out of range.
func ClassName(id int64) string {
	if id < 0 || id >= int64(len(ClassNames)) {
		return "N/A"
	}
	return ClassNames[id]
}
