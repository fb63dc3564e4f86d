package cocods

// COCO instances annotation file specific functionality.

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// COCOImage is an entry of the "images" list.
type COCOImage struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOAnnotation is an entry of the "annotations" list. Segmentations are not decoded.
type COCOAnnotation struct {
	ID         int64      `json:"id"`
	ImageID    int64      `json:"image_id"`
	CategoryID int64      `json:"category_id"`
	BBox       [4]float64 `json:"bbox"` // x, y, width, height in pixels.
	Area       float64    `json:"area"`
	IsCrowd    int        `json:"iscrowd"`
}

// COCOCategory is an entry of the "categories" list.
type COCOCategory struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// cocoFile is the subset of the instances file layout that is decoded.
type cocoFile struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// COCOIndex maps image ids to image metadata and to their annotations.
type COCOIndex struct {
	ids         []int64
	images      map[int64]COCOImage
	annotations map[int64][]COCOAnnotation
	categories  map[int64]COCOCategory
}

// splitDir returns the image directory name for the split: "train2017" for "train" and
// "val2017" for anything else.
func splitDir(split string) string {
	if split == "train" {
		return "train2017"
	}
	return "val2017"
}

// AnnotationFilePath returns the path of the instances file for split under dataDir.
func AnnotationFilePath(dataDir, split string) string {
	return filepath.Join(dataDir, "annotations", "instances_"+splitDir(split)+".json")
}

// ImagePath returns the path of the image fileName for split under dataDir.
func ImagePath(dataDir, split, fileName string) string {
	return filepath.Join(dataDir, splitDir(split), fileName)
}

// LoadCOCO reads and indexes the COCO instances file at path.
func LoadCOCO(path string) (index *COCOIndex, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read annotation file %q", path)
	}
	defer closeWithErrCheck(f, &err)

	if info, err := f.Stat(); err == nil {
		Log().Info("Loading annotations",
			zap.String("path", path), zap.String("size", humanize.Bytes(uint64(info.Size()))))
	}

	var data cocoFile
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse COCO input from %q", path)
	}

	return newCOCOIndex(&data)
}

// newCOCOIndex builds the lookup tables for data.
func newCOCOIndex(data *cocoFile) (*COCOIndex, error) {
	index := &COCOIndex{
		ids:         make([]int64, 0, len(data.Images)),
		images:      make(map[int64]COCOImage, len(data.Images)),
		annotations: make(map[int64][]COCOAnnotation, len(data.Images)),
		categories:  make(map[int64]COCOCategory, len(data.Categories)),
	}

	for _, img := range data.Images {
		if _, dup := index.images[img.ID]; dup {
			return nil, errors.Errorf("duplicate image id %d", img.ID)
		}
		index.images[img.ID] = img
		index.ids = append(index.ids, img.ID)
	}
	sort.Slice(index.ids, func(i, j int) bool { return index.ids[i] < index.ids[j] })

	for _, a := range data.Annotations {
		if _, ok := index.images[a.ImageID]; !ok {
			return nil, errors.Errorf("annotation %d references unknown image id %d", a.ID, a.ImageID)
		}
		index.annotations[a.ImageID] = append(index.annotations[a.ImageID], a)
	}

	for _, c := range data.Categories {
		index.categories[c.ID] = c
	}

	Log().Info("Indexed annotations",
		zap.Int("images", len(index.ids)),
		zap.Int("annotations", len(data.Annotations)),
		zap.Int("categories", len(index.categories)))

	return index, nil
}

// ImageIDs returns all image ids in ascending order. The slice is a copy.
func (idx *COCOIndex) ImageIDs() []int64 {
	ids := make([]int64, len(idx.ids))
	copy(ids, idx.ids)
	return ids
}

// Len is the number of indexed images.
func (idx *COCOIndex) Len() int {
	return len(idx.ids)
}

// Image returns the metadata for the image with the given id.
func (idx *COCOIndex) Image(id int64) (COCOImage, bool) {
	img, ok := idx.images[id]
	return img, ok
}

// Annotations returns the annotations of the image with the given id, in file order.
func (idx *COCOIndex) Annotations(id int64) []COCOAnnotation {
	return idx.annotations[id]
}

// Category returns the category with the given id.
func (idx *COCOIndex) Category(id int64) (COCOCategory, bool) {
	c, ok := idx.categories[id]
	return c, ok
}

// Categories returns all categories sorted by id.
func (idx *COCOIndex) Categories() []COCOCategory {
	cats := make([]COCOCategory, 0, len(idx.categories))
	for _, c := range idx.categories {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats
}

// AnnotatedFiles converts the index to the intermediate representation, with image paths
// resolved for split under dataDir.
func (idx *COCOIndex) AnnotatedFiles(dataDir, split string) AnnotatedFiles {
	data := make(AnnotatedFiles, 0, len(idx.ids))
	for _, id := range idx.ids {
		img := idx.images[id]
		anns := idx.annotations[id]

		fileData := AnnotatedFile{
			Annotations: make([]Annotation, len(anns)),
			FilePath:    ImagePath(dataDir, split, img.FileName),
			ImageID:     id,
		}
		for i, a := range anns {
			fileData.Annotations[i] = Annotation{
				Box:        Box(a.BBox),
				CategoryID: a.CategoryID,
				IsCrowd:    a.IsCrowd != 0,
			}
		}
		data = append(data, fileData)
	}

	return data
}
