package cocods

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// statsPixelStride subsamples the pixels of each image for ChannelStats.
const statsPixelStride = 7

// ChannelStats computes the per channel mean and standard deviation of the RGB values, scaled to
// [0, 1], over the first n images of split (all images if n <= 0). The results can be used as
// torch_resnet normalisation constants.
//
// onImage, if not nil, is called after each image. Images that fail to load are skipped.
func ChannelStats(ctx context.Context, index *COCOIndex, dataDir, split string, n int,
		onImage func(imageID int64)) (mean, std [3]float64, err error) {

	ids := index.ImageIDs()
	if n > 0 && n < len(ids) {
		ids = ids[:n]
	}

	var channels [3][]float64
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return mean, std, err
		}

		meta, _ := index.Image(id)
		path := ImagePath(dataDir, split, meta.FileName)
		decoded, _, err := loadImage(path)
		if err != nil {
			Log().Warn("Skipping image", zap.String("path", path), zap.Error(err))
			continue
		}
		img := toRGB(decoded)

		for i := 0; i+3 < len(img.Pix); i += 4 * statsPixelStride {
			for c := 0; c < 3; c++ {
				channels[c] = append(channels[c], float64(img.Pix[i+c])/255)
			}
		}

		if onImage != nil {
			onImage(id)
		}
	}

	if len(channels[0]) == 0 {
		return mean, std, errors.New("no pixels sampled")
	}

	for c := 0; c < 3; c++ {
		mean[c], std[c] = stat.MeanStdDev(channels[c], nil)
	}

	return mean, std, nil
}
