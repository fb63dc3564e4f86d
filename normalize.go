package cocods

import (
	"image"

	"github.com/pkg/errors"
)

// Pixel normalisation methods.
const (
	NormTorchResnet = "torch_resnet" // RGB in [0, 1], minus mean, divided by std.
	NormTFResnet    = "tf_resnet"    // BGR in [0, 255], minus the Caffe channel means.
)

// Standard normalisation constants.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
	CaffeMeanBGR = [3]float32{103.939, 116.779, 123.68}
)

// NormalizeConfig selects how pixel values are normalised.
type NormalizeConfig struct {
	Method string     `yaml:"method"`
	Mean   [3]float32 `yaml:"mean"` // Per RGB channel, torch_resnet only.
	Std    [3]float32 `yaml:"std"`  // Per RGB channel, torch_resnet only.
}

// validate checks the method name and the constants it uses.
func (c NormalizeConfig) validate() error {
	switch c.Method {
	case NormTorchResnet:
		for i, s := range c.Std {
			if s == 0 {
				return errors.Errorf("normalization std of channel %d is zero", i)
			}
		}
	case NormTFResnet:
	default:
		return errors.Errorf("unknown normalization method %q", c.Method)
	}
	return nil
}

// normalizePixels returns the pixels of img as float32 values in height, width, channel order,
// normalised according to cfg. Alpha is ignored.
func normalizePixels(img *image.NRGBA, cfg NormalizeConfig) ([]float32, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	out := make([]float32, 0, width*height*3)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			r := float32(row[4*x])
			g := float32(row[4*x+1])
			b := float32(row[4*x+2])

			switch cfg.Method {
			case NormTorchResnet:
				out = append(out,
					(r/255-cfg.Mean[0])/cfg.Std[0],
					(g/255-cfg.Mean[1])/cfg.Std[1],
					(b/255-cfg.Mean[2])/cfg.Std[2])
			case NormTFResnet:
				out = append(out, b-CaffeMeanBGR[0], g-CaffeMeanBGR[1], r-CaffeMeanBGR[2])
			}
		}
	}

	return out, nil
}
