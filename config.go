package cocods

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Size is an image size in pixels.
type Size struct {
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

// Config configures the dataset pipeline.
type Config struct {
	DataDir         string          `yaml:"data_dir"`       // Contains annotations/ and the image dirs.
	TargetSize      Size            `yaml:"target_size"`    // Every sample is resized to this size.
	Normalization   NormalizeConfig `yaml:"normalization"`
	Augmentation    AugmentConfig   `yaml:"augmentation"`
	Workers         int             `yaml:"workers"`        // Concurrent sample fetchers.
	ShuffleBuffer   int             `yaml:"shuffle_buffer"` // Image ids held for shuffling.
	Prefetch        int             `yaml:"prefetch"`       // Batches buffered ahead of the reader.
	MaxBoxes        int             `yaml:"max_boxes"`      // Label rows per sample, with header.
	Seed            int64           `yaml:"seed"`           // Zero seeds from the clock.
	BackgroundClass int             `yaml:"background_class"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		TargetSize: Size{Height: 512, Width: 512},
		Normalization: NormalizeConfig{
			Method: NormTorchResnet,
			Mean:   ImageNetMean,
			Std:    ImageNetStd,
		},
		Augmentation: AugmentConfig{
			FlipProb:     0.5,
			Scales:       []int{480, 512, 544, 576, 608},
			MaxSize:      800,
			CropProb:     0.5,
			CropMinScale: 0.6,
			Brightness:   10,
			Contrast:     10,
			Saturation:   10,
		},
		Workers:         2 * runtime.NumCPU(),
		ShuffleBuffer:   1000,
		Prefetch:        32,
		MaxBoxes:        MaxBoxes,
		BackgroundClass: BackgroundClass,
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid config %q", path)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.TargetSize.Height <= 0 || c.TargetSize.Width <= 0 {
		return errors.Errorf("invalid target size %dx%d", c.TargetSize.Width, c.TargetSize.Height)
	}
	if err := c.Normalization.validate(); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ShuffleBuffer < 0 || c.Prefetch < 0 {
		return errors.New("shuffle_buffer and prefetch must not be negative")
	}
	if c.MaxBoxes < 2 {
		return errors.Errorf("max_boxes must be at least 2, got %d", c.MaxBoxes)
	}

	a := c.Augmentation
	if a.FlipProb < 0 || a.FlipProb > 1 || a.CropProb < 0 || a.CropProb > 1 {
		return errors.New("augmentation probabilities must be in [0, 1]")
	}
	if a.CropProb > 0 && (a.CropMinScale <= 0 || a.CropMinScale > 1) {
		return errors.Errorf("crop_min_scale must be in (0, 1], got %g", a.CropMinScale)
	}
	for _, s := range a.Scales {
		if s <= 0 {
			return errors.Errorf("invalid augmentation scale %d", s)
		}
	}
	for _, v := range []float64{a.Brightness, a.Contrast, a.Saturation} {
		if v < 0 || v > 100 {
			return errors.Errorf("color jitter must be in [0, 100], got %g", v)
		}
	}

	return nil
}
