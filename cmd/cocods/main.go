// Streams batches from a COCO object detection dataset, exports it to TFRecord files or computes
// channel statistics for pixel normalisation.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/sensorable/cocods"
)

var (
	configFilePath string // The optional YAML config file.
	dataDirPath    string // The COCO root directory, overrides the config.
	split          string // The dataset split: "train" or "val".
	batchSize      int    // The number of samples per batch.
	doAugment      bool   // Apply training augmentation.
	numBatches     int    // The number of batches to stream (zero streams a full epoch).
	workers        int    // The number of concurrent fetchers, overrides the config.
	seed           int64  // The shuffle and augmentation seed, overrides the config.
	devLogging     bool   // Use the development logger.

	tfRecordOutFilePath      string // The TFRecord output file.
	tfRecordLabelMapFilePath string // The label map written with the TFRecord output.
	numShardFiles            int    // The number of shard files to create.

	filterCategories    string  // A comma-separated list of category ids to keep (export only).
	filterMinBboxWidth  float64 // The minimum bounding box width (export only).
	filterMinBboxHeight float64 // The minimum bounding box height (export only).
	filterDropCrowd     bool    // Drop crowd annotations (export only).
	filterRequireLabel  = true  // Drop images without annotations after filtering (export only).

	statsImages int // Compute channel statistics over this many images instead of streaming.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  stream batches:\t-data <dir> [-split] [-batch] [-augment] [-batches]")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord export:\t-data <dir> -tfrecord-out <file>"+
				" -tfrecord-label-map-file <file> [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr, "  channel stats:\t-data <dir> -stats <count>")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	flag.StringVar(&configFilePath, "config", configFilePath, "The YAML config file `path`")
	flag.StringVar(&dataDirPath, "data", dataDirPath,
		"The COCO root `directory` containing annotations/ and the image directories")
	flag.StringVar(&split, "split", "train", "The dataset split {train, val}")
	flag.IntVar(&batchSize, "batch", 8, "The number of samples per batch")
	flag.BoolVar(&doAugment, "augment", doAugment, "Apply training augmentation")
	flag.IntVar(&numBatches, "batches", 0,
		"The number of batches to stream (zero streams a full epoch)")
	flag.IntVar(&workers, "workers", 0, "The number of concurrent fetchers (zero keeps the config)")
	flag.Int64Var(&seed, "seed", 0, "The shuffle and augmentation seed (zero keeps the config)")
	flag.BoolVar(&devLogging, "dev", devLogging, "Use human readable development logging")

	flag.StringVar(&tfRecordOutFilePath, "tfrecord-out", tfRecordOutFilePath,
		"Export the split to TFRecord files at `path` instead of streaming batches")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The label map file `path` written with the TFRecord output")
	flag.IntVar(&numShardFiles, "num-shards", 1, "The number of shard files to create")

	flag.StringVar(&filterCategories, "filter-categories", filterCategories,
		"Comma-separated list of category ids to keep (export only; empty keeps all)")
	flag.Float64Var(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` for bounding boxes (export only)")
	flag.Float64Var(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` for bounding boxes (export only)")
	flag.BoolVar(&filterDropCrowd, "drop-crowd", filterDropCrowd,
		"Drop crowd annotations (export only)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one label (after filters) to keep the image (export only)")

	flag.IntVar(&statsImages, "stats", 0,
		"Compute per channel mean and std over this many images instead of streaming")
}

// printUsageAndExit logs msg, prints the usage and exits with status 1.
func printUsageAndExit(msg string) {
	cocods.Log().Error(msg)
	flag.Usage()
	os.Exit(1)
}

// loadConfig builds the config from the optional file and the flag overrides.
func loadConfig() (*cocods.Config, error) {
	cfg := cocods.DefaultConfig()
	if configFilePath != "" {
		var err error
		if cfg, err = cocods.LoadConfig(configFilePath); err != nil {
			return nil, err
		}
	}

	if dataDirPath != "" {
		cfg.DataDir = filepath.Clean(dataDirPath)
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if seed != 0 {
		cfg.Seed = seed
	}

	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	initLogger := cocods.InitProduction
	if devLogging {
		initLogger = cocods.InitDevelopment
	}
	if err := initLogger(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialise logging:", err)
		os.Exit(1)
	}
	defer cocods.Sync()
	log := cocods.Log()

	// Validate arguments.
	if split != "train" && split != "val" {
		printUsageAndExit("Unsupported split")
	}
	if batchSize <= 0 {
		printUsageAndExit("Invalid batch size")
	}
	if tfRecordOutFilePath != "" && tfRecordLabelMapFilePath == "" {
		printUsageAndExit("Missing label map output path argument")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.DataDir == "" {
		printUsageAndExit("Missing data directory argument")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case tfRecordOutFilePath != "":
		_, err = exportTFRecord(cfg)
	case statsImages > 0:
		err = computeStats(ctx, cfg)
	default:
		err = streamBatches(ctx, cfg)
	}
	if err != nil {
		log.Fatal("Failed", zap.Error(err))
	}
}

// streamBatches runs the pipeline and logs the shape of every batch.
func streamBatches(ctx context.Context, cfg *cocods.Config) error {
	ds, err := cocods.Load(cfg, split, batchSize, doAugment)
	if err != nil {
		return err
	}

	stream := ds.Stream(ctx)
	defer stream.Close()

	for n := 0; numBatches == 0 || n < numBatches; n++ {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		cocods.Log().Info("Batch",
			zap.Int("index", n),
			zap.Ints("images", []int{batch.Size, batch.Height, batch.Width, 3}),
			zap.Ints("boxes", []int{batch.Size, batch.MaxBoxes, 4}),
			zap.Int64s("image_ids", batch.ImageIDs),
			zap.String("bytes", humanize.Bytes(uint64(4*len(batch.Images)+4*len(batch.Boxes)+
					8*len(batch.Classes)))))
	}

	return nil
}

// exportTFRecord writes the filtered split to TFRecord shards and returns the number of images
// written.
func exportTFRecord(cfg *cocods.Config) (int, error) {
	index, err := cocods.LoadCOCO(cocods.AnnotationFilePath(cfg.DataDir, split))
	if err != nil {
		return 0, err
	}

	var categoryIDs []int64
	if filterCategories != "" {
		for _, v := range strings.Split(filterCategories, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return 0, errors.Wrapf(err, "invalid category id %q", v)
			}
			categoryIDs = append(categoryIDs, id)
		}
	}

	data := index.AnnotatedFiles(cfg.DataDir, split)
	data.Filter(categoryIDs, filterMinBboxWidth, filterMinBboxHeight, filterDropCrowd,
		filterRequireLabel)

	bar := progressbar.Default(int64(len(data)), "exporting")
	defer bar.Close()
	written := 0
	err = cocods.WriteCustomTFRecord(filepath.Clean(tfRecordOutFilePath),
		filepath.Clean(tfRecordLabelMapFilePath), data, index.Categories(), numShardFiles,
		func(cocods.AnnotatedFile, cocods.TFFeatureMap) {
			written++
			_ = bar.Add(1)
		})
	if err != nil {
		return written, err
	}
	// Images that failed to convert never reach the callback.
	_ = bar.Finish()

	cocods.Log().Info("Successfully wrote labels",
		zap.Int("files", written),
		zap.Int("skipped", len(data)-written),
		zap.String("path", tfRecordOutFilePath))
	return written, nil
}

// computeStats logs the per channel mean and std over the first statsImages images.
func computeStats(ctx context.Context, cfg *cocods.Config) error {
	index, err := cocods.LoadCOCO(cocods.AnnotationFilePath(cfg.DataDir, split))
	if err != nil {
		return err
	}

	total := statsImages
	if total > index.Len() {
		total = index.Len()
	}
	bar := progressbar.Default(int64(total), "sampling")
	defer bar.Close()

	mean, std, err := cocods.ChannelStats(ctx, index, cfg.DataDir, split, statsImages,
		func(int64) { _ = bar.Add(1) })
	if err != nil {
		return err
	}

	cocods.Log().Info("Channel statistics",
		zap.Float64s("mean", mean[:]), zap.Float64s("std", std[:]))
	return nil
}
