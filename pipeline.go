package cocods

// Assembly of the streaming batch pipeline: shuffle, fetch, filter, pad, batch and prefetch.

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Batch is a fixed size group of padded samples laid out as flat, row-major tensors.
type Batch struct {
	ImageIDs []int64
	Images   []float32 // [Size, Height, Width, 3]
	Boxes    []float32 // [Size, MaxBoxes, 4]
	Classes  []int64   // [Size, MaxBoxes]

	Size     int
	Height   int
	Width    int
	MaxBoxes int
}

// newBatch allocates an empty batch for up to size samples.
func newBatch(size, height, width, maxBoxes int) *Batch {
	return &Batch{
		ImageIDs: make([]int64, 0, size),
		Images:   make([]float32, 0, size*height*width*3),
		Boxes:    make([]float32, 0, size*maxBoxes*4),
		Classes:  make([]int64, 0, size*maxBoxes),
		Height:   height,
		Width:    width,
		MaxBoxes: maxBoxes,
	}
}

// add appends a sample with already padded labels.
func (b *Batch) add(imageID int64, image, boxes []float32, classes []int64) {
	b.ImageIDs = append(b.ImageIDs, imageID)
	b.Images = append(b.Images, image...)
	b.Boxes = append(b.Boxes, boxes...)
	b.Classes = append(b.Classes, classes...)
	b.Size++
}

// Dataset produces epochs of batches for one split of a COCO dataset.
type Dataset struct {
	cfg       *Config
	index     *COCOIndex
	fetcher   *Fetcher
	batchSize int

	mu    sync.Mutex
	seed  int64
	epoch int64
}

// Load reads the annotation index for split ("train" or "val") from cfg.DataDir and returns a
// Dataset yielding batches of batchSize samples. Augmentation is applied when augment is true.
//
// The returned dataset uses a copy of cfg with the background class set to BackgroundClass.
func Load(cfg *Config, split string, batchSize int, augment bool) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	index, err := LoadCOCO(AnnotationFilePath(cfg.DataDir, split))
	if err != nil {
		return nil, err
	}

	return NewDataset(index, cfg, split, batchSize, augment)
}

// NewDataset is like Load for an index that is already in memory. It validates cfg.
func NewDataset(index *COCOIndex, cfg *Config, split string, batchSize int, augment bool) (
		*Dataset, error) {

	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d", batchSize)
	}

	c := *cfg
	c.BackgroundClass = BackgroundClass
	if err := c.Validate(); err != nil {
		return nil, err
	}

	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Dataset{
		cfg:       &c,
		index:     index,
		fetcher:   NewFetcher(index, &c, split, augment),
		batchSize: batchSize,
		seed:      seed,
	}, nil
}

// Config returns the configuration the dataset runs with.
func (ds *Dataset) Config() *Config {
	return ds.cfg
}

// Index returns the annotation index.
func (ds *Dataset) Index() *COCOIndex {
	return ds.index
}

// nextSeed returns the seed for the next epoch.
func (ds *Dataset) nextSeed() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	seed := ds.seed + ds.epoch*7919
	ds.epoch++
	return seed
}

// StreamStats counts what happened to the images of an epoch.
type StreamStats struct {
	Fetched   int64 // Samples loaded successfully.
	Failed    int64 // Images skipped because they could not be loaded.
	Filtered  int64 // Samples dropped for having no boxes or crowd annotations.
	Truncated int64 // Boxes dropped because a sample exceeded MaxBoxes-1 boxes.
	Batches   int64 // Batches emitted.
	Dropped   int64 // Samples in the final, incomplete batch.
}

// Stream is a single epoch over a Dataset.
type Stream struct {
	batches chan *Batch
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	fetched, failed, filtered, truncated, emitted, dropped atomic.Int64
}

// Stream starts a new epoch. The image order is reshuffled for every epoch.
//
// The stream must be closed when the caller is done with it.
func (ds *Dataset) Stream(ctx context.Context) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		batches: make(chan *Batch, ds.cfg.Prefetch),
		cancel:  cancel,
	}

	seed := ds.nextSeed()
	rng := rand.New(rand.NewSource(seed))
	ids := ds.index.ImageIDs()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	numWorkers := ds.cfg.Workers
	idCh := make(chan int64, 2*numWorkers)
	sampleCh := make(chan *Sample, 2*numWorkers)

	// Feed the work queue through the shuffle buffer.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(idCh)
		shuffleBuffer(ctx, ids, ds.cfg.ShuffleBuffer, rng, idCh)
	}()

	// Fetch samples concurrently from the work queue.
	var fetchers sync.WaitGroup
	fetchers.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		workerRng := rand.New(rand.NewSource(seed + int64(i) + 1))
		go func() {
			defer fetchers.Done()
			ds.fetchLoop(ctx, s, idCh, sampleCh, workerRng)
		}()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fetchers.Wait()
		close(sampleCh)
	}()

	// Filter, pad and batch.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.batches)
		ds.assemble(ctx, s, sampleCh)
	}()

	return s
}

// fetchLoop fetches the samples for the ids from idCh. Images that fail to load are logged and
// skipped.
func (ds *Dataset) fetchLoop(ctx context.Context, s *Stream, idCh <-chan int64,
		sampleCh chan<- *Sample, rng *rand.Rand) {

	for id := range idCh {
		sample, err := ds.fetcher.Fetch(ctx, id, rng)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.failed.Add(1)
			Log().Warn("Skipping image", zap.Int64("image_id", id), zap.Error(err))
			continue
		}
		s.fetched.Add(1)

		select {
		case sampleCh <- sample:
		case <-ctx.Done():
			return
		}
	}
}

// assemble filters and pads the samples and groups them into batches. The final batch is dropped
// if it is incomplete.
func (ds *Dataset) assemble(ctx context.Context, s *Stream, samples <-chan *Sample) {
	var batch *Batch
	for sample := range samples {
		if !keepSample(sample) {
			s.filtered.Add(1)
			continue
		}

		boxes, classes, truncated := padLabels(sample.Boxes, sample.Classes, ds.cfg.MaxBoxes)
		if truncated > 0 {
			s.truncated.Add(int64(truncated))
			Log().Warn("Too many boxes, truncating",
				zap.Int64("image_id", sample.ImageID), zap.Int("dropped", truncated))
		}

		if batch == nil {
			batch = newBatch(ds.batchSize, sample.Height, sample.Width, ds.cfg.MaxBoxes)
		}
		batch.add(sample.ImageID, sample.Image, boxes, classes)
		if batch.Size < ds.batchSize {
			continue
		}

		select {
		case s.batches <- batch:
			s.emitted.Add(1)
		case <-ctx.Done():
			return
		}
		batch = nil
	}

	if batch != nil {
		s.dropped.Add(int64(batch.Size))
	}

	stats := s.Stats()
	Log().Info("Epoch finished",
		zap.Int64("fetched", stats.Fetched),
		zap.Int64("failed", stats.Failed),
		zap.Int64("filtered", stats.Filtered),
		zap.Int64("batches", stats.Batches),
		zap.Int64("dropped", stats.Dropped))
}

// keepSample reports whether the sample has at least one box and no crowd annotations.
func keepSample(s *Sample) bool {
	return len(s.Boxes) > 0 && !s.Crowd
}

// shuffleBuffer sends ids to out in the order produced by a shuffle buffer of the given size:
// each id replaces a randomly selected buffered id, which is sent. The remaining buffer is sent in
// random order. A size below 2 preserves the order of ids.
func shuffleBuffer(ctx context.Context, ids []int64, size int, rng *rand.Rand, out chan<- int64) {
	send := func(id int64) bool {
		select {
		case out <- id:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if size < 2 {
		for _, id := range ids {
			if !send(id) {
				return
			}
		}
		return
	}

	buf := make([]int64, 0, size)
	for _, id := range ids {
		if len(buf) < size {
			buf = append(buf, id)
			continue
		}
		i := rng.Intn(size)
		if !send(buf[i]) {
			return
		}
		buf[i] = id
	}

	rng.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
	for _, id := range buf {
		if !send(id) {
			return
		}
	}
}

// Next returns the next batch, or io.EOF once the epoch is exhausted.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	select {
	case b, ok := <-s.batches:
		if !ok {
			return nil, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the epoch and waits for its goroutines to exit.
func (s *Stream) Close() {
	s.cancel()
	s.wg.Wait()
}

// Stats returns the counters of the epoch so far.
func (s *Stream) Stats() StreamStats {
	return StreamStats{
		Fetched:   s.fetched.Load(),
		Failed:    s.failed.Load(),
		Filtered:  s.filtered.Load(),
		Truncated: s.truncated.Load(),
		Batches:   s.emitted.Load(),
		Dropped:   s.dropped.Load(),
	}
}
