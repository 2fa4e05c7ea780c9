package stats

import (
	"sync"
	"time"
)

// RecentBatches is the number of latest batches covered by the recent
// input size statistics.
const RecentBatches = 64

// BatchStatistics summarizes the batches processed by one node.
type BatchStatistics struct {
	mu         sync.Mutex
	batches    uint64
	failures   uint64
	lastBatch  time.Time
	inputSize  *Welford
	outputSize *Welford

	// recent covers the inputs in window, oldest at window[next].
	recent *Welford
	window []float64
	next   int
}

// BatchSummary is a point-in-time copy of BatchStatistics.
type BatchSummary struct {
	Batches        uint64
	Failures       uint64
	LastBatch      time.Time
	MeanInputSize  float64
	MeanOutputSize float64
	InputSizeSD    float64

	// Recent* cover at most the last RecentBatches batches.
	RecentBatches       int64
	RecentMeanInputSize float64
	RecentInputVariance float64

	// FanOut is output records per input record over all batches.
	FanOut float64
}

func NewBatchStatistics() *BatchStatistics {
	return &BatchStatistics{
		inputSize:  NewWelford(),
		outputSize: NewWelford(),
		recent:     NewWelford(),
		window:     make([]float64, 0, RecentBatches),
	}
}

func (bs *BatchStatistics) Append(now time.Time, inputs, outputs int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.batches++
	bs.lastBatch = now
	bs.inputSize.Update(float64(inputs))
	bs.outputSize.Update(float64(outputs))

	size := float64(inputs)
	if len(bs.window) < RecentBatches {
		bs.window = append(bs.window, size)
	} else {
		bs.recent.Remove(bs.window[bs.next])
		bs.window[bs.next] = size
		bs.next = (bs.next + 1) % RecentBatches
	}
	bs.recent.Update(size)
}

func (bs *BatchStatistics) Fail(now time.Time) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.failures++
	bs.lastBatch = now
}

func (bs *BatchStatistics) Summary() BatchSummary {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	summary := BatchSummary{
		Batches:        bs.batches,
		Failures:       bs.failures,
		LastBatch:      bs.lastBatch,
		MeanInputSize:  bs.inputSize.GetMean(),
		MeanOutputSize: bs.outputSize.GetMean(),
		InputSizeSD:    bs.inputSize.GetSD(),

		RecentBatches:       bs.recent.Count(),
		RecentMeanInputSize: bs.recent.GetMean(),
		RecentInputVariance: bs.recent.GetVariance(),
	}
	if summary.MeanInputSize > 0 {
		summary.FanOut = summary.MeanOutputSize / summary.MeanInputSize
	}
	return summary
}
