package training

import (
	"fmt"

	"github.com/tsawler/go-tagger/corpus"
)

// LoopConfig controls the outer training loop. EpochSize is measured in
// samples; an epoch ends once that many samples have been consumed, which
// need not align with a full sweep of the corpus.
type LoopConfig struct {
	EpochSize     int64
	MinibatchSize int
	MaxEpochs     int
}

// Run trains for the configured number of epochs, pulling minibatches
// from the source and logging through the printer. It returns the totals
// of the final epoch.
func (t *Trainer) Run(source *corpus.MinibatchSource, cfg LoopConfig, progress *ProgressPrinter) (Metrics, error) {
	if cfg.EpochSize <= 0 || cfg.MinibatchSize <= 0 || cfg.MaxEpochs <= 0 {
		return Metrics{}, fmt.Errorf("epoch size, minibatch size and epoch count must be positive")
	}

	var lastEpoch Metrics
	for epoch := 0; epoch < cfg.MaxEpochs; epoch++ {
		var epochTotal Metrics
		epochEnd := t.samplesSeen + cfg.EpochSize
		for t.samplesSeen < epochEnd {
			remaining := epochEnd - t.samplesSeen
			request := cfg.MinibatchSize
			if int64(request) > remaining {
				request = int(remaining)
			}

			mb, err := source.NextMinibatch(request)
			if err != nil {
				return Metrics{}, fmt.Errorf("failed to read minibatch: %v", err)
			}
			if mb.Empty() {
				// Source exhausted before the epoch filled up.
				break
			}

			metrics, err := t.TrainMinibatch(mb)
			if err != nil {
				return Metrics{}, err
			}
			epochTotal.Add(metrics)
			if progress != nil {
				progress.Update(metrics)
			}
		}
		if progress != nil {
			progress.FinishEpoch()
		}
		lastEpoch = epochTotal
	}
	return lastEpoch, nil
}

// Run evaluates every sequence of the source exactly once and returns the
// aggregated metrics. The source must be in full-sweep mode.
func (e *Evaluator) Run(source *corpus.MinibatchSource, minibatchSize int, progress *ProgressPrinter) (Metrics, error) {
	if minibatchSize <= 0 {
		return Metrics{}, fmt.Errorf("minibatch size must be positive")
	}

	var total Metrics
	for {
		mb, err := source.NextMinibatch(minibatchSize)
		if err != nil {
			return Metrics{}, fmt.Errorf("failed to read minibatch: %v", err)
		}
		if mb.Empty() {
			break
		}
		metrics, err := e.TestMinibatch(mb)
		if err != nil {
			return Metrics{}, err
		}
		total.Add(metrics)
		if progress != nil {
			progress.Update(metrics)
		}
	}
	if progress != nil {
		progress.FinishEpoch()
	}
	return total, nil
}
