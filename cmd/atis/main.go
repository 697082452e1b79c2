// Command atis trains an LSTM slot tagger on the ATIS corpus, saves the
// trained model, reloads it and reports its error rate on the test set.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/tsawler/go-tagger/checkpoints"
	"github.com/tsawler/go-tagger/config"
	"github.com/tsawler/go-tagger/corpus"
	"github.com/tsawler/go-tagger/engine"
	"github.com/tsawler/go-tagger/layers"
	"github.com/tsawler/go-tagger/optimizer"
	"github.com/tsawler/go-tagger/training"
)

const (
	queryStream = "query"
	slotStream  = "slot_labels"
)

func main() {
	envFile := flag.String("env", "", "Path to load env from")
	dataDir := flag.String("data-dir", "", "Override data directory")
	modelPath := flag.String("model", "", "Override model output path")
	epochs := flag.Int("epochs", 0, "Override number of training epochs")
	seed := flag.Int64("seed", 0, "Override PRNG seed")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *epochs > 0 {
		cfg.MaxEpochs = *epochs
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	defs, err := streamDefs(cfg)
	if err != nil {
		log.Fatalf("failed to build stream schema: %v", err)
	}

	net, trainMetrics, trainer := train(cfg, defs)

	if err := save(cfg, net, trainer, trainMetrics); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}
	slog.Info("saved model", "path", cfg.ModelPath)

	evaluate(cfg, defs)
}

// streamDefs adapts the embedded ATIS schema to the configured widths.
func streamDefs(cfg *config.Config) (corpus.StreamDefs, error) {
	defs, err := corpus.DefaultATISStreams()
	if err != nil {
		return nil, err
	}
	for i := range defs {
		switch defs[i].Name {
		case queryStream:
			defs[i].Width = cfg.VocabSize
		case "intent_labels":
			defs[i].Width = cfg.NumIntents
		case slotStream:
			defs[i].Width = cfg.NumLabels
		}
	}
	return defs, nil
}

func train(cfg *config.Config, defs corpus.StreamDefs) (*engine.Network, training.Metrics, *training.Trainer) {
	source, err := corpus.NewMinibatchSource(cfg.TrainPath(), defs, corpus.SourceOptions{
		Randomize:        true,
		InfinitelyRepeat: true,
		Seed:             cfg.Seed,
	})
	if err != nil {
		log.Fatalf("failed to open training corpus: %v", err)
	}
	slog.Info("training corpus loaded", "sequences", source.NumSequences(), "path", cfg.TrainPath())

	spec, err := layers.NewModelBuilder().
		AddEmbedding(cfg.EmbeddingDim, "embed").
		AddLSTM(cfg.HiddenDim, "encode").
		AddDense(cfg.NumLabels, "classify").
		Compile(cfg.VocabSize)
	if err != nil {
		log.Fatalf("failed to compile model: %v", err)
	}
	fmt.Print(spec.Summary())

	net, err := engine.NewNetwork(spec, cfg.Seed)
	if err != nil {
		log.Fatalf("failed to build network: %v", err)
	}

	lrSchedule, err := cfg.LearningRateSchedule()
	if err != nil {
		log.Fatalf("failed to build learning rate schedule: %v", err)
	}

	adamConfig := optimizer.DefaultAdamConfig()
	adamConfig.LearningRate = lrSchedule.ValueAt(0)
	adamConfig.Momentum = cfg.MomentumPerSample()
	adamConfig.Clip = optimizer.ClipConfig{
		Threshold:  cfg.GradClipThreshold,
		Truncation: true,
	}
	adam, err := optimizer.NewAdamOptimizer(adamConfig, net.Parameters())
	if err != nil {
		log.Fatalf("failed to create optimizer: %v", err)
	}

	trainer, err := training.NewTrainer(net, adam, training.TrainerConfig{
		QueryStream:  queryStream,
		LabelStream:  slotStream,
		LearningRate: lrSchedule,
		Momentum:     training.NewConstantSchedule(adamConfig.Momentum),
	})
	if err != nil {
		log.Fatalf("failed to create trainer: %v", err)
	}

	progress := training.NewProgressPrinter(cfg.ProgressFreq, 10, "Training")
	metrics, err := trainer.Run(source, training.LoopConfig{
		EpochSize:     cfg.EpochSize,
		MinibatchSize: cfg.MinibatchSize,
		MaxEpochs:     cfg.MaxEpochs,
	}, progress)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	return net, metrics, trainer
}

func save(cfg *config.Config, net *engine.Network, trainer *training.Trainer, metrics training.Metrics) error {
	optState, err := trainer.Optimizer().GetState()
	if err != nil {
		return err
	}
	lrSchedule, err := cfg.LearningRateSchedule()
	if err != nil {
		return err
	}

	checkpoint, err := checkpoints.FromNetwork(net, checkpoints.TrainingState{
		Epoch:        cfg.MaxEpochs,
		SamplesSeen:  trainer.SamplesSeen(),
		LearningRate: lrSchedule.ValueAt(trainer.SamplesSeen()),
		BestLoss:     metrics.AvgLoss(),
		BestError:    metrics.ErrorRate(),
	}, optState)
	if err != nil {
		return err
	}
	return checkpoints.SaveCheckpoint(checkpoint, cfg.ModelPath)
}

func evaluate(cfg *config.Config, defs corpus.StreamDefs) {
	checkpoint, err := checkpoints.LoadCheckpoint(cfg.ModelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	net, err := checkpoints.RestoreNetwork(checkpoint, cfg.Seed)
	if err != nil {
		log.Fatalf("failed to restore network: %v", err)
	}

	source, err := corpus.NewMinibatchSource(cfg.TestPath(), defs, corpus.SourceOptions{})
	if err != nil {
		log.Fatalf("failed to open test corpus: %v", err)
	}
	slog.Info("test corpus loaded", "sequences", source.NumSequences(), "path", cfg.TestPath())

	evaluator, err := training.NewEvaluator(net, queryStream, slotStream)
	if err != nil {
		log.Fatalf("failed to create evaluator: %v", err)
	}

	progress := training.NewProgressPrinter(0, 0, "Evaluation")
	metrics, err := evaluator.Run(source, cfg.EvalMinibatchSize, progress)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	slog.Info("test set results",
		"loss", fmt.Sprintf("%.6f", metrics.AvgLoss()),
		"error_rate", fmt.Sprintf("%.2f%%", metrics.ErrorRate()*100),
		"samples", metrics.Samples)
}
