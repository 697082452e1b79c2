// Package config loads the training run configuration from the
// environment, with defaults matching the ATIS slot-tagging recipe.
package config

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/tsawler/go-tagger/optimizer"
	"github.com/tsawler/go-tagger/training"
)

type Config struct {
	DataDir   string `env:"ATIS_DATA_DIR" envDefault:"data"`
	TrainFile string `env:"ATIS_TRAIN_FILE" envDefault:"atis.train.ctf"`
	TestFile  string `env:"ATIS_TEST_FILE" envDefault:"atis.test.ctf"`
	ModelPath string `env:"ATIS_MODEL_PATH" envDefault:"slot_tagger.json"`

	VocabSize    int `env:"ATIS_VOCAB_SIZE" envDefault:"943"`
	NumLabels    int `env:"ATIS_NUM_LABELS" envDefault:"129"`
	NumIntents   int `env:"ATIS_NUM_INTENTS" envDefault:"26"`
	EmbeddingDim int `env:"ATIS_EMBEDDING_DIM" envDefault:"150"`
	HiddenDim    int `env:"ATIS_HIDDEN_DIM" envDefault:"300"`

	EpochSize         int64 `env:"ATIS_EPOCH_SIZE" envDefault:"36000"`
	MinibatchSize     int   `env:"ATIS_MINIBATCH_SIZE" envDefault:"70"`
	MaxEpochs         int   `env:"ATIS_MAX_EPOCHS" envDefault:"8"`
	EvalMinibatchSize int   `env:"ATIS_EVAL_MINIBATCH_SIZE" envDefault:"1000"`
	Seed              int64 `env:"ATIS_SEED" envDefault:"1"`

	GradClipThreshold float32 `env:"ATIS_GRAD_CLIP_THRESHOLD" envDefault:"15"`
	ProgressFreq      int     `env:"ATIS_PROGRESS_FREQ" envDefault:"100"`
}

// Load reads an optional .env file and then the process environment.
// An empty path skips the file and uses os.Environ only.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading env file %q: %v", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the training run cannot work with.
func (c *Config) Validate() error {
	positives := map[string]int64{
		"vocab size":          int64(c.VocabSize),
		"label count":         int64(c.NumLabels),
		"intent count":        int64(c.NumIntents),
		"embedding dimension": int64(c.EmbeddingDim),
		"hidden dimension":    int64(c.HiddenDim),
		"epoch size":          c.EpochSize,
		"minibatch size":      int64(c.MinibatchSize),
		"epoch count":         int64(c.MaxEpochs),
		"eval minibatch size": int64(c.EvalMinibatchSize),
	}
	for name, v := range positives {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}

// TrainPath returns the path to the training corpus.
func (c *Config) TrainPath() string { return filepath.Join(c.DataDir, c.TrainFile) }

// TestPath returns the path to the evaluation corpus.
func (c *Config) TestPath() string { return filepath.Join(c.DataDir, c.TestFile) }

// LearningRateSchedule returns the per-sample learning rate schedule:
// 0.003 for the first two epochs, 0.0015 for the next twelve, then 0.0003.
func (c *Config) LearningRateSchedule() (*training.PiecewiseSchedule, error) {
	return training.NewPiecewiseSchedule([]training.ScheduleEntry{
		{Value: 0.003, Samples: 2 * c.EpochSize},
		{Value: 0.0015, Samples: 12 * c.EpochSize},
		{Value: 0.0003},
	})
}

// MomentumPerSample returns the per-sample momentum derived from a time
// constant of one minibatch of samples decaying to 0.9.
func (c *Config) MomentumPerSample() float32 {
	tc := float64(c.MinibatchSize) / -math.Log(0.9)
	return optimizer.MomentumFromTimeConstant(tc)
}
