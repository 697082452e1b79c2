package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 943, cfg.VocabSize)
	assert.Equal(t, 129, cfg.NumLabels)
	assert.Equal(t, 26, cfg.NumIntents)
	assert.Equal(t, 150, cfg.EmbeddingDim)
	assert.Equal(t, 300, cfg.HiddenDim)
	assert.Equal(t, int64(36000), cfg.EpochSize)
	assert.Equal(t, 70, cfg.MinibatchSize)
	assert.Equal(t, 8, cfg.MaxEpochs)
	assert.Equal(t, 1000, cfg.EvalMinibatchSize)
	assert.Equal(t, int64(1), cfg.Seed)
	assert.Equal(t, float32(15), cfg.GradClipThreshold)
	assert.Equal(t, filepath.Join("data", "atis.train.ctf"), cfg.TrainPath())
	assert.Equal(t, filepath.Join("data", "atis.test.ctf"), cfg.TestPath())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ATIS_MAX_EPOCHS", "2")
	t.Setenv("ATIS_DATA_DIR", "/tmp/atis")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxEpochs)
	assert.Equal(t, filepath.Join("/tmp/atis", "atis.train.ctf"), cfg.TrainPath())
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ATIS_HIDDEN_DIM=64\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ATIS_HIDDEN_DIM") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.HiddenDim)

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveValues(t *testing.T) {
	t.Setenv("ATIS_MINIBATCH_SIZE", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLearningRateSchedule(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	schedule, err := cfg.LearningRateSchedule()
	require.NoError(t, err)
	assert.Equal(t, float32(0.003), schedule.ValueAt(0))
	assert.Equal(t, float32(0.003), schedule.ValueAt(2*36000-1))
	assert.Equal(t, float32(0.0015), schedule.ValueAt(2*36000))
	assert.Equal(t, float32(0.0003), schedule.ValueAt(14*36000))
}

func TestMomentumPerSample(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Seventy samples of per-sample decay must compound to 0.9.
	m := float64(cfg.MomentumPerSample())
	assert.InDelta(t, 0.9, math.Pow(m, 70), 1e-5)
}
