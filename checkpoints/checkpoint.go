// Package checkpoints serializes model weights, optimizer state and
// training progress to JSON so a run can be resumed or a trained model
// reloaded for evaluation.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsawler/go-tagger/engine"
	"github.com/tsawler/go-tagger/layers"
	"github.com/tsawler/go-tagger/optimizer"
)

// Checkpoint represents a complete model state including weights,
// optimizer state and training metadata.
type Checkpoint struct {
	// Model architecture and weights
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *optimizer.OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "recurrent_weight", "bias"
}

// TrainingState captures the current training progress.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	SamplesSeen  int64   `json:"samples_seen"`
	LearningRate float32 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	BestError    float64 `json:"best_error"`
}

// CheckpointMetadata contains checkpoint metadata.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// FromNetwork snapshots a network's weights into a checkpoint, together
// with the given training and optimizer state.
func FromNetwork(net *engine.Network, state TrainingState, optState *optimizer.OptimizerState) (*Checkpoint, error) {
	if net == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}

	params := net.Parameters()
	names := net.ParameterNames()
	weights := make([]WeightTensor, len(params))
	for i, p := range params {
		layer, kind, found := strings.Cut(names[i], ".")
		if !found {
			return nil, fmt.Errorf("parameter name %q is not layer.type", names[i])
		}
		shape := make([]int, len(p.Shape))
		copy(shape, p.Shape)
		data := make([]float32, len(p.Data))
		copy(data, p.Data)
		weights[i] = WeightTensor{
			Name:  names[i],
			Shape: shape,
			Data:  data,
			Layer: layer,
			Type:  kind,
		}
	}

	return &Checkpoint{
		ModelSpec:      net.Spec(),
		Weights:        weights,
		TrainingState:  state,
		OptimizerState: optState,
		Metadata: CheckpointMetadata{
			Version:   "1.0",
			Framework: "go-tagger",
			CreatedAt: time.Now().UTC(),
		},
	}, nil
}

// ApplyTo loads the checkpoint's weights into a network. The network must
// have been built from a matching model spec.
func (c *Checkpoint) ApplyTo(net *engine.Network) error {
	if net == nil {
		return fmt.Errorf("network cannot be nil")
	}

	byName := make(map[string]WeightTensor, len(c.Weights))
	for _, w := range c.Weights {
		byName[w.Name] = w
	}

	params := net.Parameters()
	names := net.ParameterNames()
	for i, p := range params {
		w, ok := byName[names[i]]
		if !ok {
			return fmt.Errorf("checkpoint has no weights for parameter %q", names[i])
		}
		if len(w.Data) != p.NumElems {
			return fmt.Errorf("parameter %q has %d elements in checkpoint, expected %d",
				names[i], len(w.Data), p.NumElems)
		}
		copy(p.Data, w.Data)
	}
	return nil
}

// SaveCheckpoint writes a checkpoint to disk as JSON.
func SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint from disk.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %v", err)
	}
	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint has no model spec")
	}
	return &checkpoint, nil
}

// RestoreNetwork rebuilds a network from a checkpoint's model spec and
// loads its weights. The seed only affects the discarded initial values.
func RestoreNetwork(checkpoint *Checkpoint, seed int64) (*engine.Network, error) {
	net, err := engine.NewNetwork(checkpoint.ModelSpec, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild network: %v", err)
	}
	if err := checkpoint.ApplyTo(net); err != nil {
		return nil, err
	}
	return net, nil
}
