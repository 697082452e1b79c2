// Package optimizer implements the gradient-based parameter update rules
// used by the training loop. Learning rates and momentum are expressed
// per sample: an optimizer step over a minibatch of N samples applies the
// same total update N identical single-sample steps would.
package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-tagger/tensor"
)

// Optimizer defines the common interface for all optimizers.
// This interface enables state save/restore for checkpoint functionality.
type Optimizer interface {
	// Step applies one update from the summed minibatch gradients.
	// samples is the number of samples the gradients were accumulated over.
	Step(params, grads []*tensor.Tensor, samples int) error

	// GetState extracts optimizer state for checkpointing.
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint.
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number.
	GetStepCount() uint64

	// UpdateLearningRate sets the per-sample learning rate.
	UpdateLearningRate(lr float32)

	// UpdateMomentum sets the per-sample momentum.
	UpdateMomentum(momentum float32)
}

// OptimizerState represents the complete state of an optimizer.
// Compatible with checkpoints.OptimizerState for serialization.
type OptimizerState struct {
	Type       string                 `json:"type"`       // "Adam", "SGD", etc.
	Parameters map[string]interface{} `json:"parameters"` // Hyperparameters
	StateData  []StateTensor          `json:"state_data"` // State tensors
}

// StateTensor is a named optimizer state tensor.
type StateTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// MomentumFromTimeConstant converts a momentum time constant, measured in
// samples, into a per-sample momentum value. A zero or negative time
// constant means no momentum.
func MomentumFromTimeConstant(tc float64) float32 {
	if tc <= 0 {
		return 0
	}
	return float32(math.Exp(-1.0 / tc))
}

// ClipConfig controls gradient clipping, applied to the summed minibatch
// gradients before the update. Threshold is per sample; a non-positive
// threshold disables clipping.
type ClipConfig struct {
	Threshold  float32
	Truncation bool
}

// apply clips the summed gradients in place. With truncation each element
// is clamped to the scaled threshold; otherwise the whole gradient is
// rescaled when its L2 norm exceeds it.
func (c ClipConfig) apply(grads []*tensor.Tensor, samples int) {
	if c.Threshold <= 0 {
		return
	}
	limit := c.Threshold * float32(samples)
	if c.Truncation {
		for _, g := range grads {
			g.Clamp(limit)
		}
		return
	}
	var sq float64
	for _, g := range grads {
		for _, v := range g.Data {
			sq += float64(v) * float64(v)
		}
	}
	norm := math.Sqrt(sq)
	if norm <= float64(limit) {
		return
	}
	scale := float32(float64(limit) / norm)
	for _, g := range grads {
		g.Scale(scale)
	}
}

// validateStateType ensures the state type matches the optimizer.
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state cannot be nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

// stateFloat reads a float hyperparameter from a state's parameter map.
func stateFloat(state *OptimizerState, key string) (float32, error) {
	v, err := stateFloat64(state, key)
	return float32(v), err
}

func stateFloat64(state *OptimizerState, key string) (float64, error) {
	raw, ok := state.Parameters[key]
	if !ok {
		return 0, fmt.Errorf("missing state parameter %q", key)
	}
	switch v := raw.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("state parameter %q has type %T, expected float", key, raw)
	}
}

// loadStateTensors copies named state tensors into the index-aligned
// destination slices.
func loadStateTensors(state *OptimizerState, prefix string, dst []*tensor.Tensor) error {
	found := 0
	for _, st := range state.StateData {
		var idx int
		if n, err := fmt.Sscanf(st.Name, prefix+"_%d", &idx); n != 1 || err != nil {
			continue
		}
		if idx < 0 || idx >= len(dst) {
			return fmt.Errorf("state tensor %s out of range", st.Name)
		}
		if len(st.Data) != dst[idx].NumElems {
			return fmt.Errorf("state tensor %s has %d elements, expected %d", st.Name, len(st.Data), dst[idx].NumElems)
		}
		copy(dst[idx].Data, st.Data)
		found++
	}
	if found != len(dst) {
		return fmt.Errorf("state has %d %s tensors, expected %d", found, prefix, len(dst))
	}
	return nil
}

// dumpStateTensors appends the index-aligned tensors to the state list
// under the naming scheme prefix_i.
func dumpStateTensors(out []StateTensor, prefix string, src []*tensor.Tensor) []StateTensor {
	for i, t := range src {
		shape := make([]int, len(t.Shape))
		copy(shape, t.Shape)
		data := make([]float32, len(t.Data))
		copy(data, t.Data)
		out = append(out, StateTensor{
			Name:  fmt.Sprintf("%s_%d", prefix, i),
			Shape: shape,
			Data:  data,
		})
	}
	return out
}
