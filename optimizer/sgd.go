package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-tagger/tensor"
)

// SGDConfig holds configuration for the SGD optimizer. LearningRate and
// Momentum are per sample.
type SGDConfig struct {
	LearningRate float32
	Momentum     float32
	Nesterov     bool
	Clip         ClipConfig
}

// DefaultSGDConfig returns default SGD optimizer configuration.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		Nesterov:     false,
	}
}

// SGDOptimizer implements stochastic gradient descent with optional
// classical or Nesterov momentum.
type SGDOptimizer struct {
	config SGDConfig

	velocity []*tensor.Tensor

	stepCount uint64
}

// NewSGDOptimizer creates an SGD optimizer with zeroed velocity tensors
// shaped like the given parameters.
func NewSGDOptimizer(config SGDConfig, params []*tensor.Tensor) (*SGDOptimizer, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters provided")
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid learning rate %g", config.LearningRate)
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("invalid momentum %g", config.Momentum)
	}

	sgd := &SGDOptimizer{
		config:   config,
		velocity: make([]*tensor.Tensor, len(params)),
	}
	for i, p := range params {
		v, err := tensor.Zeros(p.Shape)
		if err != nil {
			return nil, err
		}
		sgd.velocity[i] = v
	}
	return sgd, nil
}

// Step applies one SGD update from the summed minibatch gradients.
func (s *SGDOptimizer) Step(params, grads []*tensor.Tensor, samples int) error {
	if len(params) != len(s.velocity) || len(grads) != len(s.velocity) {
		return fmt.Errorf("expected %d parameter and gradient tensors, got %d and %d",
			len(s.velocity), len(params), len(grads))
	}
	if samples <= 0 {
		return fmt.Errorf("invalid sample count %d", samples)
	}

	s.config.Clip.apply(grads, samples)

	effMomentum := 0.0
	if s.config.Momentum > 0 {
		effMomentum = math.Pow(float64(s.config.Momentum), float64(samples))
	}
	lr := float64(s.config.LearningRate)

	s.stepCount++
	for i, p := range params {
		if !tensor.ShapesEqual(p.Shape, s.velocity[i].Shape) {
			return fmt.Errorf("parameter %d shape changed since optimizer creation", i)
		}
		v := s.velocity[i].Data
		g := grads[i].Data
		w := p.Data
		for k := range w {
			vk := effMomentum*float64(v[k]) + lr*float64(g[k])
			v[k] = float32(vk)
			if s.config.Nesterov {
				w[k] -= float32(effMomentum*vk + lr*float64(g[k]))
			} else {
				w[k] -= float32(vk)
			}
		}
	}
	return nil
}

func (s *SGDOptimizer) GetState() (*OptimizerState, error) {
	state := &OptimizerState{
		Type: "SGD",
		Parameters: map[string]interface{}{
			"learning_rate": s.config.LearningRate,
			"momentum":      s.config.Momentum,
			"nesterov":      s.config.Nesterov,
			"step_count":    float64(s.stepCount),
		},
	}
	state.StateData = dumpStateTensors(state.StateData, "velocity", s.velocity)
	return state, nil
}

func (s *SGDOptimizer) LoadState(state *OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}
	lr, err := stateFloat(state, "learning_rate")
	if err != nil {
		return err
	}
	momentum, err := stateFloat(state, "momentum")
	if err != nil {
		return err
	}
	stepCount, err := stateFloat64(state, "step_count")
	if err != nil {
		return err
	}
	if err := loadStateTensors(state, "velocity", s.velocity); err != nil {
		return err
	}
	s.config.LearningRate = lr
	s.config.Momentum = momentum
	s.stepCount = uint64(stepCount)
	return nil
}

func (s *SGDOptimizer) GetStepCount() uint64 { return s.stepCount }

func (s *SGDOptimizer) UpdateLearningRate(lr float32) { s.config.LearningRate = lr }

func (s *SGDOptimizer) UpdateMomentum(momentum float32) { s.config.Momentum = momentum }
