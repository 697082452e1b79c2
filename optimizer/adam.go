package optimizer

import (
	"fmt"
	"math"

	"github.com/tsawler/go-tagger/tensor"
)

// AdamConfig holds configuration for the Adam optimizer. LearningRate and
// Momentum are per sample; Momentum plays the role of beta1.
type AdamConfig struct {
	LearningRate float32
	Momentum     float32
	Beta2        float32
	Epsilon      float32
	Clip         ClipConfig
}

// DefaultAdamConfig returns default Adam optimizer configuration.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Momentum:     0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// AdamOptimizer implements Adam with per-sample hyperparameters. For a
// minibatch of N samples the first moment decays by Momentum^N and the
// update is scaled by LearningRate*N, so the step matches N consecutive
// single-sample updates with the same gradients.
type AdamOptimizer struct {
	config AdamConfig

	momentum []*tensor.Tensor // first moment per parameter
	variance []*tensor.Tensor // second moment per parameter

	stepCount  uint64
	beta1Power float64 // running product of effective beta1 for bias correction
	beta2Power float64
}

// NewAdamOptimizer creates an Adam optimizer with zeroed moments shaped
// like the given parameters.
func NewAdamOptimizer(config AdamConfig, params []*tensor.Tensor) (*AdamOptimizer, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters provided")
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("invalid learning rate %g", config.LearningRate)
	}
	if config.Beta2 <= 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("invalid beta2 %g", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("invalid epsilon %g", config.Epsilon)
	}

	adam := &AdamOptimizer{
		config:     config,
		momentum:   make([]*tensor.Tensor, len(params)),
		variance:   make([]*tensor.Tensor, len(params)),
		beta1Power: 1,
		beta2Power: 1,
	}
	for i, p := range params {
		m, err := tensor.Zeros(p.Shape)
		if err != nil {
			return nil, err
		}
		v, err := tensor.Zeros(p.Shape)
		if err != nil {
			return nil, err
		}
		adam.momentum[i] = m
		adam.variance[i] = v
	}
	return adam, nil
}

// Step applies one Adam update from the summed minibatch gradients.
func (a *AdamOptimizer) Step(params, grads []*tensor.Tensor, samples int) error {
	if len(params) != len(a.momentum) || len(grads) != len(a.momentum) {
		return fmt.Errorf("expected %d parameter and gradient tensors, got %d and %d",
			len(a.momentum), len(params), len(grads))
	}
	if samples <= 0 {
		return fmt.Errorf("invalid sample count %d", samples)
	}

	a.config.Clip.apply(grads, samples)

	effBeta1 := 0.0
	if a.config.Momentum > 0 {
		effBeta1 = math.Pow(float64(a.config.Momentum), float64(samples))
	}
	beta2 := float64(a.config.Beta2)
	effLR := float64(a.config.LearningRate) * float64(samples)
	invSamples := 1.0 / float64(samples)

	a.stepCount++
	a.beta1Power *= effBeta1
	a.beta2Power *= beta2
	mCorr := 1 - a.beta1Power
	vCorr := 1 - a.beta2Power

	for i, p := range params {
		if !tensor.ShapesEqual(p.Shape, a.momentum[i].Shape) {
			return fmt.Errorf("parameter %d shape changed since optimizer creation", i)
		}
		m := a.momentum[i].Data
		v := a.variance[i].Data
		g := grads[i].Data
		w := p.Data
		for k := range w {
			grad := float64(g[k]) * invSamples
			mk := effBeta1*float64(m[k]) + (1-effBeta1)*grad
			vk := beta2*float64(v[k]) + (1-beta2)*grad*grad
			m[k] = float32(mk)
			v[k] = float32(vk)

			mHat := mk / mCorr
			vHat := vk / vCorr
			w[k] -= float32(effLR * mHat / (math.Sqrt(vHat) + float64(a.config.Epsilon)))
		}
	}
	return nil
}

func (a *AdamOptimizer) GetState() (*OptimizerState, error) {
	state := &OptimizerState{
		Type: "Adam",
		Parameters: map[string]interface{}{
			"learning_rate": a.config.LearningRate,
			"momentum":      a.config.Momentum,
			"beta2":         a.config.Beta2,
			"epsilon":       a.config.Epsilon,
			"step_count":    float64(a.stepCount),
			"beta1_power":   a.beta1Power,
			"beta2_power":   a.beta2Power,
		},
	}
	state.StateData = dumpStateTensors(state.StateData, "momentum", a.momentum)
	state.StateData = dumpStateTensors(state.StateData, "variance", a.variance)
	return state, nil
}

func (a *AdamOptimizer) LoadState(state *OptimizerState) error {
	if err := validateStateType("Adam", state); err != nil {
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
	beta1Power, err := stateFloat64(state, "beta1_power")
	if err != nil {
		return err
	}
	beta2Power, err := stateFloat64(state, "beta2_power")
	if err != nil {
		return err
	}
	if err := loadStateTensors(state, "momentum", a.momentum); err != nil {
		return err
	}
	if err := loadStateTensors(state, "variance", a.variance); err != nil {
		return err
	}
	a.config.LearningRate = lr
	a.config.Momentum = momentum
	a.stepCount = uint64(stepCount)
	a.beta1Power = beta1Power
	a.beta2Power = beta2Power
	return nil
}

func (a *AdamOptimizer) GetStepCount() uint64 { return a.stepCount }

func (a *AdamOptimizer) UpdateLearningRate(lr float32) { a.config.LearningRate = lr }

func (a *AdamOptimizer) UpdateMomentum(momentum float32) { a.config.Momentum = momentum }
