package optimizer

import (
	"math"
	"testing"
)

func TestSGDPlainStep(t *testing.T) {
	config := SGDConfig{LearningRate: 0.1}
	params := singleParam(t, 1.0, -1.0)
	sgd, err := NewSGDOptimizer(config, params)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}

	grads := singleParam(t, 2.0, -4.0)
	if err := sgd.Step(params, grads, 2); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	// w -= lr * summed gradient.
	if math.Abs(float64(params[0].Data[0]-0.8)) > 1e-6 {
		t.Errorf("expected weight 0.8, got %f", params[0].Data[0])
	}
	if math.Abs(float64(params[0].Data[1]+0.6)) > 1e-6 {
		t.Errorf("expected weight -0.6, got %f", params[0].Data[1])
	}
}

func TestSGDMomentumAccumulates(t *testing.T) {
	config := SGDConfig{LearningRate: 0.1, Momentum: 0.9}
	params := singleParam(t, 0)
	sgd, err := NewSGDOptimizer(config, params)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}

	grads := singleParam(t, 1.0)
	if err := sgd.Step(params, grads, 1); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if err := sgd.Step(params, grads, 1); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	// v1 = 0.1, v2 = 0.9*0.1 + 0.1 = 0.19; w = -(0.1 + 0.19).
	want := float32(-0.29)
	if math.Abs(float64(params[0].Data[0]-want)) > 1e-6 {
		t.Errorf("expected weight %f, got %f", want, params[0].Data[0])
	}
}

func TestSGDNesterovLooksAhead(t *testing.T) {
	config := SGDConfig{LearningRate: 0.1, Momentum: 0.9, Nesterov: true}
	params := singleParam(t, 0)
	sgd, err := NewSGDOptimizer(config, params)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}

	grads := singleParam(t, 1.0)
	if err := sgd.Step(params, grads, 1); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	// v1 = 0.1; w -= 0.9*v1 + lr*g = 0.09 + 0.1.
	want := float32(-0.19)
	if math.Abs(float64(params[0].Data[0]-want)) > 1e-6 {
		t.Errorf("expected weight %f, got %f", want, params[0].Data[0])
	}
}

func TestSGDStateRoundTrip(t *testing.T) {
	config := SGDConfig{LearningRate: 0.05, Momentum: 0.8}
	paramsA := singleParam(t, 1.0, 2.0)
	a, err := NewSGDOptimizer(config, paramsA)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}

	grads := singleParam(t, 0.5, -0.25)
	if err := a.Step(paramsA, grads, 3); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	state, err := a.GetState()
	if err != nil {
		t.Fatalf("failed to get state: %v", err)
	}

	paramsB := singleParam(t, paramsA[0].Data[0], paramsA[0].Data[1])
	b, err := NewSGDOptimizer(config, paramsB)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}
	if err := b.LoadState(state); err != nil {
		t.Fatalf("failed to load state: %v", err)
	}

	if err := a.Step(paramsA, grads, 3); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if err := b.Step(paramsB, grads, 3); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	for k := range paramsA[0].Data {
		if paramsA[0].Data[k] != paramsB[0].Data[k] {
			t.Errorf("element %d diverged after state restore: %f vs %f",
				k, paramsA[0].Data[k], paramsB[0].Data[k])
		}
	}
}

func TestSGDRejectsBadSampleCount(t *testing.T) {
	params := singleParam(t, 1.0)
	sgd, err := NewSGDOptimizer(DefaultSGDConfig(), params)
	if err != nil {
		t.Fatalf("failed to create optimizer: %v", err)
	}
	if err := sgd.Step(params, singleParam(t, 1.0), 0); err == nil {
		t.Error("expected error for zero sample count")
	}
}
