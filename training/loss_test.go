package training

import (
	"math"
	"testing"
)

func TestCrossEntropyKnownValues(t *testing.T) {
	c := CrossEntropyCriterion{}

	// Uniform logits over two classes: loss is ln 2 for either target.
	logits := [][][]float32{{{0, 0}}}
	targets := [][]int32{{0}}

	metrics, dLogits, err := c.ForwardBackward(logits, targets)
	if err != nil {
		t.Fatalf("criterion failed: %v", err)
	}
	if metrics.Samples != 1 {
		t.Errorf("expected 1 sample, got %d", metrics.Samples)
	}
	if math.Abs(metrics.Loss-math.Ln2) > 1e-6 {
		t.Errorf("expected loss ln 2, got %f", metrics.Loss)
	}

	// Gradient is softmax minus one-hot: (-0.5, 0.5).
	if math.Abs(float64(dLogits[0][0][0]+0.5)) > 1e-6 || math.Abs(float64(dLogits[0][0][1]-0.5)) > 1e-6 {
		t.Errorf("expected gradient (-0.5, 0.5), got (%f, %f)", dLogits[0][0][0], dLogits[0][0][1])
	}
}

func TestCrossEntropyCountsErrors(t *testing.T) {
	c := CrossEntropyCriterion{}

	logits := [][][]float32{{
		{2, 0, 0}, // predicts 0, target 0: correct
		{0, 3, 0}, // predicts 1, target 2: wrong
	}}
	targets := [][]int32{{0, 2}}

	metrics, err := c.Evaluate(logits, targets)
	if err != nil {
		t.Fatalf("criterion failed: %v", err)
	}
	if metrics.Samples != 2 {
		t.Errorf("expected 2 samples, got %d", metrics.Samples)
	}
	if metrics.Errors != 1 {
		t.Errorf("expected 1 error, got %d", metrics.Errors)
	}
	if math.Abs(metrics.ErrorRate()-0.5) > 1e-9 {
		t.Errorf("expected error rate 0.5, got %f", metrics.ErrorRate())
	}
}

func TestCrossEntropyNumericalStability(t *testing.T) {
	c := CrossEntropyCriterion{}

	// Large logits would overflow a naive softmax.
	logits := [][][]float32{{{1000, 0}}}
	targets := [][]int32{{0}}

	metrics, err := c.Evaluate(logits, targets)
	if err != nil {
		t.Fatalf("criterion failed: %v", err)
	}
	if math.IsNaN(metrics.Loss) || math.IsInf(metrics.Loss, 0) {
		t.Fatalf("loss is not finite: %f", metrics.Loss)
	}
	if metrics.Loss > 1e-6 {
		t.Errorf("expected near-zero loss for confident correct prediction, got %f", metrics.Loss)
	}
}

func TestCrossEntropyValidation(t *testing.T) {
	c := CrossEntropyCriterion{}

	if _, err := c.Evaluate([][][]float32{{{0, 0}}}, [][]int32{{0, 1}}); err == nil {
		t.Error("expected error for mismatched sequence lengths")
	}
	if _, err := c.Evaluate([][][]float32{{{0, 0}}}, [][]int32{{5}}); err == nil {
		t.Error("expected error for out-of-range target")
	}
	if _, err := c.Evaluate([][][]float32{{{0, 0}}}, nil); err == nil {
		t.Error("expected error for missing target sequences")
	}
}

func TestMetricsAggregation(t *testing.T) {
	var m Metrics
	m.Add(Metrics{Loss: 2, Errors: 1, Samples: 4})
	m.Add(Metrics{Loss: 4, Errors: 2, Samples: 8})

	if m.Samples != 12 {
		t.Errorf("expected 12 samples, got %d", m.Samples)
	}
	if math.Abs(m.AvgLoss()-0.5) > 1e-9 {
		t.Errorf("expected average loss 0.5, got %f", m.AvgLoss())
	}
	if math.Abs(m.ErrorRate()-0.25) > 1e-9 {
		t.Errorf("expected error rate 0.25, got %f", m.ErrorRate())
	}

	var empty Metrics
	if empty.AvgLoss() != 0 || empty.ErrorRate() != 0 {
		t.Error("expected zero metrics for empty aggregate")
	}
}
