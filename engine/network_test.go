package engine

import (
	"math"
	"testing"

	"github.com/tsawler/go-tagger/layers"
)

func buildTestModel(t *testing.T) *layers.ModelSpec {
	t.Helper()
	spec, err := layers.NewModelBuilder().
		AddEmbedding(3, "embed").
		AddLSTM(4, "encode").
		AddDense(2, "classify").
		Compile(5)
	if err != nil {
		t.Fatalf("failed to compile model: %v", err)
	}
	return spec
}

func TestNewNetworkRequiresCompiledSpec(t *testing.T) {
	if _, err := NewNetwork(nil, 1); err == nil {
		t.Error("expected error for nil spec")
	}
	if _, err := NewNetwork(&layers.ModelSpec{}, 1); err == nil {
		t.Error("expected error for uncompiled spec")
	}
}

func TestForwardShapes(t *testing.T) {
	net, err := NewNetwork(buildTestModel(t), 1)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	batch := [][]int32{{0, 2, 4}, {1, 3}}
	logits, state, err := net.Forward(batch)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if state == nil {
		t.Fatal("expected forward state")
	}
	if len(logits) != 2 {
		t.Fatalf("expected 2 sequences, got %d", len(logits))
	}
	for s, seq := range logits {
		if len(seq) != len(batch[s]) {
			t.Errorf("sequence %d: expected %d steps, got %d", s, len(batch[s]), len(seq))
		}
		for step, vec := range seq {
			if len(vec) != 2 {
				t.Errorf("sequence %d step %d: expected width 2, got %d", s, step, len(vec))
			}
		}
	}
}

func TestDeterministicInit(t *testing.T) {
	a, err := NewNetwork(buildTestModel(t), 7)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}
	b, err := NewNetwork(buildTestModel(t), 7)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	pa, pb := a.Parameters(), b.Parameters()
	if len(pa) != len(pb) {
		t.Fatalf("parameter count mismatch: %d vs %d", len(pa), len(pb))
	}
	for i := range pa {
		for k := range pa[i].Data {
			if pa[i].Data[k] != pb[i].Data[k] {
				t.Fatalf("parameter %s differs at element %d", a.ParameterNames()[i], k)
			}
		}
	}
}

func TestEmbeddingIndexOutOfRange(t *testing.T) {
	net, err := NewNetwork(buildTestModel(t), 1)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}
	if _, _, err := net.Forward([][]int32{{0, 5}}); err == nil {
		t.Error("expected error for token index beyond vocabulary")
	}
}

// lossCoef gives each logit a fixed weight so the test loss is a plain
// weighted sum with a known exact gradient.
func lossCoef(seq, step, j int) float32 {
	return 0.05 * float32(seq+1) * float32(step+1) * float32(j+1)
}

func weightedLoss(t *testing.T, net *Network, batch [][]int32) float64 {
	t.Helper()
	logits, _, err := net.Forward(batch)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	var loss float64
	for s, seq := range logits {
		for step, vec := range seq {
			for j, v := range vec {
				loss += float64(lossCoef(s, step, j)) * float64(v)
			}
		}
	}
	return loss
}

func checkGradients(t *testing.T, spec *layers.ModelSpec, batch [][]int32) {
	t.Helper()
	net, err := NewNetwork(spec, 3)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	logits, state, err := net.Forward(batch)
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	dLogits := make([][][]float32, len(logits))
	for s, seq := range logits {
		dLogits[s] = make([][]float32, len(seq))
		for step, vec := range seq {
			d := make([]float32, len(vec))
			for j := range vec {
				d[j] = lossCoef(s, step, j)
			}
			dLogits[s][step] = d
		}
	}

	net.ZeroGradients()
	if err := net.Backward(dLogits, state); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	const eps = 1e-2
	for pi, p := range net.Parameters() {
		name := net.ParameterNames()[pi]
		analytic := net.Gradients()[pi]
		for k := range p.Data {
			orig := p.Data[k]
			p.Data[k] = orig + eps
			plus := weightedLoss(t, net, batch)
			p.Data[k] = orig - eps
			minus := weightedLoss(t, net, batch)
			p.Data[k] = orig

			numeric := (plus - minus) / (2 * eps)
			got := float64(analytic.Data[k])
			tol := 5e-3 + 0.02*math.Abs(numeric)
			if math.Abs(got-numeric) > tol {
				t.Errorf("%s[%d]: analytic gradient %.6f, numeric %.6f", name, k, got, numeric)
			}
		}
	}
}

func TestLSTMGradients(t *testing.T) {
	checkGradients(t, buildTestModel(t), [][]int32{{0, 2, 4}, {1, 3}})
}

func TestRNNGradients(t *testing.T) {
	spec, err := layers.NewModelBuilder().
		AddEmbedding(3, "embed").
		AddRNN(4, layers.Tanh, "encode").
		AddDense(2, "classify").
		Compile(5)
	if err != nil {
		t.Fatalf("failed to compile model: %v", err)
	}
	checkGradients(t, spec, [][]int32{{4, 1, 0}})
}

func TestBackwardLSTMGradients(t *testing.T) {
	spec, err := layers.NewModelBuilder().
		AddEmbedding(3, "embed").
		AddLayer(layers.LayerSpec{
			Type:         layers.Recurrent,
			Name:         "encode_rev",
			OutputDim:    4,
			Cell:         layers.LSTM,
			GoBackwards:  true,
			InitialState: 0.1,
		}).
		AddDense(2, "classify").
		Compile(5)
	if err != nil {
		t.Fatalf("failed to compile model: %v", err)
	}
	checkGradients(t, spec, [][]int32{{2, 0, 3, 1}})
}

func TestBackwardLSTMMirrorsForward(t *testing.T) {
	build := func(back bool) *layers.ModelSpec {
		spec, err := layers.NewModelBuilder().
			AddEmbedding(3, "embed").
			AddLayer(layers.LayerSpec{
				Type:         layers.Recurrent,
				Name:         "encode",
				OutputDim:    4,
				Cell:         layers.LSTM,
				GoBackwards:  back,
				InitialState: 0.1,
			}).
			AddDense(2, "classify").
			Compile(5)
		if err != nil {
			t.Fatalf("failed to compile model: %v", err)
		}
		return spec
	}

	fwd, err := NewNetwork(build(false), 11)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}
	rev, err := NewNetwork(build(true), 11)
	if err != nil {
		t.Fatalf("failed to build network: %v", err)
	}

	tokens := []int32{0, 3, 1, 4}
	reversed := []int32{4, 1, 3, 0}

	fwdOut, _, err := fwd.Forward([][]int32{reversed})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	revOut, _, err := rev.Forward([][]int32{tokens})
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}

	// A backwards recurrence over the sequence equals a forward recurrence
	// over the reversed sequence, with outputs in reversed order.
	n := len(tokens)
	for step := 0; step < n; step++ {
		for j := range fwdOut[0][step] {
			got := revOut[0][n-1-step][j]
			want := fwdOut[0][step][j]
			if math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("step %d element %d: got %.6f, want %.6f", step, j, got, want)
			}
		}
	}
}
