package layers

import (
	"strings"
	"testing"
)

// buildSlotModel builds the active ATIS topology at small dimensions.
func buildSlotModel() *ModelBuilder {
	return NewModelBuilder().
		AddEmbedding(4, "embed").
		AddLSTM(6, "recurrence").
		AddDense(3, "classify")
}

func TestCompileSlotModel(t *testing.T) {
	model, err := buildSlotModel().Compile(10)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if !model.Compiled {
		t.Error("model should be marked compiled")
	}
	if model.InputDim != 10 {
		t.Errorf("expected input dim 10, got %d", model.InputDim)
	}
	if model.OutputDim != 3 {
		t.Errorf("expected output dim 3, got %d", model.OutputDim)
	}

	// Embedding: 10x4. LSTM: 24x4 + 24x6 + 24. Dense: 3x6 + 3.
	expectedParams := int64(10*4 + 24*4 + 24*6 + 24 + 3*6 + 3)
	if model.TotalParameters != expectedParams {
		t.Errorf("expected %d parameters, got %d", expectedParams, model.TotalParameters)
	}

	lstm := model.Layers[1]
	if lstm.InputDim != 4 {
		t.Errorf("expected LSTM input dim 4, got %d", lstm.InputDim)
	}
	if len(lstm.ParameterShapes) != 3 {
		t.Fatalf("expected 3 LSTM parameter tensors, got %d", len(lstm.ParameterShapes))
	}
	if lstm.ParameterShapes[0][0] != 24 || lstm.ParameterShapes[0][1] != 4 {
		t.Errorf("unexpected LSTM input weight shape %v", lstm.ParameterShapes[0])
	}
	if lstm.InitialState != 0.1 {
		t.Errorf("expected initial state 0.1, got %f", lstm.InitialState)
	}
}

func TestCompileRNNVariant(t *testing.T) {
	model, err := NewModelBuilder().
		AddEmbedding(4, "embed").
		AddRNN(6, ReLU, "recurrence").
		AddDense(3, "classify").
		Compile(10)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	rnn := model.Layers[1]
	if rnn.Cell != RNN {
		t.Errorf("expected RNN cell, got %s", rnn.Cell)
	}
	if rnn.Activation != ReLU {
		t.Errorf("expected ReLU activation, got %s", rnn.Activation)
	}
	// RNN: 6x4 + 6x6 + 6.
	if rnn.ParameterCount != int64(6*4+6*6+6) {
		t.Errorf("unexpected RNN parameter count %d", rnn.ParameterCount)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := NewModelBuilder().Compile(10); err == nil {
		t.Error("expected error for empty model")
	}

	if _, err := buildSlotModel().Compile(0); err == nil {
		t.Error("expected error for invalid input dim")
	}

	// First layer must be an embedding.
	if _, err := NewModelBuilder().AddDense(3, "classify").Compile(10); err == nil {
		t.Error("expected error for non-embedding first layer")
	}

	if _, err := NewModelBuilder().AddEmbedding(0, "embed").Compile(10); err == nil {
		t.Error("expected error for zero-width layer")
	}
}

func TestSummary(t *testing.T) {
	model, err := buildSlotModel().Compile(10)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	summary := model.Summary()
	for _, want := range []string{"embed", "Recurrent/LSTM", "classify", "Total Parameters"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	uncompiled := &ModelSpec{}
	if uncompiled.Summary() != "Model not compiled" {
		t.Error("uncompiled model should report as such")
	}
}
