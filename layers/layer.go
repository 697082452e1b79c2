// Package layers defines model topologies as pure configuration. A ModelSpec
// is compiled shape/parameter metadata only; execution lives in the engine
// package.
package layers

import (
	"fmt"
	"strings"
)

// LayerType represents the type of a sequence-model layer.
type LayerType int

const (
	Embedding LayerType = iota
	Recurrent
	Dense
)

func (lt LayerType) String() string {
	switch lt {
	case Embedding:
		return "Embedding"
	case Recurrent:
		return "Recurrent"
	case Dense:
		return "Dense"
	default:
		return "Unknown"
	}
}

// CellType selects the recurrent cell variant.
type CellType int

const (
	// LSTM is the long short-term memory cell with input, forget and output
	// gates. This is the active cell of the shipped model.
	LSTM CellType = iota
	// RNN is a plain recurrent unit: activation(Wx + Uh + b).
	RNN
)

func (ct CellType) String() string {
	switch ct {
	case LSTM:
		return "LSTM"
	case RNN:
		return "RNN"
	default:
		return "Unknown"
	}
}

// Activation selects the nonlinearity of a plain RNN cell.
type Activation int

const (
	Tanh Activation = iota
	ReLU
)

func (a Activation) String() string {
	switch a {
	case Tanh:
		return "Tanh"
	case ReLU:
		return "ReLU"
	default:
		return "Unknown"
	}
}

// LayerSpec defines one layer's configuration. Shape and parameter metadata
// are filled in during compilation.
type LayerSpec struct {
	Type LayerType `json:"type"`
	Name string    `json:"name"`

	// OutputDim is the layer's declared output width: embedding dimension,
	// recurrent hidden dimension or dense output size.
	OutputDim int `json:"output_dim"`

	// Recurrent-only configuration.
	Cell         CellType   `json:"cell,omitempty"`
	Activation   Activation `json:"activation,omitempty"`
	GoBackwards  bool       `json:"go_backwards,omitempty"`
	InitialState float32    `json:"initial_state,omitempty"`

	// Dense-only configuration.
	UseBias bool `json:"use_bias,omitempty"`

	// Computed during compilation.
	InputDim        int     `json:"input_dim,omitempty"`
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec is a compiled model topology: an ordered layer stack with
// resolved shapes and parameter counts.
type ModelSpec struct {
	Layers          []LayerSpec `json:"layers"`
	InputDim        int         `json:"input_dim"`
	OutputDim       int         `json:"output_dim"`
	TotalParameters int64       `json:"total_parameters"`
	Compiled        bool        `json:"compiled"`
}

// ModelBuilder accumulates layer specifications and compiles them into a
// ModelSpec. The input dimension (vocabulary size) is bound at Compile time.
type ModelBuilder struct {
	layers []LayerSpec
}

// NewModelBuilder creates an empty model builder.
func NewModelBuilder() *ModelBuilder {
	return &ModelBuilder{}
}

// AddLayer appends a layer specification.
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	mb.layers = append(mb.layers, layer)
	return mb
}

// AddEmbedding adds a learned token embedding of the given dimension.
func (mb *ModelBuilder) AddEmbedding(dim int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:      Embedding,
		Name:      name,
		OutputDim: dim,
	})
}

// AddLSTM adds a forward LSTM recurrence over the token sequence.
func (mb *ModelBuilder) AddLSTM(hiddenDim int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:         Recurrent,
		Name:         name,
		OutputDim:    hiddenDim,
		Cell:         LSTM,
		InitialState: 0.1,
	})
}

// AddRNN adds a plain recurrent unit with the given activation. Kept as an
// alternative cell variant; the shipped model uses AddLSTM.
func (mb *ModelBuilder) AddRNN(hiddenDim int, activation Activation, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:         Recurrent,
		Name:         name,
		OutputDim:    hiddenDim,
		Cell:         RNN,
		Activation:   activation,
		InitialState: 0.1,
	})
}

// AddDense adds a linear projection with bias.
func (mb *ModelBuilder) AddDense(outputDim int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type:      Dense,
		Name:      name,
		OutputDim: outputDim,
		UseBias:   true,
	})
}

// Compile binds the input dimension and computes per-layer shapes and
// parameter counts. The first layer must be an Embedding so the model can
// consume sparse one-hot token streams directly.
func (mb *ModelBuilder) Compile(inputDim int) (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}
	if inputDim <= 0 {
		return nil, fmt.Errorf("invalid input dimension %d", inputDim)
	}
	if mb.layers[0].Type != Embedding {
		return nil, fmt.Errorf("first layer must be Embedding to consume sparse one-hot input, got %s", mb.layers[0].Type)
	}

	model := &ModelSpec{
		Layers:   make([]LayerSpec, len(mb.layers)),
		InputDim: inputDim,
	}
	copy(model.Layers, mb.layers)

	currentDim := inputDim
	totalParams := int64(0)
	for i := range model.Layers {
		layer := &model.Layers[i]
		if layer.OutputDim <= 0 {
			return nil, fmt.Errorf("layer %d (%s): invalid output dimension %d", i, layer.Name, layer.OutputDim)
		}
		layer.InputDim = currentDim

		shapes, err := parameterShapes(layer)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}
		layer.ParameterShapes = shapes
		layer.ParameterCount = countParameters(shapes)
		totalParams += layer.ParameterCount

		currentDim = layer.OutputDim
	}

	model.OutputDim = currentDim
	model.TotalParameters = totalParams
	model.Compiled = true
	return model, nil
}

// parameterShapes returns the learnable parameter shapes of a layer in the
// order the engine allocates them.
func parameterShapes(layer *LayerSpec) ([][]int, error) {
	switch layer.Type {
	case Embedding:
		// One embedding row per vocabulary entry.
		return [][]int{{layer.InputDim, layer.OutputDim}}, nil
	case Recurrent:
		switch layer.Cell {
		case LSTM:
			// Stacked gate order: input, forget, candidate, output.
			return [][]int{
				{4 * layer.OutputDim, layer.InputDim},
				{4 * layer.OutputDim, layer.OutputDim},
				{4 * layer.OutputDim},
			}, nil
		case RNN:
			return [][]int{
				{layer.OutputDim, layer.InputDim},
				{layer.OutputDim, layer.OutputDim},
				{layer.OutputDim},
			}, nil
		default:
			return nil, fmt.Errorf("unsupported cell type %s", layer.Cell)
		}
	case Dense:
		shapes := [][]int{{layer.OutputDim, layer.InputDim}}
		if layer.UseBias {
			shapes = append(shapes, []int{layer.OutputDim})
		}
		return shapes, nil
	default:
		return nil, fmt.Errorf("unsupported layer type %s", layer.Type)
	}
}

func countParameters(shapes [][]int) int64 {
	total := int64(0)
	for _, shape := range shapes {
		n := int64(1)
		for _, dim := range shape {
			n *= int64(dim)
		}
		total += n
	}
	return total
}

// Summary returns a human-readable model summary.
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Model Summary:\n")
	fmt.Fprintf(&b, "Input Dim: %d\n", ms.InputDim)
	fmt.Fprintf(&b, "Output Dim: %d\n", ms.OutputDim)
	fmt.Fprintf(&b, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&b, "Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		fmt.Fprintf(&b, "Layer %d: %s (%s)\n", i+1, layer.Name, describeLayer(&layer))
		fmt.Fprintf(&b, "  Input:  %d\n", layer.InputDim)
		fmt.Fprintf(&b, "  Output: %d\n", layer.OutputDim)
		fmt.Fprintf(&b, "  Params: %d\n\n", layer.ParameterCount)
	}
	return b.String()
}

func describeLayer(layer *LayerSpec) string {
	switch layer.Type {
	case Recurrent:
		if layer.Cell == RNN {
			return fmt.Sprintf("Recurrent/%s[%s]", layer.Cell, layer.Activation)
		}
		return fmt.Sprintf("Recurrent/%s", layer.Cell)
	default:
		return layer.Type.String()
	}
}
