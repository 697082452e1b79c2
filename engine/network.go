// Package engine executes compiled model specifications on the CPU: parameter
// initialization, forward passes over packed sequence batches and
// backpropagation through time. All state is float32 and mutated in place by
// the optimizer between steps.
package engine

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-tagger/layers"
	"github.com/tsawler/go-tagger/tensor"
)

// Network is a compiled, executable model: parameter tensors plus per-layer
// runners that implement forward and backward passes. A Network is not safe
// for concurrent use; Forward caches activations that the next Backward
// consumes.
type Network struct {
	spec    *layers.ModelSpec
	params  []*tensor.Tensor
	grads   []*tensor.Tensor
	names   []string
	runners []runner
}

// seqInput is one sequence's input to a layer: sparse token indices for the
// embedding layer, dense per-token vectors for everything above it.
type seqInput struct {
	tokens []int32
	vecs   [][]float32
}

// runner executes one layer for one sequence.
type runner interface {
	// forward maps the sequence input to per-token output vectors and
	// returns an activation cache for the matching backward call.
	forward(in seqInput) ([][]float32, any, error)

	// backward consumes the upstream per-token gradient and the forward
	// cache, accumulates parameter gradients, and returns the gradient with
	// respect to the layer input (nil for the embedding layer).
	backward(dOut [][]float32, cache any) ([][]float32, error)
}

// NewNetwork allocates and initializes parameters for a compiled model spec.
// Initialization is deterministic for a fixed seed.
func NewNetwork(spec *layers.ModelSpec, seed int64) (*Network, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}

	rng := rand.New(rand.NewSource(seed))
	n := &Network{spec: spec}

	for i := range spec.Layers {
		layer := &spec.Layers[i]
		params, names, err := allocateParameters(layer, rng)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}

		grads := make([]*tensor.Tensor, len(params))
		for j, p := range params {
			g, err := tensor.Zeros(p.Shape)
			if err != nil {
				return nil, err
			}
			grads[j] = g
		}

		r, err := newRunner(layer, params, grads)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}

		n.params = append(n.params, params...)
		n.grads = append(n.grads, grads...)
		n.names = append(n.names, names...)
		n.runners = append(n.runners, r)
	}

	return n, nil
}

// allocateParameters creates a layer's parameter tensors in the order
// declared by the layer's compiled parameter shapes. Weight matrices use
// Glorot-uniform initialization; biases start at zero.
func allocateParameters(layer *layers.LayerSpec, rng *rand.Rand) ([]*tensor.Tensor, []string, error) {
	suffixes, err := parameterSuffixes(layer)
	if err != nil {
		return nil, nil, err
	}
	if len(suffixes) != len(layer.ParameterShapes) {
		return nil, nil, fmt.Errorf("parameter shape count %d does not match layer layout %d",
			len(layer.ParameterShapes), len(suffixes))
	}

	params := make([]*tensor.Tensor, len(layer.ParameterShapes))
	names := make([]string, len(layer.ParameterShapes))
	for i, shape := range layer.ParameterShapes {
		var t *tensor.Tensor
		if len(shape) == 2 {
			t, err = tensor.GlorotUniform(shape, shape[1], shape[0], rng)
		} else {
			t, err = tensor.Zeros(shape)
		}
		if err != nil {
			return nil, nil, err
		}
		params[i] = t
		names[i] = fmt.Sprintf("%s.%s", layer.Name, suffixes[i])
	}
	return params, names, nil
}

func parameterSuffixes(layer *layers.LayerSpec) ([]string, error) {
	switch layer.Type {
	case layers.Embedding:
		return []string{"weight"}, nil
	case layers.Recurrent:
		return []string{"weight", "recurrent_weight", "bias"}, nil
	case layers.Dense:
		if layer.UseBias {
			return []string{"weight", "bias"}, nil
		}
		return []string{"weight"}, nil
	default:
		return nil, fmt.Errorf("unsupported layer type %s", layer.Type)
	}
}

func newRunner(layer *layers.LayerSpec, params, grads []*tensor.Tensor) (runner, error) {
	switch layer.Type {
	case layers.Embedding:
		return &embeddingRunner{spec: layer, w: params[0], gw: grads[0]}, nil
	case layers.Recurrent:
		base := recurrentParams{
			spec: layer,
			w:    params[0], u: params[1], b: params[2],
			gw: grads[0], gu: grads[1], gb: grads[2],
		}
		switch layer.Cell {
		case layers.LSTM:
			return &lstmRunner{recurrentParams: base}, nil
		case layers.RNN:
			return &rnnRunner{recurrentParams: base}, nil
		default:
			return nil, fmt.Errorf("unsupported cell type %s", layer.Cell)
		}
	case layers.Dense:
		r := &denseRunner{spec: layer, w: params[0], gw: grads[0]}
		if layer.UseBias {
			r.b = params[1]
			r.gb = grads[1]
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported layer type %s", layer.Type)
	}
}

// Spec returns the compiled model specification.
func (n *Network) Spec() *layers.ModelSpec { return n.spec }

// Parameters returns the parameter tensors in allocation order.
func (n *Network) Parameters() []*tensor.Tensor { return n.params }

// Gradients returns the gradient tensors, index-aligned with Parameters.
func (n *Network) Gradients() []*tensor.Tensor { return n.grads }

// ParameterNames returns "layer.suffix" names, index-aligned with Parameters.
func (n *Network) ParameterNames() []string { return n.names }

// ZeroGradients clears all accumulated gradients.
func (n *Network) ZeroGradients() {
	for _, g := range n.grads {
		g.Zero()
	}
}

// ForwardState is the per-batch activation record kept between Forward and
// Backward.
type ForwardState struct {
	tokens [][]int32
	caches [][]any // [sequence][layer]
}

// Forward runs the network over a batch of token-index sequences and returns
// per-token logits, shaped [sequence][token][outputDim], together with the
// activation state Backward needs.
func (n *Network) Forward(tokens [][]int32) ([][][]float32, *ForwardState, error) {
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}

	state := &ForwardState{
		tokens: tokens,
		caches: make([][]any, len(tokens)),
	}
	logits := make([][][]float32, len(tokens))

	for s, seq := range tokens {
		if len(seq) == 0 {
			return nil, nil, fmt.Errorf("sequence %d is empty", s)
		}
		in := seqInput{tokens: seq}
		caches := make([]any, len(n.runners))
		var acts [][]float32
		for l, r := range n.runners {
			out, cache, err := r.forward(in)
			if err != nil {
				return nil, nil, fmt.Errorf("sequence %d, layer %d: %w", s, l, err)
			}
			acts = out
			caches[l] = cache
			in = seqInput{vecs: out}
		}
		state.caches[s] = caches
		logits[s] = acts
	}

	return logits, state, nil
}

// Backward accumulates parameter gradients for the logits gradient dLogits,
// which must be shaped like the logits of the matching Forward call.
func (n *Network) Backward(dLogits [][][]float32, state *ForwardState) error {
	if state == nil || len(dLogits) != len(state.caches) {
		return fmt.Errorf("backward state does not match logits gradient")
	}

	for s := range dLogits {
		d := dLogits[s]
		for l := len(n.runners) - 1; l >= 0; l-- {
			var err error
			d, err = n.runners[l].backward(d, state.caches[s][l])
			if err != nil {
				return fmt.Errorf("sequence %d, layer %d: %w", s, l, err)
			}
		}
	}
	return nil
}
