package engine

import (
	"fmt"
	"math"

	"github.com/tsawler/go-tagger/layers"
	"github.com/tsawler/go-tagger/tensor"
)

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

func tanhf(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// embeddingRunner looks up one learned row per token index.
type embeddingRunner struct {
	spec *layers.LayerSpec
	w    *tensor.Tensor // [vocab, dim]
	gw   *tensor.Tensor
}

func (e *embeddingRunner) forward(in seqInput) ([][]float32, any, error) {
	if in.tokens == nil {
		return nil, nil, fmt.Errorf("embedding layer requires token indices")
	}
	out := make([][]float32, len(in.tokens))
	for t, idx := range in.tokens {
		row, err := e.w.Row(int(idx))
		if err != nil {
			return nil, nil, fmt.Errorf("token index %d: %w", idx, err)
		}
		vec := make([]float32, len(row))
		copy(vec, row)
		out[t] = vec
	}
	return out, in.tokens, nil
}

func (e *embeddingRunner) backward(dOut [][]float32, cache any) ([][]float32, error) {
	tokens, ok := cache.([]int32)
	if !ok || len(tokens) != len(dOut) {
		return nil, fmt.Errorf("embedding backward cache mismatch")
	}
	for t, idx := range tokens {
		row, err := e.gw.Row(int(idx))
		if err != nil {
			return nil, err
		}
		for j, v := range dOut[t] {
			row[j] += v
		}
	}
	// The one-hot input has no upstream layer.
	return nil, nil
}

// recurrentParams is the shared parameter bundle of the recurrent cells:
// input weights w, recurrent weights u and bias b, with matching gradient
// accumulators.
type recurrentParams struct {
	spec *layers.LayerSpec
	w    *tensor.Tensor
	u    *tensor.Tensor
	b    *tensor.Tensor
	gw   *tensor.Tensor
	gu   *tensor.Tensor
	gb   *tensor.Tensor
}

// orderInput reverses the sequence when the layer runs backwards in time.
func (p *recurrentParams) orderInput(in [][]float32) [][]float32 {
	if !p.spec.GoBackwards {
		return in
	}
	out := make([][]float32, len(in))
	for i := range in {
		out[i] = in[len(in)-1-i]
	}
	return out
}

// lstmCache stores the per-step activations BPTT needs.
type lstmCache struct {
	x     [][]float32 // layer input per step (time-ordered as processed)
	gates [][]float32 // post-nonlinearity gates per step: [i f g o], 4H wide
	c     [][]float32 // cell state per step
	h     [][]float32 // hidden state per step
}

// lstmRunner implements the long short-term memory recurrence with stacked
// gate blocks ordered input, forget, candidate, output.
type lstmRunner struct {
	recurrentParams
}

func (l *lstmRunner) forward(in seqInput) ([][]float32, any, error) {
	if in.vecs == nil {
		return nil, nil, fmt.Errorf("recurrent layer requires dense input")
	}
	x := l.orderInput(in.vecs)

	hidden := l.spec.OutputDim
	steps := len(x)
	cache := &lstmCache{
		x:     x,
		gates: make([][]float32, steps),
		c:     make([][]float32, steps),
		h:     make([][]float32, steps),
	}

	hPrev := constantVector(hidden, l.spec.InitialState)
	cPrev := constantVector(hidden, l.spec.InitialState)

	for t := 0; t < steps; t++ {
		if len(x[t]) != l.spec.InputDim {
			return nil, nil, fmt.Errorf("step %d: input width %d, expected %d", t, len(x[t]), l.spec.InputDim)
		}

		z := make([]float32, 4*hidden)
		copy(z, l.b.Data)
		if err := tensor.MatVec(l.w, x[t], z); err != nil {
			return nil, nil, err
		}
		if err := tensor.MatVec(l.u, hPrev, z); err != nil {
			return nil, nil, err
		}

		gates := make([]float32, 4*hidden)
		c := make([]float32, hidden)
		h := make([]float32, hidden)
		for j := 0; j < hidden; j++ {
			ig := sigmoid(z[j])
			fg := sigmoid(z[hidden+j])
			gg := tanhf(z[2*hidden+j])
			og := sigmoid(z[3*hidden+j])

			gates[j] = ig
			gates[hidden+j] = fg
			gates[2*hidden+j] = gg
			gates[3*hidden+j] = og

			c[j] = fg*cPrev[j] + ig*gg
			h[j] = og * tanhf(c[j])
		}

		cache.gates[t] = gates
		cache.c[t] = c
		cache.h[t] = h
		hPrev = h
		cPrev = c
	}

	return l.orderInput(cache.h), cache, nil
}

func (l *lstmRunner) backward(dOut [][]float32, cacheAny any) ([][]float32, error) {
	cache, ok := cacheAny.(*lstmCache)
	if !ok || len(dOut) != len(cache.h) {
		return nil, fmt.Errorf("lstm backward cache mismatch")
	}
	dH := l.orderInput(dOut)

	hidden := l.spec.OutputDim
	steps := len(cache.h)

	dx := make([][]float32, steps)
	dhNext := make([]float32, hidden)
	dcNext := make([]float32, hidden)

	for t := steps - 1; t >= 0; t-- {
		gates := cache.gates[t]
		c := cache.c[t]

		hPrev := constantVector(hidden, l.spec.InitialState)
		cPrev := hPrev
		if t > 0 {
			hPrev = cache.h[t-1]
			cPrev = cache.c[t-1]
		}

		dz := make([]float32, 4*hidden)
		dc := make([]float32, hidden)
		for j := 0; j < hidden; j++ {
			ig := gates[j]
			fg := gates[hidden+j]
			gg := gates[2*hidden+j]
			og := gates[3*hidden+j]

			dh := dH[t][j] + dhNext[j]
			tc := tanhf(c[j])

			do := dh * tc
			dc[j] = dcNext[j] + dh*og*(1-tc*tc)

			di := dc[j] * gg
			df := dc[j] * cPrev[j]
			dg := dc[j] * ig

			dz[j] = di * ig * (1 - ig)
			dz[hidden+j] = df * fg * (1 - fg)
			dz[2*hidden+j] = dg * (1 - gg*gg)
			dz[3*hidden+j] = do * og * (1 - og)
		}

		if err := tensor.AddOuter(l.gw, dz, cache.x[t]); err != nil {
			return nil, err
		}
		if err := tensor.AddOuter(l.gu, dz, hPrev); err != nil {
			return nil, err
		}
		for j, v := range dz {
			l.gb.Data[j] += v
		}

		dx[t] = make([]float32, l.spec.InputDim)
		if err := tensor.MatVecT(l.w, dz, dx[t]); err != nil {
			return nil, err
		}
		for j := range dhNext {
			dhNext[j] = 0
		}
		if err := tensor.MatVecT(l.u, dz, dhNext); err != nil {
			return nil, err
		}
		for j := 0; j < hidden; j++ {
			dcNext[j] = dc[j] * gates[hidden+j]
		}
	}

	return l.orderInput(dx), nil
}

// rnnCache stores the plain recurrence's activations.
type rnnCache struct {
	x   [][]float32
	pre [][]float32 // pre-activation per step
	h   [][]float32
}

// rnnRunner implements the plain recurrent unit h_t = act(W x_t + U h_{t-1} + b).
// Kept as the alternative cell variant of the topology builder.
type rnnRunner struct {
	recurrentParams
}

func (r *rnnRunner) forward(in seqInput) ([][]float32, any, error) {
	if in.vecs == nil {
		return nil, nil, fmt.Errorf("recurrent layer requires dense input")
	}
	x := r.orderInput(in.vecs)

	hidden := r.spec.OutputDim
	steps := len(x)
	cache := &rnnCache{
		x:   x,
		pre: make([][]float32, steps),
		h:   make([][]float32, steps),
	}

	hPrev := constantVector(hidden, r.spec.InitialState)
	for t := 0; t < steps; t++ {
		if len(x[t]) != r.spec.InputDim {
			return nil, nil, fmt.Errorf("step %d: input width %d, expected %d", t, len(x[t]), r.spec.InputDim)
		}

		pre := make([]float32, hidden)
		copy(pre, r.b.Data)
		if err := tensor.MatVec(r.w, x[t], pre); err != nil {
			return nil, nil, err
		}
		if err := tensor.MatVec(r.u, hPrev, pre); err != nil {
			return nil, nil, err
		}

		h := make([]float32, hidden)
		for j, v := range pre {
			h[j] = r.activate(v)
		}

		cache.pre[t] = pre
		cache.h[t] = h
		hPrev = h
	}

	return r.orderInput(cache.h), cache, nil
}

func (r *rnnRunner) backward(dOut [][]float32, cacheAny any) ([][]float32, error) {
	cache, ok := cacheAny.(*rnnCache)
	if !ok || len(dOut) != len(cache.h) {
		return nil, fmt.Errorf("rnn backward cache mismatch")
	}
	dH := r.orderInput(dOut)

	hidden := r.spec.OutputDim
	steps := len(cache.h)

	dx := make([][]float32, steps)
	dhNext := make([]float32, hidden)

	for t := steps - 1; t >= 0; t-- {
		hPrev := constantVector(hidden, r.spec.InitialState)
		if t > 0 {
			hPrev = cache.h[t-1]
		}

		dpre := make([]float32, hidden)
		for j := 0; j < hidden; j++ {
			dh := dH[t][j] + dhNext[j]
			dpre[j] = dh * r.activateGrad(cache.pre[t][j], cache.h[t][j])
		}

		if err := tensor.AddOuter(r.gw, dpre, cache.x[t]); err != nil {
			return nil, err
		}
		if err := tensor.AddOuter(r.gu, dpre, hPrev); err != nil {
			return nil, err
		}
		for j, v := range dpre {
			r.gb.Data[j] += v
		}

		dx[t] = make([]float32, r.spec.InputDim)
		if err := tensor.MatVecT(r.w, dpre, dx[t]); err != nil {
			return nil, err
		}
		for j := range dhNext {
			dhNext[j] = 0
		}
		if err := tensor.MatVecT(r.u, dpre, dhNext); err != nil {
			return nil, err
		}
	}

	return r.orderInput(dx), nil
}

func (r *rnnRunner) activate(x float32) float32 {
	if r.spec.Activation == layers.ReLU {
		if x < 0 {
			return 0
		}
		return x
	}
	return tanhf(x)
}

func (r *rnnRunner) activateGrad(pre, out float32) float32 {
	if r.spec.Activation == layers.ReLU {
		if pre < 0 {
			return 0
		}
		return 1
	}
	// tanh' = 1 - tanh^2, computed from the cached output.
	return 1 - out*out
}

// denseRunner applies a linear projection per token.
type denseRunner struct {
	spec *layers.LayerSpec
	w    *tensor.Tensor
	b    *tensor.Tensor
	gw   *tensor.Tensor
	gb   *tensor.Tensor
}

func (d *denseRunner) forward(in seqInput) ([][]float32, any, error) {
	if in.vecs == nil {
		return nil, nil, fmt.Errorf("dense layer requires dense input")
	}
	out := make([][]float32, len(in.vecs))
	for t, x := range in.vecs {
		if len(x) != d.spec.InputDim {
			return nil, nil, fmt.Errorf("step %d: input width %d, expected %d", t, len(x), d.spec.InputDim)
		}
		y := make([]float32, d.spec.OutputDim)
		if d.b != nil {
			copy(y, d.b.Data)
		}
		if err := tensor.MatVec(d.w, x, y); err != nil {
			return nil, nil, err
		}
		out[t] = y
	}
	return out, in.vecs, nil
}

func (d *denseRunner) backward(dOut [][]float32, cache any) ([][]float32, error) {
	x, ok := cache.([][]float32)
	if !ok || len(x) != len(dOut) {
		return nil, fmt.Errorf("dense backward cache mismatch")
	}

	dx := make([][]float32, len(dOut))
	for t := range dOut {
		if err := tensor.AddOuter(d.gw, dOut[t], x[t]); err != nil {
			return nil, err
		}
		if d.gb != nil {
			for j, v := range dOut[t] {
				d.gb.Data[j] += v
			}
		}
		dx[t] = make([]float32, d.spec.InputDim)
		if err := tensor.MatVecT(d.w, dOut[t], dx[t]); err != nil {
			return nil, err
		}
	}
	return dx, nil
}

func constantVector(n int, v float32) []float32 {
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = v
	}
	return vec
}
