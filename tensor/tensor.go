package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a dense float32 tensor in row-major layout. All tensors are
// CPU-resident; the execution engine mutates Data in place.
type Tensor struct {
	Shape    []int     `json:"shape"`
	Data     []float32 `json:"data"`
	NumElems int       `json:"-"`
}

// NewTensor creates a tensor with the given shape and data. The data length
// must match the shape's element count.
func NewTensor(shape []int, data []float32) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, n)
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: data, NumElems: n}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape []int) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n), NumElems: n}, nil
}

// Uniform creates a tensor with elements drawn uniformly from [-scale, scale).
func Uniform(shape []int, scale float32, rng *rand.Rand) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = (rng.Float32()*2 - 1) * scale
	}
	return t, nil
}

// GlorotUniform creates a tensor initialized with the uniform Glorot/Xavier
// scheme for a [fanOut, fanIn] weight matrix.
func GlorotUniform(shape []int, fanIn, fanOut int, rng *rand.Rand) (*Tensor, error) {
	if fanIn <= 0 || fanOut <= 0 {
		return nil, fmt.Errorf("invalid fan-in %d / fan-out %d", fanIn, fanOut)
	}
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	return Uniform(shape, limit, rng)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Shape: append([]int(nil), t.Shape...), Data: data, NumElems: t.NumElems}
}

// Zero resets all elements to zero.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// CopyFrom copies data from src into t. Shapes must match exactly.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !ShapesEqual(t.Shape, src.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", t.Shape, src.Shape)
	}
	copy(t.Data, src.Data)
	return nil
}

// Row returns the i-th row of a 2D tensor as a slice aliasing the underlying
// data.
func (t *Tensor) Row(i int) ([]float32, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Row requires a 2D tensor, got shape %v", t.Shape)
	}
	cols := t.Shape[1]
	if i < 0 || i >= t.Shape[0] {
		return nil, fmt.Errorf("row %d out of range for shape %v", i, t.Shape)
	}
	return t.Data[i*cols : (i+1)*cols], nil
}

// AddScaled computes t += alpha * other element-wise.
func (t *Tensor) AddScaled(other *Tensor, alpha float32) error {
	if !ShapesEqual(t.Shape, other.Shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", t.Shape, other.Shape)
	}
	for i, v := range other.Data {
		t.Data[i] += alpha * v
	}
	return nil
}

// Scale multiplies every element by alpha.
func (t *Tensor) Scale(alpha float32) {
	for i := range t.Data {
		t.Data[i] *= alpha
	}
}

// Clamp truncates every element to the range [-limit, limit].
func (t *Tensor) Clamp(limit float32) {
	for i, v := range t.Data {
		if v > limit {
			t.Data[i] = limit
		} else if v < -limit {
			t.Data[i] = -limit
		}
	}
}

// ShapesEqual reports whether two shapes are identical.
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func elemCount(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		n *= dim
	}
	return n, nil
}

// MatVec computes out += W * x for a [rows, cols] matrix W.
// out must have length rows, x length cols.
func MatVec(w *Tensor, x, out []float32) error {
	if len(w.Shape) != 2 {
		return fmt.Errorf("MatVec requires a 2D tensor, got shape %v", w.Shape)
	}
	rows, cols := w.Shape[0], w.Shape[1]
	if len(x) != cols || len(out) != rows {
		return fmt.Errorf("MatVec size mismatch: W %v, x %d, out %d", w.Shape, len(x), len(out))
	}
	for r := 0; r < rows; r++ {
		sum := float32(0)
		row := w.Data[r*cols : (r+1)*cols]
		for c, xv := range x {
			sum += row[c] * xv
		}
		out[r] += sum
	}
	return nil
}

// MatVecT computes out += W^T * d for a [rows, cols] matrix W.
// d must have length rows, out length cols.
func MatVecT(w *Tensor, d, out []float32) error {
	if len(w.Shape) != 2 {
		return fmt.Errorf("MatVecT requires a 2D tensor, got shape %v", w.Shape)
	}
	rows, cols := w.Shape[0], w.Shape[1]
	if len(d) != rows || len(out) != cols {
		return fmt.Errorf("MatVecT size mismatch: W %v, d %d, out %d", w.Shape, len(d), len(out))
	}
	for r := 0; r < rows; r++ {
		dv := d[r]
		if dv == 0 {
			continue
		}
		row := w.Data[r*cols : (r+1)*cols]
		for c := range row {
			out[c] += row[c] * dv
		}
	}
	return nil
}

// AddOuter accumulates the outer product of d and x into a [rows, cols]
// gradient tensor, where d has length rows and x length cols.
func AddOuter(grad *Tensor, d, x []float32) error {
	if len(grad.Shape) != 2 {
		return fmt.Errorf("AddOuter requires a 2D tensor, got shape %v", grad.Shape)
	}
	rows, cols := grad.Shape[0], grad.Shape[1]
	if len(d) != rows || len(x) != cols {
		return fmt.Errorf("AddOuter size mismatch: grad %v, d %d, x %d", grad.Shape, len(d), len(x))
	}
	for r := 0; r < rows; r++ {
		dv := d[r]
		if dv == 0 {
			continue
		}
		row := grad.Data[r*cols : (r+1)*cols]
		for c, xv := range x {
			row[c] += dv * xv
		}
	}
	return nil
}
