package utils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix functions I'm going to use for the calculations in the program

// r = rows of matrix
// c = columns of matrix
// o = output
// m = matrix input number 1
// n = matrix input number 2

func Dot(m, n mat.Matrix) mat.Matrix {
	r, _ := m.Dims()
	_, c := n.Dims()
	o := mat.NewDense(r, c, nil)
	o.Product(m, n)
	return o
}

func Apply(fn func(i, j int, v float64) float64, m mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.Apply(fn, m)
	return o
}

func Multiply(m, n mat.Matrix) mat.Matrix {
	r, c := m.Dims()
	o := mat.NewDense(r, c, nil)
	o.MulElem(m, n)
	return o
}

func ToDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// -------- Activations --------

func Sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func TanhApply(i, j int, v float64) float64 {
	return math.Tanh(v)
}

// TanhPrimeFromOutput returns 1 - y^2 elementwise for y = tanh(x).
func TanhPrimeFromOutput(y mat.Matrix) *mat.Dense {
	return Apply(func(_, _ int, v float64) float64 { return 1 - v*v }, y).(*mat.Dense)
}

// -------- Shape helpers --------

func AddBias(m, bias *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	rb, cb := bias.Dims()
	if rb != r || cb != 1 {
		panic("addBias: bias must be (r x 1)")
	}
	out := mat.NewDense(r, c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			out.Set(i, j, m.At(i, j)+bias.At(i, 0))
		}
	}
	return out
}

// SumCols reduces (r x c) to (r x 1); the bias gradient of a column batch.
func SumCols(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for j := 0; j < c; j++ {
			s += m.At(i, j)
		}
		out.Set(i, 0, s)
	}
	return out
}

// VStack stacks matrices with equal column counts top to bottom.
func VStack(ms ...*mat.Dense) *mat.Dense {
	rows := 0
	_, c := ms[0].Dims()
	for _, m := range ms {
		r, mc := m.Dims()
		if mc != c {
			panic(fmt.Sprintf("VStack: column mismatch (%d vs %d)", mc, c))
		}
		rows += r
	}
	out := mat.NewDense(rows, c, nil)
	row := 0
	for _, m := range ms {
		r, _ := m.Dims()
		out.Slice(row, row+r, 0, c).(*mat.Dense).Copy(m)
		row += r
	}
	return out
}

// Rows copies rows [from, to) of m.
func Rows(m *mat.Dense, from, to int) *mat.Dense {
	_, c := m.Dims()
	return mat.DenseCopyOf(m.Slice(from, to, 0, c))
}

// RowSums returns per-row sums for a mat.Dense.
func RowSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		out[i] = sum
	}
	return out
}

// ArgmaxCols returns the row index of the largest entry of every column.
// Ties resolve to the lowest index.
func ArgmaxCols(m mat.Matrix) []int {
	_, c := m.Dims()
	out := make([]int, c)
	for j := 0; j < c; j++ {
		out[j] = floats.MaxIdx(mat.Col(nil, j, m))
	}
	return out
}

// ---------- Softmax variants ----------

// RowSoftmaxMasked applies softmax across each row with energies where
// mask == 0 replaced by min(sentinel, max+sentinel), max taken over the valid
// entries. A masked weight never exceeds exp(sentinel). A row without any
// valid position panics.
func RowSoftmaxMasked(energy, mask *mat.Dense, sentinel float64) *mat.Dense {
	r, c := energy.Dims()
	if mr, mc := mask.Dims(); mr != r || mc != c {
		panic("RowSoftmaxMasked: mask shape mismatch")
	}
	out := mat.NewDense(r, c, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mx := math.Inf(-1)
		for j := 0; j < c; j++ {
			if mask.At(i, j) != 0 {
				mx = math.Max(mx, energy.At(i, j))
			}
		}
		if math.IsInf(mx, -1) {
			panic(fmt.Sprintf("RowSoftmaxMasked: row %d has no valid position", i))
		}
		sum := 0.0
		for j := 0; j < c; j++ {
			if mask.At(i, j) != 0 {
				row[j] = math.Exp(energy.At(i, j) - mx)
			} else {
				row[j] = math.Exp(math.Min(sentinel, mx+sentinel) - mx)
			}
			sum += row[j]
		}
		floats.Scale(1/sum, row)
		out.SetRow(i, row)
	}
	return out
}

// ColVectorSoftmax applies softmax across the single column of a (r x 1) vector.
// Used for logits -> probabilities in the CE loss.
func ColVectorSoftmax(v *mat.Dense) *mat.Dense {
	r, c := v.Dims()
	if c != 1 {
		panic("ColVectorSoftmax expects a (r x 1) column vector")
	}
	out := mat.NewDense(r, 1, nil)
	// stability: subtract max
	mx := v.At(0, 0)
	for i := 1; i < r; i++ {
		if v.At(i, 0) > mx {
			mx = v.At(i, 0)
		}
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		e := math.Exp(v.At(i, 0) - mx)
		out.Set(i, 0, e)
		sum += e
	}
	for i := 0; i < r; i++ {
		out.Set(i, 0, out.At(i, 0)/sum)
	}
	return out
}

// Softmax backward for row-wise softmax used in attention.
// Vector-JVP form: for each row i,
// s = sum_k dA[i,k] * A[i,k]; dS[i,j] = A[i,j] * (dA[i,j] - s)
func SoftmaxBackward(dA mat.Matrix, A *mat.Dense) *mat.Dense {
	r, c := A.Dims()
	dS := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := 0.0
		for k := 0; k < c; k++ {
			s += dA.At(i, k) * A.At(i, k)
		}
		for j := 0; j < c; j++ {
			aj := A.At(i, j)
			dS.Set(i, j, aj*(dA.At(i, j)-s))
		}
	}
	return dS
}

// ---------- Loss ----------

// CrossEntropyWithIndex returns -log softmax(logits)[gold] and its gradient
// with respect to logits, (p - onehot(gold)).
func CrossEntropyWithIndex(logits *mat.Dense, gold int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("CrossEntropyWithIndex expects (r x 1) logits vector")
	}
	if gold < 0 || gold >= r {
		panic(fmt.Sprintf("CrossEntropyWithIndex: gold %d outside [0,%d)", gold, r))
	}
	prob := ColVectorSoftmax(logits)
	loss := -math.Log(prob.At(gold, 0) + 1e-12)
	grad := mat.DenseCopyOf(prob)
	grad.Set(gold, 0, grad.At(gold, 0)-1.0)
	return loss, grad
}
