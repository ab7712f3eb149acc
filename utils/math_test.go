package utils

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestRowSoftmaxMaskedHidesPadding(t *testing.T) {
	energy := mat.NewDense(1, 5, []float64{0.3, -1.2, 2.0, 40, 7})
	mask := mat.NewDense(1, 5, []float64{1, 1, 1, 0, 0})

	w := RowSoftmaxMasked(energy, mask, -1e6)

	assert.LessOrEqual(t, w.At(0, 3), 1e-6)
	assert.LessOrEqual(t, w.At(0, 4), 1e-6)
	assert.InDelta(t, 1.0, floats.Sum(w.RawRowView(0)), 1e-12)

	plain := RowSoftmaxMasked(mat.NewDense(1, 3, []float64{0.3, -1.2, 2.0}), allValid(1, 3), -1e6)
	assert.True(t, floats.EqualApprox(plain.RawRowView(0), w.RawRowView(0)[:3], 1e-12))
}

func TestRowSoftmaxMaskedFarBelowSentinel(t *testing.T) {
	mask := mat.NewDense(1, 5, []float64{1, 1, 1, 0, 0})
	near := RowSoftmaxMasked(mat.NewDense(1, 5, []float64{-10, -9, -10, 0, 0}), mask, -1e6)
	for _, e := range []float64{-2e6, -1e6 + 0.5, -1e7, -1e9} {
		w := RowSoftmaxMasked(mat.NewDense(1, 5, []float64{e, e + 1, e, 0, 0}), mask, -1e6)
		assert.Zero(t, w.At(0, 3), "e=%g", e)
		assert.Zero(t, w.At(0, 4), "e=%g", e)
		assert.InDelta(t, 1.0, floats.Sum(w.RawRowView(0)), 1e-12, "e=%g", e)
		assert.True(t, floats.EqualApprox(near.RawRowView(0), w.RawRowView(0), 1e-12), "e=%g", e)
	}
}

func allValid(r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, 1)
		}
	}
	return m
}

func TestRowSoftmaxMaskedPanicsOnEmptyRow(t *testing.T) {
	energy := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	mask := mat.NewDense(2, 2, []float64{1, 0, 0, 0})
	assert.Panics(t, func() { RowSoftmaxMasked(energy, mask, -1e6) })
	assert.Panics(t, func() { RowSoftmaxMasked(energy, mat.NewDense(1, 2, []float64{1, 1}), -1e6) })
}

func TestSoftmaxBackwardMatchesFiniteDiff(t *testing.T) {
	x := mat.NewDense(1, 4, []float64{0.1, 0.5, -0.3, 1.2})
	c := mat.NewDense(1, 4, []float64{0.7, -0.2, 0.4, 1.0})
	loss := func() float64 {
		s := RowSoftmaxMasked(x, allValid(1, 4), -1e6)
		return floats.Dot(s.RawRowView(0), c.RawRowView(0))
	}
	grad := SoftmaxBackward(c, RowSoftmaxMasked(x, allValid(1, 4), -1e6))

	eps := 1e-5
	for j := 0; j < 4; j++ {
		x0 := x.At(0, j)
		x.Set(0, j, x0+eps)
		lp := loss()
		x.Set(0, j, x0-eps)
		lm := loss()
		x.Set(0, j, x0)
		assert.InDelta(t, (lp-lm)/(2*eps), grad.At(0, j), 1e-8)
	}
}

func TestCrossEntropyWithIndex(t *testing.T) {
	logits := mat.NewDense(3, 1, []float64{1, 2, 3})
	loss, grad := CrossEntropyWithIndex(logits, 2)

	p := ColVectorSoftmax(logits)
	assert.InDelta(t, -math.Log(p.At(2, 0)), loss, 1e-9)
	assert.InDelta(t, p.At(2, 0)-1, grad.At(2, 0), 1e-12)
	assert.InDelta(t, 0.0, mat.Sum(grad), 1e-12)
	assert.Panics(t, func() { CrossEntropyWithIndex(logits, 3) })
}

func TestArgmaxColsPrefersLowestIndexOnTies(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		0.5, 2,
		0.9, 2,
		0.1, 1,
	})
	assert.Equal(t, []int{1, 0}, ArgmaxCols(m))
}

func TestVStackAndRows(t *testing.T) {
	a := mat.NewDense(1, 2, []float64{1, 2})
	b := mat.NewDense(2, 2, []float64{3, 4, 5, 6})
	s := VStack(a, b)
	assert.True(t, mat.Equal(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), s))
	assert.True(t, mat.Equal(b, Rows(s, 1, 3)))
	assert.Panics(t, func() { VStack(a, mat.NewDense(1, 3, nil)) })
	assert.True(t, mat.Equal(mat.NewDense(3, 1, []float64{3, 7, 11}), SumCols(s)))
}

func TestClipGrads(t *testing.T) {
	g1 := mat.NewDense(1, 2, []float64{3, 0})
	g2 := mat.NewDense(1, 1, []float64{4})
	s := ClipGrads(1.0, g1, g2)
	assert.InDelta(t, 0.2, s, 1e-12)
	assert.InDelta(t, 1.0, math.Hypot(MatrixNorm(g1), MatrixNorm(g2)), 1e-12)

	small := mat.NewDense(1, 1, []float64{0.5})
	assert.Equal(t, 1.0, ClipGrads(1.0, small))
	assert.Equal(t, 0.5, small.At(0, 0))
}

func TestRandomArrayBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	vals := RandomArray(rng, 1000, 16)
	require.Len(t, vals, 1000)
	for _, v := range vals {
		assert.LessOrEqual(t, math.Abs(v), 0.25)
	}
	again := RandomArray(rand.New(rand.NewPCG(1, 2)), 1000, 16)
	assert.Equal(t, vals, again)
}
