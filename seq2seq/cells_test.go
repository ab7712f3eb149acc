package seq2seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestGRUCellGradCheck(t *testing.T) {
	rng := newRand(11)
	g := NewGRUCell("gru", 3, 4, rng)
	x := randDense(rng, 3, 2)
	h := randDense(rng, 4, 2)
	c := randDense(rng, 4, 2)

	forward := func() float64 {
		hNew, _ := g.forward(x, h)
		return weightedSum(hNew, c)
	}
	_, tr := g.forward(x, h)
	dx, dh := g.backward(tr, c)

	finiteDiffCheck(t, "Wih", g.Wih.Value, g.Wih.Grad, forward, 0, 1)
	finiteDiffCheck(t, "Wih", g.Wih.Value, g.Wih.Grad, forward, 9, 2)
	finiteDiffCheck(t, "Whh", g.Whh.Value, g.Whh.Grad, forward, 5, 3)
	finiteDiffCheck(t, "Whh", g.Whh.Value, g.Whh.Grad, forward, 10, 0)
	finiteDiffCheck(t, "Bih", g.Bih.Value, g.Bih.Grad, forward, 8, 0)
	finiteDiffCheck(t, "Bhh", g.Bhh.Value, g.Bhh.Grad, forward, 11, 0)
	finiteDiffCheck(t, "x", x, dx, forward, 2, 1)
	finiteDiffCheck(t, "h", h, dh, forward, 3, 0)
}

func TestLSTMCellGradCheck(t *testing.T) {
	rng := newRand(12)
	l := NewLSTMCell("lstm", 3, 2, rng)
	x := randDense(rng, 3, 2)
	h := randDense(rng, 2, 2)
	c := randDense(rng, 2, 2)
	ch := randDense(rng, 2, 2)
	cc := randDense(rng, 2, 2)
	active := []bool{true, false}

	forward := func() float64 {
		hNew, cNew, _ := l.forward(x, h, c, active)
		return weightedSum(hNew, ch) + weightedSum(cNew, cc)
	}
	_, _, tr := l.forward(x, h, c, active)
	dx, dh, dc := l.backward(tr, ch, cc)

	finiteDiffCheck(t, "Wih", l.Wih.Value, l.Wih.Grad, forward, 0, 0)
	finiteDiffCheck(t, "Wih", l.Wih.Value, l.Wih.Grad, forward, 3, 2)
	finiteDiffCheck(t, "Wih", l.Wih.Value, l.Wih.Grad, forward, 7, 1)
	finiteDiffCheck(t, "Whh", l.Whh.Value, l.Whh.Grad, forward, 4, 1)
	finiteDiffCheck(t, "B", l.B.Value, l.B.Grad, forward, 6, 0)
	finiteDiffCheck(t, "x", x, dx, forward, 1, 0)
	finiteDiffCheck(t, "h", h, dh, forward, 0, 0)
	finiteDiffCheck(t, "c", c, dc, forward, 1, 0)
	// inactive column passes state and gradient through untouched
	finiteDiffCheck(t, "h", h, dh, forward, 1, 1)
	finiteDiffCheck(t, "c", c, dc, forward, 0, 1)
	assert.Zero(t, mat.Norm(dx.ColView(1), 2))
}

func TestBiLSTMSkipsPositionsPastLength(t *testing.T) {
	rng := newRand(13)
	l := NewBiLSTM("bi", 2, 3, rng)
	xs := []*mat.Dense{randDense(rng, 2, 2), randDense(rng, 2, 2), randDense(rng, 2, 2)}
	outs, hF, hB, _ := l.forward(xs, []int{3, 1})

	for pos := 1; pos < 3; pos++ {
		assert.Zero(t, mat.Norm(outs[pos].ColView(1), 2))
	}
	// final forward state is the output at the last real position
	for k := 0; k < 3; k++ {
		assert.Equal(t, outs[0].At(k, 1), hF.At(k, 1))
		assert.Equal(t, outs[2].At(k, 0), hF.At(k, 0))
		assert.Equal(t, outs[0].At(3+k, 0), hB.At(k, 0))
	}
}
