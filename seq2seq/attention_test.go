package seq2seq

import (
	"testing"

	"github.com/manningwu07/seq2seq/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestAttentionWeightsAreMaskedDistributions(t *testing.T) {
	rng := newRand(7)
	a := NewAttention(3, 4, rng)
	state := randDense(rng, 4, 2)
	positions := []*mat.Dense{randDense(rng, 6, 5), randDense(rng, 6, 5)}
	mask := NewMask([]int{3, 5}, 5)

	w := a.Score(state, positions, mask)
	r, c := w.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 5, c)
	for _, s := range utils.RowSums(w) {
		assert.InDelta(t, 1.0, s, 1e-12)
	}
	assert.LessOrEqual(t, w.At(0, 3), 1e-6)
	assert.LessOrEqual(t, w.At(0, 4), 1e-6)
	for col := 0; col < 5; col++ {
		assert.Greater(t, w.At(1, col), 0.0)
	}
}

func TestAttentionPanicsWithoutValidPosition(t *testing.T) {
	rng := newRand(8)
	a := NewAttention(2, 3, rng)
	state := randDense(rng, 3, 1)
	positions := []*mat.Dense{randDense(rng, 4, 3)}
	assert.Panics(t, func() { a.Score(state, positions, mat.NewDense(1, 3, nil)) })
	assert.Panics(t, func() { a.Score(state, positions, NewMask([]int{3, 3}, 3)) }, "mask batch mismatch")
	assert.Panics(t, func() { a.Score(randDense(rng, 2, 1), positions, NewMask([]int{3}, 3)) }, "state width")
}

func TestAttentionGradCheck(t *testing.T) {
	rng := newRand(9)
	a := NewAttention(2, 3, rng)
	state := randDense(rng, 3, 2)
	positions := []*mat.Dense{randDense(rng, 4, 4), randDense(rng, 4, 4)}
	mask := NewMask([]int{4, 2}, 4)
	c := randDense(rng, 2, 4)

	forward := func() float64 {
		return weightedSum(a.Score(state, positions, mask), c)
	}

	_, tr := a.score(state, positions, mask)
	dState, dPos := a.backward(tr, c)

	finiteDiffCheck(t, "attn.W", a.W.W.Value, a.W.W.Grad, forward, 1, 2)
	finiteDiffCheck(t, "attn.W", a.W.W.Value, a.W.W.Grad, forward, 2, 6)
	finiteDiffCheck(t, "attn.b", a.W.B.Value, a.W.B.Grad, forward, 0, 0)
	finiteDiffCheck(t, "attn.v", a.V.W.Value, a.V.W.Grad, forward, 0, 1)
	finiteDiffCheck(t, "state", state, dState, forward, 2, 1)
	finiteDiffCheck(t, "positions[0]", positions[0], dPos[0], forward, 1, 3)
	finiteDiffCheck(t, "positions[1]", positions[1], dPos[1], forward, 3, 0)

	// Padding columns do not influence the weights.
	assert.True(t, floats.EqualApprox(mat.Col(nil, 3, dPos[1]), make([]float64, 4), 1e-15))
}
