package seq2seq

import (
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Attention scores every source position against the decoder state:
//
//	e[b,t] = v . tanh(W [s_b; p_bt] + b)
//
// then masks padding with params.MaskSentinel and normalises each row.
type Attention struct {
	EncHidden int // He; positions are 2*He wide
	DecHidden int // Hd
	W         *Linear
	V         *Linear
}

func NewAttention(encHidden, decHidden int, rng *rand.Rand) *Attention {
	return &Attention{
		EncHidden: encHidden,
		DecHidden: decHidden,
		W:         NewLinear("dec.attn", 2*encHidden+decHidden, decHidden, true, rng),
		V:         NewLinear("dec.attn.v", decHidden, 1, false, rng),
	}
}

func (a *Attention) Params() []*optimizations.Param {
	return append(a.W.Params(), a.V.Params()...)
}

type attentionTrace struct {
	x       []*mat.Dense // per example, [s_b repeated; P_b]
	act     []*mat.Dense // tanh(W x + b), (Hd x W)
	weights *mat.Dense
	mask    *mat.Dense
}

// Score returns (B x W) attention weights. Masked entries are ~0 and every row
// sums to 1. A row whose mask is all zero panics.
func (a *Attention) Score(state *mat.Dense, positions []*mat.Dense, mask *mat.Dense) *mat.Dense {
	w, _ := a.score(state, positions, mask)
	return w
}

func (a *Attention) score(state *mat.Dense, positions []*mat.Dense, mask *mat.Dense) (*mat.Dense, *attentionTrace) {
	hd, B := state.Dims()
	if hd != a.DecHidden {
		panic("Attention.Score: state shape mismatch")
	}
	if len(positions) != B {
		panic("Attention.Score: batch size mismatch between state and positions")
	}
	mb, W := mask.Dims()
	if mb != B {
		panic("Attention.Score: batch size mismatch between state and mask")
	}

	tr := &attentionTrace{x: make([]*mat.Dense, B), act: make([]*mat.Dense, B), mask: mask}
	energy := mat.NewDense(B, W, nil)
	for b := 0; b < B; b++ {
		if pr, pc := positions[b].Dims(); pr != 2*a.EncHidden || pc != W {
			panic("Attention.Score: positions shape mismatch")
		}
		rep := mat.NewDense(hd, W, nil)
		for t := 0; t < W; t++ {
			for k := 0; k < hd; k++ {
				rep.Set(k, t, state.At(k, b))
			}
		}
		tr.x[b] = utils.VStack(rep, positions[b])
		tr.act[b] = utils.ToDense(utils.Apply(utils.TanhApply, a.W.Forward(tr.x[b])))
		energy.SetRow(b, a.V.Forward(tr.act[b]).RawRowView(0))
	}
	tr.weights = utils.RowSoftmaxMasked(energy, mask, params.MaskSentinel)
	return tr.weights, tr
}

// backward returns gradients for the state (Hd x B) and for each example's positions.
func (a *Attention) backward(tr *attentionTrace, dWeights *mat.Dense) (*mat.Dense, []*mat.Dense) {
	B, W := tr.weights.Dims()
	hd := a.DecHidden
	dEnergy := utils.SoftmaxBackward(dWeights, tr.weights)
	dState := mat.NewDense(hd, B, nil)
	dPos := make([]*mat.Dense, B)
	for b := 0; b < B; b++ {
		dE := mat.NewDense(1, W, nil)
		for t := 0; t < W; t++ {
			if tr.mask.At(b, t) != 0 {
				dE.Set(0, t, dEnergy.At(b, t))
			}
		}
		dAct := a.V.Backward(tr.act[b], dE)
		dPre := utils.ToDense(utils.Multiply(dAct, utils.TanhPrimeFromOutput(tr.act[b])))
		dX := a.W.Backward(tr.x[b], dPre)
		for k := 0; k < hd; k++ {
			s := 0.0
			for t := 0; t < W; t++ {
				s += dX.At(k, t)
			}
			dState.Set(k, b, s)
		}
		dPos[b] = utils.Rows(dX, hd, hd+2*a.EncHidden)
	}
	return dState, dPos
}
