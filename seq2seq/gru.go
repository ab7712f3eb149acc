package seq2seq

import (
	"math"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// GRUCell stacks the r, z, n blocks along the rows:
//
//	r  = sigmoid(W_ir x + b_ir + W_hr h + b_hr)
//	z  = sigmoid(W_iz x + b_iz + W_hz h + b_hz)
//	n  = tanh(W_in x + b_in + r * (W_hn h + b_hn))
//	h' = (1 - z) * n + z * h
type GRUCell struct {
	Hidden int
	Wih    *optimizations.Param // (3H x In)
	Whh    *optimizations.Param // (3H x H)
	Bih    *optimizations.Param // (3H x 1)
	Bhh    *optimizations.Param // (3H x 1)
}

func NewGRUCell(name string, in, hidden int, rng *rand.Rand) *GRUCell {
	fan := float64(hidden)
	return &GRUCell{
		Hidden: hidden,
		Wih:    optimizations.NewParam(name+".wih", mat.NewDense(3*hidden, in, utils.RandomArray(rng, 3*hidden*in, fan))),
		Whh:    optimizations.NewParam(name+".whh", mat.NewDense(3*hidden, hidden, utils.RandomArray(rng, 3*hidden*hidden, fan))),
		Bih:    optimizations.NewParam(name+".bih", mat.NewDense(3*hidden, 1, utils.RandomArray(rng, 3*hidden, fan))),
		Bhh:    optimizations.NewParam(name+".bhh", mat.NewDense(3*hidden, 1, utils.RandomArray(rng, 3*hidden, fan))),
	}
}

func (g *GRUCell) Params() []*optimizations.Param {
	return []*optimizations.Param{g.Wih, g.Whh, g.Bih, g.Bhh}
}

type gruTrace struct {
	x, h    *mat.Dense
	r, z, n *mat.Dense
	ghn     *mat.Dense // W_hn h + b_hn
}

func (g *GRUCell) forward(x, h *mat.Dense) (*mat.Dense, *gruTrace) {
	H := g.Hidden
	_, B := x.Dims()
	if hr, hc := h.Dims(); hr != H || hc != B {
		panic("GRUCell.forward: state shape mismatch")
	}
	gi := utils.AddBias(utils.ToDense(utils.Dot(g.Wih.Value, x)), g.Bih.Value)
	gh := utils.AddBias(utils.ToDense(utils.Dot(g.Whh.Value, h)), g.Bhh.Value)

	tr := &gruTrace{
		x: x, h: h,
		r: mat.NewDense(H, B, nil), z: mat.NewDense(H, B, nil),
		n: mat.NewDense(H, B, nil), ghn: mat.NewDense(H, B, nil),
	}
	hNew := mat.NewDense(H, B, nil)
	for b := 0; b < B; b++ {
		for k := 0; k < H; k++ {
			r := utils.Sigmoid(gi.At(k, b) + gh.At(k, b))
			z := utils.Sigmoid(gi.At(H+k, b) + gh.At(H+k, b))
			ghn := gh.At(2*H+k, b)
			n := math.Tanh(gi.At(2*H+k, b) + r*ghn)
			tr.r.Set(k, b, r)
			tr.z.Set(k, b, z)
			tr.n.Set(k, b, n)
			tr.ghn.Set(k, b, ghn)
			hNew.Set(k, b, (1-z)*n+z*h.At(k, b))
		}
	}
	return hNew, tr
}

// backward accumulates parameter gradients and returns dx and dh for the step inputs.
func (g *GRUCell) backward(tr *gruTrace, dhNew *mat.Dense) (*mat.Dense, *mat.Dense) {
	H := g.Hidden
	_, B := dhNew.Dims()
	dgi := mat.NewDense(3*H, B, nil)
	dgh := mat.NewDense(3*H, B, nil)
	dh := mat.NewDense(H, B, nil)
	for b := 0; b < B; b++ {
		for k := 0; k < H; k++ {
			r, z, n := tr.r.At(k, b), tr.z.At(k, b), tr.n.At(k, b)
			d := dhNew.At(k, b)
			dn := d * (1 - z)
			dz := d * (tr.h.At(k, b) - n)
			dh.Set(k, b, d*z)
			dan := dn * (1 - n*n)
			dr := dan * tr.ghn.At(k, b)
			dar := dr * r * (1 - r)
			daz := dz * z * (1 - z)

			dgi.Set(k, b, dar)
			dgi.Set(H+k, b, daz)
			dgi.Set(2*H+k, b, dan)
			dgh.Set(k, b, dar)
			dgh.Set(H+k, b, daz)
			dgh.Set(2*H+k, b, dan*r)
		}
	}
	g.Wih.Grad.Add(g.Wih.Grad, utils.Dot(dgi, tr.x.T()))
	g.Bih.Grad.Add(g.Bih.Grad, utils.SumCols(dgi))
	g.Whh.Grad.Add(g.Whh.Grad, utils.Dot(dgh, tr.h.T()))
	g.Bhh.Grad.Add(g.Bhh.Grad, utils.SumCols(dgh))

	dx := utils.ToDense(utils.Dot(g.Wih.Value.T(), dgi))
	dh.Add(dh, utils.Dot(g.Whh.Value.T(), dgh))
	return dx, dh
}
