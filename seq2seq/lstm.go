package seq2seq

import (
	"math"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// LSTMCell uses the gate layout i, f, g, o stacked along the rows.
type LSTMCell struct {
	Hidden int
	Wih    *optimizations.Param // (4H x In)
	Whh    *optimizations.Param // (4H x H)
	B      *optimizations.Param // (4H x 1)
}

func NewLSTMCell(name string, in, hidden int, rng *rand.Rand) *LSTMCell {
	fan := float64(hidden)
	return &LSTMCell{
		Hidden: hidden,
		Wih:    optimizations.NewParam(name+".wih", mat.NewDense(4*hidden, in, utils.RandomArray(rng, 4*hidden*in, fan))),
		Whh:    optimizations.NewParam(name+".whh", mat.NewDense(4*hidden, hidden, utils.RandomArray(rng, 4*hidden*hidden, fan))),
		B:      optimizations.NewParam(name+".b", mat.NewDense(4*hidden, 1, utils.RandomArray(rng, 4*hidden, fan))),
	}
}

func (l *LSTMCell) Params() []*optimizations.Param {
	return []*optimizations.Param{l.Wih, l.Whh, l.B}
}

type lstmTrace struct {
	x, h, c    *mat.Dense
	i, f, g, o *mat.Dense
	tanhC      *mat.Dense
	active     []bool
}

// forward advances active columns one step; inactive columns keep h and c.
func (l *LSTMCell) forward(x, h, c *mat.Dense, active []bool) (*mat.Dense, *mat.Dense, *lstmTrace) {
	H := l.Hidden
	_, B := x.Dims()
	if hr, hc := h.Dims(); hr != H || hc != B {
		panic("LSTMCell.forward: state shape mismatch")
	}
	if len(active) != B {
		panic("LSTMCell.forward: active mask length mismatch")
	}
	var pre, hh mat.Dense
	pre.Mul(l.Wih.Value, x)
	hh.Mul(l.Whh.Value, h)
	pre.Add(&pre, &hh)
	gates := utils.AddBias(&pre, l.B.Value)

	tr := &lstmTrace{
		x: x, h: h, c: c, active: active,
		i: mat.NewDense(H, B, nil), f: mat.NewDense(H, B, nil),
		g: mat.NewDense(H, B, nil), o: mat.NewDense(H, B, nil),
		tanhC: mat.NewDense(H, B, nil),
	}
	hNew := mat.NewDense(H, B, nil)
	cNew := mat.NewDense(H, B, nil)
	for b := 0; b < B; b++ {
		for k := 0; k < H; k++ {
			ig := utils.Sigmoid(gates.At(k, b))
			fg := utils.Sigmoid(gates.At(H+k, b))
			gg := math.Tanh(gates.At(2*H+k, b))
			og := utils.Sigmoid(gates.At(3*H+k, b))
			cc := fg*c.At(k, b) + ig*gg
			tc := math.Tanh(cc)
			tr.i.Set(k, b, ig)
			tr.f.Set(k, b, fg)
			tr.g.Set(k, b, gg)
			tr.o.Set(k, b, og)
			tr.tanhC.Set(k, b, tc)
			if active[b] {
				hNew.Set(k, b, og*tc)
				cNew.Set(k, b, cc)
			} else {
				hNew.Set(k, b, h.At(k, b))
				cNew.Set(k, b, c.At(k, b))
			}
		}
	}
	return hNew, cNew, tr
}

// backward takes gradients w.r.t. the step outputs and returns dx, dh and dc
// for the step inputs. Parameter gradients are accumulated.
func (l *LSTMCell) backward(tr *lstmTrace, dh, dc *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
	H := l.Hidden
	_, B := dh.Dims()
	dGates := mat.NewDense(4*H, B, nil)
	dhPrev := mat.NewDense(H, B, nil)
	dcPrev := mat.NewDense(H, B, nil)
	for b := 0; b < B; b++ {
		if !tr.active[b] {
			for k := 0; k < H; k++ {
				dhPrev.Set(k, b, dh.At(k, b))
				dcPrev.Set(k, b, dc.At(k, b))
			}
			continue
		}
		for k := 0; k < H; k++ {
			ig, fg, gg, og := tr.i.At(k, b), tr.f.At(k, b), tr.g.At(k, b), tr.o.At(k, b)
			tc := tr.tanhC.At(k, b)
			dhk := dh.At(k, b)
			dct := dc.At(k, b) + dhk*og*(1-tc*tc)
			dcPrev.Set(k, b, dct*fg)
			dGates.Set(k, b, dct*gg*ig*(1-ig))
			dGates.Set(H+k, b, dct*tr.c.At(k, b)*fg*(1-fg))
			dGates.Set(2*H+k, b, dct*ig*(1-gg*gg))
			dGates.Set(3*H+k, b, dhk*tc*og*(1-og))
		}
	}
	l.Wih.Grad.Add(l.Wih.Grad, utils.Dot(dGates, tr.x.T()))
	l.Whh.Grad.Add(l.Whh.Grad, utils.Dot(dGates, tr.h.T()))
	l.B.Grad.Add(l.B.Grad, utils.SumCols(dGates))

	dx := utils.ToDense(utils.Dot(l.Wih.Value.T(), dGates))
	dhPrev.Add(dhPrev, utils.Dot(l.Whh.Value.T(), dGates))
	return dx, dhPrev, dcPrev
}

// BiLSTM runs one forward and one backward LSTM over time-major inputs with
// packed-sequence semantics: positions at or past a column's length are skipped
// and produce zero outputs.
type BiLSTM struct {
	Fwd, Bwd *LSTMCell
}

func NewBiLSTM(name string, in, hidden int, rng *rand.Rand) *BiLSTM {
	return &BiLSTM{
		Fwd: NewLSTMCell(name+".fwd", in, hidden, rng),
		Bwd: NewLSTMCell(name+".bwd", in, hidden, rng),
	}
}

func (l *BiLSTM) Params() []*optimizations.Param {
	return append(l.Fwd.Params(), l.Bwd.Params()...)
}

type biLSTMTrace struct {
	fwd, bwd []*lstmTrace
	active   [][]bool
}

// forward returns per-step (2H x B) outputs plus the final forward and backward states.
func (l *BiLSTM) forward(xs []*mat.Dense, lengths []int) ([]*mat.Dense, *mat.Dense, *mat.Dense, *biLSTMTrace) {
	W, B, H := len(xs), len(lengths), l.Fwd.Hidden
	tr := &biLSTMTrace{
		fwd:    make([]*lstmTrace, W),
		bwd:    make([]*lstmTrace, W),
		active: make([][]bool, W),
	}
	outs := make([]*mat.Dense, W)
	for t := 0; t < W; t++ {
		outs[t] = mat.NewDense(2*H, B, nil)
		tr.active[t] = make([]bool, B)
		for b, n := range lengths {
			tr.active[t][b] = t < n
		}
	}

	h, c := mat.NewDense(H, B, nil), mat.NewDense(H, B, nil)
	for t := 0; t < W; t++ {
		h, c, tr.fwd[t] = l.Fwd.forward(xs[t], h, c, tr.active[t])
		copyActive(outs[t], h, 0, tr.active[t])
	}
	hF := h

	h, c = mat.NewDense(H, B, nil), mat.NewDense(H, B, nil)
	for t := W - 1; t >= 0; t-- {
		h, c, tr.bwd[t] = l.Bwd.forward(xs[t], h, c, tr.active[t])
		copyActive(outs[t], h, H, tr.active[t])
	}
	return outs, hF, h, tr
}

// backward returns dL/dx for every step.
func (l *BiLSTM) backward(tr *biLSTMTrace, dOuts []*mat.Dense, dHF, dHB *mat.Dense) []*mat.Dense {
	W, H := len(dOuts), l.Fwd.Hidden
	_, B := dHF.Dims()
	dxs := make([]*mat.Dense, W)

	dh, dc := mat.DenseCopyOf(dHF), mat.NewDense(H, B, nil)
	for t := W - 1; t >= 0; t-- {
		addActive(dh, dOuts[t], 0, tr.active[t])
		dxs[t], dh, dc = l.Fwd.backward(tr.fwd[t], dh, dc)
	}

	dh, dc = mat.DenseCopyOf(dHB), mat.NewDense(H, B, nil)
	for t := 0; t < W; t++ {
		addActive(dh, dOuts[t], H, tr.active[t])
		var dx *mat.Dense
		dx, dh, dc = l.Bwd.backward(tr.bwd[t], dh, dc)
		dxs[t].Add(dxs[t], dx)
	}
	return dxs
}

// copyActive writes the columns of src into dst rows [off, off+rows(src)) where active.
func copyActive(dst, src *mat.Dense, off int, active []bool) {
	r, _ := src.Dims()
	for b, on := range active {
		if !on {
			continue
		}
		for k := 0; k < r; k++ {
			dst.Set(off+k, b, src.At(k, b))
		}
	}
}

// addActive adds rows [off, off+rows(dst)) of src into dst where active.
func addActive(dst, src *mat.Dense, off int, active []bool) {
	r, _ := dst.Dims()
	for b, on := range active {
		if !on {
			continue
		}
		for k := 0; k < r; k++ {
			dst.Set(k, b, dst.At(k, b)+src.At(off+k, b))
		}
	}
}
