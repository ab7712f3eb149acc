package seq2seq

import (
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Linear computes Y = W X (+ b) over column batches.
type Linear struct {
	W *optimizations.Param // (out x in)
	B *optimizations.Param // (out x 1), nil without bias
}

func NewLinear(name string, in, out int, bias bool, rng *rand.Rand) *Linear {
	l := &Linear{
		W: optimizations.NewParam(name+".w", mat.NewDense(out, in, utils.RandomArray(rng, out*in, float64(in)))),
	}
	if bias {
		l.B = optimizations.NewParam(name+".b", mat.NewDense(out, 1, utils.RandomArray(rng, out, float64(in))))
	}
	return l
}

func (l *Linear) In() int {
	_, c := l.W.Value.Dims()
	return c
}

func (l *Linear) Out() int {
	r, _ := l.W.Value.Dims()
	return r
}

func (l *Linear) Forward(X *mat.Dense) *mat.Dense {
	if r, _ := X.Dims(); r != l.In() {
		panic("Linear.Forward: shape mismatch")
	}
	Y := utils.ToDense(utils.Dot(l.W.Value, X))
	if l.B != nil {
		Y = utils.AddBias(Y, l.B.Value)
	}
	return Y
}

// Backward accumulates dW and db for the input X and returns dX.
func (l *Linear) Backward(X, dY *mat.Dense) *mat.Dense {
	l.W.Grad.Add(l.W.Grad, utils.Dot(dY, X.T()))
	if l.B != nil {
		l.B.Grad.Add(l.B.Grad, utils.SumCols(dY))
	}
	return utils.ToDense(utils.Dot(l.W.Value.T(), dY))
}

func (l *Linear) Params() []*optimizations.Param {
	if l.B == nil {
		return []*optimizations.Param{l.W}
	}
	return []*optimizations.Param{l.W, l.B}
}
