package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Param is one trainable matrix with its gradient accumulator and Adam moments.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
	M, V  *mat.Dense
}

func NewParam(name string, value *mat.Dense) *Param {
	return &Param{
		Name:  name,
		Value: value,
		Grad:  zerosLike(value),
		M:     zerosLike(value),
		V:     zerosLike(value),
	}
}

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	c1 := 1.0 / (1.0 - math.Pow(beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(beta2, float64(t)))
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			update := mhat/(math.Sqrt(vhat)+eps) + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// Adam applies one shared step counter to a list of parameters.
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	T           int // steps taken so far
}

func NewAdam(lr, beta1, beta2, eps, weightDecay float64) *Adam {
	return &Adam{LR: lr, Beta1: beta1, Beta2: beta2, Eps: eps, WeightDecay: weightDecay}
}

// Step advances the step counter and updates every parameter from its Grad.
func (a *Adam) Step(ps []*Param) {
	a.T++
	for _, p := range ps {
		AdamUpdateInPlace(p.Value, p.Grad, p.M, p.V, a.T, a.LR, a.Beta1, a.Beta2, a.Eps, a.WeightDecay)
	}
}

func ZeroGrad(ps []*Param) {
	for _, p := range ps {
		p.Grad.Zero()
	}
}

// Grads returns the gradient matrices of ps, in order.
func Grads(ps []*Param) []*mat.Dense {
	out := make([]*mat.Dense, len(ps))
	for i, p := range ps {
		out[i] = p.Grad
	}
	return out
}

func zerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}
