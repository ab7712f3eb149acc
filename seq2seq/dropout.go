package seq2seq

import (
	"gonum.org/v1/gonum/mat"
)

// dropoutMask draws an inverted dropout mask: every entry is 0 with
// probability p and 1/(1-p) otherwise. It returns nil, meaning identity, when
// p is 0 or there is no noise source.
func dropoutMask(r, c int, p float64, noise Coin) *mat.Dense {
	if p <= 0 || noise == nil {
		return nil
	}
	keep := 1 / (1 - p)
	m := mat.NewDense(r, c, nil)
	raw := m.RawMatrix().Data
	for i := range raw {
		if noise.Float64() >= p {
			raw[i] = keep
		}
	}
	return m
}

// applyMask scales x elementwise by mask. A nil mask returns x itself.
func applyMask(x, mask *mat.Dense) *mat.Dense {
	if mask == nil {
		return x
	}
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.MulElem(x, mask)
	return out
}
