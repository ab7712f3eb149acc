package seq2seq

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Embedding stores one column per token id. The pad column starts at zero and
// never receives gradient.
type Embedding struct {
	Table *optimizations.Param // (dim x V)
	Pad   int
}

func NewEmbedding(name string, vocab, dim, pad int, rng *rand.Rand) *Embedding {
	table := mat.NewDense(dim, vocab, utils.NormalArray(rng, dim*vocab))
	for i := 0; i < dim; i++ {
		table.Set(i, pad, 0)
	}
	return &Embedding{Table: optimizations.NewParam(name, table), Pad: pad}
}

func (e *Embedding) Vocab() int {
	_, c := e.Table.Value.Dims()
	return c
}

func (e *Embedding) Dim() int {
	r, _ := e.Table.Value.Dims()
	return r
}

// Lookup returns a (dim x len(ids)) matrix of embedding columns.
func (e *Embedding) Lookup(ids []int) *mat.Dense {
	dim, v := e.Table.Value.Dims()
	out := mat.NewDense(dim, len(ids), nil)
	for j, id := range ids {
		if id < 0 || id >= v {
			panic(fmt.Sprintf("Embedding.Lookup: token %d outside vocabulary of %d", id, v))
		}
		for i := 0; i < dim; i++ {
			out.Set(i, j, e.Table.Value.At(i, id))
		}
	}
	return out
}

func (e *Embedding) Backward(ids []int, dY *mat.Dense) {
	dim, _ := e.Table.Value.Dims()
	for j, id := range ids {
		if id == e.Pad {
			continue
		}
		for i := 0; i < dim; i++ {
			e.Table.Grad.Set(i, id, e.Table.Grad.At(i, id)+dY.At(i, j))
		}
	}
}
