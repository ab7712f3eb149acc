package seq2seq

import (
	"fmt"

	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Stepper is the step decoder seen by the driver.
type Stepper interface {
	Step(prev []int, state *mat.Dense, positions []*mat.Dense, mask *mat.Dense) StepOutput
	OutputDim() int
}

// Coin supplies the uniform draws of teacher forcing. *rand.Rand satisfies it.
type Coin interface {
	Float64() float64
}

// Run unrolls T-1 steps over a batch whose targets are (B x T). The result has
// T entries of (V x B) logits; entry 0 is all zero. Step t feeds the target
// token at t when a draw falls under ratio, and the argmax otherwise. The draw
// is taken once per step for the whole batch. With ratio 0 no draw is taken
// and tgt beyond its shape is never read.
func Run(s Stepper, enc EncoderContext, mask *mat.Dense, tgt [][]int, start int, ratio float64, coin Coin) []*mat.Dense {
	if ratio < 0 || ratio > 1 {
		panic(fmt.Sprintf("Run: teacher forcing ratio %v outside [0,1]", ratio))
	}
	if ratio > 0 && coin == nil {
		panic("Run: nil coin with a positive teacher forcing ratio")
	}
	_, B := enc.Summary.Dims()
	if len(tgt) != B {
		panic(fmt.Sprintf("Run: %d target rows for a batch of %d", len(tgt), B))
	}
	T := width(tgt)
	V := s.OutputDim()

	outputs := make([]*mat.Dense, T)
	if T == 0 {
		return outputs
	}
	outputs[0] = mat.NewDense(V, B, nil)

	input := make([]int, B)
	for b := range input {
		input[b] = start
	}
	state := enc.Summary
	for t := 1; t < T; t++ {
		out := s.Step(input, state, enc.Positions, mask)
		if r, c := out.Logits.Dims(); r != V || c != B {
			panic("Run: step logits shape mismatch")
		}
		outputs[t] = out.Logits
		state = out.State

		if ratio > 0 && coin.Float64() < ratio {
			input = Column(tgt, t)
		} else {
			input = utils.ArgmaxCols(out.Logits)
		}
	}
	return outputs
}

// Translation is the greedy output for one source sentence.
type Translation struct {
	IDs       []int       // generated ids, ending with the end marker when it was emitted
	Attention [][]float64 // one row of source weights per generated id
}

// Greedy decodes a batch of one without ground truth. It stops after maxSteps
// tokens or right after emitting end.
func Greedy(s Stepper, enc EncoderContext, mask *mat.Dense, start, end, maxSteps int) Translation {
	if _, B := enc.Summary.Dims(); B != 1 {
		panic(fmt.Sprintf("Greedy: batch of %d, want 1", B))
	}
	var tr Translation
	prev := start
	state := enc.Summary
	for i := 0; i < maxSteps; i++ {
		out := s.Step([]int{prev}, state, enc.Positions, mask)
		state = out.State
		prev = floats.MaxIdx(mat.Col(nil, 0, out.Logits))
		tr.IDs = append(tr.IDs, prev)
		tr.Attention = append(tr.Attention, mat.Row(nil, 0, out.Weights))
		if prev == end {
			break
		}
	}
	return tr
}
