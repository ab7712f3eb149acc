package seq2seq

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch holds padded token matrices (one row per example) and their true lengths.
type Batch struct {
	Src     [][]int
	SrcLens []int
	Tgt     [][]int
	TgtLens []int
}

func (b Batch) Size() int { return len(b.Src) }

func (b Batch) SrcWidth() int { return width(b.Src) }

func (b Batch) TgtWidth() int { return width(b.Tgt) }

// Validate panics when the batch breaks a shape or vocabulary contract.
func (b Batch) Validate(srcVocab, tgtVocab int) {
	n := len(b.Src)
	if n == 0 {
		panic("Batch.Validate: empty batch")
	}
	if len(b.SrcLens) != n || len(b.Tgt) != n || len(b.TgtLens) != n {
		panic(fmt.Sprintf("Batch.Validate: batch size mismatch (src %d, srcLens %d, tgt %d, tgtLens %d)",
			n, len(b.SrcLens), len(b.Tgt), len(b.TgtLens)))
	}
	checkTokens("Batch.Validate: src", b.Src, b.SrcLens, srcVocab)
	checkTokens("Batch.Validate: tgt", b.Tgt, b.TgtLens, tgtVocab)
}

func width(rows [][]int) int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}

func checkTokens(where string, rows [][]int, lengths []int, vocab int) {
	if len(rows) != len(lengths) {
		panic(fmt.Sprintf("%s: %d rows but %d lengths", where, len(rows), len(lengths)))
	}
	w := width(rows)
	if w == 0 {
		panic(where + ": zero padded width")
	}
	for b, row := range rows {
		if len(row) != w {
			panic(fmt.Sprintf("%s: row %d has width %d, want %d", where, b, len(row), w))
		}
		if lengths[b] < 1 || lengths[b] > w {
			panic(fmt.Sprintf("%s: length %d of row %d outside [1,%d]", where, lengths[b], b, w))
		}
		for t, id := range row {
			if id < 0 || id >= vocab {
				panic(fmt.Sprintf("%s: token %d at [%d,%d] outside vocabulary of %d", where, id, b, t, vocab))
			}
		}
	}
}

// NewMask returns a (B x width) matrix with 1 for real positions and 0 for padding.
// It depends on lengths only, never on token identity.
func NewMask(lengths []int, width int) *mat.Dense {
	m := mat.NewDense(len(lengths), width, nil)
	for b, l := range lengths {
		if l < 1 || l > width {
			panic(fmt.Sprintf("NewMask: length %d outside [1,%d]", l, width))
		}
		for t := 0; t < l; t++ {
			m.Set(b, t, 1)
		}
	}
	return m
}

// Column returns token t of every row.
func Column(rows [][]int, t int) []int {
	out := make([]int, len(rows))
	for b, row := range rows {
		out[b] = row[t]
	}
	return out
}

// EncoderContext is produced once per source batch and only read while decoding.
type EncoderContext struct {
	// Positions[b] is (2*He x W); columns at or past the true length are zero.
	Positions []*mat.Dense
	// Summary is (Hd x B) and seeds the decoder state.
	Summary *mat.Dense
}

// StepOutput is the result of one decoding step for the whole batch.
type StepOutput struct {
	Logits  *mat.Dense // (V x B)
	State   *mat.Dense // (Hd x B)
	Weights *mat.Dense // (B x W)
}
