package seq2seq

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Model couples the encoder and decoder with the vocabularies they were built for.
type Model struct {
	Encoder  *Encoder
	Decoder  *Decoder
	SrcVocab params.Vocabulary
	TgtVocab params.Vocabulary
}

// NewModel sizes both sides from the vocabularies; VocabSize and PadIndex in
// enc and dec are overwritten.
func NewModel(srcVocab, tgtVocab params.Vocabulary, enc, dec params.ModelConfig, rng *rand.Rand) (*Model, error) {
	if err := checkSpecials(srcVocab); err != nil {
		return nil, fmt.Errorf("source vocabulary: %w", err)
	}
	if err := checkSpecials(tgtVocab); err != nil {
		return nil, fmt.Errorf("target vocabulary: %w", err)
	}
	enc.VocabSize, enc.PadIndex = srcVocab.Size(), srcVocab.PadID()
	dec.VocabSize, dec.PadIndex = tgtVocab.Size(), tgtVocab.PadID()
	if err := enc.Validate(); err != nil {
		return nil, fmt.Errorf("encoder config: %w", err)
	}
	if err := dec.Validate(); err != nil {
		return nil, fmt.Errorf("decoder config: %w", err)
	}
	if dec.NumLayers != 1 {
		return nil, fmt.Errorf("decoder config: %d recurrent layers, only 1 is supported", dec.NumLayers)
	}
	return &Model{
		Encoder:  NewEncoder(enc, dec.HiddenSize, rng),
		Decoder:  NewDecoder(dec, enc.HiddenSize, rng),
		SrcVocab: srcVocab,
		TgtVocab: tgtVocab,
	}, nil
}

func checkSpecials(v params.Vocabulary) error {
	for _, s := range params.Specials {
		if _, ok := v.TokenToID[s]; !ok {
			return fmt.Errorf("missing special token %q", s)
		}
	}
	return nil
}

func (m *Model) Params() []*optimizations.Param {
	return append(m.Encoder.Params(), m.Decoder.Params()...)
}

// Forward encodes the batch and unrolls the decoder over the full target width.
func (m *Model) Forward(batch Batch, ratio float64, coin Coin) []*mat.Dense {
	batch.Validate(m.SrcVocab.Size(), m.TgtVocab.Size())
	mask := NewMask(batch.SrcLens, batch.SrcWidth())
	ctx := m.Encoder.Encode(batch.Src, batch.SrcLens)
	return Run(m.Decoder, ctx, mask, batch.Tgt, m.TgtVocab.SosID(), ratio, coin)
}

// recorder keeps the trace of every step so the unrolled graph can be reversed.
type recorder struct {
	dec    *Decoder
	noise  Coin
	traces []*stepTrace
}

func (r *recorder) Step(prev []int, state *mat.Dense, positions []*mat.Dense, mask *mat.Dense) StepOutput {
	out, tr := r.dec.step(prev, state, positions, mask, r.noise)
	r.traces = append(r.traces, tr)
	return out
}

func (r *recorder) OutputDim() int { return r.dec.OutputDim() }

// Loss returns the mean cross entropy over target positions 1..T-1, skipping
// pad targets, and the number of tokens it averaged over. With train set the
// gradient of that mean is accumulated into every parameter's Grad, and coin
// also draws the dropout masks of both sides.
func (m *Model) Loss(batch Batch, ratio float64, coin Coin, train bool) (float64, int) {
	batch.Validate(m.SrcVocab.Size(), m.TgtVocab.Size())
	var noise Coin
	if train && (m.Encoder.Config.Dropout > 0 || m.Decoder.Config.Dropout > 0) {
		if coin == nil {
			panic("Model.Loss: dropout needs a coin")
		}
		noise = coin
	}
	mask := NewMask(batch.SrcLens, batch.SrcWidth())
	ctx, etr := m.Encoder.encode(batch.Src, batch.SrcLens, noise)
	rec := &recorder{dec: m.Decoder, noise: noise}
	logits := Run(rec, ctx, mask, batch.Tgt, m.TgtVocab.SosID(), ratio, coin)

	pad := m.TgtVocab.PadID()
	T, B := batch.TgtWidth(), batch.Size()
	n := 0
	for t := 1; t < T; t++ {
		for b := 0; b < B; b++ {
			if batch.Tgt[b][t] != pad {
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0
	}

	total := 0.0
	dLogits := make([]*mat.Dense, T)
	for t := 1; t < T; t++ {
		V, _ := logits[t].Dims()
		d := mat.NewDense(V, B, nil)
		for b := 0; b < B; b++ {
			gold := batch.Tgt[b][t]
			if gold == pad {
				continue
			}
			loss, grad := utils.CrossEntropyWithIndex(mat.DenseCopyOf(logits[t].ColView(b)), gold)
			total += loss
			grad.Scale(1/float64(n), grad)
			d.SetCol(b, grad.RawMatrix().Data)
		}
		dLogits[t] = d
	}

	if train {
		var dState *mat.Dense
		dPos := make([]*mat.Dense, B)
		for b := range dPos {
			r, c := ctx.Positions[b].Dims()
			dPos[b] = mat.NewDense(r, c, nil)
		}
		for t := T - 1; t >= 1; t-- {
			ds, dp := m.Decoder.backward(rec.traces[t-1], dLogits[t], dState)
			dState = ds
			for b := range dPos {
				dPos[b].Add(dPos[b], dp[b])
			}
		}
		m.Encoder.backward(etr, dPos, dState)
	}
	return total / float64(n), n
}

// SourceIDs wraps already tokenized words with the start and end markers.
func (m *Model) SourceIDs(words []string) []int {
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, m.SrcVocab.SosID())
	for _, w := range words {
		ids = append(ids, m.SrcVocab.Index(w))
	}
	return append(ids, m.SrcVocab.EosID())
}

// Translate greedily decodes one tokenized source sentence.
func (m *Model) Translate(words []string, maxLen int) Translation {
	return m.TranslateIDs(m.SourceIDs(words), maxLen)
}

func (m *Model) TranslateIDs(src []int, maxLen int) Translation {
	ctx := m.Encoder.Encode([][]int{src}, []int{len(src)})
	mask := NewMask([]int{len(src)}, len(src))
	return Greedy(m.Decoder, ctx, mask, m.TgtVocab.SosID(), m.TgtVocab.EosID(), maxLen)
}
