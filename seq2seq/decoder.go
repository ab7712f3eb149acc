package seq2seq

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Decoder advances the whole batch by one target token per Step.
type Decoder struct {
	Config    params.ModelConfig
	EncHidden int
	Embedding *Embedding
	Attention *Attention
	RNN       *GRUCell // input [emb; ctx]
	Out       *Linear  // [s'; emb; ctx] -> V
}

func NewDecoder(cfg params.ModelConfig, encHidden int, rng *rand.Rand) *Decoder {
	ctx := 2 * encHidden
	return &Decoder{
		Config:    cfg,
		EncHidden: encHidden,
		Embedding: NewEmbedding("dec.emb", cfg.VocabSize, cfg.EmbSize, cfg.PadIndex, rng),
		Attention: NewAttention(encHidden, cfg.HiddenSize, rng),
		RNN:       NewGRUCell("dec.gru", cfg.EmbSize+ctx, cfg.HiddenSize, rng),
		Out:       NewLinear("dec.out", cfg.HiddenSize+cfg.EmbSize+ctx, cfg.VocabSize, true, rng),
	}
}

func (d *Decoder) OutputDim() int { return d.Out.Out() }

func (d *Decoder) Params() []*optimizations.Param {
	ps := []*optimizations.Param{d.Embedding.Table}
	ps = append(ps, d.Attention.Params()...)
	ps = append(ps, d.RNN.Params()...)
	return append(ps, d.Out.Params()...)
}

type stepTrace struct {
	prev      []int
	embDrop   *mat.Dense // nil without dropout
	attn      *attentionTrace
	positions []*mat.Dense
	gru       *gruTrace
	feat      *mat.Dense // [s'; emb; ctx]
}

// Step consumes the previous token of every example and the incoming state.
// It does not touch any field of d, so repeated calls give identical results.
func (d *Decoder) Step(prev []int, state *mat.Dense, positions []*mat.Dense, mask *mat.Dense) StepOutput {
	out, _ := d.step(prev, state, positions, mask, nil)
	return out
}

// step is Step with a trace for backward. A non-nil noise applies dropout to
// the embedded input tokens.
func (d *Decoder) step(prev []int, state *mat.Dense, positions []*mat.Dense, mask *mat.Dense, noise Coin) (StepOutput, *stepTrace) {
	hd, B := state.Dims()
	if hd != d.Config.HiddenSize {
		panic(fmt.Sprintf("Decoder.Step: state has %d rows, want %d", hd, d.Config.HiddenSize))
	}
	if len(prev) != B {
		panic(fmt.Sprintf("Decoder.Step: %d tokens for a batch of %d", len(prev), B))
	}
	embDrop := dropoutMask(d.Embedding.Dim(), B, d.Config.Dropout, noise)
	emb := applyMask(d.Embedding.Lookup(prev), embDrop)
	weights, atr := d.Attention.score(state, positions, mask)

	ctxDim := 2 * d.EncHidden
	ctx := mat.NewDense(ctxDim, B, nil)
	for b := 0; b < B; b++ {
		var c mat.VecDense
		c.MulVec(positions[b], weights.RowView(b))
		ctx.SetCol(b, c.RawVector().Data)
	}

	hNew, gtr := d.RNN.forward(utils.VStack(emb, ctx), state)
	feat := utils.VStack(hNew, emb, ctx)
	logits := d.Out.Forward(feat)

	tr := &stepTrace{prev: prev, embDrop: embDrop, attn: atr, positions: positions, gru: gtr, feat: feat}
	return StepOutput{Logits: logits, State: hNew, Weights: weights}, tr
}

// backward takes the gradient of the step logits and of the outgoing state and
// returns the gradient of the incoming state and of every example's positions.
func (d *Decoder) backward(tr *stepTrace, dLogits, dStateOut *mat.Dense) (*mat.Dense, []*mat.Dense) {
	H, E, C := d.Config.HiddenSize, d.Config.EmbSize, 2*d.EncHidden
	dFeat := d.Out.Backward(tr.feat, dLogits)
	dh := utils.Rows(dFeat, 0, H)
	if dStateOut != nil {
		dh.Add(dh, dStateOut)
	}
	dEmb := utils.Rows(dFeat, H, H+E)
	dCtx := utils.Rows(dFeat, H+E, H+E+C)

	dx, dState := d.RNN.backward(tr.gru, dh)
	dEmb.Add(dEmb, utils.Rows(dx, 0, E))
	dCtx.Add(dCtx, utils.Rows(dx, E, E+C))
	d.Embedding.Backward(tr.prev, applyMask(dEmb, tr.embDrop))

	B, W := tr.attn.weights.Dims()
	dWeights := mat.NewDense(B, W, nil)
	dPos := make([]*mat.Dense, B)
	for b := 0; b < B; b++ {
		dc := dCtx.ColView(b)
		w := tr.attn.weights.RowView(b)
		p := mat.NewDense(C, W, nil)
		p.Outer(1, dc, w)
		dPos[b] = p
		var dw mat.VecDense
		dw.MulVec(tr.positions[b].T(), dc)
		dWeights.SetRow(b, dw.RawVector().Data)
	}

	dStateA, dPosA := d.Attention.backward(tr.attn, dWeights)
	dState.Add(dState, dStateA)
	for b := range dPos {
		dPos[b].Add(dPos[b], dPosA[b])
	}
	return dState, dPos
}
