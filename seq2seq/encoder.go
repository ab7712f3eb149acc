package seq2seq

import (
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"gonum.org/v1/gonum/mat"
)

// Encoder reads a padded source batch with stacked bidirectional LSTMs.
type Encoder struct {
	Config    params.ModelConfig
	Embedding *Embedding
	Layers    []*BiLSTM
	FC        *Linear // (2*He -> Hd)
}

func NewEncoder(cfg params.ModelConfig, decHidden int, rng *rand.Rand) *Encoder {
	e := &Encoder{
		Config:    cfg,
		Embedding: NewEmbedding("enc.emb", cfg.VocabSize, cfg.EmbSize, cfg.PadIndex, rng),
		Layers:    make([]*BiLSTM, cfg.NumLayers),
		FC:        NewLinear("enc.fc", 2*cfg.HiddenSize, decHidden, true, rng),
	}
	in := cfg.EmbSize
	for l := range e.Layers {
		e.Layers[l] = NewBiLSTM(fmt.Sprintf("enc.l%d", l), in, cfg.HiddenSize, rng)
		in = 2 * cfg.HiddenSize
	}
	return e
}

func (e *Encoder) Params() []*optimizations.Param {
	ps := []*optimizations.Param{e.Embedding.Table}
	for _, l := range e.Layers {
		ps = append(ps, l.Params()...)
	}
	return append(ps, e.FC.Params()...)
}

type encoderTrace struct {
	tokens  [][]int
	embDrop []*mat.Dense   // per position, nil without dropout
	midDrop [][]*mat.Dense // midDrop[l][t] masks layer l's outputs fed to layer l+1
	layers  []*biLSTMTrace
	hcat    *mat.Dense // [bwd_final; fwd_final] of the last layer
	summary *mat.Dense
}

// Encode turns tokens (B x W) with true lengths into per-position vectors and a
// summary state. Positions always carry W columns.
func (e *Encoder) Encode(tokens [][]int, lengths []int) EncoderContext {
	ctx, _ := e.encode(tokens, lengths, nil)
	return ctx
}

// encode applies dropout to the embeddings and between stacked layers when
// noise is non-nil.
func (e *Encoder) encode(tokens [][]int, lengths []int, noise Coin) (EncoderContext, *encoderTrace) {
	if len(tokens) == 0 {
		panic("Encoder.Encode: empty batch")
	}
	checkTokens("Encoder.Encode", tokens, lengths, e.Embedding.Vocab())
	W, B := len(tokens[0]), len(tokens)

	drop := e.Config.Dropout
	tr := &encoderTrace{
		tokens:  tokens,
		embDrop: make([]*mat.Dense, W),
		midDrop: make([][]*mat.Dense, len(e.Layers)),
		layers:  make([]*biLSTMTrace, len(e.Layers)),
	}
	xs := make([]*mat.Dense, W)
	for t := 0; t < W; t++ {
		tr.embDrop[t] = dropoutMask(e.Embedding.Dim(), B, drop, noise)
		xs[t] = applyMask(e.Embedding.Lookup(Column(tokens, t)), tr.embDrop[t])
	}

	var hF, hB *mat.Dense
	for l, layer := range e.Layers {
		if l > 0 {
			tr.midDrop[l-1] = make([]*mat.Dense, W)
			for t := range xs {
				tr.midDrop[l-1][t] = dropoutMask(2*e.Config.HiddenSize, B, drop, noise)
				xs[t] = applyMask(xs[t], tr.midDrop[l-1][t])
			}
		}
		xs, hF, hB, tr.layers[l] = layer.forward(xs, lengths)
	}

	twoH := 2 * e.Config.HiddenSize
	positions := make([]*mat.Dense, B)
	for b := 0; b < B; b++ {
		p := mat.NewDense(twoH, W, nil)
		for t := 0; t < W; t++ {
			for k := 0; k < twoH; k++ {
				p.Set(k, t, xs[t].At(k, b))
			}
		}
		positions[b] = p
	}

	tr.hcat = utils.VStack(hB, hF)
	tr.summary = utils.ToDense(utils.Apply(utils.TanhApply, e.FC.Forward(tr.hcat)))
	return EncoderContext{Positions: positions, Summary: tr.summary}, tr
}

// backward pushes position and summary gradients down to the embedding table.
func (e *Encoder) backward(tr *encoderTrace, dPositions []*mat.Dense, dSummary *mat.Dense) {
	H := e.Config.HiddenSize
	B := len(tr.tokens)
	W := len(tr.tokens[0])

	dPre := utils.ToDense(utils.Multiply(dSummary, utils.TanhPrimeFromOutput(tr.summary)))
	dHcat := e.FC.Backward(tr.hcat, dPre)
	dHB := utils.Rows(dHcat, 0, H)
	dHF := utils.Rows(dHcat, H, 2*H)

	dOuts := make([]*mat.Dense, W)
	for t := 0; t < W; t++ {
		d := mat.NewDense(2*H, B, nil)
		for b := 0; b < B; b++ {
			if dPositions[b] == nil {
				continue
			}
			for k := 0; k < 2*H; k++ {
				d.Set(k, b, dPositions[b].At(k, t))
			}
		}
		dOuts[t] = d
	}

	for l := len(e.Layers) - 1; l >= 0; l-- {
		dOuts = e.Layers[l].backward(tr.layers[l], dOuts, dHF, dHB)
		dHF, dHB = mat.NewDense(H, B, nil), mat.NewDense(H, B, nil)
		if l > 0 {
			for t := range dOuts {
				dOuts[t] = applyMask(dOuts[t], tr.midDrop[l-1][t])
			}
		}
	}
	for t := 0; t < W; t++ {
		e.Embedding.Backward(Column(tr.tokens, t), applyMask(dOuts[t], tr.embDrop[t]))
	}
}
