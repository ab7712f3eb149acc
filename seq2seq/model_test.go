package seq2seq

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStepIsRepeatable(t *testing.T) {
	m := tinyModel(t, 21)
	b := tinyBatch()
	ctx := m.Encoder.Encode(b.Src, b.SrcLens)
	mask := NewMask(b.SrcLens, b.SrcWidth())
	prev := []int{4, 7}

	first := m.Decoder.Step(prev, ctx.Summary, ctx.Positions, mask)
	second := m.Decoder.Step(prev, ctx.Summary, ctx.Positions, mask)

	assert.True(t, mat.Equal(first.Logits, second.Logits))
	assert.True(t, mat.Equal(first.State, second.State))
	assert.True(t, mat.Equal(first.Weights, second.Weights))

	r, c := first.Logits.Dims()
	assert.Equal(t, []int{8, 2}, []int{r, c})
	r, c = first.State.Dims()
	assert.Equal(t, []int{5, 2}, []int{r, c})
	r, c = first.Weights.Dims()
	assert.Equal(t, []int{2, 5}, []int{r, c})
	for _, s := range utils.RowSums(first.Weights) {
		assert.InDelta(t, 1.0, s, 1e-12)
	}
	assert.LessOrEqual(t, first.Weights.At(1, 3), 1e-6)
}

func TestStepContractViolations(t *testing.T) {
	m := tinyModel(t, 22)
	b := tinyBatch()
	ctx := m.Encoder.Encode(b.Src, b.SrcLens)
	mask := NewMask(b.SrcLens, b.SrcWidth())
	assert.Panics(t, func() { m.Decoder.Step([]int{4, 99}, ctx.Summary, ctx.Positions, mask) }, "out of vocabulary")
	assert.Panics(t, func() { m.Decoder.Step([]int{4}, ctx.Summary, ctx.Positions, mask) }, "token count")
	assert.Panics(t, func() { m.Decoder.Step([]int{4, 4}, ctx.Summary, ctx.Positions[:1], mask) }, "positions count")
}

func TestForwardOutputBuffer(t *testing.T) {
	m := tinyModel(t, 23)
	out := m.Forward(tinyBatch(), 0.5, newRand(5))
	require.Len(t, out, 6)
	assert.Zero(t, mat.Norm(out[0], 2))
	for _, l := range out {
		r, c := l.Dims()
		assert.Equal(t, 8, r)
		assert.Equal(t, 2, c)
	}
}

func TestLossCountsNonPadTargets(t *testing.T) {
	m := tinyModel(t, 24)
	loss, n := m.Loss(tinyBatch(), 0, nil, false)
	assert.Equal(t, 6, n)
	assert.Greater(t, loss, 0.0)

	a, _ := m.Loss(tinyBatch(), 0.5, newRand(9), false)
	b, _ := m.Loss(tinyBatch(), 0.5, newRand(9), false)
	assert.Equal(t, a, b, "same seed must give the same loss")
}

func TestModelLossGradCheck(t *testing.T) {
	m := tinyModel(t, 25)
	batch := tinyBatch()
	forward := func() float64 {
		loss, _ := m.Loss(batch, 1.0, newRand(1), false)
		return loss
	}

	ps := m.Params()
	optimizations.ZeroGrad(ps)
	m.Loss(batch, 1.0, newRand(1), true)

	byName := map[string]*optimizations.Param{}
	for _, p := range ps {
		byName[p.Name] = p
	}
	checks := []struct {
		name string
		i, j int
	}{
		{"enc.emb", 0, 4},
		{"enc.emb", 2, 6},
		{"enc.l0.fwd.wih", 3, 1},
		{"enc.l0.bwd.whh", 10, 2},
		{"enc.l1.fwd.wih", 5, 7},
		{"enc.l1.bwd.b", 12, 0},
		{"enc.fc.w", 1, 6},
		{"enc.fc.b", 4, 0},
		{"dec.emb", 1, 5},
		{"dec.attn.w", 2, 9},
		{"dec.attn.b", 0, 0},
		{"dec.attn.v.w", 0, 3},
		{"dec.gru.wih", 7, 4},
		{"dec.gru.whh", 12, 3},
		{"dec.gru.bih", 14, 0},
		{"dec.gru.bhh", 6, 0},
		{"dec.out.w", 3, 12},
		{"dec.out.b", 6, 0},
	}
	for _, c := range checks {
		p, ok := byName[c.name]
		require.True(t, ok, "missing parameter %s", c.name)
		finiteDiffCheck(t, c.name, p.Value, p.Grad, forward, c.i, c.j)
	}

	// The pad column of either embedding never receives gradient.
	assert.Zero(t, mat.Norm(byName["enc.emb"].Grad.ColView(1), 2))
	assert.Zero(t, mat.Norm(byName["dec.emb"].Grad.ColView(1), 2))
}

func TestTrainingStepsReduceLoss(t *testing.T) {
	m := tinyModel(t, 26)
	batch := tinyBatch()
	ps := m.Params()
	opt := optimizations.NewAdam(0.01, 0.9, 0.999, 1e-8, 0)

	initial, _ := m.Loss(batch, 1.0, newRand(1), false)
	for i := 0; i < 30; i++ {
		optimizations.ZeroGrad(ps)
		m.Loss(batch, 1.0, newRand(1), true)
		utils.ClipGrads(1.0, optimizations.Grads(ps)...)
		opt.Step(ps)
	}
	final, _ := m.Loss(batch, 1.0, newRand(1), false)
	assert.Less(t, final, initial)
	assert.Equal(t, 30, opt.T)
}

func TestTranslateShape(t *testing.T) {
	m := tinyModel(t, 27)
	tr := m.Translate([]string{"ein", "hund", "unbekannt"}, 7)
	require.NotEmpty(t, tr.IDs)
	assert.LessOrEqual(t, len(tr.IDs), 7)
	require.Len(t, tr.Attention, len(tr.IDs))
	for _, row := range tr.Attention {
		assert.Len(t, row, 5)
	}
	assert.Equal(t, []int{2, 4, 5, 0, 3}, m.SourceIDs([]string{"ein", "hund", "unbekannt"}))
}

func TestNewModelRejectsBadConfig(t *testing.T) {
	src := testVocab("ein")
	tgt := testVocab("a")
	_, err := NewModel(src, tgt, params.ModelConfig{EmbSize: 2, HiddenSize: 2, NumLayers: 1},
		params.ModelConfig{EmbSize: 2, HiddenSize: 2, NumLayers: 2}, newRand(1))
	assert.Error(t, err)
	_, err = NewModel(params.NewVocabulary([]string{"x"}), tgt, params.ModelConfig{EmbSize: 2, HiddenSize: 2, NumLayers: 1},
		params.ModelConfig{EmbSize: 2, HiddenSize: 2, NumLayers: 1}, newRand(1))
	assert.Error(t, err)
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := tinyModel(t, 28)
	opt := optimizations.NewAdam(0.01, 0.9, 0.999, 1e-8, 0)
	ps := m.Params()
	optimizations.ZeroGrad(ps)
	m.Loss(tinyBatch(), 1.0, newRand(1), true)
	opt.Step(ps)

	path := filepath.Join(t.TempDir(), "models", "seq2seq.gob")
	require.NoError(t, SaveModel(m, opt, path))
	loaded, lopt, err := LoadModel(path)
	require.NoError(t, err)

	require.NotNil(t, lopt)
	assert.Equal(t, *opt, *lopt)
	if diff := cmp.Diff(m.TgtVocab, loaded.TgtVocab); diff != "" {
		t.Errorf("target vocabulary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Encoder.Config, loaded.Encoder.Config); diff != "" {
		t.Errorf("encoder config mismatch (-want +got):\n%s", diff)
	}

	b := tinyBatch()
	mask := NewMask(b.SrcLens, b.SrcWidth())
	ctxA := m.Encoder.Encode(b.Src, b.SrcLens)
	ctxB := loaded.Encoder.Encode(b.Src, b.SrcLens)
	outA := m.Decoder.Step([]int{2, 2}, ctxA.Summary, ctxA.Positions, mask)
	outB := loaded.Decoder.Step([]int{2, 2}, ctxB.Summary, ctxB.Positions, mask)
	assert.True(t, mat.Equal(outA.Logits, outB.Logits))
	assert.True(t, mat.Equal(outA.Weights, outB.Weights))

	lps := loaded.Params()
	for i := range ps {
		assert.True(t, mat.Equal(ps[i].M, lps[i].M), ps[i].Name)
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	_, _, err := LoadModel(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}
