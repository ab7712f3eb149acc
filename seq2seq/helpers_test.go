package seq2seq

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/utils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testVocab(words ...string) params.Vocabulary {
	return params.NewVocabulary(append(append([]string(nil), params.Specials...), words...))
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// tinyModel: src ids ein=4 hund=5 läuft=6 katze=7, tgt ids a=4 dog=5 runs=6 cat=7.
func tinyModel(t *testing.T, seed uint64) *Model {
	t.Helper()
	return tinyDropoutModel(t, seed, 0)
}

func tinyDropoutModel(t *testing.T, seed uint64, dropout float64) *Model {
	t.Helper()
	m, err := NewModel(
		testVocab("ein", "hund", "läuft", "katze"),
		testVocab("a", "dog", "runs", "cat"),
		params.ModelConfig{EmbSize: 3, HiddenSize: 4, NumLayers: 2, Dropout: dropout},
		params.ModelConfig{EmbSize: 3, HiddenSize: 5, NumLayers: 1, Dropout: dropout},
		newRand(seed),
	)
	require.NoError(t, err)
	return m
}

// tinyBatch has two examples of different lengths on both sides.
func tinyBatch() Batch {
	return Batch{
		Src:     [][]int{{2, 4, 5, 3, 1}, {2, 6, 3, 1, 1}},
		SrcLens: []int{4, 3},
		Tgt:     [][]int{{2, 4, 5, 6, 3, 1}, {2, 7, 3, 1, 1, 1}},
		TgtLens: []int{5, 3},
	}
}

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	return mat.NewDense(r, c, utils.NormalArray(rng, r*c))
}

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()

	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()

	param.Set(i, j, w0-eps)
	lm := forward()

	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := grad.At(i, j)

	if math.Abs(numGrad-anaGrad) > 1e-4 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g",
			name, i, j, numGrad, anaGrad)
	}
}

// weightedSum returns sum(m .* c).
func weightedSum(m, c *mat.Dense) float64 {
	var p mat.Dense
	p.MulElem(m, c)
	return mat.Sum(&p)
}
