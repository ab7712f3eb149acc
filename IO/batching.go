package IO

import (
	"math/rand/v2"
	"sort"

	"github.com/manningwu07/seq2seq/params"
	"github.com/manningwu07/seq2seq/seq2seq"
)

// Pair is a numericalized example, already wrapped in <sos>/<eos>.
type Pair struct {
	Src []int
	Tgt []int
}

func NumericalizeExamples(exs []Example, src, tgt params.Vocabulary) []Pair {
	out := make([]Pair, len(exs))
	for i, e := range exs {
		out[i] = Pair{Src: Numericalize(src, e.Src), Tgt: Numericalize(tgt, e.Tgt)}
	}
	return out
}

// PadBatch right-pads every sequence to the longest one on its side.
func PadBatch(pairs []Pair, srcPad, tgtPad int) seq2seq.Batch {
	b := seq2seq.Batch{
		Src:     make([][]int, len(pairs)),
		SrcLens: make([]int, len(pairs)),
		Tgt:     make([][]int, len(pairs)),
		TgtLens: make([]int, len(pairs)),
	}
	srcW, tgtW := 0, 0
	for _, p := range pairs {
		srcW = max(srcW, len(p.Src))
		tgtW = max(tgtW, len(p.Tgt))
	}
	for i, p := range pairs {
		b.Src[i], b.SrcLens[i] = padTo(p.Src, srcW, srcPad), len(p.Src)
		b.Tgt[i], b.TgtLens[i] = padTo(p.Tgt, tgtW, tgtPad), len(p.Tgt)
	}
	return b
}

func padTo(ids []int, w, pad int) []int {
	out := make([]int, w)
	copy(out, ids)
	for i := len(ids); i < w; i++ {
		out[i] = pad
	}
	return out
}

// poolFactor sets how many batches are sorted together before cutting.
const poolFactor = 100

// BucketIterator groups examples of similar length into padded batches.
// With a nil rng the order is fully sorted and stable.
type BucketIterator struct {
	Pairs     []Pair
	BatchSize int
	SrcPad    int
	TgtPad    int
	rng       *rand.Rand
}

func NewBucketIterator(pairs []Pair, batchSize, srcPad, tgtPad int, rng *rand.Rand) *BucketIterator {
	if batchSize <= 0 {
		panic("NewBucketIterator: batch size must be positive")
	}
	return &BucketIterator{Pairs: pairs, BatchSize: batchSize, SrcPad: srcPad, TgtPad: tgtPad, rng: rng}
}

// Len is the number of batches per epoch.
func (it *BucketIterator) Len() int {
	return (len(it.Pairs) + it.BatchSize - 1) / it.BatchSize
}

// Batches returns one epoch of batches.
func (it *BucketIterator) Batches() []seq2seq.Batch {
	pairs := append([]Pair(nil), it.Pairs...)
	pool := len(pairs)
	if it.rng != nil {
		it.rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
		pool = it.BatchSize * poolFactor
	}

	var chunks [][]Pair
	for start := 0; start < len(pairs); start += pool {
		p := pairs[start:min(start+pool, len(pairs))]
		sort.SliceStable(p, func(i, j int) bool {
			if len(p[i].Src) != len(p[j].Src) {
				return len(p[i].Src) < len(p[j].Src)
			}
			return len(p[i].Tgt) < len(p[j].Tgt)
		})
		for s := 0; s < len(p); s += it.BatchSize {
			chunks = append(chunks, p[s:min(s+it.BatchSize, len(p))])
		}
	}
	if it.rng != nil {
		it.rng.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })
	}

	out := make([]seq2seq.Batch, len(chunks))
	for i, c := range chunks {
		out[i] = PadBatch(c, it.SrcPad, it.TgtPad)
	}
	return out
}
