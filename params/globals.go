package params

import "fmt"

// Special tokens, kept at the start of every vocabulary in this order.
const (
	UnkToken = "<unk>"
	PadToken = "<pad>"
	SosToken = "<sos>"
	EosToken = "<eos>"
)

var Specials = []string{UnkToken, PadToken, SosToken, EosToken}

// MaskSentinel replaces attention energies at padding positions before the softmax.
const MaskSentinel = -1e6

type Vocabulary struct {
	TokenToID map[string]int
	IDToToken []string
}

// NewVocabulary indexes tokens in the given order.
func NewVocabulary(idToToken []string) Vocabulary {
	tok2id := make(map[string]int, len(idToToken))
	for i, t := range idToToken {
		tok2id[t] = i
	}
	return Vocabulary{TokenToID: tok2id, IDToToken: append([]string(nil), idToToken...)}
}

func (v Vocabulary) Size() int { return len(v.IDToToken) }

// Index returns the id of tok, or the <unk> id when tok is unknown.
func (v Vocabulary) Index(tok string) int {
	if id, ok := v.TokenToID[tok]; ok {
		return id
	}
	return v.mustID(UnkToken)
}

func (v Vocabulary) PadID() int { return v.mustID(PadToken) }
func (v Vocabulary) SosID() int { return v.mustID(SosToken) }
func (v Vocabulary) EosID() int { return v.mustID(EosToken) }

func (v Vocabulary) Token(id int) string {
	if id < 0 || id >= len(v.IDToToken) {
		return UnkToken
	}
	return v.IDToToken[id]
}

func (v Vocabulary) Tokens(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = v.Token(id)
	}
	return out
}

func (v Vocabulary) mustID(tok string) int {
	id, ok := v.TokenToID[tok]
	if !ok {
		panic(fmt.Sprintf("vocabulary: special token %q missing", tok))
	}
	return id
}

// ModelConfig describes one side (encoder or decoder) of the translator.
type ModelConfig struct {
	VocabSize  int // |V|
	EmbSize    int // embedding width
	HiddenSize int // recurrent state width
	NumLayers  int // stacked recurrent layers
	PadIndex   int // embedding row kept at zero

	// Dropout is the drop probability on embeddings and between stacked
	// recurrent layers. Only applied while training.
	Dropout float64
}

func (c ModelConfig) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("vocab size must be positive, got %d", c.VocabSize)
	case c.EmbSize <= 0 || c.HiddenSize <= 0:
		return fmt.Errorf("emb/hidden sizes must be positive, got %d/%d", c.EmbSize, c.HiddenSize)
	case c.NumLayers <= 0:
		return fmt.Errorf("num layers must be positive, got %d", c.NumLayers)
	case c.PadIndex < 0 || c.PadIndex >= c.VocabSize:
		return fmt.Errorf("pad index %d outside vocab of %d", c.PadIndex, c.VocabSize)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %v", c.Dropout)
	}
	return nil
}

type TrainingConfig struct {
	MaxEpochs int // number of passes over the training split
	Patience  int // early stopping patience on validation loss (0 = off)
	BatchSize int // sentence pairs per batch

	// Adam (PyTorch defaults)
	LearningRate float64
	AdamBeta1    float64
	AdamBeta2    float64
	AdamEps      float64
	WeightDecay  float64 // 0 disables

	GradClip       float64 // <=0 disables
	TeacherForcing float64 // training-time ratio; validation always uses 0
	MaxDecodeLen   int     // greedy decoding cap
	MinFreq        int     // vocabulary frequency cut-off
	Seed           uint64

	Debug      bool // periodic debug logs
	DebugEvery int  // print every N optimizer steps

	DataDir   string // Multi30k style {train,val,test}.{de,en}
	ModelPath string // checkpoint written after each improving epoch
	LogCSV    string // per-epoch loss log
}

// Encoder/decoder widths of the reference model.
var (
	EncoderDefaults = ModelConfig{EmbSize: 512, HiddenSize: 256, NumLayers: 2, Dropout: 0.3}
	DecoderDefaults = ModelConfig{EmbSize: 512, HiddenSize: 256, NumLayers: 1, Dropout: 0.3}
)

var Config = TrainingConfig{
	MaxEpochs: 10,
	Patience:  0,
	BatchSize: 256,

	LearningRate: 1e-3,
	AdamBeta1:    0.9,
	AdamBeta2:    0.999,
	AdamEps:      1e-8,
	WeightDecay:  0,

	GradClip:       1.0,
	TeacherForcing: 0.5,
	MaxDecodeLen:   50,
	MinFreq:        1,
	Seed:           241,

	Debug:      false,
	DebugEvery: 50,

	DataDir:   "data/multi30k",
	ModelPath: "models/seq2seq.gob",
	LogCSV:    "training_log.csv",
}
