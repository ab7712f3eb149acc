package params

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabularyLookups(t *testing.T) {
	v := NewVocabulary(append(append([]string(nil), Specials...), "hund"))
	assert.Equal(t, 5, v.Size())
	assert.Equal(t, 4, v.Index("hund"))
	assert.Equal(t, 0, v.Index("katze"))
	assert.Equal(t, 1, v.PadID())
	assert.Equal(t, 2, v.SosID())
	assert.Equal(t, 3, v.EosID())
	assert.Equal(t, []string{"<sos>", "hund", "<unk>"}, v.Tokens([]int{2, 4, 99}))
	assert.Equal(t, UnkToken, v.Token(-1))

	assert.Panics(t, func() { NewVocabulary([]string{"a"}).PadID() })
}

func TestModelConfigValidate(t *testing.T) {
	ok := ModelConfig{VocabSize: 10, EmbSize: 4, HiddenSize: 4, NumLayers: 1, PadIndex: 1}
	assert.NoError(t, ok.Validate())

	for name, mutate := range map[string]func(*ModelConfig){
		"vocab":  func(c *ModelConfig) { c.VocabSize = 0 },
		"emb":    func(c *ModelConfig) { c.EmbSize = 0 },
		"hidden": func(c *ModelConfig) { c.HiddenSize = -1 },
		"layers": func(c *ModelConfig) { c.NumLayers = 0 },
		"pad":    func(c *ModelConfig) { c.PadIndex = 10 },
		"drop":   func(c *ModelConfig) { c.Dropout = 1 },
		"neg":    func(c *ModelConfig) { c.Dropout = -0.1 },
	} {
		c := ok
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestApplyEnv(t *testing.T) {
	saved := Config
	t.Cleanup(func() { Config = saved })

	t.Setenv("SEQ2SEQ_DATA", " \"/tmp/corpus\" ")
	t.Setenv("SEQ2SEQ_MODEL", "m.gob")
	t.Setenv("SEQ2SEQ_SEED", "7")
	t.Setenv("SEQ2SEQ_DEBUG", "1")
	ApplyEnv()
	assert.Equal(t, "/tmp/corpus", Config.DataDir)
	assert.Equal(t, "m.gob", Config.ModelPath)
	assert.Equal(t, uint64(7), Config.Seed)
	assert.True(t, Config.Debug)

	t.Setenv("SEQ2SEQ_SEED", "seven")
	ApplyEnv()
	assert.Equal(t, uint64(7), Config.Seed, "invalid seed keeps the previous value")
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}
	for in, want := range cases {
		t.Setenv("SEQ2SEQ_DEBUG", in)
		assert.Equal(t, want, LogLevel(), in)
	}
	assert.Contains(t, AsMap(), "SEQ2SEQ_DEBUG")
}
