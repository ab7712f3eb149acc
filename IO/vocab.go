package IO

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/manningwu07/seq2seq/params"
)

// BuildVocab puts the special tokens first, then every token seen at least
// minFreq times, most frequent first and alphabetical among ties.
func BuildVocab(sentences [][]string, minFreq int) params.Vocabulary {
	cnt := make(map[string]int)
	for _, s := range sentences {
		for _, tok := range s {
			cnt[tok]++
		}
	}
	special := make(map[string]bool, len(params.Specials))
	for _, s := range params.Specials {
		special[s] = true
	}

	type kv struct {
		tok string
		n   int
	}
	words := make([]kv, 0, len(cnt))
	for tok, n := range cnt {
		if special[tok] || n < minFreq {
			continue
		}
		words = append(words, kv{tok, n})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].n != words[j].n {
			return words[i].n > words[j].n
		}
		return words[i].tok < words[j].tok
	})

	id2tok := append([]string(nil), params.Specials...)
	for _, w := range words {
		id2tok = append(id2tok, w.tok)
	}
	return params.NewVocabulary(id2tok)
}

// Numericalize maps tokens to ids wrapped in <sos> ... <eos>; unknown tokens map to <unk>.
func Numericalize(v params.Vocabulary, tokens []string) []int {
	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, v.SosID())
	for _, t := range tokens {
		ids = append(ids, v.Index(t))
	}
	return append(ids, v.EosID())
}

func ExportVocabJSON(v params.Vocabulary, path string) error {
	data := map[string]any{
		"TokenToID": v.TokenToID,
		"IDToToken": v.IDToToken,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func ImportVocabJSON(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, err
	}
	defer f.Close()
	var v params.Vocabulary
	if err := json.NewDecoder(f).Decode(&v); err != nil {
		return params.Vocabulary{}, fmt.Errorf("decode vocab %s: %w", path, err)
	}
	if len(v.IDToToken) == 0 {
		return params.Vocabulary{}, fmt.Errorf("vocab %s is empty", path)
	}
	// IDToToken is authoritative.
	return params.NewVocabulary(v.IDToToken), nil
}
