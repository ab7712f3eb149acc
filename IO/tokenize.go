package IO

import (
	"fmt"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tokenizer lowercases with the rules of one language and splits on whitespace
// and punctuation. Not safe for concurrent use.
type Tokenizer struct {
	Lang  language.Tag
	lower cases.Caser
	pre   *pretokenizer.BertPreTokenizer
}

func NewTokenizer(lang language.Tag) *Tokenizer {
	return &Tokenizer{
		Lang:  lang,
		lower: cases.Lower(lang),
		pre:   pretokenizer.NewBertPreTokenizer(),
	}
}

// Source and target sides of the corpus.
func GermanTokenizer() *Tokenizer  { return NewTokenizer(language.German) }
func EnglishTokenizer() *Tokenizer { return NewTokenizer(language.English) }

func (t *Tokenizer) Tokenize(text string) ([]string, error) {
	text = strings.TrimSpace(t.lower.String(text))
	if text == "" {
		return nil, nil
	}
	pts, err := t.pre.PreTokenize(tk.NewPreTokenizedString(text))
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", text, err)
	}
	splits := pts.GetSplits(normalizer.OriginalTarget, tk.Byte)
	out := make([]string, 0, len(splits))
	for _, s := range splits {
		if s.Value != "" {
			out = append(out, s.Value)
		}
	}
	return out, nil
}
