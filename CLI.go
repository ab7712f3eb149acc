package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/manningwu07/seq2seq/IO"
	"github.com/manningwu07/seq2seq/seq2seq"
)

// translation pairs the tokens the model saw with the tokens it produced.
type translation struct {
	Source []string // <sos> words <eos>, as fed to the encoder
	Output []string // generated tokens, <eos> included when emitted
	seq2seq.Translation
}

// Translate tokenizes a German sentence and greedily decodes it.
func Translate(m *seq2seq.Model, tok *IO.Tokenizer, sentence string, maxLen int) (*translation, error) {
	words, err := tok.Tokenize(sentence)
	if err != nil {
		return nil, err
	}
	ids := m.SourceIDs(words)
	tr := m.TranslateIDs(ids, maxLen)
	return &translation{
		Source:      m.SrcVocab.Tokens(ids),
		Output:      m.TgtVocab.Tokens(tr.IDs),
		Translation: tr,
	}, nil
}

// ChatCLI reads one sentence per line until EOF or "exit".
func ChatCLI(ctx context.Context, m *seq2seq.Model, in io.Reader, out io.Writer, maxLen int) error {
	tok := IO.GermanTokenizer()
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "German to English. Type 'exit' to quit.")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "de: ")
		line, err := reader.ReadString('\n')
		input := strings.TrimSpace(line)
		if input == "exit" {
			return nil
		}
		if input != "" {
			tr, terr := Translate(m, tok, input, maxLen)
			if terr != nil {
				return terr
			}
			fmt.Fprintln(out, "en:", renderTokens(tr.Output))
		}
		if err == io.EOF {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
	}
}
