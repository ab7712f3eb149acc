package IO

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Example is one tokenized sentence pair.
type Example struct {
	Src []string
	Tgt []string
}

type Splits struct {
	Train []Example
	Valid []Example
	Test  []Example
}

// Multi30k style file stems, each with a .de and .en file.
var splitNames = [3]string{"train", "val", "test"}

// LoadSplits reads {train,val,test}.{de,en} from dir, one split per goroutine.
func LoadSplits(ctx context.Context, dir string) (*Splits, error) {
	var out [3][]Example
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range splitNames {
		g.Go(func() error {
			exs, err := ReadParallel(ctx,
				filepath.Join(dir, name+".de"),
				filepath.Join(dir, name+".en"),
				GermanTokenizer(), EnglishTokenizer())
			if err != nil {
				return fmt.Errorf("%s split: %w", name, err)
			}
			slog.Debug("loaded split", "name", name, "examples", len(exs))
			out[i] = exs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Splits{Train: out[0], Valid: out[1], Test: out[2]}, nil
}

// ReadParallel reads two line-aligned files and tokenizes each side.
func ReadParallel(ctx context.Context, srcPath, tgtPath string, srcTok, tgtTok *Tokenizer) ([]Example, error) {
	srcLines, err := readLines(srcPath)
	if err != nil {
		return nil, err
	}
	tgtLines, err := readLines(tgtPath)
	if err != nil {
		return nil, err
	}
	if len(srcLines) != len(tgtLines) {
		return nil, fmt.Errorf("%s has %d lines but %s has %d", srcPath, len(srcLines), tgtPath, len(tgtLines))
	}
	exs := make([]Example, 0, len(srcLines))
	for i := range srcLines {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		src, err := srcTok.Tokenize(srcLines[i])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", srcPath, i+1, err)
		}
		tgt, err := tgtTok.Tokenize(tgtLines[i])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", tgtPath, i+1, err)
		}
		exs = append(exs, Example{Src: src, Tgt: tgt})
	}
	return exs, nil
}

func readLines(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return lines, nil
}

// SourceSentences and TargetSentences feed BuildVocab.
func SourceSentences(exs []Example) [][]string {
	out := make([][]string, len(exs))
	for i, e := range exs {
		out[i] = e.Src
	}
	return out
}

func TargetSentences(exs []Example) [][]string {
	out := make([][]string, len(exs))
	for i, e := range exs {
		out[i] = e.Tgt
	}
	return out
}
