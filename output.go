package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/manningwu07/seq2seq/params"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
)

// asciiPlot draws a crude vertical bar chart of values scaled to their max.
func asciiPlot(w io.Writer, values []float64) {
	const height = 10 // number of text rows
	n := len(values)
	if n == 0 {
		fmt.Fprintln(w, "no data to plot")
		return
	}
	top := floats.Max(values)
	if top <= 0 {
		top = 1
	}
	for row := height; row >= 1; row-- {
		threshold := float64(row) / float64(height)
		for _, v := range values {
			if v/top >= threshold {
				fmt.Fprint(w, "█")
			} else {
				fmt.Fprint(w, " ")
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, strings.Repeat("─", n))
	// epoch ticks every 5 columns
	for i := range values {
		if i%5 == 0 {
			fmt.Fprint(w, strconv.Itoa(i%10))
		} else {
			fmt.Fprint(w, " ")
		}
	}
	fmt.Fprintln(w)
}

// lossLog holds the columns of the per-epoch CSV written by train.
type lossLog struct {
	Train []float64
	Valid []float64
}

var lossLogHeader = []string{"epoch", "train_loss", "valid_loss"}

func readLossLog(path string) (*lossLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(lossLogHeader)
	var out lossLog
	for line := 1; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if line == 1 && record[0] == lossLogHeader[0] {
			continue
		}
		tl, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: train loss: %w", path, line, err)
		}
		vl, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: valid loss: %w", path, line, err)
		}
		out.Train = append(out.Train, tl)
		out.Valid = append(out.Valid, vl)
	}
	return &out, nil
}

// renderTokens joins tokens with spaces and stops at <eos>.
func renderTokens(toks []string) string {
	var sb strings.Builder
	for i, tk := range toks {
		if tk == params.EosToken {
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tk)
	}
	return sb.String()
}

// renderAttention prints one row per generated token and one column per
// source token, each cell the weight that step put on that position.
func renderAttention(w io.Writer, src, out []string, weights [][]float64) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(append([]string{""}, src...))
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	data := make([][]string, 0, len(out))
	for i, tok := range out {
		row := []string{tok}
		for j := range src {
			cell := ""
			if i < len(weights) && j < len(weights[i]) {
				cell = strconv.FormatFloat(weights[i][j], 'f', 2, 64)
			}
			row = append(row, cell)
		}
		data = append(data, row)
	}
	table.AppendBulk(data)
	table.Render()
}

// vocabHead is how many leading ids the vocab command lists.
const vocabHead = 12

// renderVocab prints the vocabulary size followed by its first n ids.
func renderVocab(w io.Writer, v params.Vocabulary, n int) {
	fmt.Fprintf(w, "%d tokens\n", v.Size())
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"id", "token"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for id := 0; id < min(n, v.Size()); id++ {
		table.Append([]string{strconv.Itoa(id), v.Token(id)})
	}
	table.Render()
}
