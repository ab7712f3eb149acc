package seq2seq

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/manningwu07/seq2seq/optimizations"
	"github.com/manningwu07/seq2seq/params"
	"gonum.org/v1/gonum/mat"
)

// paramData is one named matrix with its Adam moments.
type paramData struct {
	Name string
	R, C int
	Data []float64
	M, V []float64
}

type modelData struct {
	EncConfig params.ModelConfig
	DecConfig params.ModelConfig
	Params    []paramData

	// Optimizer (nil when the model was saved without one)
	Adam *optimizations.Adam

	SrcVocab []string
	TgtVocab []string
}

// SaveModel writes weights, Adam state and both vocabularies to filename with gob.
func SaveModel(m *Model, opt *optimizations.Adam, filename string) error {
	data := modelData{
		EncConfig: m.Encoder.Config,
		DecConfig: m.Decoder.Config,
		Adam:      opt,
		SrcVocab:  append([]string(nil), m.SrcVocab.IDToToken...),
		TgtVocab:  append([]string(nil), m.TgtVocab.IDToToken...),
	}
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		data.Params = append(data.Params, paramData{
			Name: p.Name,
			R:    r,
			C:    c,
			Data: append([]float64(nil), mat.DenseCopyOf(p.Value).RawMatrix().Data...),
			M:    append([]float64(nil), mat.DenseCopyOf(p.M).RawMatrix().Data...),
			V:    append([]float64(nil), mat.DenseCopyOf(p.V).RawMatrix().Data...),
		})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return fmt.Errorf("SaveModel: encode: %w", err)
	}
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("SaveModel: %w", err)
		}
	}
	return os.WriteFile(filename, buf.Bytes(), 0o644)
}

// LoadModel restores a model saved by SaveModel. The returned optimizer is nil
// when none was stored.
func LoadModel(filename string) (*Model, *optimizations.Adam, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	var data modelData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("LoadModel: decode %s: %w", filename, err)
	}

	m, err := NewModel(
		params.NewVocabulary(data.SrcVocab),
		params.NewVocabulary(data.TgtVocab),
		data.EncConfig, data.DecConfig,
		rand.New(rand.NewPCG(0, 0)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("LoadModel: %w", err)
	}

	byName := make(map[string]paramData, len(data.Params))
	for _, pd := range data.Params {
		byName[pd.Name] = pd
	}
	for _, p := range m.Params() {
		pd, ok := byName[p.Name]
		if !ok {
			return nil, nil, fmt.Errorf("LoadModel: parameter %s missing from %s", p.Name, filename)
		}
		r, c := p.Value.Dims()
		if pd.R != r || pd.C != c {
			return nil, nil, fmt.Errorf("LoadModel: parameter %s shape mismatch (have %dx%d, file %dx%d)", p.Name, r, c, pd.R, pd.C)
		}
		p.Value = mat.NewDense(r, c, pd.Data)
		if len(pd.M) == r*c && len(pd.V) == r*c {
			p.M = mat.NewDense(r, c, pd.M)
			p.V = mat.NewDense(r, c, pd.V)
		}
	}
	return m, data.Adam, nil
}
