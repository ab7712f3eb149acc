package utils

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomArray draws size values from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func RandomArray(src rand.Source, size int, fanIn float64) []float64 {
	bound := 1.0 / math.Sqrt(fanIn+1e-12)
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// NormalArray draws size values from N(0, 1).
func NormalArray(src rand.Source, size int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

func MatrixNorm(m *mat.Dense) float64 {
	return mat.Norm(m, 2)
}

// ClipGrads rescales all grads so that their joint L2 norm is at most maxNorm.
// Returns the applied scale (1.0 when nothing was clipped).
func ClipGrads(maxNorm float64, grads ...*mat.Dense) float64 {
	if maxNorm <= 0 {
		return 1.0
	}
	sum := 0.0
	for _, g := range grads {
		if g == nil {
			continue
		}
		n := MatrixNorm(g)
		sum += n * n
	}
	gn := math.Sqrt(sum)
	if gn <= maxNorm || gn == 0 {
		return 1.0
	}
	s := maxNorm / gn
	for _, g := range grads {
		if g != nil {
			g.Scale(s, g)
		}
	}
	return s
}

// Debugf prints only when debug logging is enabled.
func Debugf(format string, args ...any) {
	slog.Debug(fmt.Sprintf(format, args...))
}
