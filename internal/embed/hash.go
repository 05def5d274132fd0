package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// HashDimensions is the vector size produced by the hash embedder.
const HashDimensions = 384

// Hash derives unit vectors from an FNV hash of the text. Equal texts always
// map to equal vectors. It has no semantic quality and serves development
// setups and tests.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = HashDimensions
	}
	return &Hash{dim: dim}
}

func (h *Hash) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t, h.dim)
	}
	return out, nil
}

func hashVector(text string, dim int) []float32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(text))
	seed := f.Sum32()

	v := make([]float32, dim)
	var sum float64
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%2000)/1000 - 1
		sum += float64(v[i]) * float64(v[i])
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range v {
			v[i] *= norm
		}
	}
	return v
}
