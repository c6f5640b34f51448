// Package rank selects the highest-scoring catalog entries from a model
// output vector.
package rank

import (
	"sort"

	"github.com/mycolab/shroom-api/internal/catalog"
)

// Prediction pairs a class name with its confidence score.
type Prediction struct {
	Name       string  `json:"name"`
	Confidence float32 `json:"confidence"`
}

// TopK returns the min(k, N) highest-scoring entries sorted descending by
// score. Ties rank the lower catalog index first, so repeated calls with the
// same inputs always produce the same order. k larger than the catalog is
// clamped; callers must reject k <= 0 before getting here.
func TopK(scores []float32, cat *catalog.Catalog, k int) []Prediction {
	n := cat.Len()
	if len(scores) < n {
		n = len(scores)
	}
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if scores[idx[a]] != scores[idx[b]] {
			return scores[idx[a]] > scores[idx[b]]
		}
		return idx[a] < idx[b]
	})

	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		out[i] = Prediction{Name: cat.Name(idx[i]), Confidence: scores[idx[i]]}
	}
	return out
}
