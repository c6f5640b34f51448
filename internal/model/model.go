// Package model abstracts the trained scoring model behind a single-method
// interface and provides the ONNX runtime implementation.
package model

import (
	"context"

	"github.com/mycolab/shroom-api/internal/preprocess"
)

// Scorer maps a normalized image tensor to one confidence score per catalog
// class, in catalog order. Scores are "higher is more confident"; they are
// not required to sum to 1. Implementations may not be safe for unbounded
// parallel invocation, so callers bound in-flight Score calls.
type Scorer interface {
	Score(ctx context.Context, t *preprocess.Tensor) ([]float32, error)
	Close() error
}
