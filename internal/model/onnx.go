package model

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/mycolab/shroom-api/internal/preprocess"
)

// ONNXScorer runs inference through an ONNX runtime session. A fresh input
// tensor is created per call, so the only serialization requirement is the
// admission bound the service already applies.
type ONNXScorer struct {
	session    *ort.DynamicAdvancedSession
	numClasses int
}

// OpenONNX initializes the ONNX runtime environment and loads the model at
// modelPath. numClasses is the catalog size the output vector must match.
func OpenONNX(modelPath string, numClasses int) (*ONNXScorer, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"}, nil)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXScorer{session: session, numClasses: numClasses}, nil
}

type runResult struct {
	scores []float32
	err    error
}

// Score runs the model on t. When ctx expires before the run completes the
// call returns ctx.Err(); the runtime offers no cancellation hook, so the
// abandoned run finishes in the background.
func (s *ONNXScorer) Score(ctx context.Context, t *preprocess.Tensor) ([]float32, error) {
	shape := ort.NewShape(t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3])
	input, err := ort.NewTensor(shape, t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	done := make(chan runResult, 1)
	go func() {
		defer input.Destroy()
		outputs := make([]ort.Value, 1)
		if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
			done <- runResult{err: fmt.Errorf("inference failed: %w", err)}
			return
		}
		out := outputs[0].(*ort.Tensor[float32])
		scores := make([]float32, len(out.GetData()))
		copy(scores, out.GetData())
		out.Destroy()
		done <- runResult{scores: scores}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if len(res.scores) != s.numClasses {
			return nil, fmt.Errorf("model returned %d scores for %d classes",
				len(res.scores), s.numClasses)
		}
		return res.scores, nil
	}
}

// Close destroys the session and the runtime environment.
func (s *ONNXScorer) Close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	return ort.DestroyEnvironment()
}
