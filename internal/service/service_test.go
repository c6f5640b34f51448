package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mycolab/shroom-api/internal/config"
	"github.com/mycolab/shroom-api/internal/model"
	"github.com/mycolab/shroom-api/internal/preprocess"
)

// fakeScorer returns canned scores and counts invocations.
type fakeScorer struct {
	mu     sync.Mutex
	scores []float32
	err    error
	calls  int
}

func (f *fakeScorer) Score(ctx context.Context, t *preprocess.Tensor) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeScorer) Close() error { return nil }

func (f *fakeScorer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func writeManifest(t *testing.T, names []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mushroom_names.json")
	var quoted []string
	for _, n := range names {
		quoted = append(quoted, fmt.Sprintf("%q", n))
	}
	content := fmt.Sprintf(`{"mushroom_classes": [%s]}`, strings.Join(quoted, ","))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 180, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newTestService builds a started service over a three-class catalog and the
// given fake scorer.
func newTestService(t *testing.T, fake *fakeScorer) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Labels = writeManifest(t, []string{"agaricus", "amanita", "boletus"})

	svc := New(cfg, func(cfg *config.Config, numClasses int) (model.Scorer, error) {
		return fake, nil
	})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return svc
}

func TestStartLifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Labels = writeManifest(t, []string{"a", "b"})
	svc := New(cfg, func(cfg *config.Config, numClasses int) (model.Scorer, error) {
		return &fakeScorer{scores: []float32{0.5, 0.5}}, nil
	})

	if svc.HealthStatus() {
		t.Error("HealthStatus() = true before Start")
	}
	if svc.State() != StateUninitialized {
		t.Errorf("State() = %v, want uninitialized", svc.State())
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.HealthStatus() {
		t.Error("HealthStatus() = false after successful Start")
	}
	if svc.State() != StateReady {
		t.Errorf("State() = %v, want ready", svc.State())
	}

	// second start is rejected; the state machine is one-way
	err := svc.Start()
	var startupErr *StartupError
	if !errors.As(err, &startupErr) {
		t.Errorf("second Start returned %v, want *StartupError", err)
	}
	if svc.State() != StateReady {
		t.Errorf("State() = %v after rejected restart, want ready", svc.State())
	}
}

func TestStartFailures(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(t *testing.T) *config.Config
		open ScorerFactory
	}{
		{
			name: "missing manifest",
			cfg: func(t *testing.T) *config.Config {
				cfg := config.Default()
				cfg.Labels = filepath.Join(t.TempDir(), "missing.json")
				return cfg
			},
			open: func(cfg *config.Config, n int) (model.Scorer, error) {
				return &fakeScorer{}, nil
			},
		},
		{
			name: "no label source configured",
			cfg: func(t *testing.T) *config.Config {
				return config.Default()
			},
			open: func(cfg *config.Config, n int) (model.Scorer, error) {
				return &fakeScorer{}, nil
			},
		},
		{
			name: "model artifact cannot be loaded",
			cfg: func(t *testing.T) *config.Config {
				cfg := config.Default()
				cfg.Labels = writeManifest(t, []string{"a"})
				return cfg
			},
			open: func(cfg *config.Config, n int) (model.Scorer, error) {
				return nil, errors.New("corrupt model file")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(tt.cfg(t), tt.open)
			err := svc.Start()
			var startupErr *StartupError
			if !errors.As(err, &startupErr) {
				t.Fatalf("Start returned %v, want *StartupError", err)
			}
			if svc.State() != StateFailed {
				t.Errorf("State() = %v, want failed", svc.State())
			}
			if svc.HealthStatus() {
				t.Error("HealthStatus() = true after failed Start")
			}
		})
	}
}

func TestPredictValidation(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)
	valid := pngBytes(t)

	tests := []struct {
		name        string
		payload     []byte
		contentType string
		n           int
		wantReason  string
	}{
		{"n zero", valid, "image/png", 0, "n out of range"},
		{"n negative", valid, "image/png", -3, "n out of range"},
		{"n above max", valid, "image/png", 11, "n out of range"},
		{"empty payload", nil, "image/png", 3, "empty payload"},
		{"unsupported format", valid, "text/plain", 3, "unsupported format"},
		{"undecodable image", []byte("garbage bytes"), "image/png", 3, "Failed to process image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fake.callCount()
			_, err := svc.Predict(context.Background(), tt.payload, tt.contentType, tt.n)
			var invalid *InvalidRequestError
			if !errors.As(err, &invalid) {
				t.Fatalf("Predict returned %v, want *InvalidRequestError", err)
			}
			if !strings.Contains(invalid.Reason, tt.wantReason) {
				t.Errorf("reason %q does not contain %q", invalid.Reason, tt.wantReason)
			}
			if fake.callCount() != before {
				t.Error("scoring function was invoked for an invalid request")
			}
		})
	}
}

func TestPredictRanking(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)

	preds, err := svc.Predict(context.Background(), pngBytes(t), "image/png", 2)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != 2 {
		t.Fatalf("got %d predictions, want 2", len(preds))
	}
	if preds[0].Name != "amanita" || preds[0].Confidence != 0.7 {
		t.Errorf("preds[0] = %+v, want amanita 0.7", preds[0])
	}
	if preds[1].Name != "boletus" || preds[1].Confidence != 0.2 {
		t.Errorf("preds[1] = %+v, want boletus 0.2", preds[1])
	}
}

func TestPredictClampsToCatalogSize(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)

	preds, err := svc.Predict(context.Background(), pngBytes(t), "image/png", 10)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(preds) != 3 {
		t.Errorf("got %d predictions, want 3 (catalog size)", len(preds))
	}
}

func TestPredictContentTypeOptional(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)

	if _, err := svc.Predict(context.Background(), pngBytes(t), "", 1); err != nil {
		t.Errorf("Predict without content-type hint failed: %v", err)
	}
	if _, err := svc.Predict(context.Background(), pngBytes(t), "image/png; charset=binary", 1); err != nil {
		t.Errorf("Predict with content-type parameters failed: %v", err)
	}
}

func TestPredictInferenceFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeScorer
	}{
		{"scoring error", &fakeScorer{err: errors.New("runtime blew up")}},
		{"score vector shape mismatch", &fakeScorer{scores: []float32{0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.fake)
			_, err := svc.Predict(context.Background(), pngBytes(t), "image/png", 2)
			var infErr *InferenceError
			if !errors.As(err, &infErr) {
				t.Fatalf("Predict returned %v, want *InferenceError", err)
			}
		})
	}
}

func TestPredictBeforeReady(t *testing.T) {
	cfg := config.Default()
	cfg.Labels = writeManifest(t, []string{"a"})
	svc := New(cfg, func(cfg *config.Config, numClasses int) (model.Scorer, error) {
		return &fakeScorer{scores: []float32{1}}, nil
	})

	_, err := svc.Predict(context.Background(), pngBytes(t), "image/png", 1)
	if !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Predict before Start returned %v, want ErrNotLoaded", err)
	}
}

func TestHealthStatusConcurrent(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !svc.HealthStatus() {
				t.Error("HealthStatus() = false on a ready service")
			}
		}()
	}
	wg.Wait()
}

func TestPredictConcurrent(t *testing.T) {
	fake := &fakeScorer{scores: []float32{0.1, 0.7, 0.2}}
	svc := newTestService(t, fake)
	payload := pngBytes(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			preds, err := svc.Predict(context.Background(), payload, "image/png", 3)
			if err != nil {
				t.Errorf("Predict: %v", err)
				return
			}
			if len(preds) != 3 || preds[0].Name != "amanita" {
				t.Errorf("unexpected result %v", preds)
			}
		}()
	}
	wg.Wait()

	if fake.callCount() != 16 {
		t.Errorf("scorer invoked %d times, want 16", fake.callCount())
	}
}
