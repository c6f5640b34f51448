// Package service orchestrates the inference pipeline: request validation,
// image normalization, scoring, and top-k selection, behind a one-way
// lifecycle (Uninitialized -> Loading -> Ready, or Loading -> Failed).
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mycolab/shroom-api/internal/catalog"
	"github.com/mycolab/shroom-api/internal/config"
	"github.com/mycolab/shroom-api/internal/model"
	"github.com/mycolab/shroom-api/internal/preprocess"
	"github.com/mycolab/shroom-api/internal/rank"
)

// State is the service lifecycle state. Transitions are one-way: once Ready
// the service stays Ready for the process lifetime, and Failed is terminal.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ScorerFactory opens the scoring model once the catalog size is known.
type ScorerFactory func(cfg *config.Config, numClasses int) (model.Scorer, error)

// Service owns the process-wide inference state: the label catalog, the
// scoring model, and the normalizer. All of it is read-only after Start
// succeeds, so concurrent Predict calls share it without locking; the
// weighted semaphore bounds how many of them score at once.
type Service struct {
	cfg  *config.Config
	open ScorerFactory

	state        atomic.Int32
	cat          *catalog.Catalog
	scorer       model.Scorer
	norm         *preprocess.Normalizer
	sem          *semaphore.Weighted
	scoreTimeout time.Duration
}

// New returns an uninitialized service. Start must succeed before Predict
// accepts requests.
func New(cfg *config.Config, open ScorerFactory) *Service {
	return &Service{
		cfg:  cfg,
		open: open,
		sem:  semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// Start loads the label catalog and the scoring model. It runs at most once;
// any failure leaves the service in the terminal Failed state and returns a
// *StartupError.
func (s *Service) Start() error {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateLoading)) {
		return &StartupError{Err: fmt.Errorf("start called in state %s", s.State())}
	}
	if err := s.load(); err != nil {
		s.state.Store(int32(StateFailed))
		return &StartupError{Err: err}
	}
	s.state.Store(int32(StateReady))
	return nil
}

func (s *Service) load() error {
	timeout, err := s.cfg.ScoreTimeoutDuration()
	if err != nil {
		return err
	}
	s.scoreTimeout = timeout

	var cat *catalog.Catalog
	switch {
	case s.cfg.Labels != "":
		cat, err = catalog.LoadManifest(s.cfg.Labels)
	case s.cfg.DataDir != "":
		cat, err = catalog.LoadDir(s.cfg.DataDir)
	default:
		return fmt.Errorf("no label source configured: set labels or data_dir")
	}
	if err != nil {
		return err
	}

	scorer, err := s.open(s.cfg, cat.Len())
	if err != nil {
		return err
	}

	s.cat = cat
	s.scorer = scorer
	s.norm = &preprocess.Normalizer{
		Height: s.cfg.ImageSize,
		Width:  s.cfg.ImageSize,
		Scale:  s.cfg.PixelScale,
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Service) State() State { return State(s.state.Load()) }

// HealthStatus reports whether startup completed successfully. It never
// fails and is safe to call at any time, including before Start.
func (s *Service) HealthStatus() bool { return s.State() == StateReady }

// Catalog returns the loaded label catalog, or nil before Ready.
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

// Predict runs the full pipeline on one uploaded image: validate, normalize,
// score, rank. contentType is an optional hint ("" skips the format check).
// n must be in [1, max_top_n]; a request for more predictions than there are
// classes is clamped, not rejected. Validation failures return
// *InvalidRequestError, scoring failures *InferenceError.
func (s *Service) Predict(ctx context.Context, payload []byte, contentType string, n int) ([]rank.Prediction, error) {
	if n < 1 || n > s.cfg.MaxTopN {
		return nil, &InvalidRequestError{
			Reason: fmt.Sprintf("n out of range: must be between 1 and %d", s.cfg.MaxTopN),
		}
	}
	if len(payload) == 0 {
		return nil, &InvalidRequestError{Reason: "empty payload"}
	}
	if contentType != "" && !supportedFormat(contentType) {
		return nil, &InvalidRequestError{Reason: "unsupported format: only JPEG and PNG images are supported"}
	}
	if s.State() != StateReady {
		return nil, ErrNotLoaded
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, &InferenceError{Err: fmt.Errorf("admission: %w", err)}
	}
	defer s.sem.Release(1)

	tensor, err := s.norm.Normalize(payload)
	if err != nil {
		var de *preprocess.DecodeError
		if errors.As(err, &de) {
			return nil, &InvalidRequestError{Reason: fmt.Sprintf("Failed to process image: %v", de.Err)}
		}
		return nil, &InferenceError{Err: err}
	}

	sctx, cancel := context.WithTimeout(ctx, s.scoreTimeout)
	defer cancel()

	scores, err := s.scorer.Score(sctx, tensor)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	if len(scores) != s.cat.Len() {
		return nil, &InferenceError{
			Err: fmt.Errorf("score vector has %d entries for %d classes", len(scores), s.cat.Len()),
		}
	}

	k := n
	if k > s.cat.Len() {
		k = s.cat.Len()
	}
	return rank.TopK(scores, s.cat, k), nil
}

// Close releases the scoring model, if one was loaded.
func (s *Service) Close() error {
	if s.scorer != nil {
		return s.scorer.Close()
	}
	return nil
}

func supportedFormat(contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(ct) {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}
