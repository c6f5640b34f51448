package service

import (
	"errors"
	"fmt"
)

// ErrNotLoaded is returned by Predict before startup has completed.
var ErrNotLoaded = errors.New("model not loaded")

// InvalidRequestError reports a caller-caused failure: a bad count
// parameter, an empty payload, or an unsupported or undecodable image. The
// caller can correct the request and retry.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return e.Reason }

// InferenceError reports a server-side failure while scoring: a model
// runtime error, a shape mismatch, or a timeout. Not attributable to the
// caller.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return fmt.Sprintf("inference error: %v", e.Err) }

func (e *InferenceError) Unwrap() error { return e.Err }

// StartupError reports a fatal failure to load the model artifact or the
// label source. A service that returns one never becomes ready.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string { return fmt.Sprintf("startup error: %v", e.Err) }

func (e *StartupError) Unwrap() error { return e.Err }
