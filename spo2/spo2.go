// Package spo2 estimates SpO2 and heart rate over a sliding window of raw
// IR/red samples.
//
// The Estimator collects a window (5 s by default) and hands it to a batch
// Algorithm once it is full. It then drops the oldest step samples (1 s by
// default) and keeps filling, so the algorithm runs once per step while
// still seeing the whole window.
package spo2

import (
	"errors"
	"fmt"
)

// Invalid is reported for SpO2 or heart rate values that could not be
// computed.
const Invalid = -999

// ErrWindow is returned for inconsistent window settings.
var ErrWindow = errors.New("spo2: invalid window")

// Result is the output of an Algorithm run.
type Result struct {
	SpO2      int  `json:"spo2"`
	SpO2Valid bool `json:"spo2_valid"`
	HeartRate int  `json:"heart_rate"`
	HRValid   bool `json:"hr_valid"`
}

// Algorithm computes SpO2 and heart rate from two equal-length windows of
// raw samples. Implementations must not retain the slices.
type Algorithm interface {
	Estimate(ir, red []float64) Result
}

// AlgorithmFunc adapts a function to the Algorithm interface.
type AlgorithmFunc func(ir, red []float64) Result

// Estimate implements Algorithm.
func (f AlgorithmFunc) Estimate(ir, red []float64) Result {
	return f(ir, red)
}

// Option configures an Estimator.
type Option func(e *Estimator) Option

// Window sets the window length to seconds at sampleRate Hz.
func Window(seconds, sampleRate int) Option {
	return func(e *Estimator) Option {
		old := e.length
		e.length = seconds * sampleRate
		return windowLength(old)
	}
}

func windowLength(n int) Option {
	return func(e *Estimator) Option {
		old := e.length
		e.length = n
		return windowLength(old)
	}
}

// Step sets how many of the oldest samples are dropped after each run.
func Step(samples int) Option {
	return func(e *Estimator) Option {
		old := e.step
		e.step = samples
		return Step(old)
	}
}

// Estimator maintains the sliding window. It is not safe for concurrent use.
type Estimator struct {
	algo   Algorithm
	length int
	step   int

	ir     []float64
	red    []float64
	cursor int

	result Result
	calls  int
}

// NewEstimator returns an Estimator feeding algo. By default the window is
// 500 samples (5 s at 100 Hz) sliding by 100 samples.
func NewEstimator(algo Algorithm, options ...Option) (*Estimator, error) {
	e := &Estimator{
		algo:   algo,
		length: 500,
		step:   100,
		result: Result{SpO2: Invalid, HeartRate: Invalid},
	}
	for _, opt := range options {
		opt(e)
	}

	if algo == nil {
		return nil, fmt.Errorf("%w: no algorithm", ErrWindow)
	}
	if e.length <= 0 {
		return nil, fmt.Errorf("%w: length %d", ErrWindow, e.length)
	}
	if e.step <= 0 || e.step > e.length {
		return nil, fmt.Errorf("%w: step %d for length %d", ErrWindow, e.step, e.length)
	}

	e.ir = make([]float64, e.length)
	e.red = make([]float64, e.length)
	return e, nil
}

// Add appends a raw sample pair. It returns the new result and true when the
// pair completed the window.
func (e *Estimator) Add(ir, red float64) (Result, bool) {
	e.ir[e.cursor] = ir
	e.red[e.cursor] = red
	e.cursor++
	if e.cursor < e.length {
		return e.result, false
	}

	e.result = e.algo.Estimate(e.ir, e.red)
	e.calls++

	keep := e.length - e.step
	copy(e.ir, e.ir[e.step:])
	copy(e.red, e.red[e.step:])
	e.cursor = keep

	return e.result, true
}

// Result returns the last computed result.
func (e *Estimator) Result() Result {
	return e.result
}

// Calls returns how many times the algorithm ran.
func (e *Estimator) Calls() int {
	return e.calls
}

// Len returns the window length in samples.
func (e *Estimator) Len() int {
	return e.length
}

// Reset empties the window and forgets the last result.
func (e *Estimator) Reset() {
	e.cursor = 0
	e.calls = 0
	e.result = Result{SpO2: Invalid, HeartRate: Invalid}
}
