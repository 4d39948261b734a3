// Package pulseoxi runs a real-time photoplethysmography (PPG) pipeline over
// IR/red samples from a pulse oximeter sensor such as the MAX30102.
//
// Depending on the enabled modes, every sample is filtered and handed to a
// per-sample callback, a fast peak-based pulse detector, a sliding-window
// SpO2/heart-rate estimator and an FFT heart-rate estimator. A single
// goroutine drives the pipeline with Run; other goroutines read consistent
// snapshots with State.
package pulseoxi

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSensor wraps any failure reported by the sensor. The pipeline stops
	// and the already computed state is kept.
	ErrSensor = errors.New("pulseoxi: sensor failure")
	// ErrNotDetected is returned when asking for the heart rate and no pulse
	// is detected on the sensor (e.g. no finger is placed on the sensor).
	ErrNotDetected = errors.New("pulseoxi: nothing detected on the sensor")
	// ErrNotReady is returned when asking for SpO2 before the windowed
	// estimator produced a valid value.
	ErrNotReady = errors.New("pulseoxi: no valid measurement yet")
)

// Mode is a bitmask selecting the processing stages of a Pipeline.
type Mode uint8

const (
	// CallbackOnEverySample calls the OnSample callback with every filtered
	// sample.
	CallbackOnEverySample Mode = 1 << iota
	// FastHeartbeat runs the peak-based pulse detector.
	FastHeartbeat
	// HeartbeatSpO2 runs the sliding-window SpO2/heart-rate estimator.
	HeartbeatSpO2
	// PreciseFFT runs the spectral heart-rate estimator.
	PreciseFFT

	AllModes = CallbackOnEverySample | FastHeartbeat | HeartbeatSpO2 | PreciseFFT
)

// filtering reports whether the per-sample filter chain must run.
func (m Mode) filtering() bool {
	return m&(CallbackOnEverySample|FastHeartbeat) != 0
}

var modeNames = []struct {
	m    Mode
	name string
}{
	{CallbackOnEverySample, "callback"},
	{FastHeartbeat, "fast"},
	{HeartbeatSpO2, "spo2"},
	{PreciseFFT, "fft"},
}

func (m Mode) String() string {
	if m == 0 {
		return "none"
	}
	var s []string
	for _, n := range modeNames {
		if m&n.m != 0 {
			s = append(s, n.name)
		}
	}
	return strings.Join(s, "|")
}

// ParseMode parses a list of mode names separated by '|' or ',', as printed
// by Mode.String. "all" enables every mode.
func ParseMode(s string) (Mode, error) {
	var m Mode
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "all":
			m |= AllModes
			continue
		case "none", "":
			continue
		}
		found := false
		for _, n := range modeNames {
			if n.name == f {
				m |= n.m
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("pulseoxi: unknown mode %q", f)
		}
	}
	return m, nil
}

// Sensor is the source of raw samples.
type Sensor interface {
	// SoftReset restarts the sensor with its power-on configuration.
	SoftReset() error
	// Setup configures the sensor to sample IR and red at sampleRate Hz.
	Setup(sampleRate int) error
	// ReadSamples reads up to len(ir) pending sample pairs and returns how
	// many were stored. ir and red have the same length.
	ReadSamples(ir, red []float64) (int, error)
}

// Notifier blocks until the sensor signals that new data is available.
type Notifier interface {
	WaitForData(ctx context.Context) error
}
