package pulseoxi

import (
	"github.com/cgxeiji/pulseoxi/pulse"
	"github.com/cgxeiji/pulseoxi/spectral"
	"github.com/cgxeiji/pulseoxi/spo2"
)

// State is a snapshot of the pipeline.
type State struct {
	// Samples is the number of processed sample pairs.
	Samples uint64 `json:"samples"`

	IR    float64 `json:"ir"`
	Red   float64 `json:"red"`
	Delta float64 `json:"delta"`
	// FilteredIR and FilteredRed are zero when no filtering mode is enabled.
	FilteredIR  float64 `json:"filtered_ir"`
	FilteredRed float64 `json:"filtered_red"`

	// BPM of the fast detector, or pulse.NoPulse.
	BPM int `json:"bpm"`
	// PulseDetected latches every confirmed peak until ResetPulseDetected.
	PulseDetected bool        `json:"pulse_detected"`
	Detector      pulse.State `json:"-"`

	SpO2     spo2.Result     `json:"spo2"`
	Spectrum spectral.Result `json:"spectrum"`
}

// NoFinger reports whether the fast detector lost the pulse.
func (s State) NoFinger() bool {
	return s.BPM == pulse.NoPulse
}
