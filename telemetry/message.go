// Package telemetry streams pipeline snapshots to browsers over websockets
// and to other services over NATS.
package telemetry

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cgxeiji/pulseoxi"
	"github.com/cgxeiji/pulseoxi/spo2"
)

// Subjects the reporter publishes on.
const (
	SubjectParams = "pulseoxi.params"
	SubjectWave   = "pulseoxi.wave"
)

// Message is the periodic JSON report of a pipeline.
type Message struct {
	SessionID string `json:"session_id"`
	Ts        int64  `json:"ts"`
	Samples   uint64 `json:"samples"`
	Status    string `json:"status"`

	// BPM is the fast detector estimate, zero without a finger.
	BPM       int     `json:"bpm"`
	Pulse     bool    `json:"pulse"`
	SpO2      int     `json:"spo2,omitempty"`
	HeartRate int     `json:"heart_rate,omitempty"`
	FFTBPM    float64 `json:"fft_bpm,omitempty"`

	// Wave is the smoothed filtered IR since the previous report.
	Wave []float64 `json:"wave,omitempty"`
}

// Status values.
const (
	StatusOK       = "ok"
	StatusNoFinger = "no finger"
)

// NewMessage builds a report from a snapshot.
func NewMessage(session string, s pulseoxi.State, now time.Time) Message {
	m := Message{
		SessionID: session,
		Ts:        now.UnixMilli(),
		Samples:   s.Samples,
		Status:    StatusOK,
		Pulse:     s.PulseDetected,
	}
	if s.NoFinger() {
		m.Status = StatusNoFinger
	} else {
		m.BPM = s.BPM
	}
	if s.SpO2.SpO2Valid && s.SpO2.SpO2 != spo2.Invalid {
		m.SpO2 = s.SpO2.SpO2
	}
	if s.SpO2.HRValid && s.SpO2.HeartRate != spo2.Invalid {
		m.HeartRate = s.SpO2.HeartRate
	}
	if s.Spectrum.Bin >= 0 {
		m.FFTBPM = s.Spectrum.BPM
	}
	return m
}

// EncodeWave packs samples as little-endian float32.
func EncodeWave(wave []float64) []byte {
	b := make([]byte, 4*len(wave))
	for i, v := range wave {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
	}
	return b
}

// DecodeWave unpacks EncodeWave output.
func DecodeWave(b []byte) []float64 {
	wave := make([]float64, len(b)/4)
	for i := range wave {
		wave[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return wave
}
