// Package spectral estimates the heart rate from the dominant bin of the
// power spectrum of non-overlapping blocks of the IR signal.
package spectral

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrSize is returned when the block size is not a power of two.
var ErrSize = errors.New("spectral: block size must be a power of two")

// FloorDB is the lowest reported power. Empty bins (e.g. a silent sensor)
// report FloorDB instead of -Inf.
const FloorDB = -1000.0

// Result is the dominant frequency of the last complete block.
type Result struct {
	Bin         int     `json:"bin"`
	PowerDB     float64 `json:"power_db"`
	FrequencyHz float64 `json:"frequency_hz"`
	BPM         float64 `json:"bpm"`
}

// Estimator collects size samples, then transforms them and starts over.
// It is not safe for concurrent use.
type Estimator struct {
	size       int
	sampleRate int

	fft    *fourier.FFT
	seq    []float64
	coeff  []complex128
	power  []float64
	offset int

	result Result
	blocks int
}

// NewEstimator returns an Estimator for blocks of size samples taken at
// sampleRate Hz.
func NewEstimator(size, sampleRate int) (*Estimator, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrSize, size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectral: invalid sample rate %d", sampleRate)
	}
	return &Estimator{
		size:       size,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(size),
		seq:        make([]float64, size),
		coeff:      make([]complex128, size/2+1),
		power:      make([]float64, size/2),
		result:     Result{Bin: -1},
	}, nil
}

// Add stores x as the next sample of the block. When the block is complete
// it returns the dominant bin and true.
func (e *Estimator) Add(x float64) (Result, bool) {
	e.seq[e.offset] = x
	e.offset++
	if e.offset < e.size {
		return e.result, false
	}
	e.offset = 0
	e.blocks++

	e.fft.Coefficients(e.coeff, e.seq)

	n := float64(e.size)
	best := 0
	for i := range e.power {
		c := e.coeff[i]
		e.power[i] = math.Max(10*math.Log10((real(c)*real(c)+imag(c)*imag(c))/n), FloorDB)
		if e.power[i] > e.power[best] {
			best = i
		}
	}

	f := float64(best) * e.Resolution()
	e.result = Result{
		Bin:         best,
		PowerDB:     e.power[best],
		FrequencyHz: f,
		BPM:         f * 60,
	}
	return e.result, true
}

// Result returns the result of the last complete block. Bin is -1 before the
// first block.
func (e *Estimator) Result() Result {
	return e.result
}

// Blocks returns the number of transformed blocks.
func (e *Estimator) Blocks() int {
	return e.blocks
}

// Spectrum returns a copy of the power spectrum in dB of the last block,
// bins [0, size/2).
func (e *Estimator) Spectrum() []float64 {
	return append([]float64(nil), e.power...)
}

// Resolution returns the width of a bin in Hz.
func (e *Estimator) Resolution() float64 {
	return float64(e.sampleRate) / float64(e.size)
}

// Size returns the block size.
func (e *Estimator) Size() int {
	return e.size
}

// Reset discards the partial block and the last result.
func (e *Estimator) Reset() {
	e.offset = 0
	e.blocks = 0
	e.result = Result{Bin: -1}
	clear(e.power)
}
