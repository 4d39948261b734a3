package filter

import "math"

// LowPass is an exponential moving average.
//
//	y[n] = alpha*y[n-1] + (1-alpha)*x[n]
type LowPass struct {
	alpha float64
	value float64
}

// NewLowPass returns an exponential moving average with the given smoothing
// factor.
func NewLowPass(alpha float64) *LowPass {
	return &LowPass{alpha: alpha}
}

// NewLowPassCutoff returns a LowPass whose cutoff frequency is fc for a
// signal sampled at fs.
func NewLowPassCutoff(fc, fs float64) *LowPass {
	return NewLowPass(fs / (fs + 2*math.Pi*fc))
}

// Cutoff returns the cutoff frequency in Hz for a signal sampled at fs.
func (f *LowPass) Cutoff(fs float64) float64 {
	return fs * (1 - f.alpha) / (2 * math.Pi * f.alpha)
}

// Process implements Filter.
func (f *LowPass) Process(x float64) float64 {
	f.value = f.alpha*f.value + (1-f.alpha)*x
	return f.value
}

// Reset implements Filter.
func (f *LowPass) Reset() {
	f.value = 0
}
