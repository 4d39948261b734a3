package filter

import "github.com/cgxeiji/pulseoxi/ringbuffer"

// pulseHalfTaps is the rising half of a 23-tap low-pass used on MAX3010x
// pulse signals. The last entry is the center tap.
var pulseHalfTaps = []float64{21.5, 40.125, 72.375, 115.875, 170.0, 232.25, 298.75, 364.5, 423.875, 471.0, 501.5, 512.0}

// FIR is a finite impulse response filter of arbitrary order.
type FIR struct {
	b       []float64
	history *ringbuffer.RingBuffer[float64]
}

// NewFIR returns a FIR filter with coefficients b. b[0] weights the oldest
// sample of the history. The coefficients are copied.
func NewFIR(b []float64) (*FIR, error) {
	if len(b) == 0 {
		return nil, ErrOutOfMemory
	}
	history, err := ringbuffer.New[float64](len(b))
	if err != nil {
		return nil, ErrOutOfMemory
	}
	return &FIR{
		b:       append([]float64(nil), b...),
		history: history,
	}, nil
}

// Process implements Filter. It returns 0 until len(b) samples have been
// seen.
func (f *FIR) Process(x float64) float64 {
	f.history.Push(x)
	if !f.history.IsFull() {
		return 0
	}

	y := 0.0
	for i, b := range f.b {
		v, _ := f.history.Get(i)
		y += b * v
	}
	return y
}

// Reset implements Filter.
func (f *FIR) Reset() {
	f.history.Clear()
}

// SymmetricTaps mirrors half around its last element and returns the
// 2*len(half)-1 coefficients of a linear-phase FIR.
func SymmetricTaps(half []float64) []float64 {
	if len(half) == 0 {
		return nil
	}
	n := len(half)
	taps := make([]float64, 2*n-1)
	copy(taps, half)
	for i := 0; i < n-1; i++ {
		taps[2*n-2-i] = half[i]
	}
	return taps
}

// Normalize scales taps in place to unity DC gain and returns them.
func Normalize(taps []float64) []float64 {
	sum := 0.0
	for _, t := range taps {
		sum += t
	}
	if sum == 0 {
		return taps
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// PulseLowPassTaps returns the 23-tap pulse low-pass, normalized to unity DC
// gain.
func PulseLowPassTaps() []float64 {
	return Normalize(SymmetricTaps(pulseHalfTaps))
}
