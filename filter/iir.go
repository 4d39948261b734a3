package filter

// IIR is a second-order (biquad) recursive filter section in direct form II.
type IIR struct {
	a [2]float64
	b [3]float64
	w [3]float64
}

// NewIIR returns a biquad with feedback coefficients a0, a1 and feedforward
// coefficients b0, b1, b2:
//
//	w0 = x + a0*w1 + a1*w2
//	y  = b0*w0 + b1*w1 + b2*w2
func NewIIR(a0, a1, b0, b1, b2 float64) *IIR {
	return &IIR{
		a: [2]float64{a0, a1},
		b: [3]float64{b0, b1, b2},
	}
}

// NewButterworth returns the first-order Butterworth low-pass used to smooth
// display curves (cutoff at fs/8).
func NewButterworth() *IIR {
	return NewIIR(0.4142, 0, 0.2929, 0.2929, 0)
}

// Process implements Filter.
func (f *IIR) Process(x float64) float64 {
	f.w[0] = x + f.a[0]*f.w[1] + f.a[1]*f.w[2]
	y := f.b[0]*f.w[0] + f.b[1]*f.w[1] + f.b[2]*f.w[2]
	f.w[2] = f.w[1]
	f.w[1] = f.w[0]
	return y
}

// Reset implements Filter.
func (f *IIR) Reset() {
	f.w = [3]float64{}
}
