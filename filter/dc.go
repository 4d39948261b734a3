package filter

// DC is a DC blocker. It removes the slowly drifting baseline of a signal and
// keeps its pulsatile component.
type DC struct {
	alpha float64
	w     float64
}

// NewDC returns a DC blocker. Values of alpha close to 1 (0.95 is typical)
// give a lower cutoff.
func NewDC(alpha float64) *DC {
	return &DC{alpha: alpha}
}

// Process implements Filter.
func (f *DC) Process(x float64) float64 {
	w := x + f.alpha*f.w
	y := w - f.w
	f.w = w
	return y
}

// Reset implements Filter.
func (f *DC) Reset() {
	f.w = 0
}
