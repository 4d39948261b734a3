package filter

// Mean is a detrending filter. It returns the signed deviation of the local
// mean of the last order samples from the newest sample.
type Mean struct {
	buffer []float64
	offset int
	sum    float64
}

// NewMean returns a detrending filter over a window of order samples.
func NewMean(order int) (*Mean, error) {
	if order <= 0 {
		return nil, ErrOutOfMemory
	}
	return &Mean{
		buffer: make([]float64, order),
	}, nil
}

// Process implements Filter.
func (f *Mean) Process(x float64) float64 {
	f.sum -= f.buffer[f.offset]
	f.buffer[f.offset] = x
	f.sum += x
	f.offset = (f.offset + 1) % len(f.buffer)

	avg := f.sum / float64(len(f.buffer))
	return avg - x
}

// Reset implements Filter.
func (f *Mean) Reset() {
	f.offset = 0
	f.sum = 0
	for i := range f.buffer {
		f.buffer[i] = 0
	}
}
