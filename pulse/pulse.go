// Package pulse implements a lightweight peak-based pulse detector for a
// DC-blocked, smoothed IR signal.
//
// Inputs are accumulated in groups of three samples. A group that exceeds
// both the current local maximum and a fraction of the previous peak counts
// as rising; anything else counts as falling. Two falling groups after at
// least two rising groups confirm a peak, and the time between two confirmed
// peaks gives the pulse.
package pulse

// NoPulse is reported as BPM when no pulse has been seen for a while (e.g. no
// finger on the sensor).
const NoPulse = -1

const (
	groupSize = 3
	scale     = 10

	minIncreases = 2
	minDecreases = 2
	maxDecreases = 30
	noiseFloor   = 2
	peakDecay    = 4
)

// State is a copy of the detector internals.
type State struct {
	// Value is the last group average.
	Value int
	// LocalMax is the maximum of the current rising edge.
	LocalMax  int
	Increases int
	Decreases int
	// LastPeak is the acceptance threshold derived from the last confirmed
	// peak.
	LastPeak int
	// LastPeakMS is the sample-clock time of the last confirmed peak.
	LastPeakMS int64
	// BPM is the current estimate or NoPulse.
	BPM int
}

// Detector tracks local maxima of the filtered IR signal. It is not safe for
// concurrent use.
type Detector struct {
	sampleRate int

	samples int64
	acc     int
	cnt     int

	value      int
	localMax   int
	increases  int
	decreases  int
	lastPeak   int
	localMaxMS int64
	lastPeakMS int64
	seeded     bool
	bpm        int
}

// NewDetector returns a Detector for a signal sampled at sampleRate Hz.
func NewDetector(sampleRate int) *Detector {
	if sampleRate <= 0 {
		sampleRate = 100
	}
	return &Detector{
		sampleRate: sampleRate,
		bpm:        NoPulse,
	}
}

// now returns the sample-clock time of the latest sample in milliseconds.
func (d *Detector) now() int64 {
	return d.samples * 1000 / int64(d.sampleRate)
}

// Add feeds one filtered sample. It returns true when the sample completed a
// group that confirmed a new peak.
func (d *Detector) Add(x float64) bool {
	d.samples++
	d.acc += int(x) / scale
	d.cnt++
	if d.cnt < groupSize {
		return false
	}
	v := d.acc / groupSize
	d.acc = 0
	d.cnt = 0
	d.value = v

	return d.step(v)
}

func (d *Detector) step(v int) bool {
	if v > d.localMax && v > d.lastPeak {
		d.localMax = v
		d.increases++
		d.decreases = 0
		d.localMaxMS = d.now()
		return false
	}
	if v >= d.localMax && v > 0 {
		return false
	}

	d.decreases++
	switch {
	case d.decreases == minDecreases:
		if d.increases < minIncreases || d.localMax <= noiseFloor {
			return false
		}
		d.confirm()
		return true

	case d.decreases > maxDecreases:
		d.increases = 0
		d.decreases = 0
		d.localMax = 0
		d.lastPeak /= peakDecay
		d.bpm = NoPulse
	}
	return false
}

func (d *Detector) confirm() {
	if d.seeded {
		if dt := d.localMaxMS - d.lastPeakMS; dt > 0 {
			d.bpm = int(60000 / dt)
		}
	}
	d.seeded = true
	d.lastPeakMS = d.localMaxMS
	d.lastPeak = d.localMax / peakDecay
	d.localMax = 0
	d.increases = 0
	d.decreases = 0
}

// BPM returns the current pulse estimate or NoPulse.
func (d *Detector) BPM() int {
	return d.bpm
}

// State returns a copy of the detector internals.
func (d *Detector) State() State {
	return State{
		Value:      d.value,
		LocalMax:   d.localMax,
		Increases:  d.increases,
		Decreases:  d.decreases,
		LastPeak:   d.lastPeak,
		LastPeakMS: d.lastPeakMS,
		BPM:        d.bpm,
	}
}

// Reset clears all state, including the sample clock.
func (d *Detector) Reset() {
	*d = Detector{
		sampleRate: d.sampleRate,
		bpm:        NoPulse,
	}
}
