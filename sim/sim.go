// Package sim generates a synthetic PPG signal for demos and tests.
//
// The waveform is not clinical: every cardiac cycle is a systolic peak with
// a dicrotic shoulder on its falling edge, modulating the light that reaches
// the photodiode. The red/IR modulation ratio is derived from the requested SpO2
// with the usual empirical line SpO2 = 110 - 25·R.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// ErrSampleRate is returned by Setup for non-positive rates.
var ErrSampleRate = errors.New("sim: invalid sample rate")

// An Option configures a Sensor.
type Option func(s *Sensor) Option

// HeartRate sets the simulated pulse in BPM. By default, 72.
func HeartRate(bpm float64) Option {
	return func(s *Sensor) Option {
		old := s.bpm
		s.bpm = bpm
		return HeartRate(old)
	}
}

// SpO2 sets the simulated oxygen saturation in percent. By default, 97.
func SpO2(pct float64) Option {
	return func(s *Sensor) Option {
		old := s.spo2
		s.spo2 = pct
		return SpO2(old)
	}
}

// Noise sets the amplitude of uniform noise in ADC counts. By default, 20.
func Noise(amp float64) Option {
	return func(s *Sensor) Option {
		old := s.noise
		s.noise = amp
		return Noise(old)
	}
}

// Level sets the IR baseline and pulse amplitude in ADC counts. By default,
// 50000 and 1000.
func Level(dc, ac float64) Option {
	return func(s *Sensor) Option {
		oldDC, oldAC := s.dc, s.ac
		s.dc, s.ac = dc, ac
		return Level(oldDC, oldAC)
	}
}

// Finger places or removes the simulated finger.
func Finger(on bool) Option {
	return func(s *Sensor) Option {
		old := s.finger
		s.finger = on
		return Finger(old)
	}
}

// Seed sets the seed of the noise generator. By default, 1.
func Seed(seed int64) Option {
	return func(s *Sensor) Option {
		old := s.seed
		s.seed = seed
		s.rand = rand.New(rand.NewSource(seed))
		return Seed(old)
	}
}

// Realtime paces ReadSamples by the wall clock, as a sensor FIFO filling at
// the sample rate would. By default, every read returns a full batch.
func Realtime(on bool) Option {
	return func(s *Sensor) Option {
		old := s.realtime
		s.realtime = on
		return Realtime(old)
	}
}

// Sensor is a simulated pulse oximeter. It is safe for concurrent use.
type Sensor struct {
	mu sync.Mutex

	fs       float64
	bpm      float64
	spo2     float64
	noise    float64
	dc, ac   float64
	finger   bool
	realtime bool
	seed     int64

	rand  *rand.Rand
	phase float64
	now   func() time.Time
	last  time.Time
}

// New returns a simulated sensor sampling at 100Hz.
func New(options ...Option) *Sensor {
	s := &Sensor{
		fs:     100,
		bpm:    72,
		spo2:   97,
		noise:  20,
		dc:     50000,
		ac:     1000,
		finger: true,
		seed:   1,
		now:    time.Now,
	}
	s.rand = rand.New(rand.NewSource(s.seed))
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Set applies options and returns the previous value of the last one.
func (s *Sensor) Set(options ...Option) Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	var old Option
	for _, opt := range options {
		old = opt(s)
	}
	return old
}

// SoftReset restarts the waveform and the noise sequence.
func (s *Sensor) SoftReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = 0
	s.rand = rand.New(rand.NewSource(s.seed))
	return nil
}

// Setup sets the sample rate.
func (s *Sensor) Setup(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrSampleRate, sampleRate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs = float64(sampleRate)
	s.last = s.now()
	return nil
}

// ReadSamples fills ir and red with the next samples.
func (s *Sensor) ReadSamples(ir, red []float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(ir), len(red))
	if s.realtime {
		now := s.now()
		if s.last.IsZero() {
			s.last = now
		}
		due := int(now.Sub(s.last).Seconds() * s.fs)
		n = min(n, due)
		s.last = s.last.Add(time.Duration(float64(n) / s.fs * float64(time.Second)))
	}

	for i := 0; i < n; i++ {
		ir[i], red[i] = s.next()
	}
	return n, nil
}

// next returns one sample pair and advances the waveform.
func (s *Sensor) next() (ir, red float64) {
	s.phase += s.bpm / 60 / s.fs
	s.phase -= math.Floor(s.phase)

	irNoise := s.noise * (2*s.rand.Float64() - 1)
	redNoise := s.noise * (2*s.rand.Float64() - 1)
	if !s.finger {
		// Ambient light only.
		return 1000 + irNoise, 800 + redNoise
	}

	// R = (ACred/DCred) / (ACir/DCir)
	ratio := (110 - s.spo2) / 25
	redDC := 0.8 * s.dc
	redAC := ratio * s.ac / s.dc * redDC

	// More blood absorbs more light.
	p := pulse(s.phase)
	return s.dc - s.ac*p + irNoise, redDC - redAC*p + redNoise
}

// pulse is one cardiac cycle: a systolic peak near 1 at t = 0.2 and a
// dicrotic shoulder on its falling edge. The shoulder never forms a separate
// maximum, so there is exactly one peak per cycle.
func pulse(t float64) float64 {
	return bump(t, 0.2, 3) + 0.15*bump(t, 0.36, 8)
}

// bump is a periodic bell centred on mu, narrower for larger kappa, with a
// peak of 1.
func bump(t, mu, kappa float64) float64 {
	return math.Exp(kappa * (math.Cos(2*math.Pi*(t-mu)) - 1))
}
