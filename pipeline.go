package pulseoxi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cgxeiji/pulseoxi/filter"
	"github.com/cgxeiji/pulseoxi/pulse"
	"github.com/cgxeiji/pulseoxi/spectral"
	"github.com/cgxeiji/pulseoxi/spo2"
)

const (
	dcAlpha   = 0.95
	lpAlpha   = 0.8
	meanOrder = 16
)

// Pipeline processes the samples of a Sensor. Run and Process must be
// called from a single goroutine; State, HeartRate, SpO2 and
// ResetPulseDetected are safe to call from any goroutine.
type Pipeline struct {
	sensor   Sensor
	notifier Notifier

	modes      Mode
	debug      io.Writer
	logger     *log.Logger
	sampleRate int
	batch      int
	poll       time.Duration
	fftSize    int
	windowSec  int
	algo       spo2.Algorithm

	onSample   func(filteredIR, delta float64)
	onPulse    func(bpm int)
	onSpO2     func(spo2.Result)
	onSpectrum func(spectral.Result)

	// irChain is DC removal, low-pass and moving average on IR.
	irChain filter.Filter
	dcRed   filter.Filter

	detector *pulse.Detector
	window   *spo2.Estimator
	spectrum *spectral.Estimator

	ir, red []float64

	mu    sync.RWMutex
	state State
}

// New returns a pipeline reading from sensor.
func New(sensor Sensor, options ...Option) (*Pipeline, error) {
	if sensor == nil {
		return nil, errors.New("pulseoxi: no sensor")
	}

	p := &Pipeline{
		sensor:     sensor,
		modes:      AllModes,
		logger:     log.Default(),
		sampleRate: 100,
		batch:      32,
		poll:       10 * time.Millisecond,
		fftSize:    512,
		windowSec:  5,
	}
	for _, opt := range options {
		opt(p)
	}

	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("pulseoxi: invalid sample rate %d", p.sampleRate)
	}
	if p.batch <= 0 {
		return nil, fmt.Errorf("pulseoxi: invalid batch size %d", p.batch)
	}
	if p.logger == nil {
		p.logger = log.Default()
	}
	if p.algo == nil {
		p.algo = spo2.Maxim{SampleRate: p.sampleRate}
	}

	if p.modes.filtering() {
		mean, err := filter.NewMean(meanOrder)
		if err != nil {
			return nil, fmt.Errorf("pulseoxi: could not create mean filter: %w", err)
		}
		p.irChain = filter.Chain(filter.NewDC(dcAlpha), filter.NewLowPass(lpAlpha), mean)
		p.dcRed = filter.NewDC(dcAlpha)
	}
	if p.modes&FastHeartbeat != 0 {
		p.detector = pulse.NewDetector(p.sampleRate)
	}
	if p.modes&HeartbeatSpO2 != 0 {
		w, err := spo2.NewEstimator(p.algo,
			spo2.Window(p.windowSec, p.sampleRate),
			spo2.Step(p.sampleRate),
		)
		if err != nil {
			return nil, fmt.Errorf("pulseoxi: could not create SpO2 estimator: %w", err)
		}
		p.window = w
	}
	if p.modes&PreciseFFT != 0 {
		s, err := spectral.NewEstimator(p.fftSize, p.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("pulseoxi: could not create spectral estimator: %w", err)
		}
		p.spectrum = s
	}

	p.ir = make([]float64, p.batch)
	p.red = make([]float64, p.batch)
	p.state = State{
		BPM:      pulse.NoPulse,
		SpO2:     spo2.Result{SpO2: spo2.Invalid, HeartRate: spo2.Invalid},
		Spectrum: spectral.Result{Bin: -1},
	}

	return p, nil
}

// Run resets and configures the sensor, then reads and processes samples
// until ctx is done or the sensor fails. Sensor failures are wrapped in
// ErrSensor.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.sensor.SoftReset(); err != nil {
		return fmt.Errorf("%w: could not reset: %w", ErrSensor, err)
	}
	if err := p.sensor.Setup(p.sampleRate); err != nil {
		return fmt.Errorf("%w: could not set up at %dHz: %w", ErrSensor, p.sampleRate, err)
	}
	p.logger.Printf("[INFO] pulseoxi: running at %dHz, modes %v", p.sampleRate, p.modes)

	var delay *time.Timer
	if p.notifier == nil && p.poll > 0 {
		delay = time.NewTimer(p.poll)
		defer delay.Stop()
	}

	for {
		if p.notifier != nil {
			if err := p.notifier.WaitForData(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%w: could not wait for data: %w", ErrSensor, err)
			}
		}

		n, err := p.sensor.ReadSamples(p.ir, p.red)
		if err != nil {
			return fmt.Errorf("%w: could not read samples: %w", ErrSensor, err)
		}
		for i := 0; i < n; i++ {
			p.Process(p.ir[i], p.red[i])
		}

		if delay == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-delay.C:
			delay.Reset(p.poll)
		}
	}
}

// Process runs one raw sample pair through the enabled stages.
func (p *Pipeline) Process(ir, red float64) {
	delta := ir - red
	if p.debug != nil {
		fmt.Fprintf(p.debug, "{P0|IR|0,0,255|%.1f|RED|255,0,0|%.1f}\n", ir, red)
	}

	var (
		fir, fred float64
		beat      bool
		bpm       = pulse.NoPulse
		det       pulse.State
	)
	if p.modes.filtering() {
		fir = p.irChain.Process(ir)
		fred = p.dcRed.Process(red)
		if p.debug != nil {
			fmt.Fprintf(p.debug, "{P1|IR|255,0,255|%.1f|BEAT|0,0,255|%.1f}\n", fir, fred)
		}
	}
	if p.detector != nil {
		beat = p.detector.Add(fir)
		bpm = p.detector.BPM()
		det = p.detector.State()
	}

	var (
		sres     spo2.Result
		sdone    bool
		fres     spectral.Result
		fdone    bool
		spectrum []float64
	)
	if p.window != nil {
		sres, sdone = p.window.Add(ir, red)
		if sdone {
			p.debugf("SpO2=%d, valid=%t, heartrate=%d, valid=%t", sres.SpO2, sres.SpO2Valid, sres.HeartRate, sres.HRValid)
		}
	}
	if p.spectrum != nil {
		x := ir
		if p.modes.filtering() {
			x = fir
		}
		fres, fdone = p.spectrum.Add(x)
		if fdone && p.debug != nil {
			spectrum = p.spectrum.Spectrum()
		}
	}

	p.mu.Lock()
	s := &p.state
	s.Samples++
	s.IR, s.Red, s.Delta = ir, red, delta
	s.FilteredIR, s.FilteredRed = fir, fred
	if p.detector != nil {
		s.BPM = bpm
		s.Detector = det
		if beat {
			s.PulseDetected = true
		}
	}
	if sdone {
		s.SpO2 = sres
	}
	if fdone {
		s.Spectrum = fres
	}
	p.mu.Unlock()

	if p.modes&CallbackOnEverySample != 0 && p.onSample != nil {
		p.onSample(fir, delta)
	}
	if beat && p.onPulse != nil {
		p.onPulse(bpm)
	}
	if sdone && p.onSpO2 != nil {
		p.onSpO2(sres)
	}
	if fdone {
		if p.debug != nil {
			fmt.Fprintf(p.debug, "FFT max bin: %.1f at %d\n", fres.PowerDB, fres.Bin)
			fmt.Fprintf(p.debug, "FFT max freq: %.1f\n", fres.BPM)
			if err := spectral.Plot(p.debug, spectrum, 64, 10, -40, 40); err != nil {
				p.logger.Printf("[WARN] pulseoxi: could not plot spectrum: %v", err)
			}
		}
		if p.onSpectrum != nil {
			p.onSpectrum(fres)
		}
	}
}

func (p *Pipeline) debugf(format string, v ...any) {
	if p.debug == nil {
		return
	}
	p.logger.Printf("[DEBUG] pulseoxi: "+format, v...)
}

// State returns a snapshot of the pipeline.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ResetPulseDetected clears the PulseDetected latch.
func (p *Pipeline) ResetPulseDetected() {
	p.mu.Lock()
	p.state.PulseDetected = false
	p.mu.Unlock()
}

// HeartRate returns the BPM of the fast detector. If no pulse is detected on
// the sensor, it returns ErrNotDetected.
func (p *Pipeline) HeartRate() (int, error) {
	s := p.State()
	if s.NoFinger() {
		return 0, fmt.Errorf("pulseoxi: could not get heart rate: %w", ErrNotDetected)
	}
	return s.BPM, nil
}

// SpO2 returns the last valid SpO2 percentage of the windowed estimator, or
// ErrNotReady.
func (p *Pipeline) SpO2() (int, error) {
	s := p.State()
	if !s.SpO2.SpO2Valid {
		return 0, fmt.Errorf("pulseoxi: could not get SpO2: %w", ErrNotReady)
	}
	return s.SpO2.SpO2, nil
}

// Modes returns the enabled modes.
func (p *Pipeline) Modes() Mode {
	return p.modes
}

// SampleRate returns the sample rate in Hz.
func (p *Pipeline) SampleRate() int {
	return p.sampleRate
}
