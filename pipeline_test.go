package pulseoxi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cgxeiji/pulseoxi/pulse"
	"github.com/cgxeiji/pulseoxi/sim"
	"github.com/cgxeiji/pulseoxi/spectral"
	"github.com/cgxeiji/pulseoxi/spo2"
)

var quiet = log.New(io.Discard, "", 0)

// fakeSensor serves a fixed recording and calls done once it is exhausted.
type fakeSensor struct {
	mu       sync.Mutex
	ir, red  []float64
	pos      int
	rate     int
	resets   int
	resetErr error
	setupErr error
	readErr  error
	done     func()
}

func (f *fakeSensor) SoftReset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeSensor) Setup(sampleRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = sampleRate
	return f.setupErr
}

func (f *fakeSensor) ReadSamples(ir, red []float64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.ir) {
		if f.readErr != nil {
			return 0, f.readErr
		}
		if f.done != nil {
			f.done()
		}
		return 0, nil
	}
	n := copy(ir, f.ir[f.pos:])
	copy(red, f.red[f.pos:f.pos+n])
	f.pos += n
	return n, nil
}

// ppg returns seconds of a sinusoidal pulse at hz sampled at 100Hz.
func ppg(seconds, hz, dc, ac float64) (ir, red []float64) {
	n := int(seconds * 100)
	ir = make([]float64, n)
	red = make([]float64, n)
	for i := range ir {
		s := math.Sin(2 * math.Pi * hz * float64(i) / 100)
		ir[i] = dc + ac*s
		red[i] = 0.75*dc + 0.5*ac*s
	}
	return ir, red
}

func runUntilDone(t *testing.T, f *fakeSensor, options ...Option) *Pipeline {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.done = cancel

	p, err := New(f, append([]Option{PollInterval(0), Logger(quiet)}, options...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: expected context.Canceled, got %v", err)
	}
	return p
}

func TestPipeline_EndToEnd(t *testing.T) {
	ir, red := ppg(10, 1.2, 2000, 1000)
	f := &fakeSensor{ir: ir, red: red}

	var mu sync.Mutex
	samples, pulses, spo2Runs, blocks := 0, 0, 0, 0
	p := runUntilDone(t, f,
		OnSample(func(float64, float64) { mu.Lock(); samples++; mu.Unlock() }),
		OnPulse(func(int) { mu.Lock(); pulses++; mu.Unlock() }),
		OnSpO2(func(spo2.Result) { mu.Lock(); spo2Runs++; mu.Unlock() }),
		OnSpectrum(func(spectral.Result) { mu.Lock(); blocks++; mu.Unlock() }),
	)

	if f.resets != 1 || f.rate != 100 {
		t.Errorf("Expected one reset and setup at 100Hz, got %d resets at %dHz", f.resets, f.rate)
	}

	s := p.State()
	if s.Samples != 1000 || samples != 1000 {
		t.Errorf("Expected 1000 samples, got %d (%d callbacks)", s.Samples, samples)
	}
	if s.NoFinger() {
		t.Fatalf("Expected a pulse, got %+v", s.Detector)
	}
	if math.Abs(float64(s.BPM)-72) > 5 {
		t.Errorf("Expected fast detector at 72±5 BPM, got %d", s.BPM)
	}
	if pulses < 5 || !s.PulseDetected {
		t.Errorf("Expected several confirmed pulses, got %d", pulses)
	}

	res := 100.0 / 512 * 60
	if math.Abs(s.Spectrum.BPM-72) > res {
		t.Errorf("Expected spectral estimate of 72 BPM within %.1f, got %.1f (bin %d)", res, s.Spectrum.BPM, s.Spectrum.Bin)
	}
	if blocks != 1 {
		t.Errorf("Expected one FFT block in 10s, got %d", blocks)
	}

	// Windows complete at 5, 6, 7, 8, 9 and 10 seconds.
	if spo2Runs != 6 {
		t.Errorf("Expected 6 windowed runs, got %d", spo2Runs)
	}
	if !s.SpO2.HRValid || !s.SpO2.SpO2Valid {
		t.Errorf("Expected valid windowed results, got %+v", s.SpO2)
	}

	bpm, err := p.HeartRate()
	if err != nil || bpm != s.BPM {
		t.Errorf("HeartRate: got %d, %v", bpm, err)
	}
	if _, err := p.SpO2(); err != nil {
		t.Errorf("SpO2: %v", err)
	}

	p.ResetPulseDetected()
	if p.State().PulseDetected {
		t.Errorf("Expected PulseDetected to be cleared")
	}
}

func TestPipeline_Modes(t *testing.T) {
	ir, red := ppg(6, 1.2, 2000, 1000)

	t.Run("callback only", func(t *testing.T) {
		calls := 0
		samples := 0
		algo := spo2.AlgorithmFunc(func(ir, red []float64) spo2.Result { calls++; return spo2.Result{} })
		p := runUntilDone(t, &fakeSensor{ir: ir, red: red},
			Modes(CallbackOnEverySample),
			Algorithm(algo),
			OnSample(func(float64, float64) { samples++ }),
		)
		if samples != len(ir) {
			t.Errorf("Expected %d callbacks, got %d", len(ir), samples)
		}
		if calls != 0 {
			t.Errorf("Expected no windowed runs, got %d", calls)
		}
		s := p.State()
		if s.BPM != pulse.NoPulse || s.Spectrum.Bin != -1 {
			t.Errorf("Expected disabled detectors to stay idle, got %+v", s)
		}
		if s.FilteredIR == 0 {
			t.Errorf("Expected filtered output")
		}
	})

	t.Run("windowed only gets raw samples", func(t *testing.T) {
		var first []float64
		algo := spo2.AlgorithmFunc(func(ir, red []float64) spo2.Result {
			if first == nil {
				first = append([]float64(nil), ir...)
			}
			return spo2.Result{SpO2: 98, SpO2Valid: true}
		})
		samples := 0
		p := runUntilDone(t, &fakeSensor{ir: ir, red: red},
			Modes(HeartbeatSpO2),
			Algorithm(algo),
			OnSample(func(float64, float64) { samples++ }),
		)
		if samples != 0 {
			t.Errorf("Expected no sample callbacks, got %d", samples)
		}
		if len(first) != 500 {
			t.Fatalf("Expected a window of 500, got %d", len(first))
		}
		for i := range first {
			if first[i] != ir[i] {
				t.Fatalf("window[%d] = %v, expected raw %v", i, first[i], ir[i])
			}
		}
		if v, err := p.SpO2(); err != nil || v != 98 {
			t.Errorf("SpO2: got %d, %v", v, err)
		}
		if _, err := p.HeartRate(); !errors.Is(err, ErrNotDetected) {
			t.Errorf("Expected ErrNotDetected without the fast detector, got %v", err)
		}
	})

	t.Run("fft only gets raw samples", func(t *testing.T) {
		sine := make([]float64, 64)
		for i := range sine {
			sine[i] = 100 * math.Sin(2*math.Pi*5*float64(i)/64)
		}
		p := runUntilDone(t, &fakeSensor{ir: sine, red: make([]float64, 64)},
			Modes(PreciseFFT),
			FFTSize(64),
		)
		if got := p.State().Spectrum.Bin; got != 5 {
			t.Errorf("Expected bin 5, got %d", got)
		}
	})
}

func TestPipeline_InitialState(t *testing.T) {
	p, err := New(&fakeSensor{}, Logger(quiet))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.State().NoFinger() {
		t.Errorf("Expected no finger before any sample")
	}
	if _, err := p.HeartRate(); !errors.Is(err, ErrNotDetected) {
		t.Errorf("Expected ErrNotDetected, got %v", err)
	}
	if _, err := p.SpO2(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Errorf("Expected an error without a sensor")
	}
	if _, err := New(&fakeSensor{}, FFTSize(500)); !errors.Is(err, spectral.ErrSize) {
		t.Errorf("Expected spectral.ErrSize, got %v", err)
	}
	if _, err := New(&fakeSensor{}, SampleRate(0)); err == nil {
		t.Errorf("Expected an error for a zero sample rate")
	}
	if _, err := New(&fakeSensor{}, BatchSize(0)); err == nil {
		t.Errorf("Expected an error for an empty batch")
	}
}

func TestOption_ReturnsPrevious(t *testing.T) {
	p, _ := New(&fakeSensor{}, Logger(quiet))
	undo := Modes(FastHeartbeat)(p)
	if p.modes != FastHeartbeat {
		t.Fatalf("Expected modes %v, got %v", FastHeartbeat, p.modes)
	}
	undo(p)
	if p.modes != AllModes {
		t.Errorf("Expected modes to be restored to %v, got %v", AllModes, p.modes)
	}
}

func TestPipeline_SensorErrors(t *testing.T) {
	errBus := errors.New("i2c: bus error")

	tests := []struct {
		name   string
		sensor *fakeSensor
	}{
		{"reset", &fakeSensor{resetErr: errBus}},
		{"setup", &fakeSensor{setupErr: errBus}},
		{"read", &fakeSensor{readErr: errBus, ir: []float64{1, 2}, red: []float64{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := New(tt.sensor, PollInterval(0), Logger(quiet))
			err := p.Run(context.Background())
			if !errors.Is(err, ErrSensor) || !errors.Is(err, errBus) {
				t.Errorf("Expected ErrSensor wrapping the bus error, got %v", err)
			}
		})
	}

	// Samples read before the failure are kept.
	f := &fakeSensor{readErr: errBus, ir: []float64{1, 2}, red: []float64{1, 2}}
	p, _ := New(f, PollInterval(0), Logger(quiet))
	p.Run(context.Background())
	if got := p.State().Samples; got != 2 {
		t.Errorf("Expected 2 processed samples before the failure, got %d", got)
	}
}

// chanNotifier signals data on every receive from ch.
type chanNotifier struct {
	ch  chan struct{}
	err error
}

func (n *chanNotifier) WaitForData(ctx context.Context) error {
	if n.err != nil {
		return n.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ch:
		return nil
	}
}

func TestPipeline_Interrupt(t *testing.T) {
	ir, red := ppg(1, 1.2, 2000, 1000)
	f := &fakeSensor{ir: ir, red: red}
	n := &chanNotifier{ch: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, _ := New(f, Interrupt(n), BatchSize(10), Logger(quiet))

	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	for i := 0; i < 3; i++ {
		n.ch <- struct{}{}
	}
	// The fourth signal is only taken once the third batch is processed.
	n.ch <- struct{}{}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if got := p.State().Samples; got < 30 {
		t.Errorf("Expected at least 30 samples after three interrupts, got %d", got)
	}

	failing := &chanNotifier{err: errors.New("gpio: edge detection failed")}
	p, _ = New(&fakeSensor{}, Interrupt(failing), Logger(quiet))
	if err := p.Run(context.Background()); !errors.Is(err, ErrSensor) {
		t.Errorf("Expected ErrSensor, got %v", err)
	}
}

func TestPipeline_PollingCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p, _ := New(&fakeSensor{}, PollInterval(5*time.Millisecond), Logger(quiet))
	if err := p.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPipeline_Debug(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(&fakeSensor{}, Debug(&buf), FFTSize(64), Logger(quiet))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 64; i++ {
		p.Process(1000+float64(i%10), 800)
	}
	out := buf.String()
	for _, want := range []string{"{P0|IR|0,0,255|1000.0|RED|255,0,0|800.0}", "{P1|IR|255,0,255|", "FFT max bin:", "[-40, 40] x 32"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected debug output to contain %q", want)
		}
	}
}

func TestPipeline_ConcurrentState(t *testing.T) {
	ir, red := ppg(3, 1.2, 2000, 1000)
	p, _ := New(&fakeSensor{}, Logger(quiet))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s := p.State()
				_ = s.NoFinger()
				p.ResetPulseDetected()
			}
		}
	}()
	for i := range ir {
		p.Process(ir[i], red[i])
	}
	close(stop)
	wg.Wait()

	if got := p.State().Samples; got != uint64(len(ir)) {
		t.Errorf("Expected %d samples, got %d", len(ir), got)
	}
}

func TestMode_String(t *testing.T) {
	if got := AllModes.String(); got != "callback|fast|spo2|fft" {
		t.Errorf("Unexpected AllModes string %q", got)
	}
	if got := Mode(0).String(); got != "none" {
		t.Errorf("Unexpected empty mode string %q", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"all", AllModes},
		{"none", 0},
		{"", 0},
		{"fast,spo2", FastHeartbeat | HeartbeatSpO2},
		{"callback|fast|spo2|fft", AllModes},
		{" FFT ", PreciseFFT},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q): expected %v, got %v", tt.in, tt.want, got)
		}
		if back, _ := ParseMode(got.String()); back != got {
			t.Errorf("ParseMode(%v.String()) = %v", got, back)
		}
	}
	if _, err := ParseMode("fast,slow"); err == nil {
		t.Errorf("Expected an error for an unknown mode")
	}
}

func TestPipeline_SilentSensorStateEncodes(t *testing.T) {
	p, err := New(&fakeSensor{}, Logger(quiet))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 512; i++ {
		p.Process(0, 0)
	}

	s := p.State()
	if s.Spectrum.Bin < 0 {
		t.Fatalf("Expected a complete FFT block, got %+v", s.Spectrum)
	}
	if math.IsInf(s.Spectrum.PowerDB, 0) {
		t.Errorf("Expected a finite power, got %v", s.Spectrum.PowerDB)
	}
	if _, err := json.Marshal(s); err != nil {
		t.Errorf("Marshal: %v", err)
	}
}

func TestPipeline_SimulatedSensor(t *testing.T) {
	for _, bpm := range []int{60, 72, 90} {
		s := sim.New(sim.HeartRate(float64(bpm)))
		if err := s.Setup(100); err != nil {
			t.Fatalf("Setup: %v", err)
		}
		p, err := New(s, Logger(quiet))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		ir := make([]float64, 2000)
		red := make([]float64, 2000)
		n, _ := s.ReadSamples(ir, red)
		for i := 0; i < n; i++ {
			p.Process(ir[i], red[i])
		}

		st := p.State()
		if d := st.BPM - bpm; d < -5 || d > 5 {
			t.Errorf("%d BPM: fast detector reported %d", bpm, st.BPM)
		}
		if !st.SpO2.HRValid {
			t.Errorf("%d BPM: expected a valid windowed heart rate", bpm)
		} else if d := st.SpO2.HeartRate - bpm; d < -5 || d > 5 {
			t.Errorf("%d BPM: windowed estimator reported %d", bpm, st.SpO2.HeartRate)
		}
	}
}
