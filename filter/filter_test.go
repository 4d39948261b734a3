package filter

import (
	"errors"
	"math"
	"testing"
)

const float64EqualityThreshold = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= float64EqualityThreshold
}

func TestDC_ConstantInputConvergesToZero(t *testing.T) {
	f := NewDC(0.95)

	const input = 1000.0
	prev := math.Inf(1)
	var out float64
	for i := 0; i < 500; i++ {
		out = f.Process(input)
		if math.Abs(out) > prev {
			t.Fatalf("DC output grew at sample %d: %f > %f", i, math.Abs(out), prev)
		}
		prev = math.Abs(out)
	}
	if math.Abs(out) > 1e-6 {
		t.Errorf("Expected DC output near 0, got %f", out)
	}

	f.Reset()
	if got := f.Process(input); !almostEqual(got, input) {
		t.Errorf("Expected first output after Reset to equal input, got %f", got)
	}
}

func TestLowPass_StepResponse(t *testing.T) {
	const alpha = 0.8
	f := NewLowPass(alpha)

	for n := 0; n < 100; n++ {
		got := f.Process(1)
		want := 1 - math.Pow(alpha, float64(n+1))
		if !almostEqual(got, want) {
			t.Fatalf("Sample %d: expected %f, got %f", n, want, got)
		}
	}
	if got := f.Process(1); math.Abs(got-1) > 1e-6 {
		t.Errorf("Expected low-pass to settle at step magnitude, got %f", got)
	}
}

func TestLowPass_Cutoff(t *testing.T) {
	const fs = 100.0
	f := NewLowPass(0.8)
	want := fs * 0.2 / (2 * math.Pi * 0.8)
	if got := f.Cutoff(fs); !almostEqual(got, want) {
		t.Errorf("Expected cutoff %f, got %f", want, got)
	}

	g := NewLowPassCutoff(want, fs)
	if !almostEqual(g.alpha, 0.8) {
		t.Errorf("NewLowPassCutoff: expected alpha 0.8, got %f", g.alpha)
	}
}

func TestMean_AlternatingInput(t *testing.T) {
	f, err := NewMean(16)
	if err != nil {
		t.Fatalf("NewMean: %v", err)
	}

	for i := 0; i < 64; i++ {
		x := 0.0
		if i%2 == 1 {
			x = 100
		}
		got := f.Process(x)
		if i >= 16 {
			if want := 50 - x; !almostEqual(got, want) {
				t.Fatalf("Sample %d: expected %f, got %f", i, want, got)
			}
		}
	}
}

func TestMean_InvalidOrder(t *testing.T) {
	if _, err := NewMean(0); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Expected ErrOutOfMemory, got %v", err)
	}
}

func TestIIR_ImpulseResponse(t *testing.T) {
	const a0, a1, b0, b1, b2 = 0.5, -0.25, 1.0, 2.0, 0.5
	f := NewIIR(a0, a1, b0, b1, b2)

	// Reference recursion on explicit state.
	var w1, w2 float64
	for n := 0; n < 32; n++ {
		x := 0.0
		if n == 0 {
			x = 1
		}
		w0 := x + a0*w1 + a1*w2
		want := b0*w0 + b1*w1 + b2*w2
		w2, w1 = w1, w0

		if got := f.Process(x); !almostEqual(got, want) {
			t.Fatalf("Sample %d: expected %f, got %f", n, want, got)
		}
	}
}

func TestButterworth_ImpulseResponse(t *testing.T) {
	f := NewButterworth()

	// h[0] = b0, h[n] = (b0*a0 + b1) * a0^(n-1)
	if got := f.Process(1); !almostEqual(got, 0.2929) {
		t.Fatalf("h[0]: expected 0.2929, got %f", got)
	}
	for n := 1; n < 16; n++ {
		want := (0.2929*0.4142 + 0.2929) * math.Pow(0.4142, float64(n-1))
		if got := f.Process(0); !almostEqual(got, want) {
			t.Fatalf("h[%d]: expected %f, got %f", n, want, got)
		}
	}

	f.Reset()
	if got := f.Process(1); !almostEqual(got, 0.2929) {
		t.Errorf("Reset did not clear state: h[0]=%f", got)
	}
}

func TestFIR_ImpulseResponse(t *testing.T) {
	b := []float64{0.1, 0.2, 0.4, 0.25, 0.05}
	f, err := NewFIR(b)
	if err != nil {
		t.Fatalf("NewFIR: %v", err)
	}

	// Warm-up returns zero until the history is full.
	for i := 0; i < len(b)-1; i++ {
		if got := f.Process(0); got != 0 {
			t.Fatalf("Warm-up sample %d: expected 0, got %f", i, got)
		}
	}
	f.Process(0)

	// The history is weighted oldest-first, so the impulse walks b backwards.
	out := []float64{f.Process(1)}
	for i := 1; i < len(b); i++ {
		out = append(out, f.Process(0))
	}
	for i, got := range out {
		if want := b[len(b)-1-i]; !almostEqual(got, want) {
			t.Errorf("Output %d: expected %f, got %f", i, want, got)
		}
	}
	if got := f.Process(0); got != 0 {
		t.Errorf("Expected impulse to leave the history, got %f", got)
	}
}

func TestFIR_WarmUpAfterReset(t *testing.T) {
	f, _ := NewFIR([]float64{1, 1, 1})
	for i := 0; i < 5; i++ {
		f.Process(1)
	}
	f.Reset()
	if got := f.Process(1); got != 0 {
		t.Errorf("Expected 0 after Reset while warming up, got %f", got)
	}
	f.Process(1)
	if got := f.Process(1); !almostEqual(got, 3) {
		t.Errorf("Expected 3 once full, got %f", got)
	}
}

func TestFIR_CopiesCoefficients(t *testing.T) {
	b := []float64{1, 1}
	f, _ := NewFIR(b)
	b[0] = 100
	f.Process(1)
	if got := f.Process(1); !almostEqual(got, 2) {
		t.Errorf("FIR used caller-modified coefficients: %f", got)
	}
}

func TestPulseLowPassTaps(t *testing.T) {
	taps := PulseLowPassTaps()
	if len(taps) != 23 {
		t.Fatalf("Expected 23 taps, got %d", len(taps))
	}
	for i := 0; i < len(taps)/2; i++ {
		if !almostEqual(taps[i], taps[len(taps)-1-i]) {
			t.Errorf("Taps not symmetric at %d: %f != %f", i, taps[i], taps[len(taps)-1-i])
		}
	}
	sum := 0.0
	for _, v := range taps {
		sum += v
	}
	if !almostEqual(sum, 1) {
		t.Errorf("Expected unity DC gain, got %f", sum)
	}
	if taps[11] < taps[10] {
		t.Errorf("Expected center tap to be the largest")
	}
}

func TestChain_ResetAll(t *testing.T) {
	lp := NewLowPass(0.5)
	dc := NewDC(0.9)
	c := Chain(dc, lp)

	first := c.Process(10)
	c.Process(20)
	c.Reset()
	if got := c.Process(10); !almostEqual(got, first) {
		t.Errorf("Chain.Reset did not reset members: %f != %f", got, first)
	}
}
