package pulseoxi

import (
	"io"
	"log"
	"time"

	"github.com/cgxeiji/pulseoxi/spectral"
	"github.com/cgxeiji/pulseoxi/spo2"
)

// An Option configures a pipeline.
type Option func(p *Pipeline) Option

// Modes selects the enabled processing stages. By default, all modes are
// enabled.
func Modes(m Mode) Option {
	return func(p *Pipeline) Option {
		old := p.modes
		p.modes = m
		return Modes(old)
	}
}

// Debug writes FlexiPlot packets of the raw and filtered signals, and the
// power spectrum of every FFT block from DC to Nyquist, to w. A nil w
// disables debugging.
func Debug(w io.Writer) Option {
	return func(p *Pipeline) Option {
		old := p.debug
		p.debug = w
		return Debug(old)
	}
}

// OnSample sets the callback of the CallbackOnEverySample mode. It receives
// the filtered IR value and the raw IR-red difference.
func OnSample(fn func(filteredIR, delta float64)) Option {
	return func(p *Pipeline) Option {
		old := p.onSample
		p.onSample = fn
		return OnSample(old)
	}
}

// OnPulse is called with the new BPM every time the fast detector confirms
// a peak.
func OnPulse(fn func(bpm int)) Option {
	return func(p *Pipeline) Option {
		old := p.onPulse
		p.onPulse = fn
		return OnPulse(old)
	}
}

// OnSpO2 is called after every run of the windowed estimator.
func OnSpO2(fn func(spo2.Result)) Option {
	return func(p *Pipeline) Option {
		old := p.onSpO2
		p.onSpO2 = fn
		return OnSpO2(old)
	}
}

// OnSpectrum is called after every FFT block.
func OnSpectrum(fn func(spectral.Result)) Option {
	return func(p *Pipeline) Option {
		old := p.onSpectrum
		p.onSpectrum = fn
		return OnSpectrum(old)
	}
}

// Algorithm sets the batch SpO2/heart-rate algorithm. By default, the
// Maxim reference algorithm is used.
func Algorithm(a spo2.Algorithm) Option {
	return func(p *Pipeline) Option {
		old := p.algo
		p.algo = a
		return Algorithm(old)
	}
}

// BatchSize sets how many sample pairs are read from the sensor at once.
// By default, up to 32 pairs are read, the depth of the MAX3010x FIFO.
func BatchSize(n int) Option {
	return func(p *Pipeline) Option {
		old := p.batch
		p.batch = n
		return BatchSize(old)
	}
}

// PollInterval sets the delay between two reads. By default, the sensor is
// polled every 10ms.
func PollInterval(d time.Duration) Option {
	return func(p *Pipeline) Option {
		old := p.poll
		p.poll = d
		return PollInterval(old)
	}
}

// Interrupt waits on n before every read instead of polling.
func Interrupt(n Notifier) Option {
	return func(p *Pipeline) Option {
		old := p.notifier
		p.notifier = n
		return Interrupt(old)
	}
}

// Logger sets the logger. By default, log.Default() is used.
func Logger(l *log.Logger) Option {
	return func(p *Pipeline) Option {
		old := p.logger
		p.logger = l
		return Logger(old)
	}
}

// SampleRate sets the sample rate in Hz. By default, 100Hz.
func SampleRate(hz int) Option {
	return func(p *Pipeline) Option {
		old := p.sampleRate
		p.sampleRate = hz
		return SampleRate(old)
	}
}

// FFTSize sets the block size of the spectral estimator. It must be a power
// of two. By default, 512.
func FFTSize(n int) Option {
	return func(p *Pipeline) Option {
		old := p.fftSize
		p.fftSize = n
		return FFTSize(old)
	}
}

// Window sets the length in seconds of the SpO2/heart-rate window. The
// window slides by one second. By default, 5 seconds.
func Window(seconds int) Option {
	return func(p *Pipeline) Option {
		old := p.windowSec
		p.windowSec = seconds
		return Window(old)
	}
}
