package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cgxeiji/pulseoxi/filter"
)

// maxWave bounds the waveform kept between two reports.
const maxWave = 1024

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// An Option configures a Reporter.
type Option func(r *Reporter) Option

// Interval sets how often reports are sent. By default, every second.
func Interval(d time.Duration) Option {
	return func(r *Reporter) Option {
		old := r.interval
		r.interval = d
		return Interval(old)
	}
}

// Broadcast sends reports to websocket clients of h.
func Broadcast(h *Hub) Option {
	return func(r *Reporter) Option {
		old := r.hub
		r.hub = h
		return Broadcast(old)
	}
}

// Publish sends reports over p.
func Publish(p Publisher) Option {
	return func(r *Reporter) Option {
		old := r.pub
		r.pub = p
		return Publish(old)
	}
}

// Smoothing sets the filter applied to the waveform. By default, a
// Butterworth low-pass.
func Smoothing(f filter.Filter) Option {
	return func(r *Reporter) Option {
		old := r.smooth
		r.smooth = f
		return Smoothing(old)
	}
}

// Logger sets the logger. By default, log.Default().
func Logger(l *log.Logger) Option {
	return func(r *Reporter) Option {
		old := r.logger
		r.logger = l
		return Logger(old)
	}
}

// Reporter periodically sends a Message built from the pipeline state along
// with the smoothed waveform collected by AddSample.
type Reporter struct {
	src      Source
	session  string
	interval time.Duration
	hub      *Hub
	pub      Publisher
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	smooth   filter.Filter
	wave     []float64
	noFinger bool
}

// NewReporter returns a reporter for src.
func NewReporter(src Source, session string, options ...Option) *Reporter {
	r := &Reporter{
		src:      src,
		session:  session,
		interval: time.Second,
		logger:   log.Default(),
		now:      time.Now,
		smooth:   filter.NewButterworth(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// AddSample collects one filtered IR sample for the next report. Its
// signature matches the pipeline OnSample callback.
func (r *Reporter) AddSample(filteredIR, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.smooth.Process(filteredIR)
	if len(r.wave) >= maxWave {
		copy(r.wave, r.wave[1:])
		r.wave = r.wave[:len(r.wave)-1]
	}
	r.wave = append(r.wave, v)
}

// Report sends a single report and returns it.
func (r *Reporter) Report() (Message, error) {
	r.mu.Lock()
	wave := r.wave
	r.wave = nil
	r.mu.Unlock()

	m := NewMessage(r.session, r.src.State(), r.now())
	m.Wave = wave

	noFinger := m.Status == StatusNoFinger
	if noFinger != r.noFinger {
		if noFinger {
			r.logger.Printf("[INFO] telemetry: no finger")
		} else {
			r.logger.Printf("[INFO] telemetry: finger detected")
		}
		r.noFinger = noFinger
	}

	b, err := json.Marshal(m)
	if err != nil {
		return m, fmt.Errorf("telemetry: could not encode report: %w", err)
	}
	if r.hub != nil {
		r.hub.Broadcast(b)
		if len(wave) > 0 {
			r.hub.BroadcastBinary(EncodeWave(wave))
		}
	}
	if r.pub != nil {
		if err := r.pub.Publish(SubjectParams, b); err != nil {
			return m, fmt.Errorf("telemetry: could not publish report: %w", err)
		}
		if len(wave) > 0 {
			if err := r.pub.Publish(SubjectWave, EncodeWave(wave)); err != nil {
				return m, fmt.Errorf("telemetry: could not publish waveform: %w", err)
			}
		}
	}
	return m, nil
}

// Run reports every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Printf("[INFO] telemetry: reporting session %s every %v", r.session, r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Report(); err != nil {
				r.logger.Printf("[WARN] %v", err)
			}
		}
	}
}
