// Command poxi reads a pulse oximeter and serves heart rate and SpO2 over
// websockets and NATS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cgxeiji/pulseoxi"
	"github.com/cgxeiji/pulseoxi/beep"
	"github.com/cgxeiji/pulseoxi/filter"
	"github.com/cgxeiji/pulseoxi/internal/config"
	"github.com/cgxeiji/pulseoxi/max30102"
	"github.com/cgxeiji/pulseoxi/sim"
	"github.com/cgxeiji/pulseoxi/spectral"
	"github.com/cgxeiji/pulseoxi/spo2"
	"github.com/cgxeiji/pulseoxi/telemetry"
	"github.com/cgxeiji/pulseoxi/wavrec"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	log.Printf("[INFO] Configuration loaded: sensor=%s rate=%dHz modes=%v", cfg.Sensor, cfg.SampleRate, cfg.Modes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("[ERROR] %v", err)
		stop()
		os.Exit(1)
	}
	log.Printf("[INFO] Stopped")
}

// openSensor returns the configured sample source and the pipeline options it
// needs.
func openSensor(ctx context.Context, cfg *config.Config) (pulseoxi.Sensor, []pulseoxi.Option, io.Closer, error) {
	if cfg.ReplayFile != "" {
		f, err := os.Open(cfg.ReplayFile)
		if err != nil {
			return nil, nil, nil, err
		}
		r, err := wavrec.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, nil, err
		}
		// Replay at the recorded pace.
		pace := time.Duration(float64(cfg.BatchSize) / float64(r.SampleRate()) * float64(time.Second))
		return r, []pulseoxi.Option{
			pulseoxi.SampleRate(r.SampleRate()),
			pulseoxi.PollInterval(pace),
		}, f, nil
	}

	switch cfg.Sensor {
	case config.SensorSim:
		s := sim.New(
			sim.HeartRate(cfg.SimHeartRate),
			sim.SpO2(cfg.SimSpO2),
			sim.Realtime(true),
		)
		return s, nil, nil, nil

	case config.SensorMAX30102:
		d, err := max30102.New(cfg.I2CBus, uint16(cfg.I2CAddr))
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("[INFO] MAX30102 rev.%d detected", d.RevID)
		if t, err := d.Temperature(); err == nil {
			log.Printf("[INFO] Die temperature %.2f°C", t)
		}

		var opts []pulseoxi.Option
		if cfg.InterruptPin != "" {
			pin, err := max30102.InterruptPin(cfg.InterruptPin)
			if err != nil {
				d.Close()
				return nil, nil, nil, err
			}
			n, err := d.NewInterrupt(pin)
			if err != nil {
				d.Close()
				return nil, nil, nil, err
			}
			opts = append(opts, pulseoxi.Interrupt(n))
		}

		if cfg.CalibrateADC > 0 {
			if err := d.Setup(cfg.SampleRate); err != nil {
				d.Close()
				return nil, nil, nil, err
			}
			if err := d.Calibrate(ctx, cfg.CalibrateADC); err != nil {
				d.Close()
				return nil, nil, nil, err
			}
		}
		return d, opts, d, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown sensor %q", cfg.Sensor)
}

func run(ctx context.Context, cfg *config.Config) error {
	sensor, opts, closer, err := openSensor(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not open sensor: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	if cfg.RecordFile != "" {
		rate := cfg.SampleRate
		if r, ok := sensor.(*wavrec.Reader); ok {
			rate = r.SampleRate()
		}
		f, err := os.Create(cfg.RecordFile)
		if err != nil {
			return fmt.Errorf("could not create recording: %w", err)
		}
		defer f.Close()
		w := wavrec.NewWriter(f, rate)
		defer func() {
			if err := w.Close(); err != nil {
				log.Printf("[ERROR] %v", err)
			}
		}()
		sensor = wavrec.Record(sensor, w)
		log.Printf("[INFO] Recording to %s", cfg.RecordFile)
	}

	var (
		reporter *telemetry.Reporter
		beeper   *beep.Beeper
	)
	if cfg.Beep {
		if beeper, err = beep.New(880, 60*time.Millisecond, 0.3); err != nil {
			log.Printf("[WARN] %v, running silent", err)
		} else {
			defer beeper.Close()
		}
	}

	opts = append([]pulseoxi.Option{
		pulseoxi.Modes(cfg.Modes),
		pulseoxi.SampleRate(cfg.SampleRate),
		pulseoxi.BatchSize(cfg.BatchSize),
		pulseoxi.FFTSize(cfg.FFTSize),
		pulseoxi.Window(cfg.WindowSec),
		pulseoxi.OnSample(func(filteredIR, delta float64) {
			reporter.AddSample(filteredIR, delta)
		}),
		pulseoxi.OnPulse(func(bpm int) {
			if beeper != nil {
				beeper.Pulse(bpm)
			}
		}),
		pulseoxi.OnSpO2(func(r spo2.Result) {
			if r.SpO2Valid {
				log.Printf("[INFO] SpO2 %d%%, heart rate %d BPM", r.SpO2, r.HeartRate)
			}
		}),
		pulseoxi.OnSpectrum(func(r spectral.Result) {
			log.Printf("[INFO] Spectral heart rate %.1f BPM", r.BPM)
		}),
	}, opts...)
	if cfg.Debug {
		opts = append(opts, pulseoxi.Debug(os.Stdout))
	}

	p, err := pulseoxi.New(sensor, opts...)
	if err != nil {
		return err
	}

	session := telemetry.NewSessionID()
	hub := telemetry.NewHub()
	reporterOpts := []telemetry.Option{
		telemetry.Interval(cfg.ReportInterval),
		telemetry.Broadcast(hub),
	}
	if cfg.WaveFilter == config.WaveFIR {
		fir, err := filter.NewFIR(filter.PulseLowPassTaps())
		if err != nil {
			return fmt.Errorf("could not create wave filter: %w", err)
		}
		reporterOpts = append(reporterOpts, telemetry.Smoothing(fir))
	}
	if cfg.NATSURL != "" {
		nc, err := telemetry.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("could not connect to NATS: %w", err)
		}
		defer nc.Drain()
		reporterOpts = append(reporterOpts, telemetry.Publish(nc))
		log.Printf("[INFO] Publishing to %s", cfg.NATSURL)
	}
	reporter = telemetry.NewReporter(p, session, reporterOpts...)

	var server *http.Server
	if cfg.HTTPAddr != "" {
		server = &http.Server{
			Addr:        cfg.HTTPAddr,
			Handler:     telemetry.NewServer(hub, p, session),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		}
		go func() {
			log.Printf("[INFO] HTTP server listening on %s", cfg.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[ERROR] HTTP server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	err = p.Run(ctx)
	cancel()
	wg.Wait()

	if server != nil {
		hub.Close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] HTTP server forced to shut down: %v", err)
		}
	}

	switch {
	case errors.Is(err, io.EOF):
		log.Printf("[INFO] End of recording")
		return nil
	case errors.Is(err, context.Canceled):
		log.Printf("[INFO] Received signal, shutting down")
		return nil
	}
	return err
}
