package config

import (
	"testing"
	"time"

	"github.com/cgxeiji/pulseoxi"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensor != SensorMAX30102 || cfg.I2CAddr != 0x57 || cfg.SampleRate != 100 ||
		cfg.BatchSize != 32 || cfg.FFTSize != 512 || cfg.WindowSec != 5 {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.Modes != pulseoxi.AllModes {
		t.Errorf("Expected all modes, got %v", cfg.Modes)
	}
	if cfg.ReportInterval != time.Second {
		t.Errorf("Expected a 1s report interval, got %v", cfg.ReportInterval)
	}
	if cfg.WaveFilter != WaveButterworth {
		t.Errorf("Expected the Butterworth wave filter, got %q", cfg.WaveFilter)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("POXI_SENSOR", "sim")
	t.Setenv("POXI_I2C_ADDR", "0x58")
	t.Setenv("POXI_MODES", "fast,fft")
	t.Setenv("POXI_DEBUG", "true")
	t.Setenv("POXI_SIM_BPM", "64.5")
	t.Setenv("POXI_REPORT_INTERVAL", "250ms")
	// Malformed values fall back to the default.
	t.Setenv("POXI_SAMPLE_RATE", "fast")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensor != SensorSim || cfg.I2CAddr != 0x58 || !cfg.Debug || cfg.SimHeartRate != 64.5 {
		t.Errorf("Unexpected config from env %+v", cfg)
	}
	if cfg.Modes != pulseoxi.FastHeartbeat|pulseoxi.PreciseFFT {
		t.Errorf("Expected fast|fft, got %v", cfg.Modes)
	}
	if cfg.ReportInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.ReportInterval)
	}
	if cfg.SampleRate != 100 {
		t.Errorf("Expected the default rate, got %d", cfg.SampleRate)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("POXI_SENSOR", "max30102")
	cfg, err := Load([]string{"-sensor", "sim", "-rate", "50", "-modes", "spo2", "-wave-filter", "fir"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensor != SensorSim || cfg.SampleRate != 50 || cfg.Modes != pulseoxi.HeartbeatSpO2 || cfg.WaveFilter != WaveFIR {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"-sensor", "max30100"},
		{"-modes", "slow"},
		{"-addr", "0x80"},
		{"-interval", "0s"},
		{"-wave-filter", "kalman"},
		{"-replay", "a.wav", "-record", "a.wav"},
		{"-unknown"},
	} {
		if _, err := Load(args); err == nil {
			t.Errorf("Load(%q): expected an error", args)
		}
	}
}

func TestLoad_ReplayIgnoresSensor(t *testing.T) {
	if _, err := Load([]string{"-sensor", "none", "-replay", "a.wav"}); err != nil {
		t.Errorf("Load: %v", err)
	}
}
