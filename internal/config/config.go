// Package config loads the poxi command settings from flags, falling back to
// environment variables and then to defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cgxeiji/pulseoxi"
)

// Sensor sources.
const (
	SensorMAX30102 = "max30102"
	SensorSim      = "sim"
)

// Waveform smoothing filters.
const (
	WaveButterworth = "butterworth"
	WaveFIR         = "fir"
)

// Config holds the settings of the poxi command.
type Config struct {
	// Sensor settings
	Sensor       string
	I2CBus       string
	I2CAddr      int
	InterruptPin string
	CalibrateADC float64
	SimHeartRate float64
	SimSpO2      float64
	ReplayFile   string
	RecordFile   string

	// Pipeline settings
	Modes      pulseoxi.Mode
	SampleRate int
	BatchSize  int
	FFTSize    int
	WindowSec  int
	Debug      bool

	// Outputs
	HTTPAddr       string
	NATSURL        string
	ReportInterval time.Duration
	WaveFilter     string
	Beep           bool
}

// Load parses args (without the program name). Every flag defaults to its
// POXI_* environment variable.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	var modes string

	fs := flag.NewFlagSet("poxi", flag.ContinueOnError)
	fs.StringVar(&cfg.Sensor, "sensor", getEnvString("POXI_SENSOR", SensorMAX30102), "sample source: max30102 or sim")
	fs.StringVar(&cfg.I2CBus, "i2c", getEnvString("POXI_I2C_BUS", ""), "I²C bus name, empty for the first available")
	fs.IntVar(&cfg.I2CAddr, "addr", getEnvInt("POXI_I2C_ADDR", 0x57), "sensor I²C address")
	fs.StringVar(&cfg.InterruptPin, "int", getEnvString("POXI_INT_PIN", ""), "GPIO connected to the sensor INT pin, empty to poll")
	fs.Float64Var(&cfg.CalibrateADC, "calibrate", getEnvFloat("POXI_CALIBRATE", 0), "calibrate LED currents up to this fraction of the ADC range, 0 to skip")
	fs.Float64Var(&cfg.SimHeartRate, "sim-bpm", getEnvFloat("POXI_SIM_BPM", 72), "simulated heart rate")
	fs.Float64Var(&cfg.SimSpO2, "sim-spo2", getEnvFloat("POXI_SIM_SPO2", 97), "simulated SpO2")
	fs.StringVar(&cfg.ReplayFile, "replay", getEnvString("POXI_REPLAY", ""), "replay samples from a WAV recording instead of a sensor")
	fs.StringVar(&cfg.RecordFile, "record", getEnvString("POXI_RECORD", ""), "record the raw samples to a WAV file")

	fs.StringVar(&modes, "modes", getEnvString("POXI_MODES", "all"), "processing modes: callback,fast,spo2,fft or all")
	fs.IntVar(&cfg.SampleRate, "rate", getEnvInt("POXI_SAMPLE_RATE", 100), "sample rate in Hz")
	fs.IntVar(&cfg.BatchSize, "batch", getEnvInt("POXI_BATCH", 32), "samples read per sensor access")
	fs.IntVar(&cfg.FFTSize, "fft", getEnvInt("POXI_FFT_SIZE", 512), "FFT size, a power of 2")
	fs.IntVar(&cfg.WindowSec, "window", getEnvInt("POXI_WINDOW_SEC", 5), "SpO2 window in seconds")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("POXI_DEBUG", false), "write debug plots to stdout")

	fs.StringVar(&cfg.HTTPAddr, "http", getEnvString("POXI_HTTP_ADDR", ":8080"), "HTTP/websocket address, empty to disable")
	fs.StringVar(&cfg.NATSURL, "nats", getEnvString("POXI_NATS_URL", ""), "NATS url, empty to disable")
	fs.DurationVar(&cfg.ReportInterval, "interval", getEnvDuration("POXI_REPORT_INTERVAL", time.Second), "report interval")
	fs.StringVar(&cfg.WaveFilter, "wave-filter", getEnvString("POXI_WAVE_FILTER", WaveButterworth), "reported waveform smoothing: butterworth or fir")
	fs.BoolVar(&cfg.Beep, "beep", getEnvBool("POXI_BEEP", false), "beep on every heartbeat")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m, err := pulseoxi.ParseMode(modes)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Modes = m

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ReplayFile == "" && c.Sensor != SensorMAX30102 && c.Sensor != SensorSim {
		return fmt.Errorf("config: unknown sensor %q", c.Sensor)
	}
	if c.ReplayFile != "" && c.ReplayFile == c.RecordFile {
		return fmt.Errorf("config: cannot record over the replayed file %q", c.ReplayFile)
	}
	if c.I2CAddr <= 0 || c.I2CAddr > 0x7F {
		return fmt.Errorf("config: invalid I²C address %#x", c.I2CAddr)
	}
	if c.WaveFilter != WaveButterworth && c.WaveFilter != WaveFIR {
		return fmt.Errorf("config: unknown wave filter %q", c.WaveFilter)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("config: invalid report interval %v", c.ReportInterval)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 0, 0); err == nil {
			return int(intValue)
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
