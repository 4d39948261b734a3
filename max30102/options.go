package max30102

import (
	"fmt"
	"math"
)

// Option defines a functional option for the device.
type Option func(d *Device) (Option, error)

// Options set different configuration options and returns the previous value
// of the last option passed.
func (d *Device) Options(options ...Option) (Option, error) {
	var old Option
	var err error
	for _, opt := range options {
		old, err = opt(d)
		if err != nil {
			return nil, err
		}
	}

	return old, nil
}

// config keeps the bits of reg selected by keep and sets flag. It returns the
// previous value of the replaced bits.
func (d *Device) config(reg, keep, flag byte) (byte, error) {
	cfg, err := d.Read(reg)
	if err != nil {
		return 0, fmt.Errorf("could not get %#02x: %w", reg, err)
	}
	old := cfg &^ keep
	cfg &= keep
	cfg |= flag
	if err := d.Write(reg, cfg); err != nil {
		return 0, fmt.Errorf("could not set %#02x to %#08b: %w", reg, cfg, err)
	}

	return old, nil
}

// Mode sets the operation mode of the device and clears the FIFO.
func Mode(mode byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(ModeCfg, modeMask, mode)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure mode: %w", err)
		}
		if err := d.clearFIFO(); err != nil {
			return nil, fmt.Errorf("max30102: could not configure mode: %w", err)
		}

		return Mode(old), nil
	}
}

func ledAmp(reg byte, name string, current float64, self func(float64) Option) Option {
	return func(d *Device) (Option, error) {
		current = max(0, min(current, 51))
		// Register steps are 0.2mA.
		b := byte(math.Floor(current*5 + 1e-9))

		old, err := d.config(reg, 0, b)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure %s pulse amplitude: %w", name, err)
		}

		return self(float64(old) / 5), nil
	}
}

// RedPulseAmp sets the pulse amplitude of the red LED. It accepts values
// from 0.0 to 51.0 mA and the value is rounded down to the nearest multiple of 0.2.
func RedPulseAmp(current float64) Option {
	return ledAmp(Led1PA, "red LED", current, RedPulseAmp)
}

// IRPulseAmp sets the pulse amplitude of the IR LED. It accepts values
// from 0.0 to 51.0 mA and the value is rounded down to the nearest multiple of 0.2.
func IRPulseAmp(current float64) Option {
	return ledAmp(Led2PA, "IR LED", current, IRPulseAmp)
}

// PilotPulseAmp sets the pulse amplitude of the proximity pilot LED.
func PilotPulseAmp(current float64) Option {
	return ledAmp(PilotPA, "pilot LED", current, PilotPulseAmp)
}

// PulseWidth sets the pulse width of the device, which also selects the ADC
// resolution (PW411 is 18 bits).
func PulseWidth(pw byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(SpO2Cfg, pwMask, pw)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure pulse width: %w", err)
		}

		return PulseWidth(old), nil
	}
}

// SampleRate sets the SpO2 sample rate control of the device.
func SampleRate(sr byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(SpO2Cfg, srMask, sr)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure sample rate: %w", err)
		}

		return SampleRate(old), nil
	}
}

// ADCRange sets the full scale of the SpO2 ADC.
func ADCRange(r byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(SpO2Cfg, adcMask, r)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure ADC range: %w", err)
		}

		return ADCRange(old), nil
	}
}

// SampleAveraging sets how many samples are averaged into one FIFO entry.
func SampleAveraging(avg byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(FIFOCfg, smpAveMask, avg)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure sample averaging: %w", err)
		}

		return SampleAveraging(old), nil
	}
}

// InterruptEnable enables interrupts.
func InterruptEnable(i byte) Option {
	return func(d *Device) (Option, error) {
		old, err := d.config(IntEna1, ^i, i)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure interrupt flags: %w", err)
		}

		return InterruptEnable(old), nil
	}
}

// AlmostFullValue sets when the AlmostFull interrupt should be triggered,
// as the number of empty FIFO slots left. It can take values from 0 to 15.
func AlmostFullValue(left byte) Option {
	return func(d *Device) (Option, error) {
		left &= ^fifoFullMask
		old, err := d.config(FIFOCfg, fifoFullMask, left)
		if err != nil {
			return nil, fmt.Errorf("max30102: could not configure almost full value to %d: %w", left, err)
		}

		return AlmostFullValue(old), nil
	}
}
