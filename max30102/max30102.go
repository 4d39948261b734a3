// Package max30102 drives a MAX30102 pulse oximeter over I²C with periph.io.
//
// A Device reads raw 18-bit IR and red samples from the sensor FIFO and
// implements the pulseoxi.Sensor contract. An Interrupt waits on the
// active-low INT pin and implements pulseoxi.Notifier.
package max30102

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

var (
	// ErrNotDevice throws an error when the device part ID does not match a
	// MAX30102 signature (0x15).
	ErrNotDevice error = errors.New("max30102: part ID does not match (0x15)")
	// ErrTimeout is returned when the device does not clear a status bit in
	// time.
	ErrTimeout = errors.New("max30102: timeout")
	// ErrSampleRate is returned by Setup for rates the device cannot sample
	// at.
	ErrSampleRate = errors.New("max30102: unsupported sample rate")
)

// Device defines a MAX30102 device.
type Device struct {
	dev *i2c.Dev
	bus i2c.BusCloser

	// RevID is the revision ID read when the device was opened.
	RevID byte

	// RedCurrent, IRCurrent and PilotCurrent are the LED pulse amplitudes in
	// mA written by Setup. By default, 7.2mA for the red and IR LEDs and
	// 25.4mA for the pilot LED.
	RedCurrent   float64
	IRCurrent    float64
	PilotCurrent float64

	// Timeout bounds the wait for reset and temperature conversions.
	Timeout time.Duration

	Logger *log.Logger

	intEna     byte
	sampleRate int
	overflows  int
	buf        []byte
}

// New opens the I²C bus and returns a new MAX30102 device.
//
// Argument "busName" can be used to specify the exact bus to use ("/dev/i2c-2", "I2C2", "2").
// Argument "addr" can be used to specify alternative address if default (0x57) is unavailable and changed.
// If "busName" argument is specified as an empty string "" the first available bus will be used.
func New(busName string, addr uint16) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("max30102: could not initialize host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("max30102: could not open I2C bus: %w", err)
	}

	d, err := NewFromBus(bus, addr)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return d, nil
}

// NewFromBus returns a new MAX30102 device on an already opened bus. The
// device takes ownership of the bus.
func NewFromBus(bus i2c.BusCloser, addr uint16) (*Device, error) {
	if addr == 0 {
		addr = Addr
	}

	d := &Device{
		dev: &i2c.Dev{
			Addr: addr,
			Bus:  bus,
		},
		bus:          bus,
		RedCurrent:   7.2,
		IRCurrent:    7.2,
		PilotCurrent: 25.4,
		Timeout:      100 * time.Millisecond,
		Logger:       log.Default(),
		buf:          make([]byte, FIFOSize*bytesPerSample),
	}

	part, err := d.Read(RegPartID)
	if err != nil {
		return nil, fmt.Errorf("max30102: could not get part ID: %w", err)
	}
	if part != PartID {
		return nil, ErrNotDevice
	}

	if d.RevID, err = d.Read(RegRevID); err != nil {
		return nil, fmt.Errorf("max30102: could not get revision ID: %w", err)
	}

	return d, nil
}

// Close shuts the device down and closes the bus.
func (d *Device) Close() error {
	serr := d.Shutdown()
	if err := d.bus.Close(); err != nil {
		return fmt.Errorf("max30102: could not close bus: %w", err)
	}
	return serr
}

// waitUntil polls reg until flag is set (or cleared) or Timeout expires.
func (d *Device) waitUntil(reg, flag byte, set bool) error {
	deadline := time.Now().Add(d.Timeout)
	for {
		state, err := d.Read(reg)
		if err != nil {
			return fmt.Errorf("could not wait for %#02x in %#02x: %w", flag, reg, err)
		}
		if (state&flag != 0) == set {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("waiting for %#02x in %#02x: %w", flag, reg, ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// Temperature returns the current temperature of the device.
func (d *Device) Temperature() (float64, error) {
	if err := d.Write(TempCfg, TempEna); err != nil {
		return 0, fmt.Errorf("max30102: could not enable temperature: %w", err)
	}
	if err := d.waitUntil(TempCfg, TempEna, false); err != nil {
		return 0, fmt.Errorf("max30102: could not read temperature: %w", err)
	}

	i, err := d.Read(TempInt)
	if err != nil {
		return 0, fmt.Errorf("max30102: could not read integer part of temperature: %w", err)
	}

	f, err := d.Read(TempFrac)
	if err != nil {
		return 0, fmt.Errorf("max30102: could not read fractional part of temperature: %w", err)
	}

	return float64(int8(i)) + (float64(f) * 0.0625), nil
}

// Read reads a single byte from a register.
func (d *Device) Read(reg byte) (byte, error) {
	b := make([]byte, 1)
	if err := d.dev.Tx([]byte{reg}, b); err != nil {
		return 0, fmt.Errorf("max30102: could not read byte: %w", err)
	}

	return b[0], nil
}

// Write writes a byte to a register.
func (d *Device) Write(reg, data byte) error {
	n, err := d.dev.Write([]byte{reg, data})
	if err != nil {
		return err
	}
	n-- // remove register write
	if n != 1 {
		return fmt.Errorf("write: wrong number of bytes written: want %d, got %d", 1, n)
	}

	return nil
}

// SoftReset resets the device. All configurations, thresholds, and data
// registers are reset to their power-on state.
func (d *Device) SoftReset() error {
	if _, err := d.config(ModeCfg, ^ResetControl, ResetControl); err != nil {
		return fmt.Errorf("max30102: could not reset: %w", err)
	}
	if err := d.waitUntil(ModeCfg, ResetControl, false); err != nil {
		return fmt.Errorf("max30102: could not reset: %w", err)
	}

	return nil
}

func (d *Device) clearFIFO() error {
	for _, reg := range []byte{FIFOWrPtr, OvfCount, FIFORdPtr} {
		if err := d.Write(reg, 0); err != nil {
			return fmt.Errorf("could not clear FIFO: %w", err)
		}
	}
	return nil
}

// Setup resets the device and starts sampling IR and red at sampleRate Hz
// without averaging, with a pulse width of 411us (18 bits) and a 4096nA ADC
// range.
func (d *Device) Setup(sampleRate int) error {
	sr, ok := sampleRates[sampleRate]
	if !ok {
		return fmt.Errorf("%w: %dHz", ErrSampleRate, sampleRate)
	}

	if err := d.SoftReset(); err != nil {
		return err
	}

	options := []Option{
		SampleAveraging(SmpAveNone),
		AlmostFullValue(0x0F),
		SampleRate(sr),
		PulseWidth(PW411),
		ADCRange(ADC4096),
		Mode(ModeSpO2),
		RedPulseAmp(d.RedCurrent),
		IRPulseAmp(d.IRCurrent),
		PilotPulseAmp(d.PilotCurrent),
	}
	if d.intEna != 0 {
		options = append(options, InterruptEnable(d.intEna))
	}
	if _, err := d.Options(options...); err != nil {
		return err
	}

	// Reading the status clears pending interrupts.
	status, err := d.Read(IntStat1)
	if err != nil {
		return fmt.Errorf("max30102: could not clear interrupts: %w", err)
	}

	d.sampleRate = sampleRate
	d.logf("[INFO] max30102: sampling at %dHz (status %#02x)", sampleRate, status)
	return nil
}

// ReadSamples reads up to len(ir) pending samples from the FIFO and returns
// how many were read. Values are raw 18-bit ADC counts.
func (d *Device) ReadSamples(ir, red []float64) (int, error) {
	if d.intEna != 0 {
		if _, err := d.Read(IntStat1); err != nil {
			return 0, fmt.Errorf("max30102: could not clear interrupts: %w", err)
		}
	}

	var ptr [3]byte
	if err := d.dev.Tx([]byte{FIFOWrPtr}, ptr[:]); err != nil {
		return 0, fmt.Errorf("max30102: could not read FIFO pointers: %w", err)
	}
	wr, ovf, rd := ptr[0], ptr[1], ptr[2]

	n := int((wr - rd) & (FIFOSize - 1))
	if ovf != 0 {
		d.overflows++
		d.logf("[WARN] max30102: FIFO overflow, %d samples lost", ovf)
		n = FIFOSize
	}
	n = min(n, len(ir), len(red))
	if n == 0 {
		return 0, nil
	}

	b := d.buf[:n*bytesPerSample]
	if err := d.dev.Tx([]byte{FIFOData}, b); err != nil {
		return 0, fmt.Errorf("max30102: could not read %d samples: %w", n, err)
	}
	for i := 0; i < n; i++ {
		s := b[i*bytesPerSample:]
		red[i] = float64(decode(s[0:3]))
		ir[i] = float64(decode(s[3:6]))
	}

	return n, nil
}

// decode returns the 18-bit value of a 3 byte FIFO word.
func decode(b []byte) uint32 {
	return (uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])) & MaxADC
}

// Overflows returns how many reads found the FIFO overflowed.
func (d *Device) Overflows() int {
	return d.overflows
}

// Calibrate raises the LED currents in 0.5mA steps, up to 25mA, until the
// mean of a batch of samples reaches target (0.0 to 1.0) of the full scale.
// The calibrated currents are kept for the next Setup.
func (d *Device) Calibrate(ctx context.Context, target float64) error {
	const step = 0.5
	const limit = 25.0

	ir := make([]float64, FIFOSize)
	red := make([]float64, FIFOSize)
	irAmp, redAmp := 0.0, 0.0

	for {
		if _, err := d.Options(IRPulseAmp(irAmp), RedPulseAmp(redAmp)); err != nil {
			return fmt.Errorf("max30102: could not calibrate sensor: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(40 * time.Millisecond):
		}
		n, err := d.ReadSamples(ir, red)
		if err != nil {
			return fmt.Errorf("max30102: could not calibrate sensor: %w", err)
		}

		irLow := mean(ir[:n]) < target*MaxADC && irAmp < limit
		redLow := mean(red[:n]) < target*MaxADC && redAmp < limit
		if !irLow && !redLow {
			break
		}
		if irLow {
			irAmp += step
		}
		if redLow {
			redAmp += step
		}
	}

	d.IRCurrent, d.RedCurrent = irAmp, redAmp
	d.logf("[INFO] max30102: calibrated IR %.1fmA, red %.1fmA", irAmp, redAmp)
	return nil
}

func mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}

	r := 0.0
	for _, v := range a {
		r += v
	}

	return r / float64(len(a))
}

// Shutdown sets the device into power-save mode.
func (d *Device) Shutdown() error {
	if _, err := d.config(ModeCfg, ^modeSHDN, modeSHDN); err != nil {
		return fmt.Errorf("max30102: could not shut down: %w", err)
	}
	return nil
}

// Startup wakes the device from power-save mode.
func (d *Device) Startup() error {
	if _, err := d.config(ModeCfg, ^modeSHDN, 0); err != nil {
		return fmt.Errorf("max30102: could not start up: %w", err)
	}
	return nil
}

func (d *Device) logf(format string, v ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, v...)
	}
}
