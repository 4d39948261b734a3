package max30102

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

// Interrupt waits for falling edges of the active-low INT pin.
type Interrupt struct {
	pin gpio.PinIn
	// poll bounds each wait so that context cancellation is noticed.
	poll time.Duration
}

// NewInterrupt configures pin as a pulled-up input detecting falling edges
// and enables the AlmostFull interrupt of the device on its next Setup.
func (d *Device) NewInterrupt(pin gpio.PinIn) (*Interrupt, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("max30102: could not configure interrupt pin %s: %w", pin, err)
	}
	d.intEna = AlmostFull
	return &Interrupt{
		pin:  pin,
		poll: 100 * time.Millisecond,
	}, nil
}

// InterruptPin looks up a GPIO pin by name ("GPIO17", "17").
func InterruptPin(name string) (gpio.PinIn, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("max30102: no GPIO pin %q", name)
	}
	return p, nil
}

// WaitForData blocks until the device signals that the FIFO is almost full or
// ctx is done.
func (n *Interrupt) WaitForData(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.pin.WaitForEdge(n.poll) {
			return nil
		}
	}
}
