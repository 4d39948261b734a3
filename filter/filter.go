// Package filter implements the streaming sample filters of the PPG pipeline.
//
// Every filter transforms one sample into exactly one output sample and keeps
// its running state between calls. Coefficients are fixed at construction;
// Reset only clears the running state.
package filter

import "errors"

// ErrOutOfMemory is returned when a filter cannot allocate its coefficient or
// history storage.
var ErrOutOfMemory = errors.New("filter: cannot allocate storage")

// Filter is a streaming sample transform.
type Filter interface {
	// Process feeds x into the filter and returns the filtered value.
	Process(x float64) float64
	// Reset returns the filter to its construction-time state.
	Reset()
}

// chain applies filters in order.
type chain []Filter

// Chain returns a Filter feeding each output into the next filter.
func Chain(filters ...Filter) Filter {
	return chain(filters)
}

func (c chain) Process(x float64) float64 {
	for _, f := range c {
		x = f.Process(x)
	}
	return x
}

func (c chain) Reset() {
	for _, f := range c {
		f.Reset()
	}
}
