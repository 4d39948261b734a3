// Package beep plays a short tone on every detected heartbeat.
package beep

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	sampleRate = 44100
	// fade is the length of the linear ramp at both ends of a tone.
	fade = 5 * time.Millisecond
)

// Tone returns a mono sine burst as signed 16-bit little endian PCM. volume
// is in [0, 1].
func Tone(freq float64, d time.Duration, rate int, volume float64) []byte {
	n := int(d.Seconds() * float64(rate))
	ramp := int(fade.Seconds() * float64(rate))
	if ramp > n/2 {
		ramp = n / 2
	}
	volume = math.Max(0, math.Min(1, volume))

	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		env := 1.0
		if i < ramp {
			env = float64(i) / float64(ramp)
		} else if n-1-i < ramp {
			env = float64(n-1-i) / float64(ramp)
		}
		v := volume * env * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(math.Round(v*math.MaxInt16))))
	}
	return b
}

// Beeper plays tones on the default audio device.
type Beeper struct {
	ctx  *oto.Context
	tone []byte

	mu     sync.Mutex
	player *oto.Player
}

// New opens the audio device. Only one Beeper may exist per process.
func New(freq float64, d time.Duration, volume float64) (*Beeper, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("beep: could not open audio device: %w", err)
	}
	<-ready
	return &Beeper{
		ctx:  ctx,
		tone: Tone(freq, d, sampleRate, volume),
	}, nil
}

// Beep starts a tone and returns immediately. It does nothing while the
// previous tone is still playing.
func (b *Beeper) Beep() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player != nil {
		if b.player.IsPlaying() {
			return
		}
		b.player.Close()
	}
	b.player = b.ctx.NewPlayer(bytes.NewReader(b.tone))
	b.player.Play()
}

// Pulse beeps on a heartbeat. Its signature matches the pipeline OnPulse
// callback.
func (b *Beeper) Pulse(int) {
	b.Beep()
}

// Close stops the current tone.
func (b *Beeper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player == nil {
		return nil
	}
	err := b.player.Close()
	b.player = nil
	return err
}
