// Package wavrec records IR/red sample streams to 2-channel WAV files and
// replays them as a sensor.
//
// Channel 0 holds IR and channel 1 holds red, as 24-bit PCM at the sensor
// sample rate, so a recording opens in any audio editor and replays
// bit-exact.
package wavrec

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cgxeiji/pulseoxi"
)

const (
	bitDepth = 24
	channels = 2
	// wavPCM is the WAVE_FORMAT_PCM audio format tag.
	wavPCM = 1
)

var (
	// ErrFormat is returned when replaying a file that is not a 2-channel
	// PCM WAV.
	ErrFormat = errors.New("wavrec: unsupported file")
	// ErrSampleRate is returned when the replay is set up at a different rate
	// than it was recorded at.
	ErrSampleRate = errors.New("wavrec: sample rate mismatch")
)

// Writer encodes sample pairs into a WAV stream.
type Writer struct {
	enc *wav.Encoder
	buf *audio.IntBuffer
}

// NewWriter starts a WAV stream on w. The header is completed on Close.
func NewWriter(w io.WriteSeeker, sampleRate int) *Writer {
	return &Writer{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, wavPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}
}

// Write appends len(ir) sample pairs.
func (w *Writer) Write(ir, red []float64) error {
	n := min(len(ir), len(red))
	data := w.buf.Data[:0]
	for i := 0; i < n; i++ {
		data = append(data, int(ir[i]), int(red[i]))
	}
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wavrec: could not write %d samples: %w", n, err)
	}
	return nil
}

// Close writes the final header. It does not close the underlying writer.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wavrec: could not finish file: %w", err)
	}
	return nil
}

// Reader replays a recording. It implements pulseoxi.Sensor and reports
// io.EOF once the recording is exhausted.
type Reader struct {
	dec        *wav.Decoder
	buf        *audio.IntBuffer
	sampleRate int
}

// NewReader opens a recording made by Writer.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a WAV file", ErrFormat)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wavrec: could not find PCM data: %w", err)
	}
	if dec.NumChans != channels {
		return nil, fmt.Errorf("%w: %d channels", ErrFormat, dec.NumChans)
	}
	log.Printf("[INFO] wavrec: replaying %d-bit %dHz recording", dec.BitDepth, dec.SampleRate)

	return &Reader{
		dec: dec,
		buf: &audio.IntBuffer{
			Format: dec.Format(),
		},
		sampleRate: int(dec.SampleRate),
	}, nil
}

// SampleRate returns the rate the file was recorded at.
func (r *Reader) SampleRate() int {
	return r.sampleRate
}

// SoftReset does nothing; a replay cannot rewind.
func (r *Reader) SoftReset() error {
	return nil
}

// Setup checks that the pipeline runs at the recorded rate.
func (r *Reader) Setup(sampleRate int) error {
	if sampleRate != r.sampleRate {
		return fmt.Errorf("%w: recorded at %dHz, set up at %dHz", ErrSampleRate, r.sampleRate, sampleRate)
	}
	return nil
}

// ReadSamples reads the next recorded pairs.
func (r *Reader) ReadSamples(ir, red []float64) (int, error) {
	want := min(len(ir), len(red)) * channels
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}
	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("wavrec: could not read samples: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	pairs := n / channels
	for i := 0; i < pairs; i++ {
		ir[i] = float64(r.buf.Data[2*i])
		red[i] = float64(r.buf.Data[2*i+1])
	}
	return pairs, nil
}

// Recorder passes samples through from a sensor and records them.
type Recorder struct {
	pulseoxi.Sensor
	w *Writer
}

// Record returns a sensor that writes everything read from s to w.
func Record(s pulseoxi.Sensor, w *Writer) *Recorder {
	return &Recorder{Sensor: s, w: w}
}

// ReadSamples implements pulseoxi.Sensor.
func (r *Recorder) ReadSamples(ir, red []float64) (int, error) {
	n, err := r.Sensor.ReadSamples(ir, red)
	if err != nil || n == 0 {
		return n, err
	}
	if err := r.w.Write(ir[:n], red[:n]); err != nil {
		return n, err
	}
	return n, nil
}
