// Package media defines the decode collaborator: a decoded handle with sequential
// access to audio samples and sampled video frames.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrNoStream is returned when a handle has no stream of the requested kind
var ErrNoStream = errors.New("stream not present")

// Info describes a decoded source
type Info struct {
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	HasAudio   bool
	HasVideo   bool
	SampleRate int
	VideoCodec string
	AudioCodec string
}

// Frame is one sampled grayscale video frame
type Frame struct {
	Timestamp time.Duration
	Image     *image.Gray
}

// AudioReader yields mono samples in [-1, 1] from the start of the track
type AudioReader interface {
	// ReadSamples fills buf and returns io.EOF once the track is exhausted
	ReadSamples(buf []float64) (int, error)
	Close() error
}

// FrameReader yields sampled frames in presentation order
type FrameReader interface {
	// NextFrame returns io.EOF once the track is exhausted
	NextFrame() (Frame, error)
	Close() error
}

// Media is a decoded handle onto one source. Readers may be opened any number of
// times; each starts from the beginning of its stream.
type Media interface {
	Path() string
	Info() Info
	OpenAudio(ctx context.Context) (AudioReader, error)
	OpenFrames(ctx context.Context, stride int) (FrameReader, error)
	Close() error
}

// Decoder opens a fetched file as a decoded handle
type Decoder interface {
	Open(ctx context.Context, path string) (Media, error)
}

// DecodeError reports an unsupported or unreadable container/codec
type DecodeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
