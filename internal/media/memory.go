package media

import (
	"context"
	"io"
	"time"
)

// Memory is an in-memory decoded handle. Samples are mono at Info.SampleRate and
// Frames are the full-rate frame sequence; OpenFrames applies the stride.
type Memory struct {
	Name    string
	Meta    Info
	Samples []float64
	Frames  []Frame
}

var _ Media = (*Memory)(nil)

// NewMemory builds a handle and derives the stream flags from the data given
func NewMemory(name string, duration time.Duration, sampleRate int, samples []float64, fps float64, frames []Frame) *Memory {
	info := Info{
		Duration:   duration,
		FPS:        fps,
		SampleRate: sampleRate,
		HasAudio:   len(samples) > 0,
		HasVideo:   len(frames) > 0,
	}
	if len(frames) > 0 && frames[0].Image != nil {
		b := frames[0].Image.Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	return &Memory{Name: name, Meta: info, Samples: samples, Frames: frames}
}

func (m *Memory) Path() string { return m.Name }
func (m *Memory) Info() Info   { return m.Meta }
func (m *Memory) Close() error { return nil }

func (m *Memory) OpenAudio(ctx context.Context) (AudioReader, error) {
	if !m.Meta.HasAudio {
		return nil, ErrNoStream
	}
	return &memoryAudio{samples: m.Samples}, nil
}

func (m *Memory) OpenFrames(ctx context.Context, stride int) (FrameReader, error) {
	if !m.Meta.HasVideo {
		return nil, ErrNoStream
	}
	if stride < 1 {
		stride = 1
	}
	return &memoryFrames{frames: m.Frames, stride: stride}, nil
}

type memoryAudio struct {
	samples []float64
	pos     int
}

func (a *memoryAudio) ReadSamples(buf []float64) (int, error) {
	if a.pos >= len(a.samples) {
		return 0, io.EOF
	}
	n := copy(buf, a.samples[a.pos:])
	a.pos += n
	return n, nil
}

func (a *memoryAudio) Close() error { return nil }

type memoryFrames struct {
	frames []Frame
	stride int
	pos    int
}

func (f *memoryFrames) NextFrame() (Frame, error) {
	if f.pos >= len(f.frames) {
		return Frame{}, io.EOF
	}
	frame := f.frames[f.pos]
	f.pos += f.stride
	return frame, nil
}

func (f *memoryFrames) Close() error { return nil }
