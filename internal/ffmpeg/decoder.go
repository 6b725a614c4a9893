package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/keagan/fastcut/internal/media"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// Decoder opens files as streaming handles backed by ffmpeg pipes
type Decoder struct {
	exec         *Executor
	probeTimeout time.Duration
	// FrameWidth caps the width of decoded frames; ffmpeg scales wider video
	// down before piping it. Zero keeps the source size.
	FrameWidth int
}

var _ media.Decoder = (*Decoder)(nil)

// NewDecoder creates a decoder; probeTimeout bounds each ffprobe call
func NewDecoder(e *Executor, probeTimeout time.Duration) *Decoder {
	return &Decoder{exec: e, probeTimeout: probeTimeout}
}

// Open probes path and returns a handle. Unreadable or streamless files fail
// with a media.DecodeError.
func (d *Decoder) Open(ctx context.Context, path string) (media.Media, error) {
	probeCtx := ctx
	if d.probeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, d.probeTimeout)
		defer cancel()
	}

	info, err := d.exec.Probe(probeCtx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &media.DecodeError{Path: path, Reason: "probe failed", Err: err}
	}
	if !info.HasAudio && !info.HasVideo {
		return nil, &media.DecodeError{Path: path, Reason: "no audio or video stream"}
	}
	if info.Duration <= 0 {
		return nil, &media.DecodeError{Path: path, Reason: "unknown duration"}
	}
	if info.HasVideo && (info.Width <= 0 || info.Height <= 0 || info.FPS <= 0) {
		return nil, &media.DecodeError{Path: path, Reason: fmt.Sprintf("unusable video stream %dx%d@%g", info.Width, info.Height, info.FPS)}
	}

	if info.HasAudio {
		info.SampleRate = AnalysisSampleRate
	}

	d.exec.logger.Debug().
		Str("path", path).
		Dur("duration", info.Duration).
		Bool("audio", info.HasAudio).
		Bool("video", info.HasVideo).
		Msg("opened media")

	return &fileMedia{exec: d.exec, path: path, info: info, frameWidth: d.FrameWidth}, nil
}

type fileMedia struct {
	exec       *Executor
	path       string
	info       media.Info
	frameWidth int
}

// frameSize fits a width x height source into maxWidth, keeping aspect ratio
func frameSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	h := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	return maxWidth, max(h, 1)
}

func (m *fileMedia) Path() string     { return m.path }
func (m *fileMedia) Info() media.Info { return m.info }
func (m *fileMedia) Close() error     { return nil }

// pcmArgs decodes the first audio track to mono s16le on stdout
func pcmArgs(path string, sampleRate int) []string {
	return ffmpeggo.Input(path).Output("pipe:1", ffmpeggo.KwArgs{
		"map": "0:a:0",
		"vn":  "",
		"ac":  "1",
		"ar":  strconv.Itoa(sampleRate),
		"f":   "s16le",
	}).GetArgs()
}

// grayArgs decodes every stride-th frame of the first video track to raw
// gray8 at width x height
func grayArgs(path string, stride, width, height int) []string {
	vf := NewFilterBuilder().EveryNth(stride).Scale(width, height).Format("gray").Build()
	return ffmpeggo.Input(path).Output("pipe:1", ffmpeggo.KwArgs{
		"map":     "0:v:0",
		"an":      "",
		"vf":      vf,
		"vsync":   "0",
		"pix_fmt": "gray",
		"f":       "rawvideo",
	}).GetArgs()
}

func (m *fileMedia) OpenAudio(ctx context.Context) (media.AudioReader, error) {
	if !m.info.HasAudio {
		return nil, media.ErrNoStream
	}
	p, err := m.exec.pipe(ctx, pcmArgs(m.path, m.info.SampleRate))
	if err != nil {
		return nil, &media.DecodeError{Path: m.path, Reason: "audio decode", Err: err}
	}
	return &pcmReader{pipe: p}, nil
}

func (m *fileMedia) OpenFrames(ctx context.Context, stride int) (media.FrameReader, error) {
	if !m.info.HasVideo {
		return nil, media.ErrNoStream
	}
	if stride < 1 {
		stride = 1
	}
	width, height := frameSize(m.info.Width, m.info.Height, m.frameWidth)
	p, err := m.exec.pipe(ctx, grayArgs(m.path, stride, width, height))
	if err != nil {
		return nil, &media.DecodeError{Path: m.path, Reason: "video decode", Err: err}
	}
	return &grayReader{
		pipe:   p,
		width:  width,
		height: height,
		step:   float64(stride) / m.info.FPS,
	}, nil
}

// pipe is a running ffmpeg process whose stdout is being consumed
type pipe struct {
	cmd    *exec.Cmd
	out    *bufio.Reader
	stderr *bytes.Buffer
	// done is set once the process has been reaped; stdout is closed after that
	done bool
}

func (e *Executor) pipe(ctx context.Context, args []string) (*pipe, error) {
	args = append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	e.logger.Debug().Str("cmd", "ffmpeg").Strs("args", args).Msg("opening decode pipe")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &pipe{cmd: cmd, out: bufio.NewReaderSize(stdout, 1<<16), stderr: &stderr}, nil
}

// finish reaps the process after stdout hit EOF
func (p *pipe) finish() error {
	if p.done {
		return nil
	}
	p.done = true
	if err := p.cmd.Wait(); err != nil {
		return &RunError{Err: err, Stderr: lastLines(p.stderr.String(), stderrTail)}
	}
	return nil
}

func (p *pipe) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return nil
}

type pcmReader struct {
	pipe *pipe
	raw  []byte
}

func (r *pcmReader) ReadSamples(buf []float64) (int, error) {
	if r.pipe.done {
		return 0, io.EOF
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if cap(r.raw) < 2*len(buf) {
		r.raw = make([]byte, 2*len(buf))
	}
	raw := r.raw[:2*len(buf)]

	n, err := io.ReadFull(r.pipe.out, raw)
	n -= n % 2
	for i := 0; i < n/2; i++ {
		buf[i] = float64(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768
	}

	switch {
	case err == nil:
		return n / 2, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if werr := r.pipe.finish(); werr != nil {
			return n / 2, werr
		}
		if n > 0 {
			return n / 2, nil
		}
		return 0, io.EOF
	default:
		return n / 2, err
	}
}

func (r *pcmReader) Close() error { return r.pipe.Close() }

type grayReader struct {
	pipe          *pipe
	width, height int
	step          float64
	index         int
}

func (r *grayReader) NextFrame() (media.Frame, error) {
	if r.pipe.done {
		return media.Frame{}, io.EOF
	}
	img := image.NewGray(image.Rect(0, 0, r.width, r.height))
	if _, err := io.ReadFull(r.pipe.out, img.Pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := r.pipe.finish(); werr != nil {
				return media.Frame{}, werr
			}
			return media.Frame{}, io.EOF
		}
		return media.Frame{}, err
	}

	ts := time.Duration(float64(r.index) * r.step * float64(time.Second))
	r.index++
	return media.Frame{Timestamp: ts, Image: img}, nil
}

func (r *grayReader) Close() error { return r.pipe.Close() }
