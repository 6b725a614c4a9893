package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/media"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ExtractorConfig configures signal extraction
type ExtractorConfig struct {
	WindowLength   time.Duration
	FrameStride    int
	AnalysisWidth  int
	PixelThreshold uint8
	FFTSize        int
	BandLowHz      float64
	BandHighHz     float64
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		WindowLength:   2 * time.Second,
		FrameStride:    5,
		AnalysisWidth:  160,
		PixelThreshold: 25,
		FFTSize:        1024,
		BandLowHz:      250,
		BandHighHz:     4000,
	}
}

// FeatureExtractor turns a decoded handle into fixed-length feature windows
type FeatureExtractor struct {
	logger zerolog.Logger
	config ExtractorConfig
}

func NewFeatureExtractor(logger zerolog.Logger, cfg ExtractorConfig) *FeatureExtractor {
	def := DefaultExtractorConfig()
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = def.WindowLength
	}
	if cfg.FrameStride < 1 {
		cfg.FrameStride = def.FrameStride
	}
	if cfg.FFTSize < 2 {
		cfg.FFTSize = def.FFTSize
	}
	return &FeatureExtractor{
		logger: logger.With().Str("component", "signal-extractor").Logger(),
		config: cfg,
	}
}

// Windows returns the feature sequence covering [0, duration). Each iteration
// re-opens the decoders, so the sequence can be ranged over more than once.
func (e *FeatureExtractor) Windows(ctx context.Context, m media.Media) iter.Seq2[clips.FeatureWindow, error] {
	return func(yield func(clips.FeatureWindow, error) bool) {
		info := m.Info()
		if info.Duration <= 0 {
			return
		}

		audio, err := e.openAudio(ctx, m)
		if err != nil {
			yield(clips.FeatureWindow{}, err)
			return
		}
		if audio != nil {
			defer audio.Close()
		}

		motion, err := e.openMotion(ctx, m)
		if err != nil {
			yield(clips.FeatureWindow{}, err)
			return
		}
		if motion != nil {
			defer motion.Close()
		}

		for start := time.Duration(0); start < info.Duration; start += e.config.WindowLength {
			if err := ctx.Err(); err != nil {
				yield(clips.FeatureWindow{}, err)
				return
			}

			window := clips.FeatureWindow{
				Start: start,
				End:   min(start+e.config.WindowLength, info.Duration),
			}

			if audio != nil {
				window.AudioLevel, window.SpectralEnergy, err = audio.measure(window.End)
				if err != nil {
					yield(clips.FeatureWindow{}, fmt.Errorf("audio at %s: %w", start, err))
					return
				}
			}
			if motion != nil {
				window.MotionScore, err = motion.measure(window.End)
				if err != nil {
					yield(clips.FeatureWindow{}, fmt.Errorf("video at %s: %w", start, err))
					return
				}
			}

			if !yield(window, nil) {
				return
			}
		}
	}
}

// Extract collects the full feature sequence
func (e *FeatureExtractor) Extract(ctx context.Context, m media.Media) ([]clips.FeatureWindow, error) {
	info := m.Info()
	windows := make([]clips.FeatureWindow, 0, int(info.Duration/e.config.WindowLength)+1)
	for w, err := range e.Windows(ctx, m) {
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}

	e.logger.Debug().
		Str("media", m.Path()).
		Int("windows", len(windows)).
		Bool("audio", info.HasAudio).
		Bool("video", info.HasVideo).
		Msg("features extracted")

	return windows, nil
}

func (e *FeatureExtractor) openAudio(ctx context.Context, m media.Media) (*audioMeter, error) {
	info := m.Info()
	if !info.HasAudio {
		return nil, nil
	}
	if info.SampleRate <= 0 {
		e.logger.Warn().Str("media", m.Path()).Msg("audio track has no sample rate, ignoring audio")
		return nil, nil
	}

	r, err := m.OpenAudio(ctx)
	if errors.Is(err, media.ErrNoStream) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	return newAudioMeter(r, info.SampleRate, e.config), nil
}

func (e *FeatureExtractor) openMotion(ctx context.Context, m media.Media) (*motionMeter, error) {
	if !m.Info().HasVideo {
		return nil, nil
	}

	r, err := m.OpenFrames(ctx, e.config.FrameStride)
	if errors.Is(err, media.ErrNoStream) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open frames: %w", err)
	}

	return newMotionMeter(r, e.config.AnalysisWidth, e.config.PixelThreshold), nil
}

// audioMeter consumes PCM sequentially and measures loudness and in-band
// spectral energy up to a target timestamp.
type audioMeter struct {
	reader     media.AudioReader
	sampleRate int
	consumed   int
	eof        bool
	buf        []float64

	fft    *fourier.FFT
	block  []float64
	coeffs []complex128
	binLo  int
	binHi  int
}

func newAudioMeter(r media.AudioReader, sampleRate int, cfg ExtractorConfig) *audioMeter {
	a := &audioMeter{
		reader:     r,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(cfg.FFTSize),
		block:      make([]float64, cfg.FFTSize),
		binLo:      1,
		binHi:      0,
	}

	// Resolve the band to coefficient indices once
	for i := 0; i <= cfg.FFTSize/2; i++ {
		hz := a.fft.Freq(i) * float64(sampleRate)
		if hz < cfg.BandLowHz {
			a.binLo = i + 1
			continue
		}
		if hz <= cfg.BandHighHz {
			a.binHi = i
		}
	}

	return a
}

func (a *audioMeter) measure(end time.Duration) (level, spectral float64, err error) {
	target := int(int64(end) * int64(a.sampleRate) / int64(time.Second))
	n := target - a.consumed
	if n <= 0 || a.eof {
		return 0, 0, nil
	}

	if cap(a.buf) < n {
		a.buf = make([]float64, n)
	}
	samples := a.buf[:n]

	got := 0
	for got < n {
		read, err := a.reader.ReadSamples(samples[got:])
		got += read
		if errors.Is(err, io.EOF) {
			a.eof = true
			break
		}
		if err != nil {
			return 0, 0, err
		}
	}
	a.consumed += got
	samples = samples[:got]

	if len(samples) == 0 {
		return 0, 0, nil
	}

	return rms(samples), a.bandEnergy(samples), nil
}

func (a *audioMeter) bandEnergy(samples []float64) float64 {
	if a.binHi < a.binLo {
		return 0
	}

	size := len(a.block)
	var total float64
	blocks := 0
	for off := 0; off < len(samples); off += size {
		n := copy(a.block, samples[off:])
		clear(a.block[n:])

		a.coeffs = a.fft.Coefficients(a.coeffs, a.block)

		var power float64
		for k := a.binLo; k <= a.binHi; k++ {
			c := a.coeffs[k]
			power += real(c)*real(c) + imag(c)*imag(c)
		}
		total += power / float64(size*size)
		blocks++
	}

	return total / float64(blocks)
}

func (a *audioMeter) Close() error {
	return a.reader.Close()
}

func rms(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
