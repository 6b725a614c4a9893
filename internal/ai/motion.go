package ai

import (
	"errors"
	"image"
	"image/draw"
	"io"
	"time"

	"github.com/keagan/fastcut/internal/media"
	"github.com/nfnt/resize"
)

// motionMeter differences successive sampled frames and reports the mean
// fraction of changed pixels per window.
type motionMeter struct {
	reader    media.FrameReader
	width     int
	threshold uint8

	prev    *image.Gray
	pending *media.Frame
	eof     bool
}

func newMotionMeter(r media.FrameReader, width int, threshold uint8) *motionMeter {
	return &motionMeter{
		reader:    r,
		width:     width,
		threshold: threshold,
	}
}

func (m *motionMeter) measure(end time.Duration) (float64, error) {
	var sum float64
	count := 0

	for !m.eof {
		var frame media.Frame
		if m.pending != nil {
			frame = *m.pending
			m.pending = nil
		} else {
			f, err := m.reader.NextFrame()
			if errors.Is(err, io.EOF) {
				m.eof = true
				break
			}
			if err != nil {
				return 0, err
			}
			frame = f
		}

		if frame.Timestamp >= end {
			m.pending = &frame
			break
		}
		if frame.Image == nil {
			continue
		}

		gray := downscale(frame.Image, m.width)
		if m.prev != nil && m.prev.Bounds().Size() == gray.Bounds().Size() {
			sum += changedFraction(m.prev, gray, m.threshold)
			count++
		}
		m.prev = gray
	}

	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

func (m *motionMeter) Close() error {
	return m.reader.Close()
}

// downscale shrinks a frame to the analysis width, keeping aspect ratio
func downscale(img *image.Gray, width int) *image.Gray {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}

	scaled := resize.Resize(uint(width), 0, img, resize.Bilinear)
	if g, ok := scaled.(*image.Gray); ok {
		return g
	}

	b := scaled.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), scaled, b.Min, draw.Src)
	return g
}

// changedFraction returns the share of pixels whose luminance moved by more than threshold
func changedFraction(a, b *image.Gray, threshold uint8) float64 {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w == 0 || h == 0 {
		return 0
	}

	// Pix[0] is the top-left pixel of Rect, including for sub-images
	changed := 0
	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride : y*a.Stride+w]
		rowB := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := 0; x < w; x++ {
			d := int(rowA[x]) - int(rowB[x])
			if d < 0 {
				d = -d
			}
			if d > int(threshold) {
				changed++
			}
		}
	}

	return float64(changed) / float64(w*h)
}
