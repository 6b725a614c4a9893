package clips

import (
	"fmt"
	"time"
)

// Platform describes the output constraints of one publishing target
type Platform struct {
	Name         string
	Width        int
	Height       int
	FPS          float64
	Format       string
	MinDuration  time.Duration // zero means no lower bound
	MaxDuration  time.Duration // zero means no upper bound
	AudioBitrate string
}

// AspectRatio returns width over height
func (p Platform) AspectRatio() float64 {
	if p.Height == 0 {
		return 0
	}
	return float64(p.Width) / float64(p.Height)
}

// Validate checks that a platform can be rendered
func (p Platform) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("platform name is required")
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("platform %s: resolution must be positive, got %dx%d", p.Name, p.Width, p.Height)
	case p.FPS < 0:
		return fmt.Errorf("platform %s: fps cannot be negative", p.Name)
	case p.Format == "":
		return fmt.Errorf("platform %s: container format is required", p.Name)
	case p.MinDuration < 0 || p.MaxDuration < 0:
		return fmt.Errorf("platform %s: duration bounds cannot be negative", p.Name)
	case p.MaxDuration > 0 && p.MinDuration > p.MaxDuration:
		return fmt.Errorf("platform %s: min duration %s exceeds max duration %s", p.Name, p.MinDuration, p.MaxDuration)
	}
	return nil
}
