package platform

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/keagan/fastcut/internal/clips"
	"gopkg.in/yaml.v3"
)

// Spec is the file representation of a platform. Durations are in seconds.
type Spec struct {
	Name         string  `yaml:"name" json:"name"`
	Width        int     `yaml:"width" json:"width"`
	Height       int     `yaml:"height" json:"height"`
	Resolution   []int   `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	FPS          float64 `yaml:"fps" json:"fps"`
	Format       string  `yaml:"format" json:"format"`
	MinDuration  float64 `yaml:"min_duration" json:"min_duration"`
	MaxDuration  float64 `yaml:"max_duration" json:"max_duration"`
	AudioBitrate string  `yaml:"audio_bitrate,omitempty" json:"audio_bitrate,omitempty"`
}

// Platform converts the spec, filling the audio bitrate when unset
func (s Spec) Platform(defaultBitrate string) clips.Platform {
	bitrate := s.AudioBitrate
	if bitrate == "" {
		bitrate = defaultBitrate
	}
	width, height := s.Width, s.Height
	if width == 0 && height == 0 && len(s.Resolution) == 2 {
		width, height = s.Resolution[0], s.Resolution[1]
	}
	return clips.Platform{
		Name:         s.Name,
		Width:        width,
		Height:       height,
		FPS:          s.FPS,
		Format:       s.Format,
		MinDuration:  seconds(s.MinDuration),
		MaxDuration:  seconds(s.MaxDuration),
		AudioBitrate: bitrate,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Defaults returns the built-in vertical short-form targets
func Defaults() []Spec {
	return []Spec{
		{Name: "youtube_shorts", Width: 1080, Height: 1920, FPS: 30, Format: "mp4", MinDuration: 15, MaxDuration: 60},
		{Name: "tiktok", Width: 1080, Height: 1920, FPS: 30, Format: "mp4", MinDuration: 15, MaxDuration: 60},
		{Name: "instagram_reels", Width: 1080, Height: 1920, FPS: 30, Format: "mp4", MinDuration: 3, MaxDuration: 60},
	}
}

// LoadFile reads a platforms file. JSON is accepted as it is a subset of YAML.
// The file is either a list of specs or a map keyed by platform name.
func LoadFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platforms file: %w", err)
	}

	var list []Spec
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var byName map[string]Spec
	if err := yaml.Unmarshal(data, &byName); err != nil {
		return nil, fmt.Errorf("parse platforms file %s: %w", path, err)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	list = make([]Spec, 0, len(byName))
	for _, name := range names {
		s := byName[name]
		if s.Name == "" {
			s.Name = name
		}
		list = append(list, s)
	}
	return list, nil
}

// Merge overrides base entries by name and appends new ones, keeping base order
func Merge(base, overrides []Spec) []Spec {
	out := append([]Spec(nil), base...)
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.Name] = i
	}
	for _, s := range overrides {
		if i, ok := index[s.Name]; ok {
			out[i] = s
			continue
		}
		index[s.Name] = len(out)
		out = append(out, s)
	}
	return out
}
