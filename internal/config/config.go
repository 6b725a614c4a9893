package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/keagan/fastcut/internal/ai"
	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/platform"
	"github.com/keagan/fastcut/internal/retry"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration. It is treated as immutable once
// loaded, overridden and validated.
type Config struct {
	// Core settings
	OutputDir string `yaml:"output_dir"`
	TempDir   string `yaml:"temp_dir"`

	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Selection SelectionConfig `yaml:"selection"`
	Pools     PoolConfig      `yaml:"pools"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Render    RenderConfig    `yaml:"render"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Report    ReportConfig    `yaml:"report"`

	// Platforms replaces the built-in platform list when set
	Platforms []platform.Spec `yaml:"platforms,omitempty"`
	// PlatformsFile overrides or extends the platform list by name
	PlatformsFile string `yaml:"platforms_file,omitempty"`

	AuthorizedChannels  []string `yaml:"authorized_channels,omitempty"`
	MaxVideosPerChannel int      `yaml:"max_videos_per_channel"`
}

type AnalysisConfig struct {
	WindowLength   time.Duration `yaml:"window_length"`
	FrameStride    int           `yaml:"frame_stride"`
	AnalysisWidth  int           `yaml:"analysis_width"`
	PixelThreshold uint8         `yaml:"pixel_threshold"`
	FFTSize        int           `yaml:"fft_size"`
	BandLowHz      float64       `yaml:"band_low_hz"`
	BandHighHz     float64       `yaml:"band_high_hz"`
}

type ScoringConfig struct {
	AudioWeight        float64 `yaml:"audio_weight"`
	SpectralWeight     float64 `yaml:"spectral_weight"`
	MotionWeight       float64 `yaml:"motion_weight"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`
	SilenceFactor      float64 `yaml:"silence_factor"`
}

// SelectionConfig durations are in seconds
type SelectionConfig struct {
	MinClipDuration float64 `yaml:"min_clip_duration"`
	MaxClipDuration float64 `yaml:"max_clip_duration"`
	ClipsPerVideo   int     `yaml:"clips_per_video"`
	PeakFraction    float64 `yaml:"peak_fraction"`
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

type PoolConfig struct {
	FetchWorkers int `yaml:"fetch_workers"`
	Workers      int `yaml:"workers"`
	QueueSize    int `yaml:"queue_size"`
}

type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	RatePerMinute float64       `yaml:"rate_per_minute"`
	YtDlpPath     string        `yaml:"ytdlp_path"`
	Format        string        `yaml:"format"`
	KeepDownloads bool          `yaml:"keep_downloads"`
	SkipDownload  bool          `yaml:"skip_download"`

	// MinVideoDuration skips remote videos shorter than this before downloading
	MinVideoDuration time.Duration `yaml:"min_video_duration"`
}

type RenderConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	AudioBitrate string        `yaml:"audio_bitrate"`
	VideoCodec   string        `yaml:"video_codec"`
	AudioCodec   string        `yaml:"audio_codec"`
	CRF          int           `yaml:"crf"`
	Preset       string        `yaml:"preset"`
}

type FFmpegConfig struct {
	BinaryPath   string        `yaml:"binary_path"`
	ProbePath    string        `yaml:"probe_path"`
	Threads      int           `yaml:"threads"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

type ReportConfig struct {
	JSONPath    string `yaml:"json_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	analysis := ai.DefaultExtractorConfig()
	scoring := ai.DefaultScoringConfig()
	selection := ai.DefaultConstraints()

	return &Config{
		OutputDir: "./output",
		TempDir:   filepath.Join(os.TempDir(), "fastcut"),
		Analysis: AnalysisConfig{
			WindowLength:   analysis.WindowLength,
			FrameStride:    analysis.FrameStride,
			AnalysisWidth:  analysis.AnalysisWidth,
			PixelThreshold: analysis.PixelThreshold,
			FFTSize:        analysis.FFTSize,
			BandLowHz:      analysis.BandLowHz,
			BandHighHz:     analysis.BandHighHz,
		},
		Scoring: ScoringConfig{
			AudioWeight:        scoring.AudioWeight,
			SpectralWeight:     scoring.SpectralWeight,
			MotionWeight:       scoring.MotionWeight,
			SilenceThresholdDB: scoring.SilenceThresholdDB,
			SilenceFactor:      scoring.SilenceFactor,
		},
		Selection: SelectionConfig{
			MinClipDuration: selection.MinClipDuration.Seconds(),
			MaxClipDuration: selection.MaxClipDuration.Seconds(),
			ClipsPerVideo:   selection.MaxClipsPerVideo,
			PeakFraction:    selection.PeakFraction,
			EnergyThreshold: selection.EnergyThreshold,
		},
		Pools: PoolConfig{
			FetchWorkers: 2,
			Workers:      runtime.NumCPU(),
			QueueSize:    0,
		},
		Fetch: FetchConfig{
			Timeout:     10 * time.Minute,
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,

			MinVideoDuration: 2 * time.Minute,
		},
		Render: RenderConfig{
			Timeout:      10 * time.Minute,
			MaxAttempts:  2,
			BaseDelay:    time.Second,
			MaxDelay:     10 * time.Second,
			AudioBitrate: "128k",
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			CRF:          23,
			Preset:       "fast",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath:   "ffmpeg",
			ProbePath:    "ffprobe",
			Threads:      0,
			ProbeTimeout: 30 * time.Second,
		},
		MaxVideosPerChannel: 5,
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".fastcut", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envKeys maps override keys to the environment variables that set them
var envKeys = map[string]string{
	"output_dir":          "OUTPUT_DIR",
	"temp_dir":            "TEMP_DIR",
	"min_clip_duration":   "MIN_CLIP_DURATION",
	"max_clip_duration":   "MAX_CLIP_DURATION",
	"clips_per_video":     "CLIPS_PER_VIDEO",
	"energy_threshold":    "ENERGY_THRESHOLD",
	"silence_threshold":   "SILENCE_THRESHOLD",
	"audio_bitrate":       "AUDIO_BITRATE",
	"platforms_file":      "PLATFORMS_FILE",
	"authorized_channels": "AUTHORIZED_CHANNELS",
	"min_video_duration":  "MIN_VIDEO_DURATION",
}

// NewViper returns a viper instance bound to the override environment variables.
// Callers may additionally bind command flags to the same keys.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
	return v
}

// ApplyOverrides copies every key set in v over the loaded values
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v.IsSet("output_dir") {
		c.OutputDir = v.GetString("output_dir")
	}
	if v.IsSet("temp_dir") {
		c.TempDir = v.GetString("temp_dir")
	}
	if v.IsSet("min_clip_duration") {
		c.Selection.MinClipDuration = v.GetFloat64("min_clip_duration")
	}
	if v.IsSet("max_clip_duration") {
		c.Selection.MaxClipDuration = v.GetFloat64("max_clip_duration")
	}
	if v.IsSet("clips_per_video") {
		c.Selection.ClipsPerVideo = v.GetInt("clips_per_video")
	}
	if v.IsSet("energy_threshold") {
		c.Selection.EnergyThreshold = v.GetFloat64("energy_threshold")
	}
	if v.IsSet("silence_threshold") {
		c.Scoring.SilenceThresholdDB = v.GetFloat64("silence_threshold")
	}
	if v.IsSet("audio_bitrate") {
		c.Render.AudioBitrate = v.GetString("audio_bitrate")
	}
	if v.IsSet("platforms_file") {
		c.PlatformsFile = v.GetString("platforms_file")
	}
	if v.IsSet("authorized_channels") {
		c.AuthorizedChannels = splitList(v.GetString("authorized_channels"))
	}
	if v.IsSet("workers") {
		c.Pools.Workers = v.GetInt("workers")
	}
	if v.IsSet("fetch_workers") {
		c.Pools.FetchWorkers = v.GetInt("fetch_workers")
	}
	if v.IsSet("skip_download") {
		c.Fetch.SkipDownload = v.GetBool("skip_download")
	}
	if v.IsSet("keep_downloads") {
		c.Fetch.KeepDownloads = v.GetBool("keep_downloads")
	}
	if v.IsSet("min_video_duration") {
		// seconds, like the clip duration overrides
		c.Fetch.MinVideoDuration = time.Duration(v.GetFloat64("min_video_duration") * float64(time.Second))
	}
	if v.IsSet("report_json") {
		c.Report.JSONPath = v.GetString("report_json")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}

// Validate checks everything that must hold before any item is admitted
func (c *Config) Validate() error {
	if err := c.Constraints().Validate(); err != nil {
		return err
	}
	if err := c.ScoringConfig().Validate(); err != nil {
		return err
	}
	if c.OutputDir == "" {
		return &ai.SelectionError{Field: "output_dir", Reason: "is required"}
	}
	if c.TempDir == "" {
		return &ai.SelectionError{Field: "temp_dir", Reason: "is required"}
	}
	if c.Pools.Workers < 1 || c.Pools.FetchWorkers < 1 {
		return &ai.SelectionError{Field: "pools", Reason: "worker counts must be at least 1"}
	}
	if c.Pools.QueueSize < 0 {
		return &ai.SelectionError{Field: "pools.queue_size", Reason: "must not be negative"}
	}
	if c.Fetch.MaxAttempts < 1 || c.Render.MaxAttempts < 1 {
		return &ai.SelectionError{Field: "max_attempts", Reason: "must be at least 1"}
	}
	// Cancellation does not reach in-flight fetches and renders; these
	// timeouts bound how long a cancelled run keeps going
	if c.Fetch.Timeout <= 0 {
		return &ai.SelectionError{Field: "fetch.timeout", Reason: "must be positive"}
	}
	if c.Render.Timeout <= 0 {
		return &ai.SelectionError{Field: "render.timeout", Reason: "must be positive"}
	}
	if c.Fetch.MinVideoDuration < 0 {
		return &ai.SelectionError{Field: "fetch.min_video_duration", Reason: "must not be negative"}
	}
	if c.Fetch.RatePerMinute < 0 {
		return &ai.SelectionError{Field: "fetch.rate_per_minute", Reason: "must not be negative"}
	}
	platforms, err := c.PlatformList()
	if err != nil {
		return err
	}
	if len(platforms) == 0 {
		return &ai.SelectionError{Field: "platforms", Reason: "at least one platform is required"}
	}
	return nil
}

// Constraints returns the clip selection constraints
func (c *Config) Constraints() ai.Constraints {
	return ai.Constraints{
		MinClipDuration:  seconds(c.Selection.MinClipDuration),
		MaxClipDuration:  seconds(c.Selection.MaxClipDuration),
		MaxClipsPerVideo: c.Selection.ClipsPerVideo,
		PeakFraction:     c.Selection.PeakFraction,
		EnergyThreshold:  c.Selection.EnergyThreshold,
	}
}

// ScoringConfig returns the engagement scorer settings
func (c *Config) ScoringConfig() ai.ScoringConfig {
	return ai.ScoringConfig{
		AudioWeight:        c.Scoring.AudioWeight,
		SpectralWeight:     c.Scoring.SpectralWeight,
		MotionWeight:       c.Scoring.MotionWeight,
		SilenceThresholdDB: c.Scoring.SilenceThresholdDB,
		SilenceFactor:      c.Scoring.SilenceFactor,
	}
}

// ExtractorConfig returns the signal extractor settings
func (c *Config) ExtractorConfig() ai.ExtractorConfig {
	return ai.ExtractorConfig{
		WindowLength:   c.Analysis.WindowLength,
		FrameStride:    c.Analysis.FrameStride,
		AnalysisWidth:  c.Analysis.AnalysisWidth,
		PixelThreshold: c.Analysis.PixelThreshold,
		FFTSize:        c.Analysis.FFTSize,
		BandLowHz:      c.Analysis.BandLowHz,
		BandHighHz:     c.Analysis.BandHighHz,
	}
}

// PlatformList resolves the configured platforms in order: the inline list (or
// the built-in defaults), then the platforms file merged over it by name.
func (c *Config) PlatformList() ([]clips.Platform, error) {
	specs := c.Platforms
	if len(specs) == 0 {
		specs = platform.Defaults()
	}

	if c.PlatformsFile != "" {
		overrides, err := platform.LoadFile(c.PlatformsFile)
		if err != nil {
			return nil, err
		}
		specs = platform.Merge(specs, overrides)
	}

	out := make([]clips.Platform, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		p := s.Platform(c.Render.AudioBitrate)
		if err := p.Validate(); err != nil {
			return nil, &ai.SelectionError{Field: "platforms", Reason: err.Error()}
		}
		if seen[p.Name] {
			return nil, &ai.SelectionError{Field: "platforms", Reason: fmt.Sprintf("duplicate platform %q", p.Name)}
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

// FetchPolicy returns the retry policy for fetches
func (c *Config) FetchPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Fetch.MaxAttempts, BaseDelay: c.Fetch.BaseDelay, MaxDelay: c.Fetch.MaxDelay}
}

// RenderPolicy returns the retry policy for renders
func (c *Config) RenderPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Render.MaxAttempts, BaseDelay: c.Render.BaseDelay, MaxDelay: c.Render.MaxDelay}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
