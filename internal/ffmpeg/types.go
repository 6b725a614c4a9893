package ffmpeg

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "fast"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPixFmt     = "yuv420p"

	// AnalysisSampleRate is the rate audio is resampled to for feature extraction
	AnalysisSampleRate = 16000
)

// Encoding configures transcodes
type Encoding struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
}

// DefaultEncoding returns libx264/aac at crf 23
func DefaultEncoding() Encoding {
	return Encoding{
		VideoCodec: DefaultVideoCodec,
		AudioCodec: DefaultAudioCodec,
		CRF:        DefaultCRF,
		Preset:     DefaultPreset,
	}
}

func (e Encoding) withDefaults() Encoding {
	d := DefaultEncoding()
	if e.VideoCodec == "" {
		e.VideoCodec = d.VideoCodec
	}
	if e.AudioCodec == "" {
		e.AudioCodec = d.AudioCodec
	}
	if e.CRF <= 0 || e.CRF > 51 {
		e.CRF = d.CRF
	}
	if e.Preset == "" {
		e.Preset = d.Preset
	}
	return e
}
