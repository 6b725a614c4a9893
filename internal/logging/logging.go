package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level maps the CLI verbosity flags to a zerolog level. quiet wins.
func Level(verbose, quiet bool) zerolog.Level {
	switch {
	case quiet:
		return zerolog.WarnLevel
	case verbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a console logger on w. Colors are only used when w is a terminal.
func New(w io.Writer) zerolog.Logger {
	f, isFile := w.(*os.File)
	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    !isFile || !isTerminal(f),
	}
	return zerolog.New(console).With().Timestamp().Logger()
}

// Init sets the global level and points the global logger at stderr
func Init(verbose, quiet bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(Level(verbose, quiet))
	log.Logger = New(os.Stderr)
}

func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
