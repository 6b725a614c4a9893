package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keagan/fastcut/internal/clips"
	"github.com/keagan/fastcut/internal/config"
	"github.com/keagan/fastcut/internal/fetch"
	"github.com/keagan/fastcut/internal/ffmpeg"
	"github.com/keagan/fastcut/internal/logging"
	"github.com/keagan/fastcut/internal/pipeline"
	"github.com/keagan/fastcut/internal/report"
	"github.com/keagan/fastcut/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// flagKeys maps command flags to config override keys
var flagKeys = map[string]string{
	"output-dir":      "output_dir",
	"temp-dir":        "temp_dir",
	"min-duration":    "min_clip_duration",
	"max-duration":    "max_clip_duration",
	"clips-per-video": "clips_per_video",
	"platforms-file":  "platforms_file",
	"workers":         "workers",
	"fetch-workers":   "fetch_workers",
	"skip-download":   "skip_download",
	"keep-downloads":  "keep_downloads",
	"report-json":     "report_json",

	"min-video-duration": "min_video_duration",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		// Restore default handling so a second signal kills the process
		stop()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "fastcut",
	Short:        "fastcut - engagement-driven short clip extraction",
	Long:         "Finds the most engaging moments of long videos and renders them for short-form platforms.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose, quiet)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Environment and flags override the file
		v := config.NewViper()
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		cfg.ApplyOverrides(v)

		// Store config in context
		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")

	runCmd.Flags().String("output-dir", "", "directory for rendered clips")
	runCmd.Flags().String("temp-dir", "", "directory for downloads")
	runCmd.Flags().Float64("min-duration", 0, "minimum clip length in seconds")
	runCmd.Flags().Float64("max-duration", 0, "maximum clip length in seconds")
	runCmd.Flags().Int("clips-per-video", 0, "maximum clips per source")
	runCmd.Flags().String("platforms-file", "", "YAML or JSON file overriding platform specs")
	runCmd.Flags().Int("workers", 0, "analysis and render workers")
	runCmd.Flags().Int("fetch-workers", 0, "concurrent fetches")
	runCmd.Flags().Bool("skip-download", false, "reuse videos already downloaded to the temp dir")
	runCmd.Flags().Bool("keep-downloads", false, "keep downloaded originals after processing")
	runCmd.Flags().String("report-json", "", "write the run report to this file")
	runCmd.Flags().Float64("min-video-duration", 0, "skip remote videos shorter than this many seconds")

	analyzeCmd.Flags().String("temp-dir", "", "directory for downloads")
	analyzeCmd.Flags().Float64("min-duration", 0, "minimum clip length in seconds")
	analyzeCmd.Flags().Float64("max-duration", 0, "maximum clip length in seconds")
	analyzeCmd.Flags().Int("clips-per-video", 0, "maximum clips per source")
	analyzeCmd.Flags().String("platforms-file", "", "YAML or JSON file overriding platform specs")
	analyzeCmd.Flags().Float64("min-video-duration", 0, "skip remote videos shorter than this many seconds")

	platformsCmd.Flags().String("platforms-file", "", "YAML or JSON file overriding platform specs")

	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(platformsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

// deps wires the ffmpeg and yt-dlp backed collaborators
func deps(cfg *config.Config) (pipeline.Deps, *fetch.YtDlp, error) {
	exec, err := ffmpeg.NewWithPaths(log.Logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.Threads)
	if err != nil {
		return pipeline.Deps{}, nil, err
	}

	if err := util.EnsureDir(cfg.TempDir); err != nil {
		return pipeline.Deps{}, nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	ytdlp := fetch.NewYtDlp(log.Logger, cfg.Fetch.YtDlpPath, cfg.TempDir, cfg.Fetch.Format)
	ytdlp.Reuse = cfg.Fetch.SkipDownload
	ytdlp.MinDuration = cfg.Fetch.MinVideoDuration

	enc := ffmpeg.Encoding{
		VideoCodec: cfg.Render.VideoCodec,
		AudioCodec: cfg.Render.AudioCodec,
		CRF:        cfg.Render.CRF,
		Preset:     cfg.Render.Preset,
	}

	decoder := ffmpeg.NewDecoder(exec, cfg.FFmpeg.ProbeTimeout)
	decoder.FrameWidth = cfg.Analysis.AnalysisWidth

	return pipeline.Deps{
		Fetcher:    fetch.Router{Local: fetch.Local{}, Remote: ytdlp},
		Decoder:    decoder,
		Transcoder: ffmpeg.NewTranscoder(exec, enc),
	}, ytdlp, nil
}

var runCmd = &cobra.Command{
	Use:   "run [sources...]",
	Short: "Select and render clips from videos, URLs, video ids or directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		if err := cfg.Validate(); err != nil {
			return err
		}

		d, ytdlp, err := deps(cfg)
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg, d)
		if err != nil {
			return err
		}

		sources, err := expandSources(ctx, args, cfg, ytdlp)
		if err != nil {
			return err
		}

		rep, err := pipe.Run(ctx, clips.NewSourceItems(sources))
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			log.Warn().Msg("run interrupted, report covers completed work")
		}

		// Reports are written even after an interrupt
		wctx := context.WithoutCancel(ctx)
		sinks := []report.Sink{report.LogSink{Logger: logging.WithComponent("report")}}
		if cfg.Report.JSONPath != "" {
			sinks = append(sinks, report.JSONSink{Path: cfg.Report.JSONPath})
		}
		if cfg.Report.PostgresDSN != "" {
			pg, err := report.NewPostgresSink(wctx, cfg.Report.PostgresDSN)
			if err != nil {
				log.Error().Err(err).Msg("report database unavailable")
			} else {
				defer pg.Close()
				sinks = append(sinks, pg)
			}
		}

		if err := report.WriteAll(wctx, rep, sinks...); err != nil {
			log.Error().Err(err).Msg("failed to write report")
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Analyze one video and list its candidate clips without rendering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)

		d, _, err := deps(cfg)
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg, d)
		if err != nil {
			return err
		}

		preview, err := pipe.Preview(ctx, clips.NewSourceItem(0, args[0]))
		if err != nil {
			return err
		}

		log.Info().
			Str("source", args[0]).
			Str("duration", util.FormatDuration(preview.Info.Duration)).
			Int("windows", len(preview.Analysis.Timeline)).
			Int("candidates", len(preview.Analysis.Candidates)).
			Msg("analysis complete")

		for _, c := range preview.Analysis.Candidates {
			log.Info().
				Int("rank", c.Rank).
				Str("start", util.FormatDuration(c.Start)).
				Str("end", util.FormatDuration(c.End)).
				Float64("score", c.Score).
				Float64("mean", c.MeanScore).
				Msg("candidate")
		}
		for _, inst := range preview.Instructions {
			log.Info().
				Int("rank", inst.Candidate.Rank).
				Str("platform", inst.Platform.Name).
				Str("start", util.FormatDuration(inst.Start)).
				Str("end", util.FormatDuration(inst.EffectiveEnd)).
				Bool("truncated", inst.Truncated).
				Msg("planned render")
		}
		for _, g := range preview.Gaps {
			log.Info().Int("rank", g.Candidate.Rank).Str("platform", g.Platform).Str("reason", g.Reason).Msg("skipped")
		}
		return nil
	},
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List the resolved target platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		platforms, err := cfg.PlatformList()
		if err != nil {
			return err
		}

		for _, p := range platforms {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %4dx%-4d %5.2f fps  %-4s  %s-%s  audio %s\n",
				p.Name, p.Width, p.Height, p.FPS, p.Format, p.MinDuration, p.MaxDuration, p.AudioBitrate)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove rendered clips and downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		for _, dir := range []string{cfg.OutputDir, cfg.TempDir} {
			n, err := util.ClearDir(dir)
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", dir, err)
			}
			log.Info().Str("dir", dir).Int("removed", n).Msg("cleared")
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		force, _ := cmd.Flags().GetBool("force")
		if util.FileExists(path) && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		if err := cfg.Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}
