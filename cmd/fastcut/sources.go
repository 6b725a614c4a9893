package main

import (
	"context"
	"errors"
	"os"

	"github.com/keagan/fastcut/internal/config"
	"github.com/keagan/fastcut/internal/fetch"
	"github.com/keagan/fastcut/pkg/util"
	"github.com/rs/zerolog/log"
)

type channelLister interface {
	ListChannel(ctx context.Context, channelID string, limit int) ([]string, error)
}

// expandSources replaces directories with the videos inside them and appends
// the recent uploads of every authorized channel. A channel that cannot be
// listed is skipped. Repeats of the same video, such as a bare id and its
// watch URL, are kept once.
func expandSources(ctx context.Context, args []string, cfg *config.Config, lister channelLister) ([]string, error) {
	var sources []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			sources = append(sources, arg)
			continue
		}

		videos, err := util.ListVideos(arg)
		if err != nil {
			return nil, err
		}
		if len(videos) == 0 {
			log.Warn().Str("dir", arg).Msg("no videos found in directory")
		}
		sources = append(sources, videos...)
	}

	for _, channel := range cfg.AuthorizedChannels {
		ids, err := lister.ListChannel(ctx, channel, cfg.MaxVideosPerChannel)
		if err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to list channel")
			continue
		}
		sources = append(sources, ids...)
	}

	sources = dedupe(sources)
	if len(sources) == 0 {
		return nil, errors.New("no sources given: pass files, directories, URLs or video ids, or configure authorized_channels")
	}
	return sources, nil
}

func dedupe(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := sources[:0]
	for _, src := range sources {
		key := fetch.VideoID(src)
		if key == "" {
			key = src
		}
		if seen[key] {
			log.Info().Str("source", src).Msg("skipping repeated source")
			continue
		}
		seen[key] = true
		out = append(out, src)
	}
	return out
}
