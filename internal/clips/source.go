package clips

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SourceKind distinguishes local files from remote videos
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// SourceItem identifies one input video. Values are never mutated after NewSourceItem.
type SourceItem struct {
	Index      int
	ID         string
	Descriptor string
	Kind       SourceKind
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// NewSourceItem classifies a descriptor as a local path or a remote video
func NewSourceItem(index int, descriptor string) SourceItem {
	descriptor = strings.TrimSpace(descriptor)
	return SourceItem{
		Index:      index,
		ID:         uuid.NewString(),
		Descriptor: descriptor,
		Kind:       classify(descriptor),
	}
}

// NewSourceItems builds items in submission order
func NewSourceItems(descriptors []string) []SourceItem {
	items := make([]SourceItem, 0, len(descriptors))
	for i, d := range descriptors {
		items = append(items, NewSourceItem(i, d))
	}
	return items
}

func classify(descriptor string) SourceKind {
	if u, err := url.Parse(descriptor); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return SourceRemote
	}
	if _, err := os.Stat(descriptor); err == nil {
		return SourceLocal
	}
	if videoIDPattern.MatchString(descriptor) {
		return SourceRemote
	}
	return SourceLocal
}

// Name returns a filesystem-safe base name for outputs
func (s SourceItem) Name() string {
	base := s.Descriptor
	if s.Kind == SourceLocal {
		base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	} else if u, err := url.Parse(base); err == nil && u.Host != "" {
		if v := u.Query().Get("v"); v != "" {
			base = v
		} else {
			base = filepath.Base(u.Path)
		}
	}

	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		}
		return -1
	}, base)

	if safe == "" {
		safe = "source"
	}
	return safe
}
