// Package fetch retrieves source videos to local files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/keagan/fastcut/internal/clips"
)

// Kind classifies fetch failures
type Kind int

const (
	Transient Kind = iota + 1
	Permanent
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// Error is a failed fetch of one source
type Error struct {
	Source   string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch %s (%s", e.Source, e.Kind)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(", %d attempts", e.Attempts)
	}
	return msg + fmt.Sprintf("): %v", e.Err)
}

func (e *Error) Unwrap() error   { return e.Err }
func (e *Error) Temporary() bool { return e.Kind == Transient }

// Result is a fetched source on local disk
type Result struct {
	Path string
	// Downloaded is set when the file was created by the fetcher and may be removed after processing
	Downloaded bool
}

// Fetcher retrieves one source
type Fetcher interface {
	Fetch(ctx context.Context, item clips.SourceItem) (Result, error)
}

// Local resolves local file sources
type Local struct{}

func (Local) Fetch(ctx context.Context, item clips.SourceItem) (Result, error) {
	path, err := filepath.Abs(item.Descriptor)
	if err != nil {
		return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: err}
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: err}
	case err != nil:
		return Result{}, &Error{Source: item.Descriptor, Kind: Transient, Err: err}
	case info.IsDir():
		return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: fmt.Errorf("%s is a directory", path)}
	}

	return Result{Path: path}, nil
}

// Router dispatches by source kind
type Router struct {
	Local  Fetcher
	Remote Fetcher
}

func (r Router) Fetch(ctx context.Context, item clips.SourceItem) (Result, error) {
	if item.Kind == clips.SourceRemote {
		if r.Remote == nil {
			return Result{}, &Error{Source: item.Descriptor, Kind: Permanent, Err: errors.New("remote sources are not enabled")}
		}
		return r.Remote.Fetch(ctx, item)
	}
	return r.Local.Fetch(ctx, item)
}
