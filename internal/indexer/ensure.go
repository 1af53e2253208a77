package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/source"
	"github.com/timmy/emosense/internal/vector"
)

// FetchFunc downloads published artifacts for key to localPath.
type FetchFunc func(ctx context.Context, key, localPath string) error

// EnsureOptions says where the serving index comes from.
type EnsureOptions struct {
	Path      string        // local payload path
	RemoteKey string        // optional object key to fetch from when Path is missing
	Fetch     FetchFunc     // required when RemoteKey is set
	Source    source.Source // optional corpus to build from as a last resort
	Builder   *Builder      // required when Source is set
}

// EnsureIndex loads the index at opts.Path. When the file is missing it is
// fetched from object storage, then built from the source. An existing but
// invalid artifact is an error; it is never silently rebuilt.
func EnsureIndex(ctx context.Context, opts EnsureOptions) (*vector.Index, error) {
	ctx = logger.SetComponent(ctx, "indexer")

	if exists(opts.Path) {
		return vector.Load(opts.Path)
	}

	if opts.RemoteKey != "" && opts.Fetch != nil {
		logger.CtxInfo(ctx, "Index not found locally, fetching: key=%s", opts.RemoteKey)
		if err := opts.Fetch(ctx, opts.RemoteKey, opts.Path); err != nil {
			if opts.Source == nil {
				return nil, fmt.Errorf("failed to fetch index: %w", err)
			}
			logger.With(logger.Fields{"key": opts.RemoteKey}).WithError(err).Warn(ctx, "Index fetch failed, building from source")
		} else {
			return vector.Load(opts.Path)
		}
	}

	if opts.Source != nil && opts.Builder != nil {
		logger.CtxInfo(ctx, "Building index from source: %s", opts.Source.GetSourceID())
		idx, _, err := opts.Builder.BuildAndPersist(ctx, opts.Source, opts.Path)
		return idx, err
	}

	return nil, fmt.Errorf("index %s: %w", opts.Path, fs.ErrNotExist)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
