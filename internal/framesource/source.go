// Package framesource produces frames from files on disk and feeds them to
// a pipeline. Sources open in exclusive mode when they can and fall back to
// shared mode once when another process holds them.
package framesource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/born-ml/vision/internal/imaging"
	"github.com/born-ml/vision/internal/logger"
)

// ErrSourceInUse is returned when an exclusive open finds the source locked.
var ErrSourceInUse = errors.New("frame source is in use")

// LockFileName marks a directory as exclusively opened.
const LockFileName = ".visionskills.lock"

// SharingMode is how a source is opened.
type SharingMode int

// Sharing modes.
const (
	Exclusive SharingMode = iota
	Shared
)

func (m SharingMode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// Source produces frames on a channel until it is exhausted or closed.
type Source interface {
	Name() string
	Mode() SharingMode
	// Start begins producing frames. The channel returned by Frames is
	// closed when the source stops.
	Start(ctx context.Context) error
	Frames() <-chan *imaging.Frame
	Close() error
}

// Opener opens a source in the given mode.
type Opener func(ctx context.Context, mode SharingMode) (Source, error)

// Open opens a source exclusively and, if it is in use, retries exactly
// once in shared mode. Other errors are not retried.
func Open(ctx context.Context, open Opener) (Source, error) {
	mode := Exclusive
	src, err := retry.DoWithData(
		func() (Source, error) {
			return open(ctx, mode)
		},
		retry.Attempts(2),
		retry.Delay(0),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrSourceInUse) }),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			mode = Shared
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("frame source busy, opening shared")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open frame source: %w", err)
	}
	return src, nil
}

type lockFile struct {
	path string
}

// acquireLock creates dir/LockFileName, failing with ErrSourceInUse if it exists.
func acquireLock(dir string) (*lockFile, error) {
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: lock path derives from the source dir.
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceInUse, path)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock: %w", werr)
	}
	return &lockFile{path: path}, nil
}

func (l *lockFile) release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}
